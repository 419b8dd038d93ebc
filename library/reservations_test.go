package library

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_CreateReservation_WhenCopyOnShelf_Refused(t *testing.T) {
	mgr, _ := newManager(t)
	u := seedUser(t, mgr, "ana")
	b := seedBook(t, mgr, "Rayuela", 1)

	_, err := mgr.CreateReservation(context.Background(), u.ID, b.ID)

	assert.ErrorIs(t, err, ErrBookAvailable)
}

func Test_CreateReservation_Twice_Refused(t *testing.T) {
	mgr, _ := newManager(t)
	ctx := context.Background()
	holder := seedUser(t, mgr, "ana")
	waiter := seedUser(t, mgr, "bea")
	b := seedBook(t, mgr, "Rayuela", 1)
	_, err := mgr.Issue(ctx, holder.ID, b.ID)
	require.NoError(t, err)
	_, err = mgr.CreateReservation(ctx, waiter.ID, b.ID)
	require.NoError(t, err)

	_, err = mgr.CreateReservation(ctx, waiter.ID, b.ID)

	assert.ErrorIs(t, err, ErrDuplicateReservation)
	queue, err := mgr.ReservationQueue(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, queue, 1)
}

// A borrows the only copy, B is refused and queues, A returns and B is told
// the book is ready.
func Test_Scenario_ReturnNotifiesWaitingReader(t *testing.T) {
	mgr, _ := newManager(t)
	ctx := context.Background()
	a := seedUser(t, mgr, "ana")
	b := seedUser(t, mgr, "bea")
	book := seedBook(t, mgr, "Rayuela", 1)

	loan, err := mgr.Issue(ctx, a.ID, book.ID)
	require.NoError(t, err)
	_, err = mgr.Issue(ctx, b.ID, book.ID)
	require.ErrorIs(t, err, ErrOutOfStock)
	res, err := mgr.CreateReservation(ctx, b.ID, book.ID)
	require.NoError(t, err)
	assert.Equal(t, ReservationPending, res.State)
	assert.Equal(t, 1, countKind(t, mgr, b.ID, KindSystem))

	ok, err := mgr.ReturnLoan(ctx, loan.ID)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := mgr.GetReservation(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, ReservationNotified, got.State)
	require.NotNil(t, got.NotifiedAt)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, got.ExpiresAt.Equal(baseTime.Add(3*day)))
	assert.Equal(t, 1, countKind(t, mgr, b.ID, KindReservationReady))
	assert.Equal(t, 1, availableCopies(t, mgr, book.ID))

	// B collects the book; the reservation is fulfilled.
	_, err = mgr.Issue(ctx, b.ID, book.ID)
	require.NoError(t, err)
	got, err = mgr.GetReservation(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, ReservationCompleted, got.State)
}

func Test_ReturnLoan_PromotesOnlyOldestPending(t *testing.T) {
	mgr, clock := newManager(t)
	ctx := context.Background()
	holder := seedUser(t, mgr, "ana")
	first := seedUser(t, mgr, "bea")
	second := seedUser(t, mgr, "cid")
	book := seedBook(t, mgr, "Rayuela", 1)
	loan, err := mgr.Issue(ctx, holder.ID, book.ID)
	require.NoError(t, err)

	r1, err := mgr.CreateReservation(ctx, first.ID, book.ID)
	require.NoError(t, err)
	clock.Advance(time.Minute)
	r2, err := mgr.CreateReservation(ctx, second.ID, book.ID)
	require.NoError(t, err)

	_, err = mgr.ReturnLoan(ctx, loan.ID)
	require.NoError(t, err)

	got1, err := mgr.GetReservation(ctx, r1.ID)
	require.NoError(t, err)
	got2, err := mgr.GetReservation(ctx, r2.ID)
	require.NoError(t, err)
	assert.Equal(t, ReservationNotified, got1.State)
	assert.Equal(t, ReservationPending, got2.State)
	assert.Zero(t, countKind(t, mgr, second.ID, KindReservationReady))
}

func Test_ReturnLoan_WithEmptyQueue_PromotesNothing(t *testing.T) {
	mgr, _ := newManager(t)
	ctx := context.Background()
	u := seedUser(t, mgr, "ana")
	book := seedBook(t, mgr, "Rayuela", 1)
	loan, err := mgr.Issue(ctx, u.ID, book.ID)
	require.NoError(t, err)

	ok, err := mgr.ReturnLoan(ctx, loan.ID)

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, countKind(t, mgr, u.ID, KindReservationReady))
}

func Test_CancelReservation_OwnerAdminAndStranger(t *testing.T) {
	mgr, _ := newManager(t)
	ctx := context.Background()
	holder := seedUser(t, mgr, "ana")
	waiter := seedUser(t, mgr, "bea")
	book := seedBook(t, mgr, "Rayuela", 1)
	_, err := mgr.Issue(ctx, holder.ID, book.ID)
	require.NoError(t, err)
	res, err := mgr.CreateReservation(ctx, waiter.ID, book.ID)
	require.NoError(t, err)

	err = mgr.CancelReservation(ctx, Actor{UserID: holder.ID}, res.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, mgr.CancelReservation(ctx, Actor{UserID: waiter.ID}, res.ID))
	require.NoError(t, mgr.CancelReservation(ctx, Actor{UserID: holder.ID, IsAdmin: true}, res.ID))

	got, err := mgr.GetReservation(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, ReservationCancelled, got.State)

	// The partial unique index only covers pending rows, so the user may queue again.
	_, err = mgr.CreateReservation(ctx, waiter.ID, book.ID)
	assert.NoError(t, err)
}

func Test_ExpireReservations_PassesCopyToNextInLine(t *testing.T) {
	mgr, clock := newManager(t)
	ctx := context.Background()
	holder := seedUser(t, mgr, "ana")
	first := seedUser(t, mgr, "bea")
	second := seedUser(t, mgr, "cid")
	book := seedBook(t, mgr, "Rayuela", 1)
	loan, err := mgr.Issue(ctx, holder.ID, book.ID)
	require.NoError(t, err)
	r1, err := mgr.CreateReservation(ctx, first.ID, book.ID)
	require.NoError(t, err)
	clock.Advance(time.Minute)
	r2, err := mgr.CreateReservation(ctx, second.ID, book.ID)
	require.NoError(t, err)
	_, err = mgr.ReturnLoan(ctx, loan.ID)
	require.NoError(t, err)

	n, err := mgr.ExpireReservations(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	clock.Advance(3*day + time.Minute)
	n, err = mgr.ExpireReservations(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got1, err := mgr.GetReservation(ctx, r1.ID)
	require.NoError(t, err)
	got2, err := mgr.GetReservation(ctx, r2.ID)
	require.NoError(t, err)
	assert.Equal(t, ReservationCancelled, got1.State)
	assert.Equal(t, ReservationNotified, got2.State)
	assert.Equal(t, 1, countKind(t, mgr, second.ID, KindReservationReady))
}

func Test_ExpireReservations_NeverNotifiesMoreHoldersThanCopies(t *testing.T) {
	mgr, clock := newManager(t)
	ctx := context.Background()
	book := seedBook(t, mgr, "Ficciones", 2)
	var loans []*Loan
	for _, name := range []string{"ana", "bea"} {
		l, err := mgr.Issue(ctx, seedUser(t, mgr, name).ID, book.ID)
		require.NoError(t, err)
		loans = append(loans, l)
	}
	var queue []*Reservation
	for _, name := range []string{"cid", "dan", "eva"} {
		clock.Advance(time.Minute)
		r, err := mgr.CreateReservation(ctx, seedUser(t, mgr, name).ID, book.ID)
		require.NoError(t, err)
		queue = append(queue, r)
	}

	// cid is notified a day before dan, so cid's hold lapses first.
	_, err := mgr.ReturnLoan(ctx, loans[0].ID)
	require.NoError(t, err)
	clock.Advance(day)
	_, err = mgr.ReturnLoan(ctx, loans[1].ID)
	require.NoError(t, err)
	_, err = mgr.Issue(ctx, seedUser(t, mgr, "fay").ID, book.ID)
	require.NoError(t, err)
	require.Equal(t, 1, availableCopies(t, mgr, book.ID))

	states := func() []ReservationState {
		out := make([]ReservationState, 0, len(queue))
		for _, r := range queue {
			got, err := mgr.GetReservation(ctx, r.ID)
			require.NoError(t, err)
			out = append(out, got.State)
		}
		return out
	}

	clock.Advance(2*day + time.Minute)
	n, err := mgr.ExpireReservations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []ReservationState{ReservationCancelled, ReservationNotified, ReservationPending}, states(),
		"the one copy on the shelf is already promised to dan")

	clock.Advance(day)
	n, err = mgr.ExpireReservations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []ReservationState{ReservationCancelled, ReservationCancelled, ReservationNotified}, states())
}

func Test_ActiveReservations_ListsPendingAndNotified(t *testing.T) {
	mgr, _ := newManager(t)
	ctx := context.Background()
	holder := seedUser(t, mgr, "ana")
	waiter := seedUser(t, mgr, "bea")
	first := seedBook(t, mgr, "Rayuela", 1)
	second := seedBook(t, mgr, "Pedro Paramo", 1)
	l1, err := mgr.Issue(ctx, holder.ID, first.ID)
	require.NoError(t, err)
	_, err = mgr.Issue(ctx, holder.ID, second.ID)
	require.NoError(t, err)
	_, err = mgr.CreateReservation(ctx, waiter.ID, first.ID)
	require.NoError(t, err)
	_, err = mgr.CreateReservation(ctx, waiter.ID, second.ID)
	require.NoError(t, err)
	_, err = mgr.ReturnLoan(ctx, l1.ID)
	require.NoError(t, err)

	active, err := mgr.ActiveReservations(ctx, waiter.ID)

	require.NoError(t, err)
	require.Len(t, active, 2)
	states := map[int64]ReservationState{}
	for _, r := range active {
		states[r.BookID] = r.State
	}
	assert.Equal(t, ReservationNotified, states[first.ID])
	assert.Equal(t, ReservationPending, states[second.ID])
}
