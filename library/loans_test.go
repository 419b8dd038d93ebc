package library

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Issue_CreatesActiveLoanAndTakesCopy(t *testing.T) {
	// arrange
	mgr, _ := newManager(t)
	ctx := context.Background()
	u := seedUser(t, mgr, "ana")
	b := seedBook(t, mgr, "Rayuela", 2)

	// act
	loan, err := mgr.Issue(ctx, u.ID, b.ID)

	// assert
	require.NoError(t, err)
	assert.Equal(t, LoanActive, loan.State)
	assert.Equal(t, "Rayuela", loan.BookTitle)
	assert.True(t, loan.DueAt.Equal(baseTime.Add(14*day)))
	assert.Equal(t, 2, loan.MaxRenewals)
	assert.Equal(t, 1, availableCopies(t, mgr, b.ID))
	assert.Equal(t, 1, countKind(t, mgr, u.ID, KindLoanCreated))
}

func Test_Issue_UsesProfileLoanPeriod(t *testing.T) {
	mgr, _ := newManager(t)
	ctx := context.Background()
	u := seedUser(t, mgr, "ana")
	b := seedBook(t, mgr, "Rayuela", 1)
	days := 7
	_, err := mgr.UpdatePolicy(ctx, u.ID, PolicyUpdate{DefaultLoanPeriodDays: &days})
	require.NoError(t, err)

	loan, err := mgr.Issue(ctx, u.ID, b.ID)

	require.NoError(t, err)
	assert.True(t, loan.DueAt.Equal(baseTime.Add(7*day)))
}

func Test_Issue_WhenOutOfStock_Fails(t *testing.T) {
	mgr, _ := newManager(t)
	ctx := context.Background()
	a := seedUser(t, mgr, "ana")
	b := seedUser(t, mgr, "bea")
	book := seedBook(t, mgr, "Rayuela", 1)
	_, err := mgr.Issue(ctx, a.ID, book.ID)
	require.NoError(t, err)

	_, err = mgr.Issue(ctx, b.ID, book.ID)

	assert.ErrorIs(t, err, ErrOutOfStock)
	assert.Equal(t, 0, availableCopies(t, mgr, book.ID))
}

func Test_Issue_WhenBookMissing_ReturnsNotFound(t *testing.T) {
	mgr, _ := newManager(t)
	u := seedUser(t, mgr, "ana")

	_, err := mgr.Issue(context.Background(), u.ID, 999)

	assert.ErrorIs(t, err, ErrNotFound)
}

func Test_Issue_WhenProfileInactive_NotEligible(t *testing.T) {
	mgr, _ := newManager(t)
	ctx := context.Background()
	u := seedUser(t, mgr, "ana")
	b := seedBook(t, mgr, "Rayuela", 1)
	off := false
	_, err := mgr.UpdatePolicy(ctx, u.ID, PolicyUpdate{Active: &off})
	require.NoError(t, err)

	_, err = mgr.Issue(ctx, u.ID, b.ID)

	assert.ErrorIs(t, err, ErrNotEligible)
	assert.Equal(t, 1, availableCopies(t, mgr, b.ID))
}

func Test_Issue_WhenAtLoanLimit_NotEligible(t *testing.T) {
	mgr, _ := newManager(t)
	ctx := context.Background()
	u := seedUser(t, mgr, "ana")
	limit := 1
	_, err := mgr.UpdatePolicy(ctx, u.ID, PolicyUpdate{MaxConcurrentLoans: &limit})
	require.NoError(t, err)
	first := seedBook(t, mgr, "Rayuela", 1)
	second := seedBook(t, mgr, "Pedro Paramo", 1)
	_, err = mgr.Issue(ctx, u.ID, first.ID)
	require.NoError(t, err)

	ok, err := mgr.CanLoan(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = mgr.Issue(ctx, u.ID, second.ID)
	assert.ErrorIs(t, err, ErrNotEligible)
}

func Test_Issue_SameTitleTwice_Refused(t *testing.T) {
	mgr, _ := newManager(t)
	ctx := context.Background()
	u := seedUser(t, mgr, "ana")
	b := seedBook(t, mgr, "Rayuela", 3)
	_, err := mgr.Issue(ctx, u.ID, b.ID)
	require.NoError(t, err)

	_, err = mgr.Issue(ctx, u.ID, b.ID)

	assert.ErrorIs(t, err, ErrDuplicateLoan)
	assert.Equal(t, 2, availableCopies(t, mgr, b.ID))
}

func Test_Issue_ConcurrentOnLastCopy_ExactlyOneWins(t *testing.T) {
	mgr, _ := newManager(t)
	ctx := context.Background()
	book := seedBook(t, mgr, "Rayuela", 1)
	users := []*User{seedUser(t, mgr, "ana"), seedUser(t, mgr, "bea")}

	var wg sync.WaitGroup
	errs := make([]error, len(users))
	for i, u := range users {
		wg.Add(1)
		go func(i int, userID int64) {
			defer wg.Done()
			_, errs[i] = mgr.Issue(ctx, userID, book.ID)
		}(i, u.ID)
	}
	wg.Wait()

	succeeded, outOfStock := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrOutOfStock):
			outOfStock++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, outOfStock)
	assert.Equal(t, 0, availableCopies(t, mgr, book.ID))
}

func Test_IssueThenReturn_RestoresAvailability(t *testing.T) {
	mgr, clock := newManager(t)
	ctx := context.Background()
	u := seedUser(t, mgr, "ana")
	b := seedBook(t, mgr, "Rayuela", 2)
	loan, err := mgr.Issue(ctx, u.ID, b.ID)
	require.NoError(t, err)
	clock.Advance(3 * day)

	ok, err := mgr.ReturnLoan(ctx, loan.ID)

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, availableCopies(t, mgr, b.ID))

	got, err := mgr.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, LoanReturned, got.State)
	require.NotNil(t, got.ReturnedAt)
	assert.True(t, got.ReturnedAt.Equal(baseTime.Add(3*day)))
	assert.Equal(t, 0, got.DaysRemaining)
	assert.Equal(t, 1, countKind(t, mgr, u.ID, KindLoanReturned))
}

func Test_ReturnLoan_Twice_SecondIsRefused(t *testing.T) {
	mgr, _ := newManager(t)
	ctx := context.Background()
	u := seedUser(t, mgr, "ana")
	b := seedBook(t, mgr, "Rayuela", 1)
	loan, err := mgr.Issue(ctx, u.ID, b.ID)
	require.NoError(t, err)
	ok, err := mgr.ReturnLoan(ctx, loan.ID)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = mgr.ReturnLoan(ctx, loan.ID)

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, availableCopies(t, mgr, b.ID))
}

func Test_Renew_StopsAtMaxRenewals(t *testing.T) {
	mgr, clock := newManager(t)
	ctx := context.Background()
	u := seedUser(t, mgr, "ana")
	b := seedBook(t, mgr, "Rayuela", 1)
	loan, err := mgr.Issue(ctx, u.ID, b.ID)
	require.NoError(t, err)

	clock.Advance(day)
	ok, err := mgr.Renew(ctx, loan.ID, 0)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = mgr.Renew(ctx, loan.ID, 10)
	require.NoError(t, err)
	require.True(t, ok)

	before, err := mgr.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, before.RenewalCount)
	assert.Equal(t, LoanRenewed, before.State)
	assert.True(t, before.DueAt.Equal(baseTime.Add(day+10*day)))
	assert.False(t, before.Renewable)

	ok, err = mgr.Renew(ctx, loan.ID, 14)

	require.NoError(t, err)
	assert.False(t, ok)
	after, err := mgr.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, after.RenewalCount)
	assert.True(t, after.DueAt.Equal(before.DueAt))
	assert.Equal(t, 2, countKind(t, mgr, u.ID, KindLoanRenewed))
}

func Test_Renew_WhenOverdue_RefusedAndOverduePersisted(t *testing.T) {
	mgr, clock := newManager(t)
	ctx := context.Background()
	u := seedUser(t, mgr, "ana")
	b := seedBook(t, mgr, "Rayuela", 1)
	loan, err := mgr.Issue(ctx, u.ID, b.ID)
	require.NoError(t, err)
	clock.Advance(15 * day)

	ok, err := mgr.Renew(ctx, loan.ID, 14)

	require.NoError(t, err)
	assert.False(t, ok)
	got, err := mgr.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, LoanOverdue, got.State)
	assert.Zero(t, got.RenewalCount)
	assert.Equal(t, 1, countKind(t, mgr, u.ID, KindOverdue))
}

func Test_Renew_ReturnedLoan_Refused(t *testing.T) {
	mgr, _ := newManager(t)
	ctx := context.Background()
	u := seedUser(t, mgr, "ana")
	b := seedBook(t, mgr, "Rayuela", 1)
	loan, err := mgr.Issue(ctx, u.ID, b.ID)
	require.NoError(t, err)
	_, err = mgr.ReturnLoan(ctx, loan.ID)
	require.NoError(t, err)

	ok, err := mgr.Renew(ctx, loan.ID, 14)

	require.NoError(t, err)
	assert.False(t, ok)
}

func Test_Renew_UnknownLoan_NotFound(t *testing.T) {
	mgr, _ := newManager(t)

	_, err := mgr.Renew(context.Background(), 42, 14)

	assert.ErrorIs(t, err, ErrNotFound)
}

func Test_GetLoan_ComputesOverdueWithoutPersisting(t *testing.T) {
	mgr, clock := newManager(t)
	ctx := context.Background()
	u := seedUser(t, mgr, "ana")
	b := seedBook(t, mgr, "Rayuela", 1)
	loan, err := mgr.Issue(ctx, u.ID, b.ID)
	require.NoError(t, err)
	clock.Advance(16 * day)

	got, err := mgr.GetLoan(ctx, loan.ID)

	require.NoError(t, err)
	assert.Equal(t, LoanActive, got.State)
	assert.Equal(t, LoanOverdue, got.EffectiveState)
	assert.True(t, got.Overdue)
	assert.Equal(t, -2, got.DaysRemaining)
	assert.Zero(t, countKind(t, mgr, u.ID, KindOverdue))

	overdue, err := mgr.ListLoans(ctx, LoanFilter{States: []LoanState{LoanOverdue}})
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, loan.ID, overdue[0].ID)

	active, err := mgr.ListLoans(ctx, LoanFilter{States: []LoanState{LoanActive}})
	require.NoError(t, err)
	assert.Empty(t, active)
}

func Test_MarkOverdueIfNeeded_NotifiesOnce(t *testing.T) {
	mgr, clock := newManager(t)
	ctx := context.Background()
	u := seedUser(t, mgr, "ana")
	b := seedBook(t, mgr, "Rayuela", 1)
	loan, err := mgr.Issue(ctx, u.ID, b.ID)
	require.NoError(t, err)
	clock.Advance(15 * day)

	require.NoError(t, mgr.MarkOverdueIfNeeded(ctx, loan.ID))
	require.NoError(t, mgr.MarkOverdueIfNeeded(ctx, loan.ID))

	got, err := mgr.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, LoanOverdue, got.State)
	assert.Equal(t, 1, countKind(t, mgr, u.ID, KindOverdue))

	ok, err := mgr.CanLoan(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, ok, "overdue loans count against the limit but one loan is below it")
	n, err := mgr.CountActiveLoans(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func Test_DueSoon_TwoDaysBefore_NotifiesOnce(t *testing.T) {
	mgr, clock := newManager(t)
	ctx := context.Background()
	u := seedUser(t, mgr, "ana")
	b := seedBook(t, mgr, "Rayuela", 1)
	loan, err := mgr.Issue(ctx, u.ID, b.ID)
	require.NoError(t, err)

	clock.Advance(11 * day)
	require.NoError(t, mgr.MarkOverdueIfNeeded(ctx, loan.ID))
	assert.Zero(t, countKind(t, mgr, u.ID, KindDueSoon))

	clock.Advance(day)
	require.NoError(t, mgr.MarkOverdueIfNeeded(ctx, loan.ID))
	require.NoError(t, mgr.MarkOverdueIfNeeded(ctx, loan.ID))
	clock.Advance(time.Hour)
	require.NoError(t, mgr.MarkOverdueIfNeeded(ctx, loan.ID))

	assert.Equal(t, 1, countKind(t, mgr, u.ID, KindDueSoon))
}

func Test_SyncOpenLoans_SkipsReturned(t *testing.T) {
	mgr, clock := newManager(t)
	ctx := context.Background()
	u := seedUser(t, mgr, "ana")
	first := seedBook(t, mgr, "Rayuela", 1)
	second := seedBook(t, mgr, "Pedro Paramo", 1)
	open, err := mgr.Issue(ctx, u.ID, first.ID)
	require.NoError(t, err)
	closed, err := mgr.Issue(ctx, u.ID, second.ID)
	require.NoError(t, err)
	_, err = mgr.ReturnLoan(ctx, closed.ID)
	require.NoError(t, err)
	clock.Advance(20 * day)

	n, err := mgr.SyncOpenLoans(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err := mgr.GetLoan(ctx, open.ID)
	require.NoError(t, err)
	assert.Equal(t, LoanOverdue, got.State)
}

func Test_LoanHistory_NewestFirst(t *testing.T) {
	mgr, clock := newManager(t)
	ctx := context.Background()
	u := seedUser(t, mgr, "ana")
	first := seedBook(t, mgr, "Rayuela", 1)
	second := seedBook(t, mgr, "Pedro Paramo", 1)
	l1, err := mgr.Issue(ctx, u.ID, first.ID)
	require.NoError(t, err)
	_, err = mgr.ReturnLoan(ctx, l1.ID)
	require.NoError(t, err)
	clock.Advance(time.Hour)
	l2, err := mgr.Issue(ctx, u.ID, second.ID)
	require.NoError(t, err)

	history, err := mgr.LoanHistory(ctx, u.ID)
	require.NoError(t, err)
	active, err := mgr.ActiveLoans(ctx, u.ID)
	require.NoError(t, err)

	require.Len(t, history, 2)
	assert.Equal(t, l2.ID, history[0].ID)
	assert.Equal(t, l1.ID, history[1].ID)
	require.Len(t, active, 1)
	assert.Equal(t, l2.ID, active[0].ID)
}
