package library

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Notifications_ReadFlag(t *testing.T) {
	mgr, clock := newManager(t)
	ctx := context.Background()
	u := seedUser(t, mgr, "ana")
	other := seedUser(t, mgr, "bea")
	b := seedBook(t, mgr, "Rayuela", 1)
	loan, err := mgr.Issue(ctx, u.ID, b.ID)
	require.NoError(t, err)
	clock.Advance(day)
	_, err = mgr.ReturnLoan(ctx, loan.ID)
	require.NoError(t, err)

	all, err := mgr.ListNotifications(ctx, u.ID, false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, KindLoanReturned, all[0].Kind, "newest first")
	assert.Equal(t, KindLoanCreated, all[1].Kind)
	require.NotNil(t, all[0].LoanID)
	assert.Equal(t, loan.ID, *all[0].LoanID)

	// Someone else's notification looks missing.
	assert.ErrorIs(t, mgr.MarkNotificationRead(ctx, other.ID, all[0].ID), ErrNotFound)

	require.NoError(t, mgr.MarkNotificationRead(ctx, u.ID, all[0].ID))
	require.NoError(t, mgr.MarkNotificationRead(ctx, u.ID, all[0].ID))
	unread, err := mgr.ListNotifications(ctx, u.ID, true)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, all[1].ID, unread[0].ID)

	n, err := mgr.MarkAllNotificationsRead(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	unread, err = mgr.ListNotifications(ctx, u.ID, true)
	require.NoError(t, err)
	assert.Empty(t, unread)
}

func Test_NotificationFor_MapsEveryEvent(t *testing.T) {
	events := map[Event]NotificationKind{
		LoanIssuedEvent{}:          KindLoanCreated,
		LoanRenewedEvent{}:         KindLoanRenewed,
		LoanReturnedEvent{}:        KindLoanReturned,
		LoanOverdueEvent{}:         KindOverdue,
		LoanDueSoonEvent{}:         KindDueSoon,
		ReservationCreatedEvent{}:  KindSystem,
		ReservationPromotedEvent{}: KindReservationReady,
	}
	for e, kind := range events {
		n := notificationFor(e)
		require.NotNil(t, n, e.EventType())
		assert.Equal(t, kind, n.Kind, e.EventType())
		assert.NotEmpty(t, n.Message)
	}
}
