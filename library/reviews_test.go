package library

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Reviews_Lifecycle(t *testing.T) {
	mgr, _ := newManager(t)
	ctx := context.Background()
	ana := seedUser(t, mgr, "ana")
	bea := seedUser(t, mgr, "bea")
	b := seedBook(t, mgr, "Rayuela", 1)
	comment := "Read it backwards"

	rev, err := mgr.CreateReview(ctx, ana.ID, b.ID, 4, &comment)
	require.NoError(t, err)
	assert.Equal(t, "ana", rev.Username)

	_, err = mgr.CreateReview(ctx, ana.ID, b.ID, 5, nil)
	assert.ErrorIs(t, err, ErrDuplicateReview)
	_, err = mgr.CreateReview(ctx, bea.ID, b.ID, 6, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = mgr.CreateReview(ctx, bea.ID, 999, 3, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = mgr.UpdateReview(ctx, Actor{UserID: bea.ID}, rev.ID, 1, nil)
	assert.ErrorIs(t, err, ErrForbidden)
	rev, err = mgr.UpdateReview(ctx, Actor{UserID: ana.ID}, rev.ID, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, rev.Rating)
	assert.Nil(t, rev.Comment)

	byBook, err := mgr.ListReviews(ctx, b.ID, 0)
	require.NoError(t, err)
	assert.Len(t, byBook, 1)
	byUser, err := mgr.ListReviews(ctx, 0, bea.ID)
	require.NoError(t, err)
	assert.Empty(t, byUser)

	assert.ErrorIs(t, mgr.DeleteReview(ctx, Actor{UserID: bea.ID}, rev.ID), ErrForbidden)
	require.NoError(t, mgr.DeleteReview(ctx, Actor{UserID: bea.ID, IsAdmin: true}, rev.ID))
	byBook, err = mgr.ListReviews(ctx, b.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, byBook)
}

func Test_UserStats(t *testing.T) {
	mgr, clock := newManager(t)
	ctx := context.Background()
	ana := seedUser(t, mgr, "ana")
	holder := seedUser(t, mgr, "bea")
	first := seedBook(t, mgr, "Rayuela", 1)
	second := seedBook(t, mgr, "Pedro Paramo", 1)
	third := seedBook(t, mgr, "Ficciones", 1)

	l1, err := mgr.Issue(ctx, ana.ID, first.ID)
	require.NoError(t, err)
	_, err = mgr.ReturnLoan(ctx, l1.ID)
	require.NoError(t, err)
	_, err = mgr.Issue(ctx, ana.ID, second.ID)
	require.NoError(t, err)
	_, err = mgr.Issue(ctx, holder.ID, third.ID)
	require.NoError(t, err)
	_, err = mgr.CreateReservation(ctx, ana.ID, third.ID)
	require.NoError(t, err)
	_, err = mgr.CreateReview(ctx, ana.ID, first.ID, 3, nil)
	require.NoError(t, err)
	_, err = mgr.CreateReview(ctx, ana.ID, second.ID, 4, nil)
	require.NoError(t, err)
	clock.Advance(15 * day)

	s, err := mgr.UserStats(ctx, ana.ID)

	require.NoError(t, err)
	assert.Equal(t, UserStats{
		ActiveLoans:        1,
		TotalLoans:         2,
		BooksRead:          1,
		ActiveReservations: 1,
		AverageRatingGiven: 3.5,
		OverdueLoans:       1,
	}, *s)

	_, err = mgr.UserStats(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}
