package library

import (
	"context"
	"database/sql"
	"fmt"
)

// UserStats summarises a user's lending activity as of now.
func (lm *LibraryManager) UserStats(ctx context.Context, userID int64) (*UserStats, error) {
	if _, err := getUser(ctx, lm.db.db, userID); err != nil {
		return nil, err
	}
	now := lm.Now()
	var s UserStats
	err := lm.db.db.GetContext(ctx, &s, lm.db.db.Rebind(`SELECT
            COUNT(*) AS total_loans,
            COALESCE(SUM(CASE WHEN state IN `+openLoanStatesSQL+` THEN 1 ELSE 0 END), 0) AS active_loans,
            COALESCE(SUM(CASE WHEN state = 'returned' THEN 1 ELSE 0 END), 0) AS books_read,
            COALESCE(SUM(CASE WHEN state = 'overdue'
                OR (state IN ('active', 'renewed') AND due_at < ?) THEN 1 ELSE 0 END), 0) AS overdue_loans
        FROM loans WHERE user_id = ?`), now, userID)
	if err != nil {
		return nil, fmt.Errorf("loan stats of user %d: %w", userID, err)
	}

	if err := lm.db.db.GetContext(ctx, &s.ActiveReservations, lm.db.db.Rebind(`SELECT COUNT(*) FROM reservations
        WHERE user_id = ? AND state IN ('pending', 'notified')`), userID); err != nil {
		return nil, fmt.Errorf("reservation stats of user %d: %w", userID, err)
	}

	var avg sql.NullFloat64
	if err := lm.db.db.GetContext(ctx, &avg, lm.db.db.Rebind(`SELECT AVG(rating) FROM reviews WHERE user_id = ?`),
		userID); err != nil {
		return nil, fmt.Errorf("review stats of user %d: %w", userID, err)
	}
	s.AverageRatingGiven = avg.Float64
	return &s, nil
}
