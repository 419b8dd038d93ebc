package library

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const openLoanStatesSQL = `('active', 'renewed', 'overdue')`

// CanLoan reports whether the user may take out another loan right now: the
// profile must be active and the open loans below the user's limit.
func (lm *LibraryManager) CanLoan(ctx context.Context, userID int64) (bool, error) {
	p, err := getProfile(ctx, lm.db.db, userID, "")
	if err != nil {
		return false, err
	}
	return canLoan(ctx, lm.db.db, p)
}

// CountActiveLoans returns how many copies the user currently holds.
func (lm *LibraryManager) CountActiveLoans(ctx context.Context, userID int64) (int, error) {
	return countOpenLoans(ctx, lm.db.db, userID)
}

func canLoan(ctx context.Context, q sqlx.ExtContext, p *Profile) (bool, error) {
	if !p.Active {
		return false, nil
	}
	n, err := countOpenLoans(ctx, q, p.UserID)
	if err != nil {
		return false, err
	}
	return n < p.MaxConcurrentLoans, nil
}

func countOpenLoans(ctx context.Context, q sqlx.ExtContext, userID int64) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, q, &n,
		q.Rebind(`SELECT COUNT(*) FROM loans WHERE user_id = ? AND state IN `+openLoanStatesSQL), userID)
	if err != nil {
		return 0, fmt.Errorf("count loans of user %d: %w", userID, err)
	}
	return n, nil
}
