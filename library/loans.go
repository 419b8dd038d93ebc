package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"
)

const loanSelect = `SELECT l.*, b.title AS book_title FROM loans l JOIN books b ON b.id = l.book_id`

// LoanFilter narrows ListLoans. Zero values mean "any".
type LoanFilter struct {
	UserID   int64
	BookID   int64
	States   []LoanState
	Page     int
	PageSize int
}

func getLoan(ctx context.Context, q sqlx.ExtContext, loanID int64, lock string) (*Loan, error) {
	var l Loan
	err := sqlx.GetContext(ctx, q, &l, q.Rebind(loanSelect+` WHERE l.id = ?`+lock), loanID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("loan", loanID)
	}
	if err != nil {
		return nil, fmt.Errorf("get loan %d: %w", loanID, err)
	}
	return &l, nil
}

// Issue lends one copy of bookID to userID. The eligibility check, the stock
// decrement and the loan insert commit together or not at all.
func (lm *LibraryManager) Issue(ctx context.Context, userID, bookID int64) (*Loan, error) {
	now := lm.Now()
	var loan *Loan
	err := lm.db.withTx(ctx, func(tx *sqlx.Tx) error {
		profile, err := getProfile(ctx, tx, userID, lm.db.dialect.forUpdate)
		if err != nil {
			return err
		}
		ok, err := canLoan(ctx, tx, profile)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("user %d: %w", userID, ErrNotEligible)
		}

		var dup int
		if err := tx.GetContext(ctx, &dup, tx.Rebind(`SELECT COUNT(*) FROM loans
            WHERE user_id = ? AND book_id = ? AND state IN `+openLoanStatesSQL), userID, bookID); err != nil {
			return err
		}
		if dup > 0 {
			return fmt.Errorf("user %d, book %d: %w", userID, bookID, ErrDuplicateLoan)
		}

		if err := reserveCopy(ctx, tx, bookID, now); err != nil {
			return err
		}

		due := now.AddDate(0, 0, profile.DefaultLoanPeriodDays)
		id, err := insertReturningID(ctx, tx, `INSERT INTO loans
            (user_id, book_id, created_at, due_at, state, renewal_count, max_renewals)
            VALUES (?, ?, ?, ?, ?, 0, ?)`, userID, bookID, now, due, LoanActive, lm.policy.MaxRenewals)
		if err != nil {
			return fmt.Errorf("insert loan: %w", err)
		}

		// A borrower who was waiting in the queue is served now.
		if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE reservations SET state = ?
            WHERE user_id = ? AND book_id = ? AND state IN (?, ?)`),
			ReservationCompleted, userID, bookID, ReservationPending, ReservationNotified); err != nil {
			return err
		}

		if loan, err = getLoan(ctx, tx, id, ""); err != nil {
			return err
		}
		return lm.bus.Publish(ctx, tx, LoanIssuedEvent{
			LoanID: loan.ID, UserID: userID, BookID: bookID, BookTitle: loan.BookTitle, DueAt: loan.DueAt,
		})
	})
	if err != nil {
		return nil, lm.check(ctx, "issue", err)
	}
	return loan, nil
}

// Renew extends the loan by extensionDays counted from now (the policy
// default when extensionDays <= 0). It returns false, without error, when the
// loan is returned or overdue or has no renewals left.
func (lm *LibraryManager) Renew(ctx context.Context, loanID int64, extensionDays int) (bool, error) {
	if extensionDays <= 0 {
		extensionDays = lm.policy.RenewalDays
	}
	now := lm.Now()
	renewed := false
	err := lm.db.withTx(ctx, func(tx *sqlx.Tx) error {
		l, err := getLoan(ctx, tx, loanID, lm.db.dialect.forUpdate)
		if err != nil {
			return err
		}
		if err := lm.syncOverdue(ctx, tx, l, now); err != nil {
			return err
		}
		if !l.CanRenew(now) {
			// Commit so an overdue transition found above is kept.
			return nil
		}

		l.DueAt = now.AddDate(0, 0, extensionDays)
		l.RenewalCount++
		l.State = LoanRenewed
		if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE loans
            SET due_at = ?, renewal_count = ?, state = ? WHERE id = ?`),
			l.DueAt, l.RenewalCount, l.State, l.ID); err != nil {
			return err
		}
		renewed = true
		return lm.bus.Publish(ctx, tx, LoanRenewedEvent{
			LoanID: l.ID, UserID: l.UserID, BookID: l.BookID, BookTitle: l.BookTitle,
			DueAt: l.DueAt, RenewalCount: l.RenewalCount,
		})
	})
	if err != nil {
		return false, lm.check(ctx, "renew", err)
	}
	return renewed, nil
}

// ReturnLoan closes the loan, puts the copy back and notifies the head of the
// book's reservation queue. It returns false when the loan was already
// returned.
func (lm *LibraryManager) ReturnLoan(ctx context.Context, loanID int64) (bool, error) {
	now := lm.Now()
	returned := false
	err := lm.db.withTx(ctx, func(tx *sqlx.Tx) error {
		l, err := getLoan(ctx, tx, loanID, lm.db.dialect.forUpdate)
		if err != nil {
			return err
		}
		if l.State == LoanReturned {
			return nil
		}
		if err := lm.syncOverdue(ctx, tx, l, now); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE loans SET state = ?, returned_at = ? WHERE id = ?`),
			LoanReturned, now, l.ID); err != nil {
			return err
		}
		if err := releaseCopy(ctx, tx, l.BookID, now); err != nil {
			return err
		}
		if err := lm.bus.Publish(ctx, tx, LoanReturnedEvent{
			LoanID: l.ID, UserID: l.UserID, BookID: l.BookID, BookTitle: l.BookTitle,
		}); err != nil {
			return err
		}
		returned = true
		_, err = lm.promoteHead(ctx, tx, l.BookID, now)
		return err
	})
	if err != nil {
		return false, lm.check(ctx, "return", err)
	}
	return returned, nil
}

// MarkOverdueIfNeeded brings the stored state of one loan in line with the
// clock and raises the overdue and due-soon reminders. Calling it repeatedly
// has no further effect.
func (lm *LibraryManager) MarkOverdueIfNeeded(ctx context.Context, loanID int64) error {
	now := lm.Now()
	err := lm.db.withTx(ctx, func(tx *sqlx.Tx) error {
		l, err := getLoan(ctx, tx, loanID, lm.db.dialect.forUpdate)
		if err != nil {
			return err
		}
		return lm.syncLoan(ctx, tx, l, now)
	})
	return lm.check(ctx, "mark_overdue", err)
}

// SyncOpenLoans runs MarkOverdueIfNeeded over every open loan and returns how
// many were checked.
func (lm *LibraryManager) SyncOpenLoans(ctx context.Context) (int, error) {
	var ids []int64
	if err := lm.db.db.SelectContext(ctx, &ids,
		`SELECT id FROM loans WHERE state IN `+openLoanStatesSQL+` ORDER BY id`); err != nil {
		return 0, fmt.Errorf("list open loans: %w", err)
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := lm.MarkOverdueIfNeeded(ctx, id); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

func (lm *LibraryManager) syncLoan(ctx context.Context, tx *sqlx.Tx, l *Loan, now time.Time) error {
	if err := lm.syncOverdue(ctx, tx, l, now); err != nil {
		return err
	}
	return lm.remindDueSoon(ctx, tx, l, now)
}

// syncOverdue persists the overdue state of an active or renewed loan whose
// due date has passed and raises LoanOverdue once per loan.
func (lm *LibraryManager) syncOverdue(ctx context.Context, tx *sqlx.Tx, l *Loan, now time.Time) error {
	if l.State != LoanActive && l.State != LoanRenewed {
		return nil
	}
	if !l.DueAt.Before(now) {
		return nil
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE loans SET state = ? WHERE id = ?`), LoanOverdue, l.ID); err != nil {
		return err
	}
	l.State = LoanOverdue
	lm.log.InfoContext(ctx, "loan overdue", slog.Int64("loan_id", l.ID), slog.Int64("user_id", l.UserID))

	seen, err := notificationExists(ctx, tx, l.UserID, l.BookID, KindOverdue, l.CreatedAt)
	if err != nil || seen {
		return err
	}
	return lm.bus.Publish(ctx, tx, LoanOverdueEvent{
		LoanID: l.ID, UserID: l.UserID, BookID: l.BookID, BookTitle: l.BookTitle, DueAt: l.DueAt,
	})
}

// remindDueSoon raises LoanDueSoonEvent once per due date, DueSoonDays ahead of it.
func (lm *LibraryManager) remindDueSoon(ctx context.Context, tx *sqlx.Tx, l *Loan, now time.Time) error {
	if l.State != LoanActive && l.State != LoanRenewed {
		return nil
	}
	if l.DaysRemaining(now) != lm.policy.DueSoonDays {
		return nil
	}
	since := l.DueAt.AddDate(0, 0, -(lm.policy.DueSoonDays + 1))
	seen, err := notificationExists(ctx, tx, l.UserID, l.BookID, KindDueSoon, since)
	if err != nil || seen {
		return err
	}
	return lm.bus.Publish(ctx, tx, LoanDueSoonEvent{
		LoanID: l.ID, UserID: l.UserID, BookID: l.BookID, BookTitle: l.BookTitle, DueAt: l.DueAt,
	})
}

// ------------------ Reads ------------------

// GetLoan returns the loan with its status computed at the current time.
// Reads never change stored state.
func (lm *LibraryManager) GetLoan(ctx context.Context, loanID int64) (*LoanView, error) {
	l, err := getLoan(ctx, lm.db.db, loanID, "")
	if err != nil {
		return nil, err
	}
	v := viewLoan(*l, lm.Now())
	return &v, nil
}

// ListLoans returns loans newest first. A state filter matches the effective
// state, so an active loan past its due date is listed as overdue.
func (lm *LibraryManager) ListLoans(ctx context.Context, f LoanFilter) ([]LoanView, error) {
	now := lm.Now()
	ds := lm.db.builder.
		From(goqu.T("loans").As("l")).
		Join(goqu.T("books").As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("l.book_id")))).
		Select(goqu.T("l").All(), goqu.I("b.title").As("book_title")).
		Order(goqu.I("l.created_at").Desc(), goqu.I("l.id").Desc())

	if f.UserID != 0 {
		ds = ds.Where(goqu.I("l.user_id").Eq(f.UserID))
	}
	if f.BookID != 0 {
		ds = ds.Where(goqu.I("l.book_id").Eq(f.BookID))
	}
	if len(f.States) > 0 {
		var conds []exp.Expression
		for _, s := range f.States {
			conds = append(conds, effectiveStateExpr(s, now))
		}
		ds = ds.Where(goqu.Or(conds...))
	}
	if f.PageSize > 0 {
		page := max(f.Page, 1)
		ds = ds.Limit(uint(f.PageSize)).Offset(uint((page - 1) * f.PageSize))
	}

	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build loan query: %w", err)
	}
	var loans []Loan
	if err := lm.db.db.SelectContext(ctx, &loans, query, args...); err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}
	views := make([]LoanView, 0, len(loans))
	for _, l := range loans {
		views = append(views, viewLoan(l, now))
	}
	return views, nil
}

func effectiveStateExpr(s LoanState, now time.Time) exp.Expression {
	state := goqu.I("l.state")
	due := goqu.I("l.due_at")
	switch s {
	case LoanOverdue:
		return goqu.Or(
			state.Eq(string(LoanOverdue)),
			goqu.And(state.In(string(LoanActive), string(LoanRenewed)), due.Lt(now)),
		)
	case LoanActive, LoanRenewed:
		return goqu.And(state.Eq(string(s)), due.Gte(now))
	}
	return state.Eq(string(s))
}

// ActiveLoans lists the loans the user still holds.
func (lm *LibraryManager) ActiveLoans(ctx context.Context, userID int64) ([]LoanView, error) {
	return lm.ListLoans(ctx, LoanFilter{UserID: userID, States: openLoanStates})
}

// LoanHistory lists every loan the user ever had.
func (lm *LibraryManager) LoanHistory(ctx context.Context, userID int64) ([]LoanView, error) {
	return lm.ListLoans(ctx, LoanFilter{UserID: userID})
}
