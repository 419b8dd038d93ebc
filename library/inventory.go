package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// reserveCopy takes one copy of the book out of stock. The decrement is
// conditional, so two transactions can never both take the last copy.
func reserveCopy(ctx context.Context, tx *sqlx.Tx, bookID int64, now time.Time) error {
	res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE books
        SET available_copies = available_copies - 1, updated_at = ?
        WHERE id = ? AND available_copies > 0`), now, bookID)
	if err != nil {
		return fmt.Errorf("reserve copy of book %d: %w", bookID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if err := bookExists(ctx, tx, bookID); err != nil {
			return err
		}
		return fmt.Errorf("book %d: %w", bookID, ErrOutOfStock)
	}
	return nil
}

// releaseCopy puts one copy back. A release that would push available above
// total means the ledger is already wrong.
func releaseCopy(ctx context.Context, tx *sqlx.Tx, bookID int64, now time.Time) error {
	res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE books
        SET available_copies = available_copies + 1, updated_at = ?
        WHERE id = ? AND available_copies < total_copies`), now, bookID)
	if err != nil {
		return fmt.Errorf("release copy of book %d: %w", bookID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("release copy of book %d with nothing outstanding: %w", bookID, ErrInvariantViolation)
	}
	return nil
}

func bookExists(ctx context.Context, q sqlx.ExtContext, bookID int64) error {
	var id int64
	err := sqlx.GetContext(ctx, q, &id, q.Rebind(`SELECT id FROM books WHERE id = ?`), bookID)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("book", bookID)
	}
	return err
}

// AdjustTotal changes the number of copies owned. Copies currently on loan
// stay outstanding, so the new total may not drop below them.
func (lm *LibraryManager) AdjustTotal(ctx context.Context, bookID int64, newTotal int) error {
	if newTotal < 0 {
		return fmt.Errorf("total copies %d: %w", newTotal, ErrInvalidArgument)
	}
	now := lm.Now()
	err := lm.db.withTx(ctx, func(tx *sqlx.Tx) error {
		var stock struct {
			Total     int `db:"total_copies"`
			Available int `db:"available_copies"`
		}
		err := tx.GetContext(ctx, &stock, tx.Rebind(`SELECT total_copies, available_copies
            FROM books WHERE id = ?`+lm.db.dialect.forUpdate), bookID)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("book", bookID)
		}
		if err != nil {
			return err
		}

		outstanding := stock.Total - stock.Available
		if newTotal < outstanding {
			return fmt.Errorf("total copies %d below %d on loan: %w", newTotal, outstanding, ErrInvalidArgument)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE books
            SET total_copies = ?, available_copies = ?, updated_at = ? WHERE id = ?`),
			newTotal, newTotal-outstanding, now, bookID); err != nil {
			return err
		}
		lm.log.InfoContext(ctx, "inventory adjusted",
			slog.Int64("book_id", bookID), slog.Int("total", newTotal), slog.Int("available", newTotal-outstanding))
		return nil
	})
	return lm.check(ctx, "adjust_total", err)
}
