package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const reviewSelect = `SELECT r.*, u.username FROM reviews r JOIN users u ON u.id = r.user_id`

func validRating(rating int) error {
	if rating < 1 || rating > 5 {
		return fmt.Errorf("rating %d outside 1..5: %w", rating, ErrInvalidArgument)
	}
	return nil
}

func getReview(ctx context.Context, q sqlx.ExtContext, id int64) (*Review, error) {
	var r Review
	err := sqlx.GetContext(ctx, q, &r, q.Rebind(reviewSelect+` WHERE r.id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("review", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get review %d: %w", id, err)
	}
	return &r, nil
}

// CreateReview records a user's rating of a book. Each user reviews a book
// at most once.
func (lm *LibraryManager) CreateReview(ctx context.Context, userID, bookID int64, rating int, comment *string) (*Review, error) {
	if err := validRating(rating); err != nil {
		return nil, err
	}
	now := lm.Now()
	var rev *Review
	err := lm.db.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := bookExists(ctx, tx, bookID); err != nil {
			return err
		}
		id, err := insertReturningID(ctx, tx, `INSERT INTO reviews
            (book_id, user_id, rating, comment, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
			bookID, userID, rating, comment, now, now)
		if isUniqueViolation(err) {
			return fmt.Errorf("user %d, book %d: %w", userID, bookID, ErrDuplicateReview)
		}
		if err != nil {
			return fmt.Errorf("insert review: %w", err)
		}
		rev, err = getReview(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rev, nil
}

// UpdateReview changes rating and comment. Owner or admin only.
func (lm *LibraryManager) UpdateReview(ctx context.Context, actor Actor, reviewID int64, rating int, comment *string) (*Review, error) {
	if err := validRating(rating); err != nil {
		return nil, err
	}
	now := lm.Now()
	var rev *Review
	err := lm.db.withTx(ctx, func(tx *sqlx.Tx) error {
		cur, err := getReview(ctx, tx, reviewID)
		if err != nil {
			return err
		}
		if !actor.can(cur.UserID) {
			return fmt.Errorf("review %d: %w", reviewID, ErrForbidden)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE reviews SET rating = ?, comment = ?, updated_at = ? WHERE id = ?`),
			rating, comment, now, reviewID); err != nil {
			return err
		}
		rev, err = getReview(ctx, tx, reviewID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rev, nil
}

// DeleteReview removes a review. Owner or admin only.
func (lm *LibraryManager) DeleteReview(ctx context.Context, actor Actor, reviewID int64) error {
	return lm.db.withTx(ctx, func(tx *sqlx.Tx) error {
		cur, err := getReview(ctx, tx, reviewID)
		if err != nil {
			return err
		}
		if !actor.can(cur.UserID) {
			return fmt.Errorf("review %d: %w", reviewID, ErrForbidden)
		}
		_, err = tx.ExecContext(ctx, tx.Rebind(`DELETE FROM reviews WHERE id = ?`), reviewID)
		return err
	})
}

// ListReviews returns reviews of a book, of a user, or both, newest first.
func (lm *LibraryManager) ListReviews(ctx context.Context, bookID, userID int64) ([]Review, error) {
	query := reviewSelect + ` WHERE 1 = 1`
	var args []any
	if bookID != 0 {
		query += ` AND r.book_id = ?`
		args = append(args, bookID)
	}
	if userID != 0 {
		query += ` AND r.user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY r.created_at DESC, r.id DESC`

	out := []Review{}
	if err := lm.db.db.SelectContext(ctx, &out, lm.db.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return out, nil
}

func (lm *LibraryManager) bookRating(ctx context.Context, bookID int64) (float64, int, error) {
	var row struct {
		Average sql.NullFloat64 `db:"average"`
		Count   int             `db:"count"`
	}
	err := lm.db.db.GetContext(ctx, &row, lm.db.db.Rebind(`SELECT AVG(rating) AS average, COUNT(*) AS count
        FROM reviews WHERE book_id = ?`), bookID)
	if err != nil {
		return 0, 0, fmt.Errorf("rating of book %d: %w", bookID, err)
	}
	return row.Average.Float64, row.Count, nil
}
