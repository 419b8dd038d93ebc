package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"
)

const reservationSelect = `SELECT r.*, b.title AS book_title FROM reservations r JOIN books b ON b.id = r.book_id`

// ReservationFilter narrows ListReservations. Zero values mean "any".
type ReservationFilter struct {
	UserID int64
	BookID int64
	States []ReservationState
}

func getReservation(ctx context.Context, q sqlx.ExtContext, id int64, lock string) (*Reservation, error) {
	var r Reservation
	err := sqlx.GetContext(ctx, q, &r, q.Rebind(reservationSelect+` WHERE r.id = ?`+lock), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("reservation", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get reservation %d: %w", id, err)
	}
	return &r, nil
}

// CreateReservation puts the user at the back of the book's queue. Only
// titles with no copy on the shelf can be reserved.
func (lm *LibraryManager) CreateReservation(ctx context.Context, userID, bookID int64) (*Reservation, error) {
	now := lm.Now()
	var res *Reservation
	err := lm.db.withTx(ctx, func(tx *sqlx.Tx) error {
		var book struct {
			Title     string `db:"title"`
			Available int    `db:"available_copies"`
		}
		err := tx.GetContext(ctx, &book, tx.Rebind(`SELECT title, available_copies FROM books WHERE id = ?`), bookID)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("book", bookID)
		}
		if err != nil {
			return err
		}
		if book.Available > 0 {
			return fmt.Errorf("book %d: %w", bookID, ErrBookAvailable)
		}

		var pending int
		if err := tx.GetContext(ctx, &pending, tx.Rebind(`SELECT COUNT(*) FROM reservations
            WHERE user_id = ? AND book_id = ? AND state = ?`), userID, bookID, ReservationPending); err != nil {
			return err
		}
		if pending > 0 {
			return fmt.Errorf("user %d, book %d: %w", userID, bookID, ErrDuplicateReservation)
		}

		id, err := insertReturningID(ctx, tx, `INSERT INTO reservations (user_id, book_id, state, requested_at)
            VALUES (?, ?, ?, ?)`, userID, bookID, ReservationPending, now)
		if isUniqueViolation(err) {
			return fmt.Errorf("user %d, book %d: %w", userID, bookID, ErrDuplicateReservation)
		}
		if err != nil {
			return fmt.Errorf("insert reservation: %w", err)
		}
		if res, err = getReservation(ctx, tx, id, ""); err != nil {
			return err
		}
		return lm.bus.Publish(ctx, tx, ReservationCreatedEvent{
			ReservationID: id, UserID: userID, BookID: bookID, BookTitle: book.Title,
		})
	})
	if err != nil {
		return nil, lm.check(ctx, "reserve", err)
	}
	return res, nil
}

// promoteHead notifies the oldest pending reservation for the book and starts
// its hold period. It returns nil when nobody is waiting.
func (lm *LibraryManager) promoteHead(ctx context.Context, tx *sqlx.Tx, bookID int64, now time.Time) (*Reservation, error) {
	var head Reservation
	err := tx.GetContext(ctx, &head, tx.Rebind(reservationSelect+`
        WHERE r.book_id = ? AND r.state = ?
        ORDER BY r.requested_at, r.id LIMIT 1`+lm.db.dialect.forUpdate), bookID, ReservationPending)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue head of book %d: %w", bookID, err)
	}

	expires := now.AddDate(0, 0, lm.policy.HoldDays)
	if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE reservations
        SET state = ?, notified_at = ?, expires_at = ? WHERE id = ?`),
		ReservationNotified, now, expires, head.ID); err != nil {
		return nil, err
	}
	head.State = ReservationNotified
	head.NotifiedAt = &now
	head.ExpiresAt = &expires

	lm.log.InfoContext(ctx, "reservation promoted",
		slog.Int64("reservation_id", head.ID), slog.Int64("user_id", head.UserID), slog.Int64("book_id", bookID))
	if err := lm.bus.Publish(ctx, tx, ReservationPromotedEvent{
		ReservationID: head.ID, UserID: head.UserID, BookID: bookID, BookTitle: head.BookTitle, ExpiresAt: expires,
	}); err != nil {
		return nil, err
	}
	return &head, nil
}

// CancelReservation cancels the reservation whatever its state. Only the
// owner or an admin may do so. Cancelling twice is harmless.
func (lm *LibraryManager) CancelReservation(ctx context.Context, actor Actor, reservationID int64) error {
	return lm.db.withTx(ctx, func(tx *sqlx.Tx) error {
		r, err := getReservation(ctx, tx, reservationID, lm.db.dialect.forUpdate)
		if err != nil {
			return err
		}
		if !actor.can(r.UserID) {
			return fmt.Errorf("reservation %d: %w", reservationID, ErrForbidden)
		}
		if r.State == ReservationCancelled {
			return nil
		}
		_, err = tx.ExecContext(ctx, tx.Rebind(`UPDATE reservations SET state = ? WHERE id = ?`),
			ReservationCancelled, reservationID)
		return err
	})
}

// ExpireReservations cancels notified reservations whose hold has lapsed and
// offers the freed copies to the next people in line, never notifying more
// holders than there are copies on the shelf.
// It returns the number of reservations cancelled.
func (lm *LibraryManager) ExpireReservations(ctx context.Context) (int, error) {
	now := lm.Now()
	expired := 0
	err := lm.db.withTx(ctx, func(tx *sqlx.Tx) error {
		var lapsed []Reservation
		if err := tx.SelectContext(ctx, &lapsed, tx.Rebind(reservationSelect+`
            WHERE r.state = ? AND r.expires_at < ? ORDER BY r.expires_at, r.id`),
			ReservationNotified, now); err != nil {
			return fmt.Errorf("list lapsed reservations: %w", err)
		}

		books := make(map[int64]bool)
		for _, r := range lapsed {
			if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE reservations SET state = ? WHERE id = ?`),
				ReservationCancelled, r.ID); err != nil {
				return err
			}
			lm.log.InfoContext(ctx, "reservation hold expired",
				slog.Int64("reservation_id", r.ID), slog.Int64("user_id", r.UserID))
			books[r.BookID] = true
		}
		expired = len(lapsed)

		for bookID := range books {
			if err := lm.refillHolds(ctx, tx, bookID, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, lm.check(ctx, "expire_reservations", err)
	}
	return expired, nil
}

// refillHolds promotes queue heads while the shelf has more copies than
// there are notified holds waiting to be collected.
func (lm *LibraryManager) refillHolds(ctx context.Context, tx *sqlx.Tx, bookID int64, now time.Time) error {
	for {
		var stock struct {
			Available int `db:"available"`
			Held      int `db:"held"`
		}
		if err := tx.GetContext(ctx, &stock, tx.Rebind(`SELECT b.available_copies AS available,
            (SELECT COUNT(*) FROM reservations r WHERE r.book_id = b.id AND r.state = ?) AS held
            FROM books b WHERE b.id = ?`), ReservationNotified, bookID); err != nil {
			return fmt.Errorf("hold count of book %d: %w", bookID, err)
		}
		if stock.Available <= stock.Held {
			return nil
		}
		head, err := lm.promoteHead(ctx, tx, bookID, now)
		if err != nil || head == nil {
			return err
		}
	}
}

// ------------------ Reads ------------------

// GetReservation returns one reservation.
func (lm *LibraryManager) GetReservation(ctx context.Context, id int64) (*Reservation, error) {
	return getReservation(ctx, lm.db.db, id, "")
}

// ListReservations returns reservations oldest first.
func (lm *LibraryManager) ListReservations(ctx context.Context, f ReservationFilter) ([]Reservation, error) {
	ds := lm.db.builder.
		From(goqu.T("reservations").As("r")).
		Join(goqu.T("books").As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("r.book_id")))).
		Select(goqu.T("r").All(), goqu.I("b.title").As("book_title")).
		Order(goqu.I("r.requested_at").Asc(), goqu.I("r.id").Asc())
	if f.UserID != 0 {
		ds = ds.Where(goqu.I("r.user_id").Eq(f.UserID))
	}
	if f.BookID != 0 {
		ds = ds.Where(goqu.I("r.book_id").Eq(f.BookID))
	}
	if len(f.States) > 0 {
		states := make([]string, 0, len(f.States))
		for _, s := range f.States {
			states = append(states, string(s))
		}
		ds = ds.Where(goqu.I("r.state").In(states))
	}

	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build reservation query: %w", err)
	}
	out := []Reservation{}
	if err := lm.db.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	return out, nil
}

// ActiveReservations lists the user's pending and notified reservations.
func (lm *LibraryManager) ActiveReservations(ctx context.Context, userID int64) ([]Reservation, error) {
	return lm.ListReservations(ctx, ReservationFilter{
		UserID: userID,
		States: []ReservationState{ReservationPending, ReservationNotified},
	})
}

// ReservationQueue lists the pending reservations of a book in service order.
func (lm *LibraryManager) ReservationQueue(ctx context.Context, bookID int64) ([]Reservation, error) {
	return lm.ListReservations(ctx, ReservationFilter{BookID: bookID, States: []ReservationState{ReservationPending}})
}
