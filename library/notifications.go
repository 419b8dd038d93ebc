package library

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Emit appends a notification row. It never deduplicates; callers that need
// at-most-once delivery check notificationExists first.
func Emit(ctx context.Context, tx *sqlx.Tx, n *Notification) error {
	id, err := insertReturningID(ctx, tx, `INSERT INTO notifications
        (user_id, book_id, loan_id, kind, title, message, is_read, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.UserID, n.BookID, n.LoanID, n.Kind, n.Title, n.Message, false, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	n.ID = id
	return nil
}

// notificationExists reports whether the user already has a notification of
// kind about the book created at or after since.
func notificationExists(ctx context.Context, tx *sqlx.Tx, userID, bookID int64, kind NotificationKind, since time.Time) (bool, error) {
	var n int
	err := tx.GetContext(ctx, &n, tx.Rebind(`SELECT COUNT(*) FROM notifications
        WHERE user_id = ? AND book_id = ? AND kind = ? AND created_at >= ?`), userID, bookID, kind, since)
	if err != nil {
		return false, fmt.Errorf("check notification: %w", err)
	}
	return n > 0, nil
}

// notifyOnEvent turns each domain event into one notification for the user
// it concerns, written in the transaction that raised the event.
func (lm *LibraryManager) notifyOnEvent(ctx context.Context, tx *sqlx.Tx, e Event) error {
	n := notificationFor(e)
	if n == nil {
		return nil
	}
	n.CreatedAt = lm.Now()
	return Emit(ctx, tx, n)
}

func notificationFor(e Event) *Notification {
	switch ev := e.(type) {
	case LoanIssuedEvent:
		return &Notification{
			UserID: ev.UserID, BookID: &ev.BookID, LoanID: &ev.LoanID, Kind: KindLoanCreated,
			Title:   "Loan confirmed",
			Message: fmt.Sprintf("You borrowed %q. Please return it by %s.", ev.BookTitle, ev.DueAt.Format(dateLayout)),
		}
	case LoanRenewedEvent:
		return &Notification{
			UserID: ev.UserID, BookID: &ev.BookID, LoanID: &ev.LoanID, Kind: KindLoanRenewed,
			Title:   "Loan renewed",
			Message: fmt.Sprintf("Your loan of %q is now due on %s.", ev.BookTitle, ev.DueAt.Format(dateLayout)),
		}
	case LoanReturnedEvent:
		return &Notification{
			UserID: ev.UserID, BookID: &ev.BookID, LoanID: &ev.LoanID, Kind: KindLoanReturned,
			Title:   "Book returned",
			Message: fmt.Sprintf("Thanks for returning %q.", ev.BookTitle),
		}
	case LoanOverdueEvent:
		return &Notification{
			UserID: ev.UserID, BookID: &ev.BookID, LoanID: &ev.LoanID, Kind: KindOverdue,
			Title:   "Loan overdue",
			Message: fmt.Sprintf("Your loan of %q was due on %s. Please return it as soon as possible.", ev.BookTitle, ev.DueAt.Format(dateLayout)),
		}
	case LoanDueSoonEvent:
		return &Notification{
			UserID: ev.UserID, BookID: &ev.BookID, LoanID: &ev.LoanID, Kind: KindDueSoon,
			Title:   "Loan due soon",
			Message: fmt.Sprintf("Your loan of %q is due on %s.", ev.BookTitle, ev.DueAt.Format(dateLayout)),
		}
	case ReservationCreatedEvent:
		return &Notification{
			UserID: ev.UserID, BookID: &ev.BookID, Kind: KindSystem,
			Title:   "Reservation received",
			Message: fmt.Sprintf("You are in the queue for %q. We will let you know when a copy is back.", ev.BookTitle),
		}
	case ReservationPromotedEvent:
		return &Notification{
			UserID: ev.UserID, BookID: &ev.BookID, Kind: KindReservationReady,
			Title:   "Your reservation is ready",
			Message: fmt.Sprintf("A copy of %q is waiting for you until %s.", ev.BookTitle, ev.ExpiresAt.Format(dateLayout)),
		}
	}
	return nil
}

const dateLayout = "02/01/2006"

// ------------------ Reads & read flag ------------------

// ListNotifications returns the user's notifications, newest first.
func (lm *LibraryManager) ListNotifications(ctx context.Context, userID int64, unreadOnly bool) ([]Notification, error) {
	query := `SELECT * FROM notifications WHERE user_id = ?`
	if unreadOnly {
		query += ` AND is_read = ?`
	}
	query += ` ORDER BY created_at DESC, id DESC`

	args := []any{userID}
	if unreadOnly {
		args = append(args, false)
	}
	out := []Notification{}
	if err := lm.db.db.SelectContext(ctx, &out, lm.db.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return out, nil
}

// MarkNotificationRead sets the read flag on one of the user's notifications.
func (lm *LibraryManager) MarkNotificationRead(ctx context.Context, userID, notificationID int64) error {
	res, err := lm.db.db.ExecContext(ctx, lm.db.db.Rebind(`UPDATE notifications SET is_read = ?
        WHERE id = ? AND user_id = ?`), true, notificationID, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound("notification", notificationID)
	}
	return nil
}

// MarkAllNotificationsRead marks every unread notification of the user read
// and returns how many changed.
func (lm *LibraryManager) MarkAllNotificationsRead(ctx context.Context, userID int64) (int, error) {
	res, err := lm.db.db.ExecContext(ctx, lm.db.db.Rebind(`UPDATE notifications SET is_read = ?
        WHERE user_id = ? AND is_read = ?`), true, userID, false)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
