package library

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// Event is a domain event raised by a state transition.
type Event interface {
	EventType() string
}

// LoanIssuedEvent is raised when a copy is loaned out.
type LoanIssuedEvent struct {
	LoanID    int64
	UserID    int64
	BookID    int64
	BookTitle string
	DueAt     time.Time
}

// LoanRenewedEvent is raised after a successful renewal.
type LoanRenewedEvent struct {
	LoanID       int64
	UserID       int64
	BookID       int64
	BookTitle    string
	DueAt        time.Time
	RenewalCount int
}

// LoanReturnedEvent is raised when a copy comes back.
type LoanReturnedEvent struct {
	LoanID    int64
	UserID    int64
	BookID    int64
	BookTitle string
}

// LoanOverdueEvent is raised once per transition into overdue.
type LoanOverdueEvent struct {
	LoanID    int64
	UserID    int64
	BookID    int64
	BookTitle string
	DueAt     time.Time
}

// LoanDueSoonEvent is raised once per due date, two days ahead of it.
type LoanDueSoonEvent struct {
	LoanID    int64
	UserID    int64
	BookID    int64
	BookTitle string
	DueAt     time.Time
}

// ReservationCreatedEvent is raised when a user joins a title's queue.
type ReservationCreatedEvent struct {
	ReservationID int64
	UserID        int64
	BookID        int64
	BookTitle     string
}

// ReservationPromotedEvent is raised when the head of a queue is notified.
type ReservationPromotedEvent struct {
	ReservationID int64
	UserID        int64
	BookID        int64
	BookTitle     string
	ExpiresAt     time.Time
}

const (
	EventLoanIssued          = "LoanIssued"
	EventLoanRenewed         = "LoanRenewed"
	EventLoanReturned        = "LoanReturned"
	EventLoanOverdue         = "LoanOverdue"
	EventLoanDueSoon         = "LoanDueSoon"
	EventReservationCreated  = "ReservationCreated"
	EventReservationPromoted = "ReservationPromoted"
)

func (LoanIssuedEvent) EventType() string { return EventLoanIssued }
func (LoanRenewedEvent) EventType() string { return EventLoanRenewed }
func (LoanReturnedEvent) EventType() string { return EventLoanReturned }
func (LoanOverdueEvent) EventType() string { return EventLoanOverdue }
func (LoanDueSoonEvent) EventType() string { return EventLoanDueSoon }
func (ReservationCreatedEvent) EventType() string { return EventReservationCreated }
func (ReservationPromotedEvent) EventType() string { return EventReservationPromoted }

// EventHandler reacts to an event inside the transaction that raised it. A
// returned error aborts the whole transition.
type EventHandler func(ctx context.Context, tx *sqlx.Tx, e Event) error

// EventBus fans events out to subscribers synchronously, in subscription order.
// Subscribe during setup only; Publish is safe for concurrent use once wiring
// is done.
type EventBus struct {
	handlers []EventHandler
}

// Subscribe registers h for every event.
func (b *EventBus) Subscribe(h EventHandler) {
	b.handlers = append(b.handlers, h)
}

// Publish delivers e to every subscriber, stopping at the first error.
func (b *EventBus) Publish(ctx context.Context, tx *sqlx.Tx, e Event) error {
	for _, h := range b.handlers {
		if err := h(ctx, tx, e); err != nil {
			return err
		}
	}
	return nil
}
