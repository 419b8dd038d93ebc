package library

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// Policy holds the lending rules that are not stored per user.
type Policy struct {
	MaxRenewals int // renewals allowed per loan
	RenewalDays int // default extension for Renew
	HoldDays    int // how long a notified reservation is held
	DueSoonDays int // reminder lead time
}

// DefaultPolicy returns the stock lending rules.
func DefaultPolicy() Policy {
	return Policy{MaxRenewals: 2, RenewalDays: 14, HoldDays: 3, DueSoonDays: 2}
}

// LibraryManager is the façade over the Database that every front end (HTTP,
// console, sweeper) talks to. All state transitions go through it.
type LibraryManager struct {
	db     *Database
	bus    *EventBus
	clock  func() time.Time
	log    *slog.Logger
	policy Policy
}

// Option configures a LibraryManager.
type Option func(*LibraryManager)

// WithClock replaces time.Now, mostly for tests.
func WithClock(clock func() time.Time) Option {
	return func(lm *LibraryManager) { lm.clock = clock }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(lm *LibraryManager) { lm.log = logger }
}

// WithPolicy overrides DefaultPolicy. Zero fields keep their defaults.
func WithPolicy(p Policy) Option {
	return func(lm *LibraryManager) {
		if p.MaxRenewals > 0 {
			lm.policy.MaxRenewals = p.MaxRenewals
		}
		if p.RenewalDays > 0 {
			lm.policy.RenewalDays = p.RenewalDays
		}
		if p.HoldDays > 0 {
			lm.policy.HoldDays = p.HoldDays
		}
		if p.DueSoonDays > 0 {
			lm.policy.DueSoonDays = p.DueSoonDays
		}
	}
}

// NewLibraryManager opens (or creates) the SQLite database at dbPath.
func NewLibraryManager(dbPath string, opts ...Option) (*LibraryManager, error) {
	db, err := NewDatabase(dbPath)
	if err != nil {
		return nil, err
	}
	return NewManager(db, opts...), nil
}

// NewManager wraps an already opened Database.
func NewManager(db *Database, opts ...Option) *LibraryManager {
	lm := &LibraryManager{
		db:     db,
		bus:    &EventBus{},
		clock:  time.Now,
		log:    slog.New(slog.DiscardHandler),
		policy: DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(lm)
	}
	lm.bus.Subscribe(lm.logEvent)
	lm.bus.Subscribe(lm.notifyOnEvent)
	return lm
}

// Close closes the underlying database.
func (lm *LibraryManager) Close() error { return lm.db.Close() }

// Policy returns the rules in effect.
func (lm *LibraryManager) Policy() Policy { return lm.policy }

// Subscribe adds an event handler that runs inside the transaction of every
// state transition, after the built-in notification handler.
func (lm *LibraryManager) Subscribe(h EventHandler) { lm.bus.Subscribe(h) }

// Now returns the manager's current time in UTC.
func (lm *LibraryManager) Now() time.Time { return lm.clock().UTC() }

func (lm *LibraryManager) logEvent(ctx context.Context, _ *sqlx.Tx, e Event) error {
	lm.log.DebugContext(ctx, "domain event", slog.String("event", e.EventType()), slog.Any("payload", e))
	return nil
}

// check logs invariant violations before handing err back.
func (lm *LibraryManager) check(ctx context.Context, op string, err error) error {
	if errors.Is(err, ErrInvariantViolation) {
		lm.log.ErrorContext(ctx, "invariant violation", slog.String("op", op), slog.Any("error", err))
	}
	return err
}
