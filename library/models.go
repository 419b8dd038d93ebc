package library

import (
	"math"
	"time"
)

// LoanState is the persisted lifecycle state of a loan.
type LoanState string

const (
	LoanActive   LoanState = "active"
	LoanRenewed  LoanState = "renewed"
	LoanOverdue  LoanState = "overdue"
	LoanReturned LoanState = "returned"
)

// openLoanStates are the states that hold a copy and count against a user's limit.
var openLoanStates = []LoanState{LoanActive, LoanRenewed, LoanOverdue}

// ReservationState is the lifecycle state of a hold request.
type ReservationState string

const (
	ReservationPending   ReservationState = "pending"
	ReservationNotified  ReservationState = "notified"
	ReservationCompleted ReservationState = "completed"
	ReservationCancelled ReservationState = "cancelled"
)

// NotificationKind classifies a user-visible notification.
type NotificationKind string

const (
	KindLoanCreated      NotificationKind = "loan-created"
	KindLoanRenewed      NotificationKind = "loan-renewed"
	KindLoanReturned     NotificationKind = "loan-returned"
	KindDueSoon          NotificationKind = "due-soon"
	KindOverdue          NotificationKind = "overdue"
	KindReservationReady NotificationKind = "reservation-ready"
	KindSystem           NotificationKind = "system"
)

// BookKind is the literary form of a title.
type BookKind string

const (
	KindNovel     BookKind = "novel"
	KindStory     BookKind = "story"
	KindEssay     BookKind = "essay"
	KindPoetry    BookKind = "poetry"
	KindBiography BookKind = "biography"
	KindHistory   BookKind = "history"
	KindScience   BookKind = "science"
	KindOther     BookKind = "other"
)

// Author of one or more books.
type Author struct {
	ID          int64   `json:"id" db:"id"`
	Name        string  `json:"name" db:"name"`
	Biography   *string `json:"biography,omitempty" db:"biography"`
	Nationality *string `json:"nationality,omitempty" db:"nationality"`
}

// Category groups books; a book may belong to several.
type Category struct {
	ID          int64   `json:"id" db:"id"`
	Name        string  `json:"name" db:"name"`
	Description *string `json:"description,omitempty" db:"description"`
}

// Publisher issues editions; a book may name one.
type Publisher struct {
	ID      int64   `json:"id" db:"id"`
	Name    string  `json:"name" db:"name"`
	Country *string `json:"country,omitempty" db:"country"`
	Website *string `json:"website,omitempty" db:"website"`
}

// Book is a catalog title. Copies are tracked by count only, physical copies
// are never individually identified.
type Book struct {
	ID              int64     `json:"id" db:"id"`
	Title           string    `json:"title" db:"title"`
	AuthorID        int64     `json:"author_id" db:"author_id"`
	AuthorName      string    `json:"author_name" db:"author_name"`
	PublisherID     *int64    `json:"publisher_id,omitempty" db:"publisher_id"`
	PublisherName   *string   `json:"publisher_name,omitempty" db:"publisher_name"`
	ISBN            *string   `json:"isbn,omitempty" db:"isbn"`
	PublicationYear int       `json:"publication_year" db:"publication_year"`
	Pages           *int      `json:"pages,omitempty" db:"pages"`
	Language        string    `json:"language" db:"language"`
	Description     string    `json:"description" db:"description"`
	Kind            BookKind  `json:"kind" db:"kind"`
	TotalCopies     int       `json:"total_copies" db:"total_copies"`
	AvailableCopies int       `json:"available_copies" db:"available_copies"`
	Popular         bool      `json:"popular" db:"popular"`
	IsNew           bool      `json:"is_new" db:"is_new"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`

	// Filled on detail reads only.
	Categories    []Category `json:"categories,omitempty" db:"-"`
	AverageRating float64    `json:"average_rating" db:"-"`
	ReviewCount   int        `json:"review_count" db:"-"`
}

// IsAvailable reports whether at least one copy can be loaned right now.
func (b *Book) IsAvailable() bool { return b.AvailableCopies > 0 }

// User is a registered account. Every user owns exactly one Profile.
type User struct {
	ID           int64     `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	Email        string    `json:"email" db:"email"`
	FirstName    string    `json:"first_name" db:"first_name"`
	LastName     string    `json:"last_name" db:"last_name"`
	PasswordHash string    `json:"-" db:"password_hash"`
	IsAdmin      bool      `json:"is_admin" db:"is_admin"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Profile holds lending policy and contact details for a user.
type Profile struct {
	UserID                int64   `json:"user_id" db:"user_id"`
	Phone                 *string `json:"phone,omitempty" db:"phone"`
	Address               *string `json:"address,omitempty" db:"address"`
	CardNumber            *string `json:"card_number,omitempty" db:"card_number"`
	Active                bool    `json:"active" db:"active"`
	MaxConcurrentLoans    int     `json:"max_concurrent_loans" db:"max_concurrent_loans"`
	DefaultLoanPeriodDays int     `json:"default_loan_period_days" db:"default_loan_period_days"`
}

// Loan is a checkout of one copy of a book by a user.
type Loan struct {
	ID           int64      `json:"id" db:"id"`
	UserID       int64      `json:"user_id" db:"user_id"`
	BookID       int64      `json:"book_id" db:"book_id"`
	BookTitle    string     `json:"book_title" db:"book_title"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	DueAt        time.Time  `json:"due_at" db:"due_at"`
	ReturnedAt   *time.Time `json:"returned_at,omitempty" db:"returned_at"`
	State        LoanState  `json:"state" db:"state"`
	RenewalCount int        `json:"renewal_count" db:"renewal_count"`
	MaxRenewals  int        `json:"max_renewals" db:"max_renewals"`
	Notes        *string    `json:"notes,omitempty" db:"notes"`
}

// IsOpen reports whether the loan still holds a copy.
func (l *Loan) IsOpen() bool {
	return l.State == LoanActive || l.State == LoanRenewed || l.State == LoanOverdue
}

// IsOverdue reports overdue status without touching persisted state. A loan
// whose due date has passed counts as overdue even if the row still says
// active or renewed.
func (l *Loan) IsOverdue(now time.Time) bool {
	switch l.State {
	case LoanOverdue:
		return true
	case LoanActive, LoanRenewed:
		return l.DueAt.Before(now)
	}
	return false
}

// EffectiveState is the state a read should display.
func (l *Loan) EffectiveState(now time.Time) LoanState {
	if l.IsOverdue(now) {
		return LoanOverdue
	}
	return l.State
}

// DaysRemaining is the number of whole days until the due date, rounded
// towards negative infinity. Returned loans report 0.
func (l *Loan) DaysRemaining(now time.Time) int {
	if l.State == LoanReturned {
		return 0
	}
	return int(math.Floor(l.DueAt.Sub(now).Hours() / 24))
}

// CanRenew reports whether Renew would succeed at now.
func (l *Loan) CanRenew(now time.Time) bool {
	return (l.State == LoanActive || l.State == LoanRenewed) &&
		l.RenewalCount < l.MaxRenewals &&
		!l.IsOverdue(now)
}

// LoanView is a loan plus its lazily computed status, as returned by reads.
type LoanView struct {
	Loan
	EffectiveState LoanState `json:"effective_state"`
	Overdue        bool      `json:"overdue"`
	DaysRemaining  int       `json:"days_remaining"`
	Renewable      bool      `json:"renewable"`
}

func viewLoan(l Loan, now time.Time) LoanView {
	return LoanView{
		Loan:           l,
		EffectiveState: l.EffectiveState(now),
		Overdue:        l.IsOverdue(now),
		DaysRemaining:  l.DaysRemaining(now),
		Renewable:      l.CanRenew(now),
	}
}

// Reservation is a FIFO hold on a title with no available copies.
type Reservation struct {
	ID          int64            `json:"id" db:"id"`
	UserID      int64            `json:"user_id" db:"user_id"`
	BookID      int64            `json:"book_id" db:"book_id"`
	BookTitle   string           `json:"book_title" db:"book_title"`
	State       ReservationState `json:"state" db:"state"`
	RequestedAt time.Time        `json:"requested_at" db:"requested_at"`
	NotifiedAt  *time.Time       `json:"notified_at,omitempty" db:"notified_at"`
	ExpiresAt   *time.Time       `json:"expires_at,omitempty" db:"expires_at"`
}

// Notification is an append-only message for a user. Only Read ever changes.
type Notification struct {
	ID        int64            `json:"id" db:"id"`
	UserID    int64            `json:"user_id" db:"user_id"`
	BookID    *int64           `json:"book_id,omitempty" db:"book_id"`
	LoanID    *int64           `json:"loan_id,omitempty" db:"loan_id"`
	Kind      NotificationKind `json:"kind" db:"kind"`
	Title     string           `json:"title" db:"title"`
	Message   string           `json:"message" db:"message"`
	Read      bool             `json:"read" db:"is_read"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
}

// Review is a user's rating of a book. One per (user, book).
type Review struct {
	ID        int64     `json:"id" db:"id"`
	BookID    int64     `json:"book_id" db:"book_id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	Username  string    `json:"username" db:"username"`
	Rating    int       `json:"rating" db:"rating"`
	Comment   *string   `json:"comment,omitempty" db:"comment"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// UserStats summarises a user's activity.
type UserStats struct {
	ActiveLoans        int     `json:"active_loans" db:"active_loans"`
	TotalLoans         int     `json:"total_loans" db:"total_loans"`
	BooksRead          int     `json:"books_read" db:"books_read"`
	ActiveReservations int     `json:"active_reservations" db:"active_reservations"`
	AverageRatingGiven float64 `json:"average_rating_given" db:"average_rating_given"`
	OverdueLoans       int     `json:"overdue_loans" db:"overdue_loans"`
}

// Actor identifies who performs an operation, as supplied by the auth layer.
type Actor struct {
	UserID  int64
	IsAdmin bool
}

// can reports whether the actor may act on a resource owned by ownerID.
func (a Actor) can(ownerID int64) bool { return a.IsAdmin || a.UserID == ownerID }
