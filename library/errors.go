package library

import "errors"

// Business failures. Callers match them with errors.Is; the returned errors
// usually wrap one of these with the ids involved.
var (
	ErrOutOfStock           = errors.New("no copies available")
	ErrNotEligible          = errors.New("user is not eligible for a new loan")
	ErrDuplicateReservation = errors.New("user already has a pending reservation for this book")
	ErrBookAvailable        = errors.New("book is available, loan it directly")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrDuplicateLoan        = errors.New("user already has this book on loan")
	ErrDuplicateReview      = errors.New("user already reviewed this book")
	ErrNotFound             = errors.New("not found")
	ErrForbidden            = errors.New("not allowed")
	ErrInvalidCredentials   = errors.New("invalid username or password")
	ErrUsernameTaken        = errors.New("username already taken")

	// ErrInvariantViolation means a caller bug or corrupted data. It is logged
	// and must not be handled as a normal outcome.
	ErrInvariantViolation = errors.New("invariant violation")
)
