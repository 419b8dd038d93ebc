package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest password CreateUser accepts.
const MinPasswordLength = 8

// passwordCost is the bcrypt work factor. Tests lower it.
var passwordCost = bcrypt.DefaultCost

// NewUser is the input to CreateUser.
type NewUser struct {
	Username        string
	Email           string
	FirstName       string
	LastName        string
	Password        string
	PasswordConfirm string
	IsAdmin         bool
}

// ContactUpdate holds the profile fields a user may change on their own.
// Nil fields are left alone.
type ContactUpdate struct {
	Phone      *string
	Address    *string
	CardNumber *string
}

// PolicyUpdate holds the profile fields only staff may change.
type PolicyUpdate struct {
	Active                *bool
	MaxConcurrentLoans    *int
	DefaultLoanPeriodDays *int
}

func hashPassword(pw string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(pw), passwordCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// CreateUser registers an account. The user and its profile are inserted in
// one transaction, so every user has exactly one profile.
func (lm *LibraryManager) CreateUser(ctx context.Context, nu NewUser) (*User, error) {
	nu.Username = strings.TrimSpace(nu.Username)
	nu.Email = strings.TrimSpace(nu.Email)
	switch {
	case nu.Username == "":
		return nil, fmt.Errorf("username is required: %w", ErrInvalidArgument)
	case nu.Email == "":
		return nil, fmt.Errorf("email is required: %w", ErrInvalidArgument)
	case len(nu.Password) < MinPasswordLength:
		return nil, fmt.Errorf("password shorter than %d characters: %w", MinPasswordLength, ErrInvalidArgument)
	case nu.PasswordConfirm != "" && nu.PasswordConfirm != nu.Password:
		return nil, fmt.Errorf("passwords do not match: %w", ErrInvalidArgument)
	}

	hash, err := hashPassword(nu.Password)
	if err != nil {
		return nil, err
	}

	now := lm.Now()
	var user *User
	err = lm.db.withTx(ctx, func(tx *sqlx.Tx) error {
		id, err := insertReturningID(ctx, tx, `INSERT INTO users
            (username, email, first_name, last_name, password_hash, is_admin, created_at)
            VALUES (?, ?, ?, ?, ?, ?, ?)`,
			nu.Username, nu.Email, nu.FirstName, nu.LastName, hash, nu.IsAdmin, now)
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", nu.Username, ErrUsernameTaken)
		}
		if err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO user_profiles
            (user_id, active, max_concurrent_loans, default_loan_period_days) VALUES (?, ?, ?, ?)`),
			id, true, 3, 14); err != nil {
			return fmt.Errorf("insert profile: %w", err)
		}
		user, err = getUser(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func getUser(ctx context.Context, q sqlx.ExtContext, id int64) (*User, error) {
	var u User
	err := sqlx.GetContext(ctx, q, &u, q.Rebind(`SELECT * FROM users WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("user", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return &u, nil
}

func getProfile(ctx context.Context, q sqlx.ExtContext, userID int64, lock string) (*Profile, error) {
	var p Profile
	err := sqlx.GetContext(ctx, q, &p, q.Rebind(`SELECT * FROM user_profiles WHERE user_id = ?`+lock), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("user profile", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("get profile %d: %w", userID, err)
	}
	return &p, nil
}

// Authenticate checks a username and password pair.
func (lm *LibraryManager) Authenticate(ctx context.Context, username, password string) (*User, error) {
	var u User
	err := lm.db.db.GetContext(ctx, &u, lm.db.db.Rebind(`SELECT * FROM users WHERE username = ?`),
		strings.TrimSpace(username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &u, nil
}

// ResetPassword replaces the user's password.
func (lm *LibraryManager) ResetPassword(ctx context.Context, userID int64, password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password shorter than %d characters: %w", MinPasswordLength, ErrInvalidArgument)
	}
	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	res, err := lm.db.db.ExecContext(ctx, lm.db.db.Rebind(`UPDATE users SET password_hash = ? WHERE id = ?`), hash, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("user", userID)
	}
	return nil
}

func (lm *LibraryManager) GetUser(ctx context.Context, id int64) (*User, error) {
	return getUser(ctx, lm.db.db, id)
}

func (lm *LibraryManager) ListUsers(ctx context.Context) ([]User, error) {
	out := []User{}
	if err := lm.db.db.SelectContext(ctx, &out, `SELECT * FROM users ORDER BY id`); err != nil {
		return nil, err
	}
	return out, nil
}

func (lm *LibraryManager) GetProfile(ctx context.Context, userID int64) (*Profile, error) {
	return getProfile(ctx, lm.db.db, userID, "")
}

// UpdateContact changes the self-service fields of a profile.
func (lm *LibraryManager) UpdateContact(ctx context.Context, userID int64, u ContactUpdate) (*Profile, error) {
	var p *Profile
	err := lm.db.withTx(ctx, func(tx *sqlx.Tx) error {
		cur, err := getProfile(ctx, tx, userID, lm.db.dialect.forUpdate)
		if err != nil {
			return err
		}
		if u.Phone != nil {
			cur.Phone = u.Phone
		}
		if u.Address != nil {
			cur.Address = u.Address
		}
		if u.CardNumber != nil {
			cur.CardNumber = u.CardNumber
			if *u.CardNumber == "" {
				cur.CardNumber = nil
			}
		}
		_, err = tx.ExecContext(ctx, tx.Rebind(`UPDATE user_profiles
            SET phone = ?, address = ?, card_number = ? WHERE user_id = ?`),
			cur.Phone, cur.Address, cur.CardNumber, userID)
		if isUniqueViolation(err) {
			return fmt.Errorf("card number already in use: %w", ErrInvalidArgument)
		}
		if err != nil {
			return err
		}
		p = cur
		return nil
	})
	return p, err
}

// UpdatePolicy changes the staff-managed fields of a profile.
func (lm *LibraryManager) UpdatePolicy(ctx context.Context, userID int64, u PolicyUpdate) (*Profile, error) {
	if u.MaxConcurrentLoans != nil && *u.MaxConcurrentLoans < 0 {
		return nil, fmt.Errorf("max concurrent loans %d: %w", *u.MaxConcurrentLoans, ErrInvalidArgument)
	}
	if u.DefaultLoanPeriodDays != nil && *u.DefaultLoanPeriodDays < 1 {
		return nil, fmt.Errorf("loan period %d days: %w", *u.DefaultLoanPeriodDays, ErrInvalidArgument)
	}
	var p *Profile
	err := lm.db.withTx(ctx, func(tx *sqlx.Tx) error {
		cur, err := getProfile(ctx, tx, userID, lm.db.dialect.forUpdate)
		if err != nil {
			return err
		}
		if u.Active != nil {
			cur.Active = *u.Active
		}
		if u.MaxConcurrentLoans != nil {
			cur.MaxConcurrentLoans = *u.MaxConcurrentLoans
		}
		if u.DefaultLoanPeriodDays != nil {
			cur.DefaultLoanPeriodDays = *u.DefaultLoanPeriodDays
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE user_profiles
            SET active = ?, max_concurrent_loans = ?, default_loan_period_days = ? WHERE user_id = ?`),
			cur.Active, cur.MaxConcurrentLoans, cur.DefaultLoanPeriodDays, userID); err != nil {
			return err
		}
		p = cur
		return nil
	})
	return p, err
}
