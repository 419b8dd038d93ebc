package library

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_CreateUser_CreatesDefaultProfile(t *testing.T) {
	mgr, _ := newManager(t)
	ctx := context.Background()

	u, err := mgr.CreateUser(ctx, NewUser{
		Username:        " ana ",
		Email:           "ana@example.com",
		FirstName:       "Ana",
		Password:        "s3cret-pass",
		PasswordConfirm: "s3cret-pass",
	})
	require.NoError(t, err)
	assert.Equal(t, "ana", u.Username)
	assert.NotEqual(t, "s3cret-pass", u.PasswordHash)
	assert.True(t, u.CreatedAt.Equal(baseTime))

	p, err := mgr.GetProfile(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, p.Active)
	assert.Equal(t, 3, p.MaxConcurrentLoans)
	assert.Equal(t, 14, p.DefaultLoanPeriodDays)
}

func Test_CreateUser_Rejections(t *testing.T) {
	mgr, _ := newManager(t)
	ctx := context.Background()
	seedUser(t, mgr, "ana")

	tests := []struct {
		name string
		in   NewUser
		want error
	}{
		{"missing username", NewUser{Email: "x@example.com", Password: "long enough"}, ErrInvalidArgument},
		{"missing email", NewUser{Username: "bea", Password: "long enough"}, ErrInvalidArgument},
		{"short password", NewUser{Username: "bea", Email: "b@example.com", Password: "short"}, ErrInvalidArgument},
		{"confirmation mismatch", NewUser{Username: "bea", Email: "b@example.com", Password: "long enough", PasswordConfirm: "other one"}, ErrInvalidArgument},
		{"username taken", NewUser{Username: "ana", Email: "a2@example.com", Password: "long enough"}, ErrUsernameTaken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := mgr.CreateUser(ctx, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	users, err := mgr.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func Test_Authenticate(t *testing.T) {
	mgr, _ := newManager(t)
	ctx := context.Background()
	seeded := seedUser(t, mgr, "ana")

	u, err := mgr.Authenticate(ctx, "ana", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, u.ID)

	_, err = mgr.Authenticate(ctx, "ana", "wrong horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = mgr.Authenticate(ctx, "nobody", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, mgr.ResetPassword(ctx, seeded.ID, "battery staple"))
	_, err = mgr.Authenticate(ctx, "ana", "battery staple")
	assert.NoError(t, err)
}

func Test_UpdateContact_AndPolicy(t *testing.T) {
	mgr, _ := newManager(t)
	ctx := context.Background()
	ana := seedUser(t, mgr, "ana")
	bea := seedUser(t, mgr, "bea")
	phone, card := "555-0100", "C-1"

	p, err := mgr.UpdateContact(ctx, ana.ID, ContactUpdate{Phone: &phone, CardNumber: &card})
	require.NoError(t, err)
	require.NotNil(t, p.Phone)
	assert.Equal(t, phone, *p.Phone)

	_, err = mgr.UpdateContact(ctx, bea.ID, ContactUpdate{CardNumber: &card})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	limit := 5
	p, err = mgr.UpdatePolicy(ctx, ana.ID, PolicyUpdate{MaxConcurrentLoans: &limit})
	require.NoError(t, err)
	assert.Equal(t, 5, p.MaxConcurrentLoans)
	require.NotNil(t, p.Phone, "policy update leaves contact fields alone")

	zero := 0
	_, err = mgr.UpdatePolicy(ctx, ana.ID, PolicyUpdate{DefaultLoanPeriodDays: &zero})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = mgr.UpdatePolicy(ctx, 999, PolicyUpdate{MaxConcurrentLoans: &limit})
	assert.ErrorIs(t, err, ErrNotFound)
}
