package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dermalens/dermalens/internal/database/testutil"
	"github.com/dermalens/dermalens/internal/models"
	apperrors "github.com/dermalens/dermalens/pkg/errors"
)

func TestSignupFirstUserBecomesAdmin(t *testing.T) {
	svc := NewUserService(testutil.MustOpenTestDB(t))

	first, err := svc.Signup(context.Background(), SignupInput{
		Email:    "first@example.com",
		Password: "secret123",
		Name:     "First",
	})
	require.NoError(t, err)
	require.Equal(t, models.RoleAdmin, first.Role)
	require.True(t, first.EmailNotifications)
	require.False(t, first.SMSNotifications)

	second, err := svc.Signup(context.Background(), SignupInput{
		Email:    "second@example.com",
		Password: "secret123",
	})
	require.NoError(t, err)
	require.Equal(t, models.RoleUser, second.Role)
}

func TestSignupDuplicateEmail(t *testing.T) {
	svc := NewUserService(testutil.MustOpenTestDB(t))

	_, err := svc.Signup(context.Background(), SignupInput{Email: "dup@example.com", Password: "secret123"})
	require.NoError(t, err)

	_, err = svc.Signup(context.Background(), SignupInput{Email: "dup@example.com", Password: "other456"})
	require.ErrorIs(t, err, apperrors.ErrEmailRegistered)
}

func TestSignupNormalizesEmail(t *testing.T) {
	svc := NewUserService(testutil.MustOpenTestDB(t))

	user, err := svc.Signup(context.Background(), SignupInput{Email: "  User@Example.COM ", Password: "secret123"})
	require.NoError(t, err)
	require.Equal(t, "user@example.com", user.Email)

	_, err = svc.Signup(context.Background(), SignupInput{Email: "user@example.com", Password: "secret123"})
	require.ErrorIs(t, err, apperrors.ErrEmailRegistered)
}

func TestSignupValidation(t *testing.T) {
	svc := NewUserService(testutil.MustOpenTestDB(t))

	_, err := svc.Signup(context.Background(), SignupInput{Password: "secret123"})
	require.Error(t, err)

	_, err = svc.Signup(context.Background(), SignupInput{Email: "a@example.com"})
	require.Error(t, err)
}

func TestAuthenticate(t *testing.T) {
	svc := NewUserService(testutil.MustOpenTestDB(t))

	created, err := svc.Signup(context.Background(), SignupInput{Email: "auth@example.com", Password: "secret123"})
	require.NoError(t, err)

	user, err := svc.Authenticate(context.Background(), "auth@example.com", "secret123")
	require.NoError(t, err)
	require.Equal(t, created.ID, user.ID)

	// Case-insensitive email lookup.
	_, err = svc.Authenticate(context.Background(), "AUTH@example.com", "secret123")
	require.NoError(t, err)
}

func TestAuthenticateFailures(t *testing.T) {
	svc := NewUserService(testutil.MustOpenTestDB(t))

	_, err := svc.Signup(context.Background(), SignupInput{Email: "auth@example.com", Password: "secret123"})
	require.NoError(t, err)

	_, err = svc.Authenticate(context.Background(), "auth@example.com", "wrong")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	_, err = svc.Authenticate(context.Background(), "nobody@example.com", "secret123")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestGetUser(t *testing.T) {
	svc := NewUserService(testutil.MustOpenTestDB(t))

	created, err := svc.Signup(context.Background(), SignupInput{Email: "get@example.com", Password: "secret123"})
	require.NoError(t, err)

	user, err := svc.GetUser(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, "get@example.com", user.Email)

	_, err = svc.GetUser(context.Background(), "00000000-0000-0000-0000-000000000000")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUpdatePreferencesPartial(t *testing.T) {
	svc := NewUserService(testutil.MustOpenTestDB(t))

	created, err := svc.Signup(context.Background(), SignupInput{
		Email:       "prefs@example.com",
		Password:    "secret123",
		PhoneNumber: "+15550001111",
	})
	require.NoError(t, err)

	smsOn := true
	updated, err := svc.UpdatePreferences(context.Background(), created.ID, PreferencesInput{
		SMSNotifications: &smsOn,
	})
	require.NoError(t, err)
	require.True(t, updated.SMSNotifications)
	require.True(t, updated.EmailNotifications)
	require.Equal(t, "+15550001111", updated.PhoneNumber)

	emailOff := false
	phone := "+15559998888"
	updated, err = svc.UpdatePreferences(context.Background(), created.ID, PreferencesInput{
		EmailNotifications: &emailOff,
		PhoneNumber:        &phone,
	})
	require.NoError(t, err)
	require.False(t, updated.EmailNotifications)
	require.True(t, updated.SMSNotifications)
	require.Equal(t, "+15559998888", updated.PhoneNumber)
}

func TestUpdatePreferencesUnknownUser(t *testing.T) {
	svc := NewUserService(testutil.MustOpenTestDB(t))

	on := true
	_, err := svc.UpdatePreferences(context.Background(), "missing-id", PreferencesInput{EmailNotifications: &on})
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}
