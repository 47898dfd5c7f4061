package otp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	svc := NewService(Config{})

	code, err := svc.Issue("user@example.com")
	require.NoError(t, err)
	require.Len(t, code, CodeLength)

	require.NoError(t, svc.Verify("user@example.com", code))

	// Codes are single use.
	require.ErrorIs(t, svc.Verify("user@example.com", code), ErrCodeExpired)
}

func TestIssueRequiresIdentifier(t *testing.T) {
	svc := NewService(Config{})

	_, err := svc.Issue("")
	require.Error(t, err)
}

func TestVerifyUnknownIdentifier(t *testing.T) {
	svc := NewService(Config{})

	require.ErrorIs(t, svc.Verify("nobody@example.com", "123456"), ErrCodeExpired)
}

func TestVerifyWrongCodeIncrementsAttempts(t *testing.T) {
	svc := NewService(Config{MaxAttempts: 3})

	code, err := svc.Issue("user@example.com")
	require.NoError(t, err)

	require.ErrorIs(t, svc.Verify("user@example.com", "000000"), ErrCodeInvalid)
	require.ErrorIs(t, svc.Verify("user@example.com", "000000"), ErrCodeInvalid)
	require.ErrorIs(t, svc.Verify("user@example.com", "000000"), ErrCodeInvalid)

	// Ceiling reached. Even the correct code is rejected and the entry removed.
	require.ErrorIs(t, svc.Verify("user@example.com", code), ErrTooManyAttempts)
	require.ErrorIs(t, svc.Verify("user@example.com", code), ErrCodeExpired)
}

func TestVerifySucceedsWithinAttemptLimit(t *testing.T) {
	svc := NewService(Config{MaxAttempts: 3})

	code, err := svc.Issue("user@example.com")
	require.NoError(t, err)

	require.ErrorIs(t, svc.Verify("user@example.com", "999999"), ErrCodeInvalid)
	require.NoError(t, svc.Verify("user@example.com", code))
}

func TestIssueReplacesExistingCode(t *testing.T) {
	svc := NewService(Config{})

	first, err := svc.Issue("user@example.com")
	require.NoError(t, err)

	second, err := svc.Issue("user@example.com")
	require.NoError(t, err)

	require.ErrorIs(t, svc.Verify("user@example.com", first), ErrCodeInvalid)
	require.NoError(t, svc.Verify("user@example.com", second))
}

func TestIssueResetsAttemptCounter(t *testing.T) {
	svc := NewService(Config{MaxAttempts: 2})

	_, err := svc.Issue("user@example.com")
	require.NoError(t, err)
	require.ErrorIs(t, svc.Verify("user@example.com", "000000"), ErrCodeInvalid)
	require.ErrorIs(t, svc.Verify("user@example.com", "000000"), ErrCodeInvalid)

	code, err := svc.Issue("user@example.com")
	require.NoError(t, err)
	require.ErrorIs(t, svc.Verify("user@example.com", "000000"), ErrCodeInvalid)
	require.NoError(t, svc.Verify("user@example.com", code))
}

func TestVerifyExpiredCode(t *testing.T) {
	svc := NewService(Config{TTL: 20 * time.Millisecond})

	code, err := svc.Issue("user@example.com")
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)
	require.ErrorIs(t, svc.Verify("user@example.com", code), ErrCodeExpired)
}

func TestSweepExpired(t *testing.T) {
	svc := NewService(Config{TTL: 20 * time.Millisecond})

	_, err := svc.Issue("a@example.com")
	require.NoError(t, err)
	_, err = svc.Issue("b@example.com")
	require.NoError(t, err)
	require.Equal(t, 2, svc.ActiveCodes())

	time.Sleep(40 * time.Millisecond)
	require.Equal(t, 0, svc.SweepExpired())
}
