package handlers_test

import (
	"errors"
	"net/http"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dermalens/dermalens/internal/handlers/testutil"
)

var (
	codePattern = regexp.MustCompile(`\b(\d{6})\b`)
	errSMTPDown = errors.New("smtp down")
)

func requestOTP(t *testing.T, env *testutil.Env, token string) string {
	t.Helper()

	w := env.Request(http.MethodPost, "/api/otp/request", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	match := codePattern.FindStringSubmatch(env.Email.LastBody())
	require.NotNil(t, match, "no code found in email body")
	return match[1]
}

func TestOTP_RequestDeliversMaskedEmail(t *testing.T) {
	env := testutil.NewEnv(t)
	signup := env.Signup("ada@example.com", "Passw0rd!123")

	w := env.Request(http.MethodPost, "/api/otp/request", nil, signup.Token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Contains(t, w.Body.String(), `"channel":"email"`)
	require.Contains(t, w.Body.String(), "a**@example.com")
	require.Equal(t, []string{"ada@example.com"}, env.Email.To)
}

func TestOTP_VerifyIssuesSessionToken(t *testing.T) {
	env := testutil.NewEnv(t)
	signup := env.Signup("ada@example.com", "Passw0rd!123")
	code := requestOTP(t, env, signup.Token)

	w := env.Request(http.MethodPost, "/api/otp/verify", map[string]string{"code": code}, signup.Token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := testutil.DecodeResponse(t, w)
	var result struct {
		SessionToken string `json:"session_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	testutil.DecodeInto(t, resp.Data, &result)
	require.Equal(t, 1800, result.ExpiresIn)

	claims, err := env.JWT.ValidateAccessToken(result.SessionToken)
	require.NoError(t, err)
	require.True(t, claims.OTPVerified)
	require.Equal(t, signup.User.ID, claims.UserID)
}

func TestOTP_VerifyWrongCode(t *testing.T) {
	env := testutil.NewEnv(t)
	signup := env.Signup("ada@example.com", "Passw0rd!123")
	requestOTP(t, env, signup.Token)

	w := env.Request(http.MethodPost, "/api/otp/verify", map[string]string{"code": "000000"}, signup.Token)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	resp := testutil.DecodeResponse(t, w)
	require.Equal(t, "Invalid or expired OTP", resp.Error.Message)
}

func TestOTP_VerifyWithoutRequest(t *testing.T) {
	env := testutil.NewEnv(t)
	signup := env.Signup("ada@example.com", "Passw0rd!123")

	w := env.Request(http.MethodPost, "/api/otp/verify", map[string]string{"code": "123456"}, signup.Token)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOTP_CodeIsSingleUse(t *testing.T) {
	env := testutil.NewEnv(t)
	signup := env.Signup("ada@example.com", "Passw0rd!123")
	code := requestOTP(t, env, signup.Token)

	w := env.Request(http.MethodPost, "/api/otp/verify", map[string]string{"code": code}, signup.Token)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.Request(http.MethodPost, "/api/otp/verify", map[string]string{"code": code}, signup.Token)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOTP_FallsBackToSMSWhenEmailFails(t *testing.T) {
	env := testutil.NewEnv(t)
	signup := env.Signup("ada@example.com", "Passw0rd!123")

	// Register a phone number first.
	w := env.Request(http.MethodPut, "/api/preferences", map[string]any{
		"phone_number": "+15551234567",
	}, signup.Token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	env.Email.Err = errSMTPDown

	w = env.Request(http.MethodPost, "/api/otp/request", nil, signup.Token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Contains(t, w.Body.String(), `"channel":"sms"`)
	require.Contains(t, w.Body.String(), "*******4567")
	require.Equal(t, []string{"+15551234567"}, env.SMS.To)
}

func TestOTP_RequestRequiresAuth(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodPost, "/api/otp/request", nil, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
