package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dermalens/dermalens/internal/handlers/testutil"
	"github.com/dermalens/dermalens/internal/models"
)

// stepUpToken walks the full OTP flow and returns the otp_verified token.
func stepUpToken(t *testing.T, env *testutil.Env, token string) string {
	t.Helper()

	code := requestOTP(t, env, token)
	w := env.Request(http.MethodPost, "/api/otp/verify", map[string]string{"code": code}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := testutil.DecodeResponse(t, w)
	var result struct {
		SessionToken string `json:"session_token"`
	}
	testutil.DecodeInto(t, resp.Data, &result)
	return result.SessionToken
}

type historyPage struct {
	Records []models.Prediction `json:"records"`
	Count   int                 `json:"count"`
}

func listHistory(t *testing.T, env *testutil.Env, token, path string) historyPage {
	t.Helper()

	w := env.Request(http.MethodGet, path, nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := testutil.DecodeResponse(t, w)
	var page historyPage
	testutil.DecodeInto(t, resp.Data, &page)
	return page
}

func TestHistory_RequiresStepUpToken(t *testing.T) {
	env := testutil.NewEnv(t)
	signup := env.Signup("ada@example.com", "Passw0rd!123")

	// Plain access token is not enough.
	w := env.Request(http.MethodGet, "/api/history", nil, signup.Token)
	require.Equal(t, http.StatusForbidden, w.Code)

	resp := testutil.DecodeResponse(t, w)
	require.Equal(t, "OTP_REQUIRED", resp.Error.Code)

	// No token at all is a 401.
	w = env.Request(http.MethodGet, "/api/history", nil, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHistory_ListsOwnRecordsNewestFirst(t *testing.T) {
	env := testutil.NewEnv(t)
	signup := env.Signup("ada@example.com", "Passw0rd!123")

	for i := 0; i < 3; i++ {
		w := env.Upload("lesion.png", testutil.PNGImage(t), signup.Token)
		require.Equal(t, http.StatusOK, w.Code)
	}

	token := stepUpToken(t, env, signup.Token)
	page := listHistory(t, env, token, "/api/history")
	require.Equal(t, 3, page.Count)
	for i := 1; i < len(page.Records); i++ {
		require.False(t, page.Records[i-1].CreatedAt.Before(page.Records[i].CreatedAt))
	}
}

func TestHistory_IsolatedBetweenUsers(t *testing.T) {
	env := testutil.NewEnv(t)
	alice := env.Signup("alice@example.com", "Passw0rd!123")
	bob := env.Signup("bob@example.com", "Passw0rd!123")

	w := env.Upload("lesion.png", testutil.PNGImage(t), alice.Token)
	require.Equal(t, http.StatusOK, w.Code)

	bobToken := stepUpToken(t, env, bob.Token)
	page := listHistory(t, env, bobToken, "/api/history")
	require.Equal(t, 0, page.Count)
}

func TestHistory_AdminListsAll(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.Signup("admin@example.com", "Passw0rd!123")
	user := env.Signup("user@example.com", "Passw0rd!123")

	w := env.Upload("lesion.png", testutil.PNGImage(t), user.Token)
	require.Equal(t, http.StatusOK, w.Code)
	w = env.Upload("lesion.png", testutil.PNGImage(t), "")
	require.Equal(t, http.StatusOK, w.Code)

	adminToken := stepUpToken(t, env, admin.Token)
	page := listHistory(t, env, adminToken, "/api/history?all=true")
	require.Equal(t, 2, page.Count)

	// Non-admins cannot use all=true.
	userToken := stepUpToken(t, env, user.Token)
	resp := env.Request(http.MethodGet, "/api/history?all=true", nil, userToken)
	require.Equal(t, http.StatusForbidden, resp.Code)
}

func TestHistory_DeleteOwnRecord(t *testing.T) {
	env := testutil.NewEnv(t)
	signup := env.Signup("ada@example.com", "Passw0rd!123")

	w := env.Upload("lesion.png", testutil.PNGImage(t), signup.Token)
	require.Equal(t, http.StatusOK, w.Code)

	token := stepUpToken(t, env, signup.Token)
	page := listHistory(t, env, token, "/api/history")
	require.Equal(t, 1, page.Count)

	del := env.Request(http.MethodDelete, "/api/history/"+page.Records[0].ID, nil, token)
	require.Equal(t, http.StatusOK, del.Code, del.Body.String())

	page = listHistory(t, env, token, "/api/history")
	require.Equal(t, 0, page.Count)
}

func TestHistory_DeleteForeignRecordReportsNotFound(t *testing.T) {
	env := testutil.NewEnv(t)
	// First account is admin; use two regular users.
	env.Signup("root@example.com", "Passw0rd!123")
	alice := env.Signup("alice@example.com", "Passw0rd!123")
	bob := env.Signup("bob@example.com", "Passw0rd!123")

	w := env.Upload("lesion.png", testutil.PNGImage(t), alice.Token)
	require.Equal(t, http.StatusOK, w.Code)

	aliceToken := stepUpToken(t, env, alice.Token)
	page := listHistory(t, env, aliceToken, "/api/history")
	require.Equal(t, 1, page.Count)

	bobToken := stepUpToken(t, env, bob.Token)
	del := env.Request(http.MethodDelete, "/api/history/"+page.Records[0].ID, nil, bobToken)
	require.Equal(t, http.StatusNotFound, del.Code)

	// Record still present for its owner.
	page = listHistory(t, env, aliceToken, "/api/history")
	require.Equal(t, 1, page.Count)
}
