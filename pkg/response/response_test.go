package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	appErrors "github.com/dermalens/dermalens/pkg/errors"
)

func record(fn func(c *gin.Context)) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	fn(c)
	return w
}

func TestSuccessEnvelope(t *testing.T) {
	w := record(func(c *gin.Context) {
		Success(c, http.StatusOK, gin.H{"confidence": 0.92})
	})

	require.Equal(t, http.StatusOK, w.Code)

	var body Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.True(t, body.Success)
	require.Nil(t, body.Error)
}

func TestErrorUsesAppErrorStatus(t *testing.T) {
	w := record(func(c *gin.Context) {
		Error(c, appErrors.ErrOTPInvalid)
	})

	require.Equal(t, http.StatusUnauthorized, w.Code)

	var body Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.False(t, body.Success)
	require.Equal(t, "OTP_INVALID", body.Error.Code)
}

func TestErrorNilDefaultsToInternal(t *testing.T) {
	w := record(func(c *gin.Context) {
		Error(c, nil)
	})
	require.Equal(t, http.StatusInternalServerError, w.Code)
}
