// Package testutil provisions a fully wired API instance for handler tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dermalens/dermalens/internal/api"
	"github.com/dermalens/dermalens/internal/app"
	iauth "github.com/dermalens/dermalens/internal/auth"
	sharedtestutil "github.com/dermalens/dermalens/internal/database/testutil"
	"github.com/dermalens/dermalens/internal/handlers"
	"github.com/dermalens/dermalens/internal/imaging"
	"github.com/dermalens/dermalens/internal/notify"
	"github.com/dermalens/dermalens/internal/otp"
	"github.com/dermalens/dermalens/internal/predictor"
	"github.com/dermalens/dermalens/internal/services"
	"github.com/dermalens/dermalens/internal/storage"
	"github.com/dermalens/dermalens/pkg/response"
)

// FakeEmailSender records sent email without touching the network.
type FakeEmailSender struct {
	mu     sync.Mutex
	Err    error
	To     []string
	Bodies []string
}

func (f *FakeEmailSender) SendEmail(_ context.Context, to, _, textBody, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.To = append(f.To, to)
	f.Bodies = append(f.Bodies, textBody)
	return nil
}

// LastBody returns the most recently sent email body.
func (f *FakeEmailSender) LastBody() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Bodies) == 0 {
		return ""
	}
	return f.Bodies[len(f.Bodies)-1]
}

// FakeSMSSender records sent SMS without touching the network.
type FakeSMSSender struct {
	mu     sync.Mutex
	Err    error
	To     []string
	Bodies []string
}

func (f *FakeSMSSender) SendSMS(_ context.Context, to, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.To = append(f.To, to)
	f.Bodies = append(f.Bodies, body)
	return nil
}

// LastBody returns the most recently sent SMS body.
func (f *FakeSMSSender) LastBody() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Bodies) == 0 {
		return ""
	}
	return f.Bodies[len(f.Bodies)-1]
}

// Env encapsulates a fully-wired API instance backed by an in-memory
// database for handler tests.
type Env struct {
	T      *testing.T
	DB     *gorm.DB
	Router *gin.Engine
	JWT    *iauth.JWTService
	OTP    *otp.Service
	Store  *storage.Store
	Email  *FakeEmailSender
	SMS    *FakeSMSSender
}

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t)

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         "test-suite-super-secret-key-32-bytes!!",
		Issuer:         "test-suite",
		AccessTokenTTL: time.Hour,
	})
	require.NoError(t, err)

	store, err := storage.New(t.TempDir())
	require.NoError(t, err)

	email := &FakeEmailSender{}
	sms := &FakeSMSSender{}
	dispatcher := notify.NewDispatcher(email, sms, db)

	otpSvc := otp.NewService(otp.Config{})
	userSvc := services.NewUserService(db)
	predictionSvc := services.NewPredictionService(db)

	cfg := &app.Config{
		Monitoring: app.MonitoringConfig{
			Health:     app.HealthConfig{Enabled: true},
			Prometheus: app.PrometheusConfig{Enabled: false},
		},
	}

	router, err := api.NewRouter(api.Deps{
		Config:      cfg,
		JWT:         jwtSvc,
		Auth:        handlers.NewAuthHandler(userSvc, jwtSvc),
		Predict:     handlers.NewPredictHandler(store, predictor.NewStaticPredictor(), imaging.NewHeatmapGenerator(), predictionSvc, userSvc, dispatcher),
		History:     handlers.NewHistoryHandler(predictionSvc),
		OTP:         handlers.NewOTPHandler(userSvc, otpSvc, dispatcher, jwtSvc),
		Preferences: handlers.NewPreferencesHandler(userSvc),
		UploadDir:   store.Root(),
	})
	require.NoError(t, err)

	return &Env{
		T:      t,
		DB:     db,
		Router: router,
		JWT:    jwtSvc,
		OTP:    otpSvc,
		Store:  store,
		Email:  email,
		SMS:    sms,
	}
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes a JSON request against the test router.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

// Upload posts a multipart image to /api/predict.
func (e *Env) Upload(filename string, payload []byte, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(e.T, err)
	_, err = part.Write(payload)
	require.NoError(e.T, err)
	require.NoError(e.T, mw.Close())

	req, err := http.NewRequest(http.MethodPost, "/api/predict", &buf)
	require.NoError(e.T, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

// SignupResult captures the auth endpoint payload.
type SignupResult struct {
	Token string `json:"token"`
	User  struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Role  string `json:"role"`
	} `json:"user"`
}

// Signup registers a user through the API and returns the issued token.
func (e *Env) Signup(email, password string) SignupResult {
	e.T.Helper()

	w := e.Request(http.MethodPost, "/api/auth/signup", map[string]string{
		"email":    email,
		"password": password,
	}, "")
	require.Equal(e.T, http.StatusCreated, w.Code, w.Body.String())

	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var result SignupResult
	DecodeInto(e.T, resp.Data, &result)
	require.NotEmpty(e.T, result.Token)
	return result
}

// PNGImage renders a small solid-gray PNG payload.
func PNGImage(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 120, G: 120, B: 120, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
