// Package api assembles the HTTP surface: middleware, routes, and the
// static file area for stored images.
package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dermalens/dermalens/internal/app"
	iauth "github.com/dermalens/dermalens/internal/auth"
	"github.com/dermalens/dermalens/internal/handlers"
	"github.com/dermalens/dermalens/internal/middleware"
)

// Deps bundles everything the router needs.
type Deps struct {
	Config      *app.Config
	JWT         *iauth.JWTService
	Auth        *handlers.AuthHandler
	Predict     *handlers.PredictHandler
	History     *handlers.HistoryHandler
	OTP         *handlers.OTPHandler
	Preferences *handlers.PreferencesHandler
	UploadDir   string
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(deps Deps) (*gin.Engine, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if deps.JWT == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if deps.Auth == nil || deps.Predict == nil || deps.History == nil || deps.OTP == nil || deps.Preferences == nil {
		return nil, fmt.Errorf("all handlers must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(deps.Config.Server.AllowedOrigins))

	r.NoRoute(middleware.NotFoundHandler)

	if deps.Config.Monitoring.Health.Enabled {
		r.GET("/health", handlers.Health())
	}
	if deps.Config.Monitoring.Prometheus.Enabled {
		endpoint := deps.Config.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	// Stored uploads and heatmaps
	if deps.UploadDir != "" {
		r.Static("/static", deps.UploadDir)
	}

	requireAuth := middleware.Auth(deps.JWT)
	optionalAuth := middleware.OptionalAuth(deps.JWT)

	// Public auth routes
	auth := r.Group("/api/auth")
	{
		auth.POST("/signup", deps.Auth.Signup)
		auth.POST("/login", deps.Auth.Login)
	}
	r.GET("/api/auth/me", requireAuth, deps.Auth.Me)

	// Analysis works for anonymous and authenticated uploads alike.
	r.POST("/api/predict", optionalAuth, deps.Predict.Predict)

	// Step-up verification
	otpRoutes := r.Group("/api/otp", requireAuth)
	{
		otpRoutes.POST("/request", deps.OTP.Request)
		otpRoutes.POST("/verify", deps.OTP.Verify)
	}

	// History requires an OTP-verified session token.
	history := r.Group("/api/history", requireAuth)
	{
		history.GET("", middleware.RequireOTPVerified(), deps.History.List)
		history.DELETE("/:id", middleware.RequireOTPVerified(), deps.History.Delete)
	}

	// Notification preferences
	prefs := r.Group("/api/preferences", requireAuth)
	{
		prefs.GET("", deps.Preferences.Get)
		prefs.PUT("", deps.Preferences.Update)
	}

	return r, nil
}
