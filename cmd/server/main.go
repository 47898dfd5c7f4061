package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dermalens/dermalens/internal/api"
	"github.com/dermalens/dermalens/internal/app"
	"github.com/dermalens/dermalens/internal/app/maintenance"
	iauth "github.com/dermalens/dermalens/internal/auth"
	"github.com/dermalens/dermalens/internal/database"
	"github.com/dermalens/dermalens/internal/handlers"
	"github.com/dermalens/dermalens/internal/imaging"
	"github.com/dermalens/dermalens/internal/notify"
	"github.com/dermalens/dermalens/internal/otp"
	"github.com/dermalens/dermalens/internal/predictor"
	"github.com/dermalens/dermalens/internal/services"
	"github.com/dermalens/dermalens/internal/storage"
	"github.com/dermalens/dermalens/pkg/logger"
	"github.com/dermalens/dermalens/pkg/mail"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("dermalens-server", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to configuration directory or file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadApplicationConfig(configPath)
	if err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithModule("bootstrap")

	if err := ensureSecretsPresent(cfg); err != nil {
		return err
	}

	db, err := initialiseDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(db, log)

	jwtService, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return fmt.Errorf("initialise jwt service: %w", err)
	}

	store, err := storage.New(cfg.Storage.UploadDir)
	if err != nil {
		return fmt.Errorf("initialise upload storage: %w", err)
	}

	model, err := predictor.New(cfg.Model.PredictorConfig())
	if err != nil {
		return fmt.Errorf("initialise predictor: %w", err)
	}
	if cfg.Model.Path == "" {
		log.Warn("no model configured; predictions use the static fallback result")
	}

	dispatcher, err := buildDispatcher(cfg, db, log)
	if err != nil {
		return err
	}

	otpService := otp.NewService(cfg.Auth.OTPServiceConfig())
	userService := services.NewUserService(db)
	predictionService := services.NewPredictionService(db)

	cleaner := maintenance.NewCleaner(db, otpService, store)
	if err := cleaner.Start(); err != nil {
		return fmt.Errorf("start maintenance jobs: %w", err)
	}
	defer func() {
		stopCtx := cleaner.Stop()
		if err := cleaner.RunOnce(stopCtx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}()

	router, err := api.NewRouter(api.Deps{
		Config:      cfg,
		JWT:         jwtService,
		Auth:        handlers.NewAuthHandler(userService, jwtService),
		Predict:     handlers.NewPredictHandler(store, model, imaging.NewHeatmapGenerator(), predictionService, userService, dispatcher),
		History:     handlers.NewHistoryHandler(predictionService),
		OTP:         handlers.NewOTPHandler(userService, otpService, dispatcher, jwtService),
		Preferences: handlers.NewPreferencesHandler(userService),
		UploadDir:   store.Root(),
	})
	if err != nil {
		return fmt.Errorf("build api router: %w", err)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	if err, ok := <-serverErr; ok && err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}

func loadApplicationConfig(path string) (*app.Config, error) {
	switch {
	case strings.TrimSpace(path) == "":
		return app.LoadConfig()
	default:
		info, err := os.Stat(path)
		if err == nil {
			if info.IsDir() {
				return app.LoadConfig(path)
			}
			return app.LoadConfig(filepath.Dir(path))
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config path %q does not exist", path)
		}
		return nil, fmt.Errorf("stat config path: %w", err)
	}
}

func ensureSecretsPresent(cfg *app.Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Auth.JWT.Secret = strings.TrimSpace(cfg.Auth.JWT.Secret)
	if cfg.Auth.JWT.Secret == "" {
		return errors.New("auth.jwt.secret must be configured")
	}

	return nil
}

// buildDispatcher assembles the notification channels available from the
// configuration. Missing channels degrade features rather than fail boot.
func buildDispatcher(cfg *app.Config, db *gorm.DB, log *zap.Logger) (*notify.Dispatcher, error) {
	var emailSender notify.EmailSender

	var smtpSender notify.EmailSender
	if cfg.Email.SMTP.Enabled {
		mailer, err := mail.NewSMTPMailer(cfg.Email.SMTPSettings())
		if err != nil {
			return nil, fmt.Errorf("initialise smtp mailer: %w", err)
		}
		smtpSender = notify.NewSMTPSender(mailer)
	}

	var sendgridSender notify.EmailSender
	if cfg.Email.SendGrid.Enabled {
		sender, err := notify.NewSendGridSender(cfg.Email.SendGrid.APIKey, cfg.Email.SendGrid.FromName, cfg.Email.SendGrid.FromEmail)
		if err != nil {
			return nil, fmt.Errorf("initialise sendgrid sender: %w", err)
		}
		sendgridSender = sender
	}

	switch {
	case smtpSender != nil && sendgridSender != nil:
		emailSender = notify.NewFallbackEmailSender(smtpSender, sendgridSender)
	case smtpSender != nil:
		emailSender = smtpSender
	case sendgridSender != nil:
		emailSender = sendgridSender
	default:
		log.Warn("no email channel configured; email notifications disabled")
	}

	var smsSender notify.SMSSender
	if cfg.SMS.Twilio.Enabled {
		sender, err := notify.NewTwilioSender(cfg.SMS.TwilioSettings())
		if err != nil {
			return nil, fmt.Errorf("initialise twilio sender: %w", err)
		}
		smsSender = sender
	} else {
		log.Info("twilio disabled; sms notifications unavailable")
	}

	return notify.NewDispatcher(emailSender, smsSender, db), nil
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	db, err := database.Open(cfg.Database.DatabaseConfigFor())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(cfg.Database.Driver))))

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("access underlying database handle", zap.Error(err))
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn("close database", zap.Error(err))
	}
}
