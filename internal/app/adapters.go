package app

import (
	"github.com/dermalens/dermalens/internal/auth"
	"github.com/dermalens/dermalens/internal/database"
	"github.com/dermalens/dermalens/internal/notify"
	"github.com/dermalens/dermalens/internal/otp"
	"github.com/dermalens/dermalens/internal/predictor"
	"github.com/dermalens/dermalens/pkg/mail"
)

// JWTServiceConfig converts the auth section into the JWT service config.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	return auth.JWTConfig{
		Secret:         c.JWT.Secret,
		Issuer:         c.JWT.Issuer,
		AccessTokenTTL: c.JWT.TTL,
		StepUpTokenTTL: c.JWT.StepUpTTL,
	}
}

// OTPServiceConfig converts the auth section into the OTP service config.
func (c AuthConfig) OTPServiceConfig() otp.Config {
	return otp.Config{
		TTL:         c.OTP.TTL,
		MaxAttempts: c.OTP.MaxAttempts,
	}
}

// SMTPSettings converts the email section into mailer settings.
func (c EmailConfig) SMTPSettings() mail.SMTPSettings {
	return mail.SMTPSettings{
		Enabled:  c.SMTP.Enabled,
		Host:     c.SMTP.Host,
		Port:     c.SMTP.Port,
		Username: c.SMTP.Username,
		Password: c.SMTP.Password,
		From:     c.SMTP.From,
		UseTLS:   c.SMTP.UseTLS,
		Timeout:  c.SMTP.Timeout,
	}
}

// TwilioSettings converts the sms section into the Twilio sender config.
func (c SMSConfig) TwilioSettings() notify.TwilioConfig {
	return notify.TwilioConfig{
		AccountSID: c.Twilio.AccountSID,
		AuthToken:  c.Twilio.AuthToken,
		FromNumber: c.Twilio.FromNumber,
	}
}

// PredictorConfig converts the model section into the predictor config.
func (c ModelConfig) PredictorConfig() predictor.Config {
	return predictor.Config{
		ModelPath: c.Path,
		LabelPath: c.LabelPath,
		Threads:   c.Threads,
	}
}

// DatabaseConfigFor converts the database section into connection options
// for the selected driver.
func (c DatabaseConfig) DatabaseConfigFor() database.Config {
	cfg := database.Config{
		Driver: c.Driver,
		Path:   c.Path,
		DSN:    c.DSN,
	}

	switch c.Driver {
	case "postgres", "postgresql":
		cfg.Host = c.Postgres.Host
		cfg.Port = c.Postgres.Port
		cfg.Name = c.Postgres.Database
		cfg.User = c.Postgres.Username
		cfg.Password = c.Postgres.Password
	case "mysql":
		cfg.Host = c.MySQL.Host
		cfg.Port = c.MySQL.Port
		cfg.Name = c.MySQL.Database
		cfg.User = c.MySQL.Username
		cfg.Password = c.MySQL.Password
	}

	return cfg
}
