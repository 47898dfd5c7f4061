// Package services implements the application's business operations on top
// of the persistence layer.
package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/dermalens/dermalens/internal/models"
	"github.com/dermalens/dermalens/pkg/crypto"
	apperrors "github.com/dermalens/dermalens/pkg/errors"
	"github.com/dermalens/dermalens/pkg/metrics"
)

// UserService manages account lifecycle and notification preferences.
type UserService struct {
	db *gorm.DB
}

// NewUserService constructs a UserService over the given database handle.
func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db}
}

// SignupInput carries the fields accepted at registration.
type SignupInput struct {
	Email       string
	Password    string
	Name        string
	PhoneNumber string
}

// PreferencesInput updates notification settings. Nil fields are left
// unchanged.
type PreferencesInput struct {
	EmailNotifications *bool
	SMSNotifications   *bool
	PhoneNumber        *string
	Name               *string
}

// Signup registers a new account. The first account ever created receives
// the admin role. A duplicate email is rejected with a client error.
func (s *UserService) Signup(ctx context.Context, input SignupInput) (*models.User, error) {
	email := normalizeEmail(input.Email)
	if email == "" {
		return nil, apperrors.NewBadRequest("Email is required")
	}
	if input.Password == "" {
		return nil, apperrors.NewBadRequest("Password is required")
	}

	hash, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to hash password")
	}

	user := &models.User{
		Email:              email,
		Password:           hash,
		Name:               strings.TrimSpace(input.Name),
		PhoneNumber:        strings.TrimSpace(input.PhoneNumber),
		EmailNotifications: true,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.User
		if err := tx.Where("email = ?", email).First(&existing).Error; err == nil {
			return apperrors.ErrEmailRegistered
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var count int64
		if err := tx.Model(&models.User{}).Count(&count).Error; err != nil {
			return err
		}
		user.Role = models.RoleUser
		if count == 0 {
			user.Role = models.RoleAdmin
		}

		return tx.Create(user).Error
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperrors.Wrap(err, "Failed to create account")
	}

	return user, nil
}

// Authenticate verifies credentials and returns the matching account. Both
// an unknown email and a wrong password yield the same error.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&user).Error
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, apperrors.Wrap(err, "Failed to look up account")
	}

	if !crypto.VerifyPassword(user.Password, password) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	return &user, nil
}

// GetUser fetches an account by id.
func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.Wrap(err, "Failed to look up account")
	}
	return &user, nil
}

// GetUserByEmail fetches an account by its normalized email address.
func (s *UserService) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.Wrap(err, "Failed to look up account")
	}
	return &user, nil
}

// UpdatePreferences applies a partial update to notification settings and
// returns the refreshed account.
func (s *UserService) UpdatePreferences(ctx context.Context, userID string, input PreferencesInput) (*models.User, error) {
	updates := map[string]any{}
	if input.EmailNotifications != nil {
		updates["email_notifications"] = *input.EmailNotifications
	}
	if input.SMSNotifications != nil {
		updates["sms_notifications"] = *input.SMSNotifications
	}
	if input.PhoneNumber != nil {
		updates["phone_number"] = strings.TrimSpace(*input.PhoneNumber)
	}
	if input.Name != nil {
		updates["name"] = strings.TrimSpace(*input.Name)
	}

	if len(updates) > 0 {
		result := s.db.WithContext(ctx).Model(&models.User{}).
			Where("id = ?", userID).
			Updates(updates)
		if result.Error != nil {
			return nil, apperrors.Wrap(result.Error, "Failed to update preferences")
		}
		if result.RowsAffected == 0 {
			return nil, apperrors.ErrNotFound
		}
	}

	return s.GetUser(ctx, userID)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
