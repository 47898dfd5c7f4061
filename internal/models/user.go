package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Roles assignable to a user. The first registered account becomes admin.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User describes a registered account together with its notification
// preferences. Accounts are never hard-deleted.
type User struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Password string `gorm:"not null" json:"-"`
	Role     string `gorm:"type:varchar(16);not null;default:'user'" json:"role"`

	PhoneNumber        string `json:"phone_number"`
	EmailNotifications bool   `gorm:"default:true" json:"email_notifications"`
	SMSNotifications   bool   `gorm:"default:false" json:"sms_notifications"`
	Name               string `json:"name"`

	Predictions []Prediction `gorm:"foreignKey:UserID" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// IsAdmin reports whether the user carries the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
