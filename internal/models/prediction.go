package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Prediction is one stored classification result. Rows are immutable after
// creation except for the delivery-status flags maintained by the background
// notification dispatcher; CreatedAt is assigned once by the server and
// orders history listings.
type Prediction struct {
	ID             string         `gorm:"primaryKey;type:uuid" json:"id"`
	ImageURL       string         `gorm:"not null" json:"image_url"`
	PredictedClass string         `gorm:"not null" json:"predicted_class"`
	Confidence     float64        `gorm:"not null" json:"confidence"`
	HeatmapURL     string         `json:"heatmap_url,omitempty"`
	Probabilities  datatypes.JSON `json:"probabilities,omitempty"`

	UserID *string `gorm:"type:uuid;index" json:"user_id,omitempty"`

	EmailSent bool `gorm:"default:false" json:"email_sent"`
	SMSSent   bool `gorm:"default:false" json:"sms_sent"`

	CreatedAt time.Time `gorm:"index" json:"timestamp"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (p *Prediction) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
