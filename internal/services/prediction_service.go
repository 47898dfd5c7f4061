package services

import (
	"context"
	"encoding/json"
	"errors"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/dermalens/dermalens/internal/models"
	apperrors "github.com/dermalens/dermalens/pkg/errors"
)

// PredictionService persists and queries classification records.
type PredictionService struct {
	db *gorm.DB
}

// NewPredictionService constructs a PredictionService over the given
// database handle.
func NewPredictionService(db *gorm.DB) *PredictionService {
	return &PredictionService{db: db}
}

// CreatePredictionInput carries everything needed to persist one result.
type CreatePredictionInput struct {
	ImageURL       string
	PredictedClass string
	Confidence     float64
	HeatmapURL     string
	Probabilities  map[string]float64
	UserID         *string
}

// Create validates and stores a new prediction record.
func (s *PredictionService) Create(ctx context.Context, input CreatePredictionInput) (*models.Prediction, error) {
	if input.ImageURL == "" {
		return nil, apperrors.NewBadRequest("Image URL is required")
	}
	if input.PredictedClass == "" {
		return nil, apperrors.NewBadRequest("Predicted class is required")
	}
	if input.Confidence < 0 || input.Confidence > 1 {
		return nil, apperrors.NewBadRequest("Confidence must be between 0 and 1")
	}

	pred := &models.Prediction{
		ImageURL:       input.ImageURL,
		PredictedClass: input.PredictedClass,
		Confidence:     input.Confidence,
		HeatmapURL:     input.HeatmapURL,
		UserID:         input.UserID,
	}

	if len(input.Probabilities) > 0 {
		raw, err := json.Marshal(input.Probabilities)
		if err != nil {
			return nil, apperrors.Wrap(err, "Failed to encode probabilities")
		}
		pred.Probabilities = datatypes.JSON(raw)
	}

	if err := s.db.WithContext(ctx).Create(pred).Error; err != nil {
		return nil, apperrors.Wrap(err, "Failed to store prediction")
	}
	return pred, nil
}

// ListForUser returns the user's records, newest first.
func (s *PredictionService) ListForUser(ctx context.Context, userID string) ([]models.Prediction, error) {
	var records []models.Prediction
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to list predictions")
	}
	return records, nil
}

// ListAll returns every stored record, newest first. Intended for admin
// listings.
func (s *PredictionService) ListAll(ctx context.Context) ([]models.Prediction, error) {
	var records []models.Prediction
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to list predictions")
	}
	return records, nil
}

// Get fetches one record by id.
func (s *PredictionService) Get(ctx context.Context, id string) (*models.Prediction, error) {
	var pred models.Prediction
	err := s.db.WithContext(ctx).First(&pred, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.Wrap(err, "Failed to look up prediction")
	}
	return &pred, nil
}

// Delete removes a record. Non-admin callers may only delete their own
// records; records they cannot see report not found rather than forbidden.
func (s *PredictionService) Delete(ctx context.Context, id, callerID string, callerIsAdmin bool) error {
	pred, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if !callerIsAdmin {
		if pred.UserID == nil || *pred.UserID != callerID {
			return apperrors.ErrNotFound
		}
	}

	if err := s.db.WithContext(ctx).Delete(&models.Prediction{}, "id = ?", id).Error; err != nil {
		return apperrors.Wrap(err, "Failed to delete prediction")
	}
	return nil
}
