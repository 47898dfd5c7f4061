package handlers

import (
	"image"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dermalens/dermalens/internal/imaging"
	"github.com/dermalens/dermalens/internal/models"
	"github.com/dermalens/dermalens/internal/notify"
	"github.com/dermalens/dermalens/internal/predictor"
	"github.com/dermalens/dermalens/internal/services"
	"github.com/dermalens/dermalens/internal/storage"
	"github.com/dermalens/dermalens/pkg/errors"
	"github.com/dermalens/dermalens/pkg/logger"
	"github.com/dermalens/dermalens/pkg/metrics"
	"github.com/dermalens/dermalens/pkg/response"
)

// maxUploadBytes caps the size of an uploaded image.
const maxUploadBytes = 10 << 20

// PredictHandler runs the full analysis pipeline: store the upload, score
// it, render the heatmap, persist the record, and notify the owner.
type PredictHandler struct {
	store       *storage.Store
	model       predictor.Predictor
	heatmaps    *imaging.HeatmapGenerator
	predictions *services.PredictionService
	users       *services.UserService
	dispatcher  *notify.Dispatcher
	log         *zap.Logger
}

func NewPredictHandler(
	store *storage.Store,
	model predictor.Predictor,
	heatmaps *imaging.HeatmapGenerator,
	predictions *services.PredictionService,
	users *services.UserService,
	dispatcher *notify.Dispatcher,
) *PredictHandler {
	return &PredictHandler{
		store:       store,
		model:       model,
		heatmaps:    heatmaps,
		predictions: predictions,
		users:       users,
		dispatcher:  dispatcher,
		log:         logger.WithModule("predict"),
	}
}

// POST /api/predict
func (h *PredictHandler) Predict(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, errors.NewBadRequest("image file is required"))
		return
	}
	if fileHeader.Size > maxUploadBytes {
		response.Error(c, errors.NewBadRequest("image exceeds the maximum upload size"))
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		response.Error(c, errors.Wrap(err, "Failed to read upload"))
		return
	}
	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	_ = f.Close()
	if err != nil {
		response.Error(c, errors.Wrap(err, "Failed to read upload"))
		return
	}

	img, err := imaging.Decode(data)
	if err != nil {
		response.Error(c, errors.NewBadRequest("uploaded file is not a valid image"))
		return
	}

	name, err := h.store.SaveUpload(data, fileHeader.Filename)
	if err != nil {
		response.Error(c, err)
		return
	}

	tensor := imaging.Preprocess(img)
	result, source := h.score(tensor)

	heatmapURL := h.renderHeatmap(tensor, result, img, name)

	var userID *string
	var owner *models.User
	if id, ok := currentUserID(c); ok {
		userID = &id
		if u, err := h.users.GetUser(requestContext(c), id); err == nil {
			owner = u
		}
	}

	probs := make(map[string]float64, len(result.Scores))
	for _, s := range result.Scores {
		probs[s.Label] = s.Probability
	}

	record, err := h.predictions.Create(requestContext(c), services.CreatePredictionInput{
		ImageURL:       storage.URL(name),
		PredictedClass: result.Class,
		Confidence:     result.Confidence,
		HeatmapURL:     heatmapURL,
		Probabilities:  probs,
		UserID:         userID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	metrics.Predictions.WithLabelValues(result.Class, source).Inc()

	if owner != nil {
		h.dispatcher.DispatchPredictionAsync(owner, record)
	}

	urgency := notify.UrgencyFor(result.Confidence)
	response.Success(c, http.StatusOK, gin.H{
		"id":              record.ID,
		"predicted_class": record.PredictedClass,
		"confidence":      record.Confidence,
		"urgency":         urgency,
		"advice":          urgency.Advice(),
		"image_url":       record.ImageURL,
		"heatmap_url":     record.HeatmapURL,
		"probabilities":   probs,
		"timestamp":       record.CreatedAt,
	})
}

// score runs inference, falling back to the static high-risk result when
// the model errors so an upload never fails over inference problems.
func (h *PredictHandler) score(tensor *imaging.Tensor) (*predictor.Result, string) {
	result, err := h.model.Predict(tensor)
	if err == nil {
		return result, "model"
	}

	h.log.Warn("inference failed, using fallback result", zap.Error(err))
	result, _ = predictor.NewStaticPredictor().Predict(tensor)
	return result, "fallback"
}

// renderHeatmap writes the overlay next to the upload. Failures only cost
// the heatmap URL, never the request.
func (h *PredictHandler) renderHeatmap(tensor *imaging.Tensor, result *predictor.Result, img image.Image, name string) string {
	classIndex := 0
	for i, label := range h.model.Labels() {
		if label == result.Class {
			classIndex = i
			break
		}
	}

	out, err := h.heatmaps.Generate(h.model, tensor, classIndex, img, h.store.Path(name))
	if err != nil {
		h.log.Warn("heatmap generation failed", zap.String("file", name), zap.Error(err))
		return ""
	}
	return storage.URL(out)
}
