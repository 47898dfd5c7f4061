package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dermalens/dermalens/internal/services"
	"github.com/dermalens/dermalens/pkg/errors"
	"github.com/dermalens/dermalens/pkg/response"
)

// HistoryHandler serves the OTP-gated prediction history.
type HistoryHandler struct {
	predictions *services.PredictionService
}

func NewHistoryHandler(predictions *services.PredictionService) *HistoryHandler {
	return &HistoryHandler{predictions: predictions}
}

// GET /api/history
// Admins may pass ?all=true to list every record.
func (h *HistoryHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	if c.Query("all") == "true" {
		if !isAdmin(c) {
			response.Error(c, errors.ErrForbidden)
			return
		}
		records, err := h.predictions.ListAll(requestContext(c))
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Success(c, http.StatusOK, gin.H{"records": records, "count": len(records)})
		return
	}

	records, err := h.predictions.ListForUser(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"records": records, "count": len(records)})
}

// DELETE /api/history/:id
func (h *HistoryHandler) Delete(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	id := c.Param("id")
	if id == "" {
		response.Error(c, errors.NewBadRequest("record id is required"))
		return
	}

	if err := h.predictions.Delete(requestContext(c), id, userID, isAdmin(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": id})
}
