package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dermalens/dermalens/internal/services"
	"github.com/dermalens/dermalens/pkg/errors"
	"github.com/dermalens/dermalens/pkg/response"
)

// PreferencesHandler manages per-user notification settings.
type PreferencesHandler struct {
	users *services.UserService
}

func NewPreferencesHandler(users *services.UserService) *PreferencesHandler {
	return &PreferencesHandler{users: users}
}

type preferencesRequest struct {
	EmailNotifications *bool   `json:"email_notifications"`
	SMSNotifications   *bool   `json:"sms_notifications"`
	PhoneNumber        *string `json:"phone_number" validate:"omitempty,max=32"`
	Name               *string `json:"name" validate:"omitempty,max=100"`
}

// GET /api/preferences
func (h *PreferencesHandler) Get(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	user, err := h.users.GetUser(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"email_notifications": user.EmailNotifications,
		"sms_notifications":   user.SMSNotifications,
		"phone_number":        user.PhoneNumber,
		"name":                user.Name,
	})
}

// PUT /api/preferences
// Absent fields keep their current values.
func (h *PreferencesHandler) Update(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req preferencesRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.UpdatePreferences(requestContext(c), userID, services.PreferencesInput{
		EmailNotifications: req.EmailNotifications,
		SMSNotifications:   req.SMSNotifications,
		PhoneNumber:        req.PhoneNumber,
		Name:               req.Name,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"email_notifications": user.EmailNotifications,
		"sms_notifications":   user.SMSNotifications,
		"phone_number":        user.PhoneNumber,
		"name":                user.Name,
	})
}
