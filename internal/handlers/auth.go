package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	iauth "github.com/dermalens/dermalens/internal/auth"
	"github.com/dermalens/dermalens/internal/models"
	"github.com/dermalens/dermalens/internal/services"
	"github.com/dermalens/dermalens/pkg/response"
)

// AuthHandler manages registration and login.
type AuthHandler struct {
	users *services.UserService
	jwt   *iauth.JWTService
}

func NewAuthHandler(users *services.UserService, jwt *iauth.JWTService) *AuthHandler {
	return &AuthHandler{users: users, jwt: jwt}
}

type signupRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8,max=72"`
	Name        string `json:"name" validate:"max=100"`
	PhoneNumber string `json:"phone_number" validate:"max=32"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func userPayload(user *models.User) gin.H {
	return gin.H{
		"id":                  user.ID,
		"email":               user.Email,
		"name":                user.Name,
		"role":                user.Role,
		"phone_number":        user.PhoneNumber,
		"email_notifications": user.EmailNotifications,
		"sms_notifications":   user.SMSNotifications,
	}
}

// POST /api/auth/signup
func (h *AuthHandler) Signup(c *gin.Context) {
	var req signupRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.Signup(requestContext(c), services.SignupInput{
		Email:       req.Email,
		Password:    req.Password,
		Name:        req.Name,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	token, err := h.jwt.GenerateAccessToken(iauth.AccessTokenInput{
		UserID: user.ID,
		Role:   user.Role,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"token": token,
		"user":  userPayload(user),
	})
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.Authenticate(requestContext(c), req.Email, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}

	token, err := h.jwt.GenerateAccessToken(iauth.AccessTokenInput{
		UserID: user.ID,
		Role:   user.Role,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"token": token,
		"user":  userPayload(user),
	})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, nil)
		return
	}

	user, err := h.users.GetUser(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"user": userPayload(user)})
}
