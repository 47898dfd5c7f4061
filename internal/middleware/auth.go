package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/dermalens/dermalens/internal/auth"
	"github.com/dermalens/dermalens/pkg/errors"
	"github.com/dermalens/dermalens/pkg/response"
)

const (
	CtxClaimsKey      = "authClaims"
	CtxUserIDKey      = "userID"
	CtxRoleKey        = "userRole"
	CtxOTPVerifiedKey = "otpVerified"
)

// Auth enforces JWT authentication using the supplied JWT service.
func Auth(jwt *iauth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		claims, err := jwt.ValidateAccessToken(token)
		if err != nil {
			// Normalise all validation failures to 401
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		setIdentity(c, claims)
		c.Next()
	}
}

// OptionalAuth attaches identity when a valid bearer token is present but
// lets anonymous requests through. An invalid token is still rejected so a
// client cannot silently lose its association.
func OptionalAuth(jwt *iauth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.Next()
			return
		}

		claims, err := jwt.ValidateAccessToken(token)
		if err != nil {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		setIdentity(c, claims)
		c.Next()
	}
}

// RequireOTPVerified gates routes behind an OTP-verified step-up token.
func RequireOTPVerified() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(CtxOTPVerifiedKey) {
			response.Error(c, errors.ErrOTPRequired)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireAdmin rejects requests whose token does not carry the admin role.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(CtxRoleKey) != "admin" {
			response.Error(c, errors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	authz := c.GetHeader("Authorization")
	if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
		return "", false
	}
	return strings.TrimSpace(authz[7:]), true
}

func setIdentity(c *gin.Context, claims *iauth.Claims) {
	c.Set(CtxClaimsKey, claims)
	c.Set(CtxUserIDKey, claims.UserID)
	c.Set(CtxRoleKey, claims.Role)
	c.Set(CtxOTPVerifiedKey, claims.OTPVerified)
}
