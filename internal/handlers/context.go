package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/dermalens/dermalens/internal/middleware"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// currentUserID returns the authenticated user's id, if any.
func currentUserID(c *gin.Context) (string, bool) {
	id := c.GetString(middleware.CtxUserIDKey)
	return id, id != ""
}

// currentRole returns the authenticated user's role claim.
func currentRole(c *gin.Context) string {
	return c.GetString(middleware.CtxRoleKey)
}

// isAdmin reports whether the request carries the admin role.
func isAdmin(c *gin.Context) bool {
	return currentRole(c) == "admin"
}
