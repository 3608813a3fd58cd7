package api

import (
	"errors"
	"net/http"
	"strings"

	"backoffice-service/internal/service"
	"backoffice-service/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const adminKey = "admin"

// respondError maps the service error taxonomy onto status codes
func (h *Handler) respondError(c *gin.Context, err error) {
	var (
		vErr     *service.ValidationError
		stockErr *service.InsufficientStockError
	)

	switch {
	case errors.As(err, &vErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Validation failed",
			"details": vErr.Errors,
		})
	case errors.As(err, &stockErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Insufficient stock",
			"details": []string{stockErr.Error()},
			"product": gin.H{
				"id":        stockErr.ProductID,
				"name":      stockErr.Name,
				"available": stockErr.Available,
				"requested": stockErr.Requested,
			},
		})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrInvalidOTP):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrAdminNotVerified):
		c.JSON(http.StatusForbidden, gin.H{
			"error":   err.Error(),
			"details": []string{"confirm the registration code or request a new one"},
		})
	default:
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))

		body := gin.H{"error": "Internal server error"}
		if h.development {
			body["details"] = []string{err.Error()}
		}
		c.JSON(http.StatusInternalServerError, body)
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request body",
		"details": []string{err.Error()},
	})
}

func unauthorized(c *gin.Context, kind, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": message,
		"kind":  kind,
	})
}

// requireAdmin resolves the bearer token to an admin or aborts with 401
func (h *Handler) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if header == "" || !strings.HasPrefix(header, "Bearer ") || token == "" {
			unauthorized(c, "invalid", "Missing or malformed authorization header")
			return
		}

		admin, err := h.auth.Authenticate(c.Request.Context(), token)
		switch {
		case errors.Is(err, util.ErrTokenExpired):
			unauthorized(c, "expired", "Session expired")
			return
		case errors.Is(err, util.ErrTokenInvalid):
			unauthorized(c, "invalid", "Invalid session token")
			return
		case err != nil:
			h.respondError(c, err)
			c.Abort()
			return
		}

		c.Set(adminKey, admin)
		c.Next()
	}
}
