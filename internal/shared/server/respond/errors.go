package respond

import (
	"github.com/gin-gonic/gin"

	"prreview-backend/internal/shared/telemetry"
)

// ErrorResponse defines the standardized error object. Error carries a
// machine-readable code, Message the human-readable explanation.
type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// Error sends a standardized error response.
func Error(c *gin.Context, status int, code, message string, details interface{}) {
	telemetry.Error("http.error", map[string]any{
		"status":     status,
		"code":       code,
		"message":    message,
		"path":       c.Request.URL.Path,
		"method":     c.Request.Method,
		"request_id": c.GetString("requestId"),
	})

	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:   code,
		Message: message,
		Details: details,
	})
}
