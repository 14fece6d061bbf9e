package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tradesim/internal/engine"
)

// Error codes carried in the error envelope.
const (
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeNotFound       = "NOT_FOUND"
	CodeNotReady       = "NOT_READY"
	CodeInternal       = "INTERNAL_ERROR"
)

// ErrorResponse is the envelope of every non-2xx JSON response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one failure.
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func abortWithError(c *gin.Context, status int, code, message string, details map[string]any) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: ErrorDetail{Code: code, Message: message, Details: details},
	})
}

// writeEngineError maps the engine's error taxonomy onto HTTP.
func writeEngineError(c *gin.Context, err error) {
	var invalid *engine.InvalidConfigError
	switch {
	case errors.As(err, &invalid):
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, err.Error(),
			map[string]any{"problems": invalid.Problems})
	case errors.Is(err, engine.ErrNotFound):
		abortWithError(c, http.StatusNotFound, CodeNotFound, err.Error(), nil)
	case errors.Is(err, engine.ErrNotReady):
		abortWithError(c, http.StatusConflict, CodeNotReady, err.Error(), nil)
	default:
		abortWithError(c, http.StatusInternalServerError, CodeInternal, err.Error(), nil)
	}
}

// recovery converts a panic in a handler into an INTERNAL_ERROR envelope.
func recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		msg := "an unexpected error occurred"
		if s, ok := recovered.(string); ok {
			msg = s
		}
		abortWithError(c, http.StatusInternalServerError, CodeInternal, msg, nil)
	})
}
