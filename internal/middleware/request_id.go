package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/victoralfred/riskengine/internal/logging"
)

const maxRequestIDLength = 128

// RequestID propagates the caller's X-Request-ID or assigns a fresh one, and
// stores it on the request context for logging
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(logging.RequestIDHeader)
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.NewString()
		}
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), id))
		c.Set("request_id", id)
		c.Header(logging.RequestIDHeader, id)
		c.Next()
	}
}
