package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/richxcame/ride-hailing/internal/platform/logger"
)

// CorrelationIDHeader carries a request's trace id across service
// boundaries and into the logs.
const CorrelationIDHeader = "X-Request-ID"

const correlationIDKey = "correlation_id"

// CorrelationID generates or extracts a correlation id and attaches it
// to both the gin context and the request context that
// logger.WithContext and the *Context logging helpers read from.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(CorrelationIDHeader))
		if id != "" {
			if _, err := uuid.Parse(id); err != nil {
				id = ""
			}
		}
		if id == "" {
			id = uuid.New().String()
		}

		c.Set(correlationIDKey, id)
		c.Request = c.Request.WithContext(logger.ContextWithCorrelationID(c.Request.Context(), id))
		c.Writer.Header().Set(CorrelationIDHeader, id)
		c.Next()
	}
}

// GetCorrelationID reads the correlation id a handler can attach to its
// own log lines or error responses.
func GetCorrelationID(c *gin.Context) string {
	if v, ok := c.Get(correlationIDKey); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return logger.CorrelationIDFromContext(c.Request.Context())
}
