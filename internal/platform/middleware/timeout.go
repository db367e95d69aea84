package middleware

import (
	"net/http"
	"time"

	"github.com/gin-contrib/timeout"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/richxcame/ride-hailing/internal/platform/logger"
)

// RequestTimeout bounds how long a single request may run before the
// client gets a 504. Ride-assignment and completion transactions hold
// database row locks; an unbounded request can wedge a connection pool
// slot indefinitely.
func RequestTimeout(d time.Duration) gin.HandlerFunc {
	return timeout.New(
		timeout.WithTimeout(d),
		timeout.WithResponse(func(c *gin.Context) {
			logger.WarnContext(c.Request.Context(), "request timeout",
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
				zap.Duration("timeout", d),
			)
			c.JSON(http.StatusGatewayTimeout, gin.H{
				"error": gin.H{"code": "UNAVAILABLE", "message": "request took too long to process"},
			})
		}),
	)
}
