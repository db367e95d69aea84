package middleware

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS builds a CORS handler from a comma-separated origin list. An
// empty originsCSV falls back to localhost for local development.
func CORS(originsCSV string) gin.HandlerFunc {
	if originsCSV == "" {
		originsCSV = "http://localhost:3000"
	}
	origins := strings.Split(originsCSV, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}

	cfg := cors.DefaultConfig()
	cfg.AllowOrigins = origins
	cfg.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	cfg.AllowCredentials = true
	return cors.New(cfg)
}
