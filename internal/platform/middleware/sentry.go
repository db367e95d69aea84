package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
)

// SentryConfig configures the global Sentry SDK. InitSentry is a
// no-op when DSN is empty, so services can always call it.
type SentryConfig struct {
	DSN              string
	Environment      string
	Release          string
	SampleRate       float64
	TracesSampleRate float64
}

// InitSentry starts the global Sentry client. BeforeSend drops info-
// and debug-level events and passes every other event through; it
// does not look at HTTP status codes.
func InitSentry(cfg SentryConfig) error {
	if cfg.DSN == "" {
		return nil
	}
	return sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		SampleRate:       orDefault(cfg.SampleRate, 1.0),
		TracesSampleRate: cfg.TracesSampleRate,
		AttachStacktrace: true,
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			if event.Level == sentry.LevelInfo || event.Level == sentry.LevelDebug {
				return nil
			}
			return event
		},
	})
}

func orDefault(v, fallback float64) float64 {
	if v <= 0 {
		return fallback
	}
	return v
}

// Sentry attaches a per-request Sentry hub to the gin context so
// downstream panics and errors are scoped to the request that caused
// them.
func Sentry() gin.HandlerFunc {
	return sentrygin.New(sentrygin.Options{
		Repanic:         true,
		WaitForDelivery: false,
		Timeout:         2 * time.Second,
	})
}

// RecoverWithSentry replaces gin.Recovery: it reports the panic to
// Sentry with request context attached, then answers with a plain 500
// instead of letting the connection die.
func RecoverWithSentry() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				hub := sentrygin.GetHubFromContext(c)
				if hub == nil {
					hub = sentry.CurrentHub().Clone()
				}
				hub.Scope().SetRequest(c.Request)
				hub.Scope().SetContext("panic", map[string]interface{}{
					"value":      fmt.Sprintf("%v", r),
					"stacktrace": string(debug.Stack()),
				})
				if userID, ok := UserID(c); ok {
					hub.Scope().SetUser(sentry.User{ID: userID.String()})
				}
				hub.RecoverWithContext(c.Request.Context(), r)
				hub.Flush(2 * time.Second)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": gin.H{"code": "INTERNAL", "message": "an unexpected error occurred"},
				})
			}
		}()
		c.Next()
	}
}

// ReportErrors forwards gin.Context errors and 5xx responses to Sentry
// once the handler chain has run.
func ReportErrors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		hub := sentrygin.GetHubFromContext(c)
		if hub == nil {
			hub = sentry.CurrentHub().Clone()
		}

		for _, ginErr := range c.Errors {
			hub.Scope().SetTag("http.status_code", fmt.Sprintf("%d", status))
			hub.Scope().SetTag("http.route", c.FullPath())
			hub.CaptureException(ginErr.Err)
		}
		if status >= http.StatusInternalServerError && len(c.Errors) == 0 {
			hub.CaptureMessage(fmt.Sprintf("HTTP %d: %s %s", status, c.Request.Method, c.Request.URL.Path))
		}
	}
}
