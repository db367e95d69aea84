// Package resilience provides the retry-with-backoff and circuit
// breaker primitives used to guard persistent-store and
// shared-key-value-store calls in the dispatch core.
package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/richxcame/ride-hailing/internal/platform/logger"
)

// Operation is a call wrapped by Retry/CircuitBreaker.
type Operation func(ctx context.Context) (interface{}, error)

// RetryConfig controls exponential backoff retry behavior.
type RetryConfig struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	EnableJitter      bool
	RetryableChecker  func(error) bool
}

// DefaultRetryConfig is a sensible default for non-critical operations.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
		EnableJitter:      true,
	}
}

// RetryWithName runs operation with exponential backoff, recording
// success/failure metrics under operationName.
func RetryWithName(ctx context.Context, config RetryConfig, operation Operation, operationName string) (interface{}, error) {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}

	start := time.Now()
	var lastErr error

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			recordOutcome(operationName, time.Since(start), attempt, false)
			return nil, ctx.Err()
		default:
		}

		result, err := operation(ctx)
		if err == nil {
			recordOutcome(operationName, time.Since(start), attempt, true)
			if attempt > 1 {
				logger.Get().Info("operation succeeded after retry",
					zap.Int("attempt", attempt),
					zap.String("operation", operationName),
				)
			}
			return result, nil
		}

		lastErr = err
		if config.RetryableChecker != nil && !config.RetryableChecker(err) {
			recordOutcome(operationName, time.Since(start), attempt, false)
			return nil, err
		}

		if attempt == config.MaxAttempts {
			break
		}

		backoff := backoffFor(config, attempt)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	recordOutcome(operationName, time.Since(start), config.MaxAttempts, false)
	return nil, lastErr
}

func backoffFor(config RetryConfig, attempt int) time.Duration {
	multiplier := config.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	backoff := float64(config.InitialBackoff) * math.Pow(multiplier, float64(attempt-1))
	if config.MaxBackoff > 0 && backoff > float64(config.MaxBackoff) {
		backoff = float64(config.MaxBackoff)
	}
	if config.EnableJitter {
		backoff = backoff * (0.5 + rand.Float64()*0.5)
	}
	return time.Duration(backoff)
}
