package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/loykin/taskbridge/internal/common"
)

// Config holds configuration for store operation retries
type Config struct {
	MaxRetries      int           // Maximum number of retry attempts
	InitialDelay    time.Duration // Initial delay before first retry
	MaxDelay        time.Duration // Maximum delay between retries
	BackoffFactor   float64       // Multiplier for exponential backoff
	RetryableErrors []string      // Error substrings that trigger retries
}

// DefaultRetryConfig returns the retry policy used by the key-value store.
// Busy/locked errors are the common case: a second process holding the
// sqlite writer lock, or a postgres lock wait.
func DefaultRetryConfig() *Config {
	return &Config{
		MaxRetries:    3,
		InitialDelay:  50 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		BackoffFactor: 2.0,
		RetryableErrors: []string{
			"database is locked",
			"database table is locked",
			"sqlite_busy",
			"connection refused",
			"connection reset",
			"deadlock",
			"lock wait timeout",
			"broken pipe",
		},
	}
}

// NoRetry returns a config that runs an operation exactly once.
func NoRetry() *Config {
	return &Config{MaxRetries: 0}
}

func (rc *Config) isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	errStr := strings.ToLower(err.Error())
	for _, retryableErr := range rc.RetryableErrors {
		if strings.Contains(errStr, retryableErr) {
			return true
		}
	}
	return false
}

func (rc *Config) calculateDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return rc.InitialDelay
	}
	factor := rc.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	delay := time.Duration(float64(rc.InitialDelay) * math.Pow(factor, float64(attempt-1)))
	if rc.MaxDelay > 0 && delay > rc.MaxDelay {
		delay = rc.MaxDelay
	}
	return delay
}

// Operation is a store operation that can be retried
type Operation func() error

// WithRetry runs op, retrying transient failures with exponential backoff.
// Non-retryable errors are returned unwrapped.
func WithRetry(ctx context.Context, config *Config, op Operation) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	logger := common.GetLogger().WithComponent("kv-retry")

	var lastErr error
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		err := op()
		if err == nil {
			if attempt > 0 {
				logger.Info("store operation succeeded after retry", "attempt", attempt+1)
			}
			return nil
		}
		lastErr = err

		if attempt == config.MaxRetries {
			break
		}
		if !config.isRetryableError(err) {
			logger.Debug("store operation failed with non-retryable error", "error", err, "attempt", attempt+1)
			return err
		}

		delay := config.calculateDelay(attempt)
		logger.Warn("store operation failed, retrying",
			"error", err,
			"attempt", attempt+1,
			"max_attempts", config.MaxRetries+1,
			"retry_delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("operation cancelled during retry: %w", ctx.Err())
		case <-timer.C:
		}
	}

	if config.MaxRetries == 0 {
		return lastErr
	}
	logger.Error("store operation failed after all retry attempts", "error", lastErr, "attempts", config.MaxRetries+1)
	return fmt.Errorf("operation failed after %d attempts: %w", config.MaxRetries+1, lastErr)
}

// Value is WithRetry for operations producing a result, e.g. a row scan or an
// exec returning sql.Result.
func Value[T any](ctx context.Context, config *Config, op func() (T, error)) (T, error) {
	var out T
	err := WithRetry(ctx, config, func() error {
		v, err := op()
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
