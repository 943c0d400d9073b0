// Package resilience wraps calls to external services with a per-attempt
// timeout, bounded exponential retry and a circuit breaker.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/pi-escrow-ledger/internal/config"
	"github.com/pi-escrow-ledger/internal/domain/shared"
)

// Permanent marks err as a business outcome: it is returned as is, never
// retried and never counted against the breaker.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

func isPermanent(err error) bool {
	return errors.Is(err, &backoff.PermanentError{})
}

// Executor guards one external dependency.
type Executor struct {
	service     string
	breaker     *gobreaker.CircuitBreaker
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	callTimeout time.Duration
	logger      *slog.Logger
}

// NewExecutor creates an executor for service. callTimeout bounds each
// attempt; zero disables the per-attempt deadline.
func NewExecutor(service string, cfg config.ResilienceConfig, callTimeout time.Duration, logger *slog.Logger) *Executor {
	threshold := cfg.BreakerFailureThreshold
	settings := gobreaker.Settings{
		Name:        service,
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed", "service", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isPermanent(err) || shared.IsBusinessError(err)
		},
	}

	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	return &Executor{
		service:     service,
		breaker:     gobreaker.NewCircuitBreaker(settings),
		maxAttempts: attempts,
		baseDelay:   cfg.BaseDelay,
		maxDelay:    cfg.MaxDelay,
		callTimeout: callTimeout,
		logger:      logger,
	}
}

// State reports the breaker state.
func (e *Executor) State() gobreaker.State {
	return e.breaker.State()
}

// Do runs fn until it succeeds, returns a Permanent error, or the attempt
// budget is spent. Infrastructure failures surface as shared.ExternalServiceError.
func (e *Executor) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := Call(ctx, e, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Call is Do for operations that produce a value.
func Call[T any](ctx context.Context, e *Executor, fn func(ctx context.Context) (T, error)) (T, error) {
	attempt := 0
	operation := func() (T, error) {
		attempt++
		result, err := e.breaker.Execute(func() (interface{}, error) {
			attemptCtx := ctx
			if e.callTimeout > 0 {
				var cancel context.CancelFunc
				attemptCtx, cancel = context.WithTimeout(ctx, e.callTimeout)
				defer cancel()
			}
			return fn(attemptCtx)
		})
		value, _ := result.(T)

		switch {
		case err == nil:
			return value, nil
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return value, backoff.Permanent(shared.ExternalServiceError{Service: e.service, Err: err})
		case isPermanent(err):
			return value, err
		case shared.IsBusinessError(err):
			return value, backoff.Permanent(err)
		default:
			return value, err
		}
	}

	policy := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(e.baseDelay),
		backoff.WithMaxInterval(e.maxDelay),
		backoff.WithMaxElapsedTime(0),
	)
	retry := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(e.maxAttempts-1)), ctx)

	notify := func(err error, next time.Duration) {
		e.logger.Warn("External call failed, retrying",
			"service", e.service,
			"attempt", attempt,
			"next_delay", next.String(),
			"error", err,
		)
	}

	result, err := backoff.RetryNotifyWithData(operation, retry, notify)
	if err == nil || shared.IsBusinessError(err) {
		return result, err
	}

	var external shared.ExternalServiceError
	if errors.As(err, &external) {
		return result, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, ctxErr
	}

	e.logger.Error("External call failed after retries", "service", e.service, "attempts", attempt, "error", err)
	return result, shared.ExternalServiceError{Service: e.service, Err: err}
}
