package completion

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerConfig tunes the circuit breaker around a provider.
type BreakerConfig struct {
	Name string
	// MaxFailures consecutive failures open the circuit. Default 3.
	MaxFailures uint32
	// Timeout is how long the circuit stays open before probing. Default 30s.
	Timeout time.Duration
	// HalfOpenRequests is the number of trial requests allowed while half-open. Default 1.
	HalfOpenRequests uint32
}

// Breaker fails fast with ErrCircuitOpen after repeated provider failures so
// an unreachable model does not hold every request for its full timeout.
type Breaker struct {
	inner Provider
	cb    *gobreaker.CircuitBreaker
}

var _ Provider = (*Breaker)(nil)

func WithBreaker(inner Provider, cfg BreakerConfig, logger *slog.Logger) *Breaker {
	if cfg.Name == "" {
		cfg.Name = "completion"
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HalfOpenRequests == 0 {
		cfg.HalfOpenRequests = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenRequests,
		Interval:    0,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		// Caller cancellation is not a provider failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("completion breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	}
	return &Breaker{inner: inner, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (b *Breaker) Complete(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.Complete(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", ErrCircuitOpen
	}
	if err != nil {
		return "", err
	}
	text, _ := out.(string)
	return text, nil
}

// State reports "closed", "half-open" or "open".
func (b *Breaker) State() string {
	return b.cb.State().String()
}
