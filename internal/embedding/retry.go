package embedding

import (
	"context"
	"time"

	"github.com/ent0n29/deadbot/internal/reliability"
)

// RetryOptions bounds the retry loop of a RetryProvider.
type RetryOptions struct {
	Attempts int
	Base     time.Duration
	Cap      time.Duration
}

// RetryProvider retries transient failures of the wrapped provider with
// capped exponential backoff.
type RetryProvider struct {
	inner Provider
	opts  RetryOptions
	sleep func(context.Context, time.Duration) error
}

var _ Provider = (*RetryProvider)(nil)

func WithRetry(inner Provider, opts RetryOptions) *RetryProvider {
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.Base <= 0 {
		opts.Base = 200 * time.Millisecond
	}
	if opts.Cap <= 0 {
		opts.Cap = 2 * time.Second
	}
	return &RetryProvider{inner: inner, opts: opts, sleep: sleepCtx}
}

func (p *RetryProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt < p.opts.Attempts; attempt++ {
		if attempt > 0 {
			if err := p.sleep(ctx, reliability.ExponentialBackoff(attempt-1, p.opts.Base, p.opts.Cap)); err != nil {
				return nil, err
			}
		}
		vecs, err := p.inner.Embed(ctx, texts)
		if err == nil {
			return vecs, nil
		}
		lastErr = err
		if !reliability.IsRetryable(err) {
			break
		}
	}
	return nil, lastErr
}

func (p *RetryProvider) Dimensions() int { return p.inner.Dimensions() }

func (p *RetryProvider) ModelID() string { return p.inner.ModelID() }

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
