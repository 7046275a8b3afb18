package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rl1809/stock-deduct/internal/core/domain"
)

const (
	DefaultBaseDelay   = 50 * time.Millisecond
	DefaultMaxDelay    = time.Second
	DefaultMultiplier  = 2.0
	DefaultMaxAttempts = 200
)

// RetryPolicy bounds the contention loops of every strategy. MaxAttempts <= 0
// retries forever, which only the context can stop.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		Multiplier:  DefaultMultiplier,
	}
}

// Delay returns the backoff before the retry that follows attempt. A MaxDelay
// <= 0 falls back to DefaultMaxDelay so the backoff stays bounded.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}

	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}

	d := float64(p.BaseDelay) * math.Pow(mult, float64(attempt-1))
	if d > float64(maxDelay) {
		return maxDelay
	}
	return time.Duration(d)
}

// Wait sleeps before the retry that follows the given failed attempt. It
// returns ErrContentionTimeout once the budget is spent and ErrInterruptedWait
// when ctx ends first.
func (p RetryPolicy) Wait(ctx context.Context, attempt int) error {
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		return fmt.Errorf("%w: gave up after %d attempts", domain.ErrContentionTimeout, attempt)
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInterruptedWait, err)
	}

	timer := time.NewTimer(p.Delay(attempt))
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", domain.ErrInterruptedWait, ctx.Err())
	}
}
