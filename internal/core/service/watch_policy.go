package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/rl1809/stock-deduct/internal/core/domain"
	"github.com/rl1809/stock-deduct/internal/metrics"
	"github.com/rl1809/stock-deduct/internal/port"
)

// WatchPolicy decrements the counter in a WATCH/MULTI/EXEC transaction and
// starts over whenever the commit is aborted. The watch covers the stock key
// only, which is all the decision reads.
type WatchPolicy struct {
	counter  port.WatchedCounter
	key      string
	retry    RetryPolicy
	recorder *metrics.Recorder
	logger   *zap.Logger
}

func NewWatchPolicy(counter port.WatchedCounter, opts Options) *WatchPolicy {
	opts = opts.withDefaults()
	return &WatchPolicy{
		counter:  counter,
		key:      opts.Keys.Stock,
		retry:    opts.Retry,
		recorder: opts.Recorder,
		logger:   opts.Logger.With(zap.String("strategy", string(StrategyWatch))),
	}
}

func (p *WatchPolicy) Name() string { return string(StrategyWatch) }

func (p *WatchPolicy) DeductOne(ctx context.Context, resourceID string) (domain.Outcome, error) {
	for attempt := 1; ; attempt++ {
		ok, err := p.counter.DecrementWatched(ctx, p.key)
		switch {
		case errors.Is(err, domain.ErrConflict):
			p.logger.Debug("watched transaction aborted", zap.String("resource", resourceID), zap.Int("attempt", attempt))
		case err != nil:
			return domain.OutcomeFailed, err
		case ok:
			return domain.OutcomeDecremented, nil
		default:
			return domain.OutcomeSoldOut, nil
		}

		p.recorder.ObserveRetry(p.Name())
		if err := p.retry.Wait(ctx, attempt); err != nil {
			return domain.OutcomeFailed, err
		}
	}
}
