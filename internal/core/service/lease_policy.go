package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/stock-deduct/internal/core/domain"
	"github.com/rl1809/stock-deduct/internal/metrics"
	"github.com/rl1809/stock-deduct/internal/port"
)

const releaseTimeout = 2 * time.Second

// LeasePolicy guards the counter with a TTL lease on a separate key. Every
// attempt mints its own token so only the holder can release or renew.
//
// The lease is not fenced: if renewal stalls past the TTL another caller can
// enter the critical section while this one is still inside it.
type LeasePolicy struct {
	counter    port.CounterStore
	locker     port.LeaseLocker
	keys       Keys
	ttl        time.Duration
	renewEvery time.Duration
	retry      RetryPolicy
	recorder   *metrics.Recorder
	logger     *zap.Logger
}

func NewLeasePolicy(counter port.CounterStore, locker port.LeaseLocker, opts Options) *LeasePolicy {
	opts = opts.withDefaults()
	return &LeasePolicy{
		counter:    counter,
		locker:     locker,
		keys:       opts.Keys,
		ttl:        opts.LeaseTTL,
		renewEvery: opts.RenewInterval,
		retry:      opts.Retry,
		recorder:   opts.Recorder,
		logger:     opts.Logger.With(zap.String("strategy", string(StrategyLease))),
	}
}

func (p *LeasePolicy) Name() string { return string(StrategyLease) }

func (p *LeasePolicy) DeductOne(ctx context.Context, resourceID string) (domain.Outcome, error) {
	token := uuid.NewString()

	if err := p.acquire(ctx, token); err != nil {
		return domain.OutcomeFailed, err
	}

	stop := p.startWatchdog(ctx, token, resourceID)
	defer func() {
		stop()
		p.release(ctx, token, resourceID)
	}()

	return decrementCounter(ctx, p.counter, p.keys.Stock)
}

func (p *LeasePolicy) acquire(ctx context.Context, token string) error {
	for attempt := 1; ; attempt++ {
		ok, err := p.locker.TryAcquire(ctx, p.keys.Lock, token, p.ttl)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		p.recorder.ObserveRetry(p.Name())
		if err := p.retry.Wait(ctx, attempt); err != nil {
			return err
		}
	}
}

// release runs on a context detached from the caller so a cancelled request
// still gives the lease back.
func (p *LeasePolicy) release(ctx context.Context, token, resourceID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	ok, err := p.locker.Release(ctx, p.keys.Lock, token)
	if err != nil {
		p.logger.Warn("lease release failed, waiting for ttl",
			zap.String("resource", resourceID),
			zap.Duration("ttl", p.ttl),
			zap.Error(err),
		)
		return
	}
	if !ok {
		p.logger.Warn("lease expired before release",
			zap.String("resource", resourceID),
			zap.Duration("ttl", p.ttl),
		)
	}
}

// startWatchdog extends the lease every renewEvery until stop is called or the
// lease is observed to belong to someone else.
func (p *LeasePolicy) startWatchdog(ctx context.Context, token, resourceID string) (stop func()) {
	if p.renewEvery <= 0 {
		return func() {}
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	go func() {
		defer close(done)

		ticker := time.NewTicker(p.renewEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			ok, err := p.locker.Renew(ctx, p.keys.Lock, token, p.ttl)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				p.recorder.ObserveRenewal(metrics.RenewalError)
				p.logger.Warn("lease renewal failed", zap.String("resource", resourceID), zap.Error(err))
				continue
			}

			if !ok {
				p.recorder.ObserveRenewal(metrics.RenewalLost)
				p.logger.Warn("lease lost while held", zap.String("resource", resourceID))
				return
			}
			p.recorder.ObserveRenewal(metrics.RenewalRenewed)
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
