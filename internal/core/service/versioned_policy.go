package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/rl1809/stock-deduct/internal/core/domain"
	"github.com/rl1809/stock-deduct/internal/metrics"
	"github.com/rl1809/stock-deduct/internal/port"
)

// VersionedPolicy is optimistic locking on the persisted row: read the
// version, then update only if it is unchanged. A lost race rereads from
// scratch, so a retry can end as sold out.
type VersionedPolicy struct {
	store    port.VersionedRecordStore
	retry    RetryPolicy
	recorder *metrics.Recorder
	logger   *zap.Logger
}

func NewVersionedPolicy(store port.VersionedRecordStore, opts Options) *VersionedPolicy {
	opts = opts.withDefaults()
	return &VersionedPolicy{
		store:    store,
		retry:    opts.Retry,
		recorder: opts.Recorder,
		logger:   opts.Logger.With(zap.String("strategy", string(StrategyVersioned))),
	}
}

func (p *VersionedPolicy) Name() string { return string(StrategyVersioned) }

func (p *VersionedPolicy) DeductOne(ctx context.Context, productCode string) (domain.Outcome, error) {
	for attempt := 1; ; attempt++ {
		rec, err := p.store.FindByProductCode(ctx, productCode)
		if err != nil {
			return domain.OutcomeFailed, err
		}
		if rec.Count <= 0 {
			return domain.OutcomeSoldOut, nil
		}

		ok, err := p.store.UpdateByVersion(ctx, rec.ID, rec.Version)
		if err != nil {
			return domain.OutcomeFailed, err
		}
		if ok {
			return domain.OutcomeDecremented, nil
		}

		p.logger.Debug("version conflict",
			zap.String("resource", productCode),
			zap.Int64("version", rec.Version),
			zap.Int("attempt", attempt),
		)
		p.recorder.ObserveRetry(p.Name())
		if err := p.retry.Wait(ctx, attempt); err != nil {
			return domain.OutcomeFailed, err
		}
	}
}
