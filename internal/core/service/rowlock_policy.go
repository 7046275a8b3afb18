package service

import (
	"context"

	"github.com/rl1809/stock-deduct/internal/core/domain"
	"github.com/rl1809/stock-deduct/internal/port"
)

// RowLockPolicy holds SELECT ... FOR UPDATE for the read-modify-write.
// Competing callers block inside the database rather than retrying, so the
// cost shows up as lock waits and, if other code locks rows in a different
// order, as deadlocks.
type RowLockPolicy struct {
	store port.RowLockStore
}

func NewRowLockPolicy(store port.RowLockStore, _ Options) *RowLockPolicy {
	return &RowLockPolicy{store: store}
}

func (p *RowLockPolicy) Name() string { return string(StrategyRowLock) }

func (p *RowLockPolicy) DeductOne(ctx context.Context, productCode string) (domain.Outcome, error) {
	outcome := domain.OutcomeSoldOut

	err := p.store.WithLockedRecord(ctx, productCode, func(rec *domain.InventoryRecord) (bool, error) {
		if rec.Count <= 0 {
			return false, nil
		}
		rec.Count--
		outcome = domain.OutcomeDecremented
		return true, nil
	})
	if err != nil {
		return domain.OutcomeFailed, err
	}
	return outcome, nil
}
