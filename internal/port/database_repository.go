package port

import (
	"context"

	"github.com/rl1809/stock-deduct/internal/core/domain"
)

type VersionedRecordStore interface {
	// FindByProductCode retrieves the inventory row for a product
	FindByProductCode(ctx context.Context, productCode string) (*domain.InventoryRecord, error)

	// UpdateByVersion decrements count and bumps version iff the stored version
	// still equals expectedVersion; false means another writer got there first
	UpdateByVersion(ctx context.Context, id, expectedVersion int64) (bool, error)
}

type RowLockStore interface {
	// WithLockedRecord holds an exclusive row lock while fn runs and writes the
	// record back if fn reports a change. The lock is released on commit or
	// rollback before WithLockedRecord returns.
	WithLockedRecord(ctx context.Context, productCode string, fn func(rec *domain.InventoryRecord) (bool, error)) error
}

type ConditionalDecrementer interface {
	// DecrementIfAvailable runs a single guarded UPDATE, returns false if sold out
	DecrementIfAvailable(ctx context.Context, productCode string) (bool, error)
}
