package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rl1809/stock-deduct/internal/core/domain"
)

func TestRowLockPolicy_Concurrent(t *testing.T) {
	store := newMockRecordStore(10, 0)
	policy := NewRowLockPolicy(store, fastOptions())

	res := runConcurrent(t, policy, "1001", 15)

	if got := res.decremented.Load(); got != 10 {
		t.Errorf("expected 10 decremented, got %d", got)
	}
	rec := store.snapshot()
	if rec.Count != 0 {
		t.Errorf("expected count 0, got %d", rec.Count)
	}
	if rec.Version != 10 {
		t.Errorf("expected version 10, got %d", rec.Version)
	}
}

func TestRowLockPolicy_StoreUnavailable(t *testing.T) {
	store := newMockRecordStore(10, 0)
	store.err = errors.Join(domain.ErrStoreUnavailable, errors.New("dial tcp: refused"))
	policy := NewRowLockPolicy(store, fastOptions())

	outcome, err := policy.DeductOne(context.Background(), "1001")
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if outcome != domain.OutcomeFailed {
		t.Errorf("expected failed, got %s", outcome)
	}
}

func TestRowLockPolicy_ConcurrentWithVersionedReaders(t *testing.T) {
	store := newMockRecordStore(10, 0)
	rowLock := NewRowLockPolicy(store, fastOptions())
	versioned := NewVersionedPolicy(store, fastOptions())

	// readers share the store with lockers; passes under -race
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := rowLock.DeductOne(context.Background(), "1001"); err != nil {
				t.Errorf("rowlock: unexpected error: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := store.FindByProductCode(context.Background(), "1001"); err != nil {
				t.Errorf("find: unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := store.snapshot().Count; got != 0 {
		t.Errorf("expected count 0, got %d", got)
	}
	if _, err := versioned.DeductOne(context.Background(), "missing"); !errors.Is(err, domain.ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}
}
