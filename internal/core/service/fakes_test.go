package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/stock-deduct/internal/adapter/storage"
	"github.com/rl1809/stock-deduct/internal/core/domain"
	"github.com/rl1809/stock-deduct/internal/port"
)

type testRedis struct {
	mr      *miniredis.Miniredis
	client  *redis.Client
	adapter *storage.RedisAdapter
}

func newTestRedis(t *testing.T) *testRedis {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), PoolSize: 50})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return &testRedis{mr: mr, client: client, adapter: storage.NewRedisAdapter(client)}
}

func (r *testRedis) seed(t *testing.T, key string, stock int64) {
	t.Helper()
	if err := r.adapter.SetStock(context.Background(), key, stock); err != nil {
		t.Fatalf("seed stock: %v", err)
	}
}

func (r *testRedis) stock(t *testing.T, key string) int64 {
	t.Helper()
	n, _, err := r.adapter.GetCount(context.Background(), key)
	if err != nil {
		t.Fatalf("read stock: %v", err)
	}
	return n
}

// Mock record store. rowMu stands in for the database row lock.
type mockRecordStore struct {
	mu      sync.Mutex
	rowMu   sync.Mutex
	code    string // fixed at construction, read without mu
	rec     domain.InventoryRecord
	applied []int64 // pre-update versions of successful conditional updates

	findCalls atomic.Int32
	onFind    func(call int32)
	err       error
}

func newMockRecordStore(count, version int64) *mockRecordStore {
	return &mockRecordStore{
		code: "1001",
		rec:  domain.InventoryRecord{ID: 1, ProductCode: "1001", Warehouse: "north", Count: count, Version: version},
	}
}

func (m *mockRecordStore) snapshot() domain.InventoryRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rec
}

func (m *mockRecordStore) FindByProductCode(ctx context.Context, productCode string) (*domain.InventoryRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	if productCode != m.code {
		return nil, domain.ErrRecordNotFound
	}

	rec := m.snapshot()
	call := m.findCalls.Add(1)
	if m.onFind != nil {
		m.onFind(call)
	}
	return &rec, nil
}

func (m *mockRecordStore) UpdateByVersion(ctx context.Context, id, expectedVersion int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rec.ID != id || m.rec.Version != expectedVersion || m.rec.Count < 1 {
		return false, nil
	}
	m.rec.Count--
	m.rec.Version++
	m.applied = append(m.applied, expectedVersion)
	return true, nil
}

func (m *mockRecordStore) WithLockedRecord(ctx context.Context, productCode string, fn func(rec *domain.InventoryRecord) (bool, error)) error {
	if m.err != nil {
		return m.err
	}
	if productCode != m.code {
		return domain.ErrRecordNotFound
	}

	m.rowMu.Lock()
	defer m.rowMu.Unlock()

	rec := m.snapshot()
	// widen the window a racing writer would need
	time.Sleep(time.Millisecond)

	changed, err := fn(&rec)
	if err != nil || !changed {
		return err
	}

	m.mu.Lock()
	rec.Version = m.rec.Version + 1
	m.rec = rec
	m.mu.Unlock()
	return nil
}

func (m *mockRecordStore) DecrementIfAvailable(ctx context.Context, productCode string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if productCode != m.code || m.rec.Count < 1 {
		return false, nil
	}
	m.rec.Count--
	m.rec.Version++
	return true, nil
}

// hookedCounter lets a test run code inside the critical section.
type hookedCounter struct {
	port.CounterStore
	onGet func()
	err   error
}

func (c *hookedCounter) GetCount(ctx context.Context, key string) (int64, bool, error) {
	if c.onGet != nil {
		c.onGet()
	}
	if c.err != nil {
		return 0, false, c.err
	}
	return c.CounterStore.GetCount(ctx, key)
}

// trackingLocker counts concurrent holders between a successful acquire and
// the matching release.
type trackingLocker struct {
	port.LeaseLocker
	holders atomic.Int32
	maxSeen atomic.Int32
}

func (l *trackingLocker) TryAcquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	ok, err := l.LeaseLocker.TryAcquire(ctx, key, token, ttl)
	if ok {
		n := l.holders.Add(1)
		for {
			seen := l.maxSeen.Load()
			if n <= seen || l.maxSeen.CompareAndSwap(seen, n) {
				break
			}
		}
	}
	return ok, err
}

func (l *trackingLocker) Release(ctx context.Context, key, token string) (bool, error) {
	l.holders.Add(-1)
	return l.LeaseLocker.Release(ctx, key, token)
}

type results struct {
	decremented atomic.Int32
	soldOut     atomic.Int32
	failed      atomic.Int32
}

func runConcurrent(t *testing.T, policy DeductionPolicy, resourceID string, n int) *results {
	t.Helper()

	var res results
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := policy.DeductOne(context.Background(), resourceID)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				res.failed.Add(1)
				return
			}
			switch outcome {
			case domain.OutcomeDecremented:
				res.decremented.Add(1)
			case domain.OutcomeSoldOut:
				res.soldOut.Add(1)
			default:
				t.Errorf("unexpected outcome %q", outcome)
				res.failed.Add(1)
			}
		}()
	}
	wg.Wait()
	return &res
}

func fastOptions() Options {
	opts := DefaultOptions()
	opts.Retry = RetryPolicy{MaxAttempts: 10000, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
	return opts
}
