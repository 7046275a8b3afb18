package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	_ "github.com/go-sql-driver/mysql"

	"github.com/rl1809/stock-deduct/internal/core/domain"
)

func getMySQLAdapter(t *testing.T) (*MySQLAdapter, *sql.DB) {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/stockdeduct?parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("MySQL not available: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	adapter := NewMySQLAdapter(db)
	if err := adapter.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return adapter, db
}

func seedRecord(t *testing.T, adapter *MySQLAdapter, code string, count, version int64) int64 {
	t.Helper()
	id, err := adapter.Seed(context.Background(), domain.InventoryRecord{
		ProductCode: code,
		Warehouse:   "test",
		Count:       count,
		Version:     version,
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	return id
}

func TestFindByProductCode(t *testing.T) {
	adapter, _ := getMySQLAdapter(t)
	ctx := context.Background()

	id := seedRecord(t, adapter, "find-test-item", 50, 5)

	rec, err := adapter.FindByProductCode(ctx, "find-test-item")
	if err != nil {
		t.Fatalf("FindByProductCode failed: %v", err)
	}
	if rec.ID != id || rec.Count != 50 || rec.Version != 5 || rec.Warehouse != "test" {
		t.Errorf("unexpected record: %+v", rec)
	}
}

func TestFindByProductCode_NotFound(t *testing.T) {
	adapter, _ := getMySQLAdapter(t)

	_, err := adapter.FindByProductCode(context.Background(), "nonexistent-item")
	if !errors.Is(err, domain.ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestUpdateByVersion(t *testing.T) {
	adapter, _ := getMySQLAdapter(t)
	ctx := context.Background()

	id := seedRecord(t, adapter, "version-test-item", 1, 7)

	ok, err := adapter.UpdateByVersion(ctx, id, 7)
	if err != nil || !ok {
		t.Fatalf("UpdateByVersion: ok=%v err=%v", ok, err)
	}

	rec, _ := adapter.FindByProductCode(ctx, "version-test-item")
	if rec.Count != 0 || rec.Version != 8 {
		t.Errorf("expected count 0 version 8, got %+v", rec)
	}

	// stale version
	ok, err = adapter.UpdateByVersion(ctx, id, 7)
	if err != nil || ok {
		t.Errorf("stale version should affect no rows, ok=%v err=%v", ok, err)
	}

	// current version but sold out
	ok, err = adapter.UpdateByVersion(ctx, id, 8)
	if err != nil || ok {
		t.Errorf("sold out row should not go negative, ok=%v err=%v", ok, err)
	}
}

func TestWithLockedRecord_Concurrent(t *testing.T) {
	adapter, _ := getMySQLAdapter(t)
	ctx := context.Background()

	seedRecord(t, adapter, "rowlock-test-item", 10, 0)

	var successCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := adapter.WithLockedRecord(ctx, "rowlock-test-item", func(rec *domain.InventoryRecord) (bool, error) {
				if rec.Count <= 0 {
					return false, nil
				}
				rec.Count--
				successCount.Add(1)
				return true, nil
			})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successCount.Load() != 10 {
		t.Errorf("expected 10 successes, got %d", successCount.Load())
	}
	rec, _ := adapter.FindByProductCode(ctx, "rowlock-test-item")
	if rec.Count != 0 || rec.Version != 10 {
		t.Errorf("expected count 0 version 10, got %+v", rec)
	}
}

func TestWithLockedRecord_RollsBackOnError(t *testing.T) {
	adapter, _ := getMySQLAdapter(t)
	ctx := context.Background()

	seedRecord(t, adapter, "rollback-test-item", 3, 0)

	boom := errors.New("boom")
	err := adapter.WithLockedRecord(ctx, "rollback-test-item", func(rec *domain.InventoryRecord) (bool, error) {
		rec.Count = 0
		return true, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	rec, _ := adapter.FindByProductCode(ctx, "rollback-test-item")
	if rec.Count != 3 {
		t.Errorf("expected count 3 after rollback, got %d", rec.Count)
	}
}

func TestDecrementIfAvailable(t *testing.T) {
	adapter, _ := getMySQLAdapter(t)
	ctx := context.Background()

	seedRecord(t, adapter, "update-test-item", 1, 0)

	ok, err := adapter.DecrementIfAvailable(ctx, "update-test-item")
	if err != nil || !ok {
		t.Fatalf("expected decrement, ok=%v err=%v", ok, err)
	}

	ok, err = adapter.DecrementIfAvailable(ctx, "update-test-item")
	if err != nil || ok {
		t.Errorf("expected sold out, ok=%v err=%v", ok, err)
	}
}

func TestDecrementIfAvailable_SameRowAsFind(t *testing.T) {
	adapter, db := getMySQLAdapter(t)
	ctx := context.Background()

	firstID := seedRecord(t, adapter, "multi-row-item", 0, 0)
	if _, err := db.ExecContext(ctx, `DELETE FROM db_stock WHERE product_code = ? AND id <> ?`, "multi-row-item", firstID); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if _, err := db.ExecContext(ctx, `
		INSERT INTO db_stock (product_code, warehouse, count, version) VALUES (?, ?, ?, ?)`,
		"multi-row-item", "south", 5, 0,
	); err != nil {
		t.Fatalf("insert second row: %v", err)
	}

	ok, err := adapter.DecrementIfAvailable(ctx, "multi-row-item")
	if err != nil || ok {
		t.Errorf("expected sold out on the first row, ok=%v err=%v", ok, err)
	}

	var south int64
	if err := db.QueryRowContext(ctx, `
		SELECT count FROM db_stock WHERE product_code = ? AND id <> ?`, "multi-row-item", firstID,
	).Scan(&south); err != nil {
		t.Fatalf("read second row: %v", err)
	}
	if south != 5 {
		t.Errorf("second row should be untouched, got %d", south)
	}
}
