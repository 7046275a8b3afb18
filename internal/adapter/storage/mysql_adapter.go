package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rl1809/stock-deduct/internal/core/domain"
)

const createStockTable = `
CREATE TABLE IF NOT EXISTS db_stock (
	id           BIGINT AUTO_INCREMENT PRIMARY KEY,
	product_code VARCHAR(64)  NOT NULL,
	warehouse    VARCHAR(64)  NOT NULL DEFAULT '',
	count        BIGINT       NOT NULL DEFAULT 0,
	version      BIGINT       NOT NULL DEFAULT 0,
	KEY idx_product_code (product_code)
)`

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) EnsureSchema(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, createStockTable); err != nil {
		return unavailable("create db_stock", err)
	}
	return nil
}

// Seed resets the first row for the record's product code, inserting it when
// missing, and returns its id.
func (m *MySQLAdapter) Seed(ctx context.Context, rec domain.InventoryRecord) (int64, error) {
	existing, err := m.FindByProductCode(ctx, rec.ProductCode)
	if err != nil && !errors.Is(err, domain.ErrRecordNotFound) {
		return 0, err
	}

	if existing != nil {
		_, err = m.db.ExecContext(ctx, `
			UPDATE db_stock SET warehouse = ?, count = ?, version = ? WHERE id = ?`,
			rec.Warehouse, rec.Count, rec.Version, existing.ID,
		)
		if err != nil {
			return 0, unavailable("reset stock", err)
		}
		return existing.ID, nil
	}

	result, err := m.db.ExecContext(ctx, `
		INSERT INTO db_stock (product_code, warehouse, count, version) VALUES (?, ?, ?, ?)`,
		rec.ProductCode, rec.Warehouse, rec.Count, rec.Version,
	)
	if err != nil {
		return 0, unavailable("insert stock", err)
	}
	return result.LastInsertId()
}

func (m *MySQLAdapter) FindByProductCode(ctx context.Context, productCode string) (*domain.InventoryRecord, error) {
	var rec domain.InventoryRecord
	err := m.db.QueryRowContext(ctx, `
		SELECT id, product_code, warehouse, count, version
		FROM db_stock WHERE product_code = ? ORDER BY id LIMIT 1`, productCode,
	).Scan(&rec.ID, &rec.ProductCode, &rec.Warehouse, &rec.Count, &rec.Version)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrRecordNotFound, productCode)
	}
	if err != nil {
		return nil, unavailable("query stock", err)
	}

	return &rec, nil
}

func (m *MySQLAdapter) UpdateByVersion(ctx context.Context, id, expectedVersion int64) (bool, error) {
	result, err := m.db.ExecContext(ctx, `
		UPDATE db_stock
		SET count = count - 1, version = version + 1
		WHERE id = ? AND version = ? AND count >= 1`,
		id, expectedVersion,
	)
	if err != nil {
		return false, unavailable("update stock", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, unavailable("update stock", err)
	}
	return rows == 1, nil
}

func (m *MySQLAdapter) WithLockedRecord(ctx context.Context, productCode string, fn func(rec *domain.InventoryRecord) (bool, error)) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin tx", err)
	}
	defer tx.Rollback()

	var rec domain.InventoryRecord
	err = tx.QueryRowContext(ctx, `
		SELECT id, product_code, warehouse, count, version
		FROM db_stock WHERE product_code = ? ORDER BY id LIMIT 1 FOR UPDATE`, productCode,
	).Scan(&rec.ID, &rec.ProductCode, &rec.Warehouse, &rec.Count, &rec.Version)

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", domain.ErrRecordNotFound, productCode)
	}
	if err != nil {
		return unavailable("select for update", err)
	}

	changed, err := fn(&rec)
	if err != nil {
		return err
	}

	if changed {
		_, err = tx.ExecContext(ctx, `
			UPDATE db_stock SET count = ?, version = version + 1 WHERE id = ?`,
			rec.Count, rec.ID,
		)
		if err != nil {
			return unavailable("update locked stock", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return unavailable("commit", err)
	}
	return nil
}

// DecrementIfAvailable targets the same row as FindByProductCode and
// WithLockedRecord, the lowest id for the product code, and leaves it alone
// once it is empty.
func (m *MySQLAdapter) DecrementIfAvailable(ctx context.Context, productCode string) (bool, error) {
	result, err := m.db.ExecContext(ctx, `
		UPDATE db_stock s
		JOIN (SELECT id FROM db_stock WHERE product_code = ? ORDER BY id LIMIT 1) f ON s.id = f.id
		SET s.count = s.count - 1, s.version = s.version + 1
		WHERE s.count >= 1`,
		productCode,
	)
	if err != nil {
		return false, unavailable("conditional update", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, unavailable("conditional update", err)
	}
	return rows == 1, nil
}

func (m *MySQLAdapter) Ping(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return unavailable("ping mysql", err)
	}
	return nil
}
