package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/rl1809/stock-deduct/internal/adapter/storage"
	"github.com/rl1809/stock-deduct/internal/config"
	"github.com/rl1809/stock-deduct/internal/core/domain"
	"github.com/rl1809/stock-deduct/internal/core/service"
)

const (
	initialStock  = 20
	totalRequests = 50
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	ctx := context.Background()

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, PoolSize: totalRequests})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	redisAdapter := storage.NewRedisAdapter(rdb)
	deps := service.Dependencies{
		Counter:  redisAdapter,
		Locker:   redisAdapter,
		Watcher:  redisAdapter,
		Scripted: redisAdapter,
	}

	var remaining func() (int64, error)

	if cfg.Strategy.UsesDatabase() {
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			log.Fatalf("failed to connect mysql: %v", err)
		}
		defer db.Close()
		db.SetMaxOpenConns(totalRequests)

		mysqlAdapter := storage.NewMySQLAdapter(db)
		if err := mysqlAdapter.EnsureSchema(ctx); err != nil {
			log.Fatalf("failed to create schema: %v", err)
		}
		if _, err := mysqlAdapter.Seed(ctx, domain.InventoryRecord{ProductCode: cfg.ProductCode, Count: initialStock}); err != nil {
			log.Fatalf("failed to seed stock: %v", err)
		}
		deps.Versioned = mysqlAdapter
		deps.RowLock = mysqlAdapter
		deps.Conditional = mysqlAdapter

		remaining = func() (int64, error) {
			rec, err := mysqlAdapter.FindByProductCode(ctx, cfg.ProductCode)
			if err != nil {
				return 0, err
			}
			return rec.Count, nil
		}
	} else {
		// Clear previous test data
		rdb.Del(ctx, cfg.Keys.Lock)
		if err := redisAdapter.SetStock(ctx, cfg.Keys.Stock, initialStock); err != nil {
			log.Fatalf("failed to set stock: %v", err)
		}

		remaining = func() (int64, error) {
			n, _, err := redisAdapter.GetCount(ctx, cfg.Keys.Stock)
			return n, err
		}
	}

	policy, err := service.NewPolicy(cfg.Strategy, deps, cfg.PolicyOptions())
	if err != nil {
		log.Fatalf("failed to build policy: %v", err)
	}

	// Counters
	var decremented, soldOut, failed atomic.Int32

	// Spawn concurrent requests
	var g errgroup.Group
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		g.Go(func() error {
			outcome, err := policy.DeductOne(ctx, cfg.ProductCode)
			switch {
			case err != nil:
				failed.Add(1)
				return fmt.Errorf("deduct: %w", err)
			case outcome == domain.OutcomeDecremented:
				decremented.Add(1)
			default:
				soldOut.Add(1)
			}
			return nil
		})
	}

	firstErr := g.Wait()
	elapsed := time.Since(start)

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Strategy:         %s\n", policy.Name())
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Decremented:      %d\n", decremented.Load())
	fmt.Printf("Sold Out:         %d\n", soldOut.Load())
	fmt.Printf("Failed:           %d\n", failed.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if firstErr != nil {
		fmt.Printf("first failure: %v\n", firstErr)
	}

	pass := true
	if decremented.Load() != initialStock || soldOut.Load() != totalRequests-initialStock {
		fmt.Printf("FAIL: Expected %d decremented/%d sold out, got %d/%d\n",
			initialStock, totalRequests-initialStock, decremented.Load(), soldOut.Load())
		pass = false
	} else {
		fmt.Printf("PASS: Exactly %d deductions succeeded, %d sold out\n", initialStock, totalRequests-initialStock)
	}

	finalStock, err := remaining()
	if err != nil {
		log.Fatalf("failed to read final stock: %v", err)
	}
	fmt.Printf("Final Stock: %d\n", finalStock)

	if finalStock == 0 {
		fmt.Println("PASS: Stock depleted to 0")
	} else {
		fmt.Printf("FAIL: Expected stock 0, got %d\n", finalStock)
		pass = false
	}

	if !pass {
		os.Exit(1)
	}
}
