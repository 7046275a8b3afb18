package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/stock-deduct/internal/adapter/handler"
	"github.com/rl1809/stock-deduct/internal/adapter/storage"
	"github.com/rl1809/stock-deduct/internal/config"
	"github.com/rl1809/stock-deduct/internal/core/domain"
	"github.com/rl1809/stock-deduct/internal/core/service"
	"github.com/rl1809/stock-deduct/internal/metrics"
	"github.com/rl1809/stock-deduct/internal/platform/observability"
	"github.com/rl1809/stock-deduct/internal/port"
)

const healthInterval = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.SetupTracing(cfg.TraceStdout, config.ServiceName, config.ServiceVersion)
	if err != nil {
		logger.Fatal("failed to set up tracing", zap.Error(err))
	}

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}
	logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))

	redisAdapter := storage.NewRedisAdapter(rdb)
	pingers := map[string]port.Pinger{"redis": redisAdapter}
	deps := service.Dependencies{
		Counter:  redisAdapter,
		Locker:   redisAdapter,
		Watcher:  redisAdapter,
		Scripted: redisAdapter,
	}

	// MySQL is only needed by the strategies that work on the persisted row
	var db *sql.DB
	if cfg.Strategy.UsesDatabase() {
		db, err = sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			logger.Fatal("failed to connect mysql", zap.Error(err))
		}
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.PingContext(ctx); err != nil {
			logger.Fatal("failed to ping mysql", zap.Error(err))
		}
		logger.Info("connected to mysql")

		mysqlAdapter := storage.NewMySQLAdapter(db)
		if err := mysqlAdapter.EnsureSchema(ctx); err != nil {
			logger.Fatal("failed to create schema", zap.Error(err))
		}
		pingers["mysql"] = mysqlAdapter
		deps.Versioned = mysqlAdapter
		deps.RowLock = mysqlAdapter
		deps.Conditional = mysqlAdapter

		if cfg.InitialStock != nil {
			rec := domain.InventoryRecord{ProductCode: cfg.ProductCode, Count: *cfg.InitialStock}
			if _, err := mysqlAdapter.Seed(ctx, rec); err != nil {
				logger.Fatal("failed to seed stock", zap.Error(err))
			}
		}
	} else if cfg.InitialStock != nil {
		if err := redisAdapter.SetStock(ctx, cfg.Keys.Stock, *cfg.InitialStock); err != nil {
			logger.Fatal("failed to seed stock", zap.Error(err))
		}
	}
	if cfg.InitialStock != nil {
		logger.Info("initialized stock", zap.String("product", cfg.ProductCode), zap.Int64("stock", *cfg.InitialStock))
	}

	// Initialize metrics and policy
	reg := metrics.NewRegistry()
	recorder := metrics.NewRecorder()
	recorder.Register(reg)

	opts := cfg.PolicyOptions()
	opts.Recorder = recorder
	opts.Logger = logger
	policy, err := service.NewPolicy(cfg.Strategy, deps, opts)
	if err != nil {
		logger.Fatal("failed to build deduction policy", zap.Error(err))
	}
	logger.Info("deduction policy ready",
		zap.String("strategy", policy.Name()),
		zap.Duration("lease_ttl", cfg.LeaseTTL),
		zap.Duration("renew_interval", cfg.RenewInterval),
		zap.Int("max_attempts", cfg.Retry.MaxAttempts),
	)

	// Initialize gRPC health server
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reporter := handler.NewHealthReporter(healthServer, config.ServiceName, pingers, logger)
	go reporter.Run(ctx, healthInterval)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("failed to listen", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
	}

	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", zap.Error(err))
		}
	}()

	// Initialize HTTP server
	httpHandler := handler.NewHTTPHandler(policy, cfg.ProductCode, pingers, logger)
	mux := http.NewServeMux()
	mux.HandleFunc("/health", httpHandler.HealthCheck)
	mux.HandleFunc("/stock/deduct", httpHandler.Deduct)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	// in-flight deductions finish and release their leases before Redis closes
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown", zap.Error(err))
	}
	logger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracer shutdown", zap.Error(err))
	}

	rdb.Close()
	if db != nil {
		db.Close()
	}
	logger.Info("connections closed")
}
