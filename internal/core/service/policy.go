package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/stock-deduct/internal/core/domain"
	"github.com/rl1809/stock-deduct/internal/metrics"
	"github.com/rl1809/stock-deduct/internal/port"
)

// DeductionPolicy decrements one unit of stock without ever driving it below
// zero. Strategies must not be mixed against the same resource: each one only
// excludes callers that use the same mechanism.
type DeductionPolicy interface {
	Name() string
	DeductOne(ctx context.Context, resourceID string) (domain.Outcome, error)
}

type Strategy string

const (
	StrategyLease     Strategy = "lease"
	StrategyWatch     Strategy = "watch"
	StrategyVersioned Strategy = "versioned"
	StrategyRowLock   Strategy = "rowlock"
	StrategyLocal     Strategy = "local"
	StrategyScript    Strategy = "script"
	StrategySQLUpdate Strategy = "sqlupdate"
)

// Strategies lists every selectable strategy.
var Strategies = []Strategy{
	StrategyLease,
	StrategyWatch,
	StrategyVersioned,
	StrategyRowLock,
	StrategyLocal,
	StrategyScript,
	StrategySQLUpdate,
}

func ParseStrategy(s string) (Strategy, error) {
	want := Strategy(strings.ToLower(strings.TrimSpace(s)))
	for _, st := range Strategies {
		if st == want {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown strategy %q", s)
}

// UsesDatabase reports whether the strategy mutates the MySQL row rather than
// the Redis counter.
func (s Strategy) UsesDatabase() bool {
	switch s {
	case StrategyVersioned, StrategyRowLock, StrategySQLUpdate:
		return true
	}
	return false
}

// Keys names the Redis keys the counter strategies operate on.
type Keys struct {
	Lock  string
	Stock string
}

func DefaultKeys() Keys {
	return Keys{Lock: "lock", Stock: "stock"}
}

const DefaultLeaseTTL = 3 * time.Second

type Options struct {
	Keys     Keys
	LeaseTTL time.Duration
	// RenewInterval is how often a held lease is extended. Zero disables
	// renewal, leaving the critical section bounded only by LeaseTTL.
	RenewInterval time.Duration
	Retry         RetryPolicy
	Recorder      *metrics.Recorder
	Logger        *zap.Logger
}

func DefaultOptions() Options {
	return Options{
		Keys:          DefaultKeys(),
		LeaseTTL:      DefaultLeaseTTL,
		RenewInterval: DefaultLeaseTTL / 3,
		Retry:         DefaultRetryPolicy(),
	}
}

func (o Options) withDefaults() Options {
	if o.Keys.Lock == "" {
		o.Keys.Lock = DefaultKeys().Lock
	}
	if o.Keys.Stock == "" {
		o.Keys.Stock = DefaultKeys().Stock
	}
	if o.LeaseTTL <= 0 {
		o.LeaseTTL = DefaultLeaseTTL
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Dependencies are the store primitives a strategy may need. Only the ones the
// selected strategy uses have to be set.
type Dependencies struct {
	Counter     port.CounterStore
	Locker      port.LeaseLocker
	Watcher     port.WatchedCounter
	Scripted    port.ScriptedCounter
	Versioned   port.VersionedRecordStore
	RowLock     port.RowLockStore
	Conditional port.ConditionalDecrementer
}

// NewPolicy builds the strategy named by s and wraps it with tracing, metrics
// and logging.
func NewPolicy(s Strategy, deps Dependencies, opts Options) (DeductionPolicy, error) {
	opts = opts.withDefaults()

	var policy DeductionPolicy
	switch s {
	case StrategyLease:
		if deps.Counter == nil || deps.Locker == nil {
			return nil, fmt.Errorf("%s strategy requires a counter store and a lease locker", s)
		}
		policy = NewLeasePolicy(deps.Counter, deps.Locker, opts)
	case StrategyWatch:
		if deps.Watcher == nil {
			return nil, fmt.Errorf("%s strategy requires a watched counter", s)
		}
		policy = NewWatchPolicy(deps.Watcher, opts)
	case StrategyVersioned:
		if deps.Versioned == nil {
			return nil, fmt.Errorf("%s strategy requires a versioned record store", s)
		}
		policy = NewVersionedPolicy(deps.Versioned, opts)
	case StrategyRowLock:
		if deps.RowLock == nil {
			return nil, fmt.Errorf("%s strategy requires a row lock store", s)
		}
		policy = NewRowLockPolicy(deps.RowLock, opts)
	case StrategyLocal:
		if deps.Counter == nil {
			return nil, fmt.Errorf("%s strategy requires a counter store", s)
		}
		policy = NewLocalPolicy(deps.Counter, opts)
	case StrategyScript:
		if deps.Scripted == nil {
			return nil, fmt.Errorf("%s strategy requires a scripted counter", s)
		}
		policy = NewScriptPolicy(deps.Scripted, opts)
	case StrategySQLUpdate:
		if deps.Conditional == nil {
			return nil, fmt.Errorf("%s strategy requires a conditional decrementer", s)
		}
		policy = NewSQLUpdatePolicy(deps.Conditional, opts)
	default:
		return nil, fmt.Errorf("unknown strategy %q", s)
	}

	return Instrument(policy, opts.Recorder, opts.Logger), nil
}

// decrementCounter is the unguarded read-modify-write on the shared counter.
// Callers must hold whatever exclusion their strategy provides.
func decrementCounter(ctx context.Context, counter port.CounterStore, key string) (domain.Outcome, error) {
	current, ok, err := counter.GetCount(ctx, key)
	if err != nil {
		return domain.OutcomeFailed, err
	}
	if !ok || current <= 0 {
		return domain.OutcomeSoldOut, nil
	}

	if err := counter.SetCount(ctx, key, current-1); err != nil {
		return domain.OutcomeFailed, err
	}
	return domain.OutcomeDecremented, nil
}
