package service

import (
	"context"
	"sync"

	"github.com/rl1809/stock-deduct/internal/core/domain"
	"github.com/rl1809/stock-deduct/internal/port"
)

// LocalPolicy serialises the read-modify-write with an in-process mutex. It
// is only correct while every caller shares this process; a second replica
// oversells.
type LocalPolicy struct {
	mu      sync.Mutex
	counter port.CounterStore
	key     string
}

func NewLocalPolicy(counter port.CounterStore, opts Options) *LocalPolicy {
	opts = opts.withDefaults()
	return &LocalPolicy{counter: counter, key: opts.Keys.Stock}
}

func (p *LocalPolicy) Name() string { return string(StrategyLocal) }

func (p *LocalPolicy) DeductOne(ctx context.Context, _ string) (domain.Outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return decrementCounter(ctx, p.counter, p.key)
}
