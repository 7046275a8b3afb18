package service

import (
	"context"

	"github.com/rl1809/stock-deduct/internal/core/domain"
	"github.com/rl1809/stock-deduct/internal/port"
)

// ScriptPolicy pushes the whole check-and-decrement into one Lua evaluation.
type ScriptPolicy struct {
	counter port.ScriptedCounter
	key     string
}

func NewScriptPolicy(counter port.ScriptedCounter, opts Options) *ScriptPolicy {
	opts = opts.withDefaults()
	return &ScriptPolicy{counter: counter, key: opts.Keys.Stock}
}

func (p *ScriptPolicy) Name() string { return string(StrategyScript) }

func (p *ScriptPolicy) DeductOne(ctx context.Context, _ string) (domain.Outcome, error) {
	return outcomeOf(p.counter.DecrementStock(ctx, p.key, 1))
}

// SQLUpdatePolicy relies on the row lock MySQL takes for a single guarded
// UPDATE. Without an index on product_code that lock covers the whole table.
type SQLUpdatePolicy struct {
	store port.ConditionalDecrementer
}

func NewSQLUpdatePolicy(store port.ConditionalDecrementer, _ Options) *SQLUpdatePolicy {
	return &SQLUpdatePolicy{store: store}
}

func (p *SQLUpdatePolicy) Name() string { return string(StrategySQLUpdate) }

func (p *SQLUpdatePolicy) DeductOne(ctx context.Context, productCode string) (domain.Outcome, error) {
	return outcomeOf(p.store.DecrementIfAvailable(ctx, productCode))
}

func outcomeOf(decremented bool, err error) (domain.Outcome, error) {
	switch {
	case err != nil:
		return domain.OutcomeFailed, err
	case decremented:
		return domain.OutcomeDecremented, nil
	default:
		return domain.OutcomeSoldOut, nil
	}
}
