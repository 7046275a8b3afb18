package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/stock-deduct/internal/core/domain"
	"github.com/rl1809/stock-deduct/internal/metrics"
)

var tracer = otel.Tracer("github.com/rl1809/stock-deduct/internal/core/service")

type instrumentedPolicy struct {
	next     DeductionPolicy
	recorder *metrics.Recorder
	logger   *zap.Logger
}

// Instrument wraps next with a span, outcome metrics and a log line for every
// failed deduction.
func Instrument(next DeductionPolicy, recorder *metrics.Recorder, logger *zap.Logger) DeductionPolicy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &instrumentedPolicy{next: next, recorder: recorder, logger: logger}
}

func (p *instrumentedPolicy) Name() string { return p.next.Name() }

func (p *instrumentedPolicy) DeductOne(ctx context.Context, resourceID string) (domain.Outcome, error) {
	ctx, span := tracer.Start(ctx, "DeductOne", trace.WithAttributes(
		attribute.String("deduct.strategy", p.next.Name()),
		attribute.String("deduct.resource", resourceID),
	))
	defer span.End()

	start := time.Now()
	outcome, err := p.next.DeductOne(ctx, resourceID)
	if err != nil {
		outcome = domain.OutcomeFailed
	}
	elapsed := time.Since(start)

	p.recorder.ObserveDeduction(p.next.Name(), string(outcome), elapsed)
	span.SetAttributes(attribute.String("deduct.outcome", string(outcome)))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.Warn("deduction failed",
			zap.String("strategy", p.next.Name()),
			zap.String("resource", resourceID),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return outcome, err
	}

	span.SetStatus(codes.Ok, "")
	return outcome, nil
}
