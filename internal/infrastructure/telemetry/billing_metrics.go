package telemetry

import (
	"context"
	"time"

	"github.com/arungoks/tankerapp/internal/domain/shared"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Result attribute values
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// BillingMetrics records the billing engine's business metrics.
// A nil *BillingMetrics records nothing.
type BillingMetrics struct {
	logger *zap.Logger

	mutationTotal       *Counter
	cycleCloseTotal     *Counter
	billsComputedTotal  *Counter
	billComputeDuration *Histogram
	storeErrorTotal     *Counter
	domainEventTotal    *Counter
	snapshotConsumers   *Gauge
	currentCycleTankers *Gauge
}

// NewBillingMetrics creates the billing instruments on meter.
func NewBillingMetrics(meter metric.Meter, logger *zap.Logger) (*BillingMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	bm := &BillingMetrics{logger: logger}
	var err error
	if bm.mutationTotal, err = NewCounter(meter, "tanker_mutation_total",
		"Store mutations by operation and result", "{mutation}"); err != nil {
		return nil, err
	}
	if bm.cycleCloseTotal, err = NewCounter(meter, "tanker_cycle_close_total",
		"Billing cycle close attempts by result", "{close}"); err != nil {
		return nil, err
	}
	if bm.billsComputedTotal, err = NewCounter(meter, "tanker_bills_computed_total",
		"Bill lists computed from snapshots", "{computation}"); err != nil {
		return nil, err
	}
	if bm.billComputeDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "tanker_bill_compute_duration_seconds",
		Description: "Time to compute one bill list",
		Unit:        "s",
		Boundaries:  ComputeDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if bm.storeErrorTotal, err = NewCounter(meter, "tanker_store_error_total",
		"Store errors delivered to subscribers", "{error}"); err != nil {
		return nil, err
	}
	if bm.domainEventTotal, err = NewCounter(meter, "tanker_domain_event_total",
		"Domain events published by type", "{event}"); err != nil {
		return nil, err
	}
	if bm.snapshotConsumers, err = NewGauge(meter, "tanker_snapshot_consumers",
		"Live consumers of the snapshot aggregator", "{consumer}"); err != nil {
		return nil, err
	}
	if bm.currentCycleTankers, err = NewGauge(meter, "tanker_current_cycle_tankers",
		"Tankers delivered in the open billing cycle", "{tanker}"); err != nil {
		return nil, err
	}
	return bm, nil
}

func resultAttrs(err error) []attribute.KeyValue {
	if err == nil {
		return []attribute.KeyValue{AttrResult.String(ResultSuccess)}
	}
	code := shared.ErrorCode(err)
	if code == "" {
		code = "UNKNOWN"
	}
	return []attribute.KeyValue{AttrResult.String(ResultError), AttrErrorCode.String(code)}
}

// RecordMutation counts one gateway mutation
func (bm *BillingMetrics) RecordMutation(ctx context.Context, operation string, err error) {
	if bm == nil {
		return
	}
	bm.mutationTotal.Inc(ctx, append(resultAttrs(err), AttrOperation.String(operation))...)
}

// RecordCycleClose counts one cycle close attempt
func (bm *BillingMetrics) RecordCycleClose(ctx context.Context, err error) {
	if bm == nil {
		return
	}
	bm.cycleCloseTotal.Inc(ctx, resultAttrs(err)...)
}

// RecordBillComputation records one bill list computation
func (bm *BillingMetrics) RecordBillComputation(ctx context.Context, d time.Duration) {
	if bm == nil {
		return
	}
	bm.billsComputedTotal.Inc(ctx)
	bm.billComputeDuration.RecordDuration(ctx, d)
}

// RecordStoreError counts an error pushed to subscribers
func (bm *BillingMetrics) RecordStoreError(ctx context.Context, err error) {
	if bm == nil {
		return
	}
	bm.storeErrorTotal.Inc(ctx, resultAttrs(err)[1:]...)
}

// RecordSnapshotConsumers records the number of live aggregator consumers
func (bm *BillingMetrics) RecordSnapshotConsumers(ctx context.Context, n int) {
	if bm == nil {
		return
	}
	bm.snapshotConsumers.Record(ctx, int64(n))
}

// RecordCurrentCycleTankers records the open cycle's tanker total
func (bm *BillingMetrics) RecordCurrentCycleTankers(ctx context.Context, n int) {
	if bm == nil {
		return
	}
	bm.currentCycleTankers.Record(ctx, int64(n))
}

// Handle implements shared.EventHandler by counting every domain event
func (bm *BillingMetrics) Handle(ctx context.Context, event shared.DomainEvent) error {
	if bm == nil {
		return nil
	}
	bm.domainEventTotal.Inc(ctx, AttrEventType.String(event.EventType()))
	return nil
}

// EventTypes implements shared.EventHandler; nil subscribes to all events
func (bm *BillingMetrics) EventTypes() []string {
	return nil
}

var _ shared.EventHandler = (*BillingMetrics)(nil)

// MetricsError represents an error in metrics operations.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "telemetry", Err: "meter cannot be nil"}
