package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/arungoks/tankerapp/internal/domain/shared"
	"github.com/arungoks/tankerapp/internal/domain/tanker"
	"github.com/arungoks/tankerapp/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNewBillingMetrics_NilMeter(t *testing.T) {
	_, err := telemetry.NewBillingMetrics(nil, nil)
	assert.ErrorIs(t, err, telemetry.ErrMeterNil)
}

func TestBillingMetrics_NilReceiverIsNoop(t *testing.T) {
	var bm *telemetry.BillingMetrics
	ctx := context.Background()
	assert.NotPanics(t, func() {
		bm.RecordMutation(ctx, "set_occupancy", nil)
		bm.RecordCycleClose(ctx, nil)
		bm.RecordBillComputation(ctx, time.Millisecond)
		bm.RecordStoreError(ctx, shared.ErrStoreUnavailable)
		bm.RecordSnapshotConsumers(ctx, 1)
		bm.RecordCurrentCycleTankers(ctx, 1)
		assert.NoError(t, bm.Handle(ctx, tanker.NewRosterImportedEvent(3)))
	})
}

func TestBillingMetrics_Records(t *testing.T) {
	reader, provider := newTestMeter(t)
	bm, err := telemetry.NewBillingMetrics(provider.Meter("test"), nil)
	require.NoError(t, err)

	ctx := context.Background()
	bm.RecordMutation(ctx, "increment_tanker", nil)
	bm.RecordMutation(ctx, "increment_tanker", shared.NewValidationError("count must not be negative"))
	bm.RecordCycleClose(ctx, nil)
	bm.RecordBillComputation(ctx, 2*time.Millisecond)
	bm.RecordStoreError(ctx, shared.NewStoreUnavailable(assert.AnError))
	bm.RecordCurrentCycleTankers(ctx, 12)
	require.NoError(t, bm.Handle(ctx, tanker.NewRosterImportedEvent(60)))
	assert.Nil(t, bm.EventTypes())

	metrics := collect(t, reader)
	mutations := metrics["tanker_mutation_total"]
	assert.Equal(t, int64(2), sumValue(t, mutations))
	assert.Equal(t, int64(1), sumValue(t, mutations,
		telemetry.AttrResult.String(telemetry.ResultSuccess),
		telemetry.AttrOperation.String("increment_tanker"),
	))
	assert.Equal(t, int64(1), sumValue(t, metrics["tanker_cycle_close_total"]))
	assert.Equal(t, int64(1), sumValue(t, metrics["tanker_bills_computed_total"]))
	assert.Equal(t, int64(1), sumValue(t, metrics["tanker_store_error_total"]))
	assert.Equal(t, int64(1), sumValue(t, metrics["tanker_domain_event_total"],
		telemetry.AttrEventType.String(tanker.EventTypeRosterImported)))

	gauge, ok := metrics["tanker_current_cycle_tankers"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, int64(12), gauge.DataPoints[0].Value)
}
