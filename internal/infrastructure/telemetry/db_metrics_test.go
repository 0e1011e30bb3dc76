package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap/zaptest"
)

func newManualMeterProvider(t *testing.T) (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return reader, provider
}

func counterTotal(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestNewDBMetrics_NilMeter(t *testing.T) {
	_, err := NewDBMetrics(nil, DefaultDBMetricsConfig(), nil)
	assert.ErrorIs(t, err, ErrMeterNil)
}

func TestDBMetrics_RecordQuery(t *testing.T) {
	reader, provider := newManualMeterProvider(t)
	m, err := NewDBMetrics(provider.Meter("test"), DBMetricsConfig{SlowQueryThreshold: 10 * time.Millisecond}, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordQuery(ctx, "select", "apartments", time.Millisecond)
	m.RecordQuery(ctx, "", "", 50*time.Millisecond)

	assert.Equal(t, int64(2), counterTotal(t, reader, "db_query_total"))
	assert.Equal(t, int64(1), counterTotal(t, reader, "db_slow_query_total"))
}

func TestDBMetrics_RegisterCallbacks(t *testing.T) {
	reader, provider := newManualMeterProvider(t)
	m, err := NewDBMetrics(provider.Meter("test"), DefaultDBMetricsConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)

	db := openTestDB(t)
	require.NoError(t, m.RegisterCallbacks(db))

	require.NoError(t, db.Create(&tracedRow{Name: "101"}).Error)
	var rows []tracedRow
	require.NoError(t, db.Find(&rows).Error)

	assert.GreaterOrEqual(t, counterTotal(t, reader, "db_query_total"), int64(2))
}

func TestDBMetrics_PoolStatsAndStop(t *testing.T) {
	reader, provider := newManualMeterProvider(t)
	m, err := NewDBMetrics(provider.Meter("test"), DBMetricsConfig{PoolStatsInterval: time.Hour}, zaptest.NewLogger(t))
	require.NoError(t, err)

	db := openTestDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)

	m.StartPoolStatsCollection(context.Background(), sqlDB)
	m.Stop()
	m.Stop()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, metric := range sm.Metrics {
			names[metric.Name] = true
		}
	}
	assert.True(t, names["db_pool_connections"])
	assert.True(t, names["db_pool_connections_max"])
}

func TestDetectOperationType(t *testing.T) {
	tests := []struct {
		sql  string
		want string
	}{
		{"SELECT * FROM apartments", "SELECT"},
		{"  insert into tanker_events", "INSERT"},
		{"UPDATE cycle_boundary SET", "UPDATE"},
		{"delete from vacancy_records", "DELETE"},
		{"CREATE TABLE x (id int)", "OTHER"},
		{"", "OTHER"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, detectOperationType(tt.sql), tt.sql)
	}
}
