package telemetry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumOf(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "%s is not an int64 sum", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestChannelMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := telemetry.NewChannelMetrics(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.ObserveAttempt(ctx, "tienda", "POST", 500, 40*time.Millisecond, nil)
	m.ObserveRetry(ctx, "tienda", "POST")
	m.ObserveAttempt(ctx, "tienda", "POST", 0, time.Second, errors.New("connection reset"))
	m.ObserveRetry(ctx, "tienda", "POST")
	m.ObserveAttempt(ctx, "tienda", "POST", 201, 30*time.Millisecond, nil)
	m.ObserveAttempt(ctx, "tienda", "GET", 404, 10*time.Millisecond, nil)

	metrics := collect(t, reader)
	assert.EqualValues(t, 4, sumOf(t, metrics["catalogsync.channel.requests"]))
	assert.EqualValues(t, 2, sumOf(t, metrics["catalogsync.channel.errors"]))
	assert.EqualValues(t, 2, sumOf(t, metrics["catalogsync.channel.retries"]))

	hist, ok := metrics["catalogsync.channel.duration"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.EqualValues(t, 4, count)
}
