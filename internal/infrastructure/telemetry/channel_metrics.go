package telemetry

import (
	"context"
	"strconv"
	"time"

	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/domain/integration"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ChannelMetrics records channel round trips. It satisfies the channel client's
// observer interface.
type ChannelMetrics struct {
	requests *Counter
	errors   *Counter
	retries  *Counter
	duration *Histogram
}

// NewChannelMetrics creates the channel instruments on meter
func NewChannelMetrics(meter metric.Meter) (*ChannelMetrics, error) {
	requests, err := NewCounter(meter, "catalogsync.channel.requests", "Channel HTTP attempts", "{request}")
	if err != nil {
		return nil, err
	}
	errs, err := NewCounter(meter, "catalogsync.channel.errors", "Channel attempts that failed at transport or with a 5xx/429", "{request}")
	if err != nil {
		return nil, err
	}
	retries, err := NewCounter(meter, "catalogsync.channel.retries", "Channel attempts that were retried", "{retry}")
	if err != nil {
		return nil, err
	}
	duration, err := NewHistogram(meter, HistogramOpts{
		Name:        "catalogsync.channel.duration",
		Description: "Channel attempt duration",
		Unit:        "s",
		Boundaries:  ChannelDurationBuckets,
	})
	if err != nil {
		return nil, err
	}
	return &ChannelMetrics{requests: requests, errors: errs, retries: retries, duration: duration}, nil
}

// ObserveAttempt records one HTTP attempt. status is 0 when no response arrived.
func (m *ChannelMetrics) ObserveAttempt(ctx context.Context, channel integration.ChannelKey, method string, status int, elapsed time.Duration, err error) {
	attrs := []attribute.KeyValue{
		AttrChannel.String(channel.String()),
		AttrHTTPMethod.String(method),
		AttrHTTPStatus.String(statusLabel(status)),
	}
	m.requests.Inc(ctx, attrs...)
	m.duration.RecordDuration(ctx, elapsed, attrs...)
	if err != nil || status == 429 || status >= 500 {
		m.errors.Inc(ctx, attrs...)
	}
}

// ObserveRetry records a retried attempt
func (m *ChannelMetrics) ObserveRetry(ctx context.Context, channel integration.ChannelKey, method string) {
	m.retries.Inc(ctx, AttrChannel.String(channel.String()), AttrHTTPMethod.String(method))
}

func statusLabel(status int) string {
	if status == 0 {
		return "none"
	}
	return strconv.Itoa(status)
}
