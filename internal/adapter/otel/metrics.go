package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "simgate"

// Metrics holds all gateway metric instruments.
type Metrics struct {
	ToolCalls      metric.Int64Counter
	ToolDuration   metric.Float64Histogram
	EngineDuration metric.Float64Histogram
	CacheHits      metric.Int64Counter
	RateLimited    metric.Int64Counter
	OpenSessions   metric.Int64UpDownCounter
	FragmentBytes  metric.Int64Histogram
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.ToolCalls, err = meter.Int64Counter("simgate.tool.calls",
		metric.WithDescription("Tool invocations by tool and result code"))
	if err != nil {
		return nil, err
	}

	m.ToolDuration, err = meter.Float64Histogram("simgate.tool.duration_seconds",
		metric.WithDescription("End-to-end tool invocation duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.EngineDuration, err = meter.Float64Histogram("simgate.engine.duration_seconds",
		metric.WithDescription("Simulation engine call duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.CacheHits, err = meter.Int64Counter("simgate.cache.hits",
		metric.WithDescription("Engine outcomes served from cache"))
	if err != nil {
		return nil, err
	}

	m.RateLimited, err = meter.Int64Counter("simgate.http.rate_limited",
		metric.WithDescription("Requests rejected by admission control"))
	if err != nil {
		return nil, err
	}

	m.OpenSessions, err = meter.Int64UpDownCounter("simgate.sessions.open",
		metric.WithDescription("Open streaming sessions"))
	if err != nil {
		return nil, err
	}

	m.FragmentBytes, err = meter.Int64Histogram("simgate.fragment.bytes",
		metric.WithDescription("Encoded viewer fragment size in bytes"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
