package txmanager

import (
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"msgtx/metrics"
)

// DefaultMaxTransactionSize is the send limit used when none is configured.
const DefaultMaxTransactionSize = 100000

type Options struct {
	Timeout            time.Duration // idle global transactions older than this are rolled back by the reaper
	MonitorTick        time.Duration // reaper polling interval
	MaxTransactionSize int           // negative means unlimited
	Metrics            *metrics.Collector
	Tracer             trace.Tracer

	maxSizeSet bool
}

type Option func(*Options)

func WithTimeout(timeout time.Duration) Option {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return func(o *Options) {
		o.Timeout = timeout
	}
}

func WithMonitorTick(tick time.Duration) Option {
	if tick <= 0 {
		tick = 10 * time.Second
	}
	return func(o *Options) {
		o.MonitorTick = tick
	}
}

func WithMaxTransactionSize(n int) Option {
	return func(o *Options) {
		o.MaxTransactionSize = n
		o.maxSizeSet = true
	}
}

func WithMetrics(c *metrics.Collector) Option {
	return func(o *Options) {
		o.Metrics = c
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(o *Options) {
		o.Tracer = t
	}
}

func repair(o *Options) {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.MonitorTick <= 0 {
		o.MonitorTick = 10 * time.Second
	}
	if !o.maxSizeSet {
		o.MaxTransactionSize = DefaultMaxTransactionSize
	}
	if o.Tracer == nil {
		o.Tracer = otel.Tracer("msgtx/txmanager")
	}
}
