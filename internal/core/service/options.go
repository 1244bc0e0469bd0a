package service

import (
	"log/slog"
	"time"

	"github.com/rl1809/car-sharing/internal/port"
)

type options struct {
	now     func() time.Time
	metrics port.Metrics
	log     *slog.Logger
}

type Option func(*options)

// WithClock replaces time.Now as the source of "today".
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithMetrics(m port.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func WithLogger(log *slog.Logger) Option {
	return func(o *options) { o.log = log }
}

func newOptions(opts []Option) options {
	o := options{
		now:     time.Now,
		metrics: port.NopMetrics{},
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
