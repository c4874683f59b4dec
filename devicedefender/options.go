package devicedefender

import (
	"time"

	"github.com/vitalvas/awsiot"
)

// ReportFormat is the encoding of published reports.
type ReportFormat int

const (
	// ReportFormatJSON publishes long-name JSON reports.
	ReportFormatJSON ReportFormat = iota
)

func (f ReportFormat) String() string {
	if f == ReportFormatJSON {
		return "json"
	}
	return "unknown"
}

const (
	// MinTaskPeriod is the shortest report interval the service accepts.
	MinTaskPeriod = 300 * time.Second

	// DefaultTaskPeriod is the default report interval.
	DefaultTaskPeriod = 300 * time.Second

	// DefaultNetworkConnectionSamplePeriod is the default socket listing interval.
	DefaultNetworkConnectionSamplePeriod = 300 * time.Second
)

type options struct {
	format         ReportFormat
	period         time.Duration
	samplePeriod   time.Duration
	onCancelled    func()
	logger         awsiot.Logger
	metrics        awsiot.Metrics
	collector      Collector
	publishTimeout time.Duration
	now            func() time.Time
}

func defaultOptions() *options {
	return &options{
		format:         ReportFormatJSON,
		period:         DefaultTaskPeriod,
		samplePeriod:   DefaultNetworkConnectionSamplePeriod,
		logger:         awsiot.NewNoOpLogger(),
		metrics:        &awsiot.NoOpMetrics{},
		collector:      NewSystemCollector(),
		publishTimeout: 30 * time.Second,
		now:            time.Now,
	}
}

// Option configures a ReportTask.
type Option func(*options)

// WithReportFormat sets the report encoding. Only ReportFormatJSON is supported.
func WithReportFormat(f ReportFormat) Option {
	return func(o *options) {
		o.format = f
	}
}

// WithTaskPeriod sets the report interval. It must be at least MinTaskPeriod.
func WithTaskPeriod(d time.Duration) Option {
	return func(o *options) {
		o.period = d
	}
}

// WithNetworkConnectionSamplePeriod sets how often sockets are listed.
// Reports in between reuse the previous listing.
func WithNetworkConnectionSamplePeriod(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.samplePeriod = d
		}
	}
}

// WithTaskCancelledHandler sets a function called once when the task stops.
func WithTaskCancelledHandler(fn func()) Option {
	return func(o *options) {
		o.onCancelled = fn
	}
}

// WithLogger sets the task logger.
func WithLogger(logger awsiot.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector for published and rejected reports.
func WithMetrics(m awsiot.Metrics) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithCollector replaces the host metrics collector.
func WithCollector(c Collector) Option {
	return func(o *options) {
		if c != nil {
			o.collector = c
		}
	}
}
