package awsiot

import (
	"time"
)

// MetricType represents the type of metric.
type MetricType int

const (
	// MetricTypeCounter is a monotonically increasing counter.
	MetricTypeCounter MetricType = 0
	// MetricTypeGauge is a value that can go up and down.
	MetricTypeGauge MetricType = 1
	// MetricTypeHistogram tracks distribution of values.
	MetricTypeHistogram MetricType = 2
)

// String returns the string representation of the metric type.
func (t MetricType) String() string {
	switch t {
	case MetricTypeCounter:
		return "counter"
	case MetricTypeGauge:
		return "gauge"
	case MetricTypeHistogram:
		return "histogram"
	default:
		return "unknown"
	}
}

// MetricLabels represents key-value pairs for metric labels.
type MetricLabels map[string]string

// Metrics defines the interface for collecting metrics.
type Metrics interface {
	// Counter returns a counter metric.
	Counter(name string, labels MetricLabels) Counter

	// Gauge returns a gauge metric.
	Gauge(name string, labels MetricLabels) Gauge

	// Histogram returns a histogram metric.
	Histogram(name string, labels MetricLabels) Histogram
}

// Counter is a monotonically increasing counter.
type Counter interface {
	// Inc increments the counter by 1.
	Inc()

	// Add adds the given value to the counter.
	Add(delta float64)

	// Value returns the current value.
	Value() float64
}

// Gauge is a metric that can go up and down.
type Gauge interface {
	// Set sets the gauge to the given value.
	Set(value float64)

	// Inc increments the gauge by 1.
	Inc()

	// Dec decrements the gauge by 1.
	Dec()

	// Add adds the given value to the gauge.
	Add(delta float64)

	// Sub subtracts the given value from the gauge.
	Sub(delta float64)

	// Value returns the current value.
	Value() float64
}

// Histogram tracks the distribution of values.
type Histogram interface {
	// Observe records a value.
	Observe(value float64)

	// ObserveDuration records a duration in seconds.
	ObserveDuration(d time.Duration)

	// Count returns the number of observations.
	Count() uint64

	// Sum returns the sum of all observations.
	Sum() float64
}

// NoOpMetrics is a no-op implementation of Metrics.
type NoOpMetrics struct{}

// Counter returns a no-op counter.
func (n *NoOpMetrics) Counter(_ string, _ MetricLabels) Counter {
	return &noOpCounter{}
}

// Gauge returns a no-op gauge.
func (n *NoOpMetrics) Gauge(_ string, _ MetricLabels) Gauge {
	return &noOpGauge{}
}

// Histogram returns a no-op histogram.
func (n *NoOpMetrics) Histogram(_ string, _ MetricLabels) Histogram {
	return &noOpHistogram{}
}

type noOpCounter struct{}

func (n *noOpCounter) Inc()           {}
func (n *noOpCounter) Add(_ float64)  {}
func (n *noOpCounter) Value() float64 { return 0 }

type noOpGauge struct{}

func (n *noOpGauge) Set(_ float64)  {}
func (n *noOpGauge) Inc()           {}
func (n *noOpGauge) Dec()           {}
func (n *noOpGauge) Add(_ float64)  {}
func (n *noOpGauge) Sub(_ float64)  {}
func (n *noOpGauge) Value() float64 { return 0 }

type noOpHistogram struct{}

func (n *noOpHistogram) Observe(_ float64)               {}
func (n *noOpHistogram) ObserveDuration(_ time.Duration) {}
func (n *noOpHistogram) Count() uint64                   { return 0 }
func (n *noOpHistogram) Sum() float64                    { return 0 }

// Standard metric names for device-side clients.
const (
	// MetricRequestsSubmitted is the total number of submitted request/response operations.
	MetricRequestsSubmitted = "awsiot_requests_submitted_total"

	// MetricRequestsCompleted is the total number of completed operations, labeled by outcome.
	MetricRequestsCompleted = "awsiot_requests_completed_total"

	// MetricRequestsPending is the current number of in-flight operations.
	MetricRequestsPending = "awsiot_requests_pending"

	// MetricRequestsQueued is the current number of operations waiting for subscription budget.
	MetricRequestsQueued = "awsiot_requests_queued"

	// MetricRequestLatency is the request/response round trip latency.
	MetricRequestLatency = "awsiot_request_latency_seconds"

	// MetricSubscriptions is the current number of active topic filter subscriptions.
	MetricSubscriptions = "awsiot_subscriptions"

	// MetricStreamEvents is the total number of stream status events, labeled by status.
	MetricStreamEvents = "awsiot_stream_events_total"

	// MetricStreamMessages is the total number of messages delivered to streams.
	MetricStreamMessages = "awsiot_stream_messages_total"

	// MetricReportsPublished is the total number of Device Defender reports published.
	MetricReportsPublished = "awsiot_defender_reports_published_total"

	// MetricReportsRejected is the total number of Device Defender reports rejected by the service.
	MetricReportsRejected = "awsiot_defender_reports_rejected_total"
)

// Standard metric labels.
const (
	// LabelOutcome is the operation outcome label.
	LabelOutcome = "outcome"

	// LabelKind is the subscription kind label.
	LabelKind = "kind"

	// LabelStatus is the stream status label.
	LabelStatus = "status"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeTimeout = "timeout"
	OutcomeError   = "error"
)

// OperationMetrics provides convenience methods for request/response metrics.
type OperationMetrics struct {
	metrics Metrics
}

// NewOperationMetrics creates a new OperationMetrics instance.
func NewOperationMetrics(m Metrics) *OperationMetrics {
	if m == nil {
		m = &NoOpMetrics{}
	}
	return &OperationMetrics{metrics: m}
}

// RequestSubmitted records a new in-flight operation.
func (o *OperationMetrics) RequestSubmitted() {
	o.metrics.Counter(MetricRequestsSubmitted, nil).Inc()
	o.metrics.Gauge(MetricRequestsPending, nil).Inc()
}

// RequestCompleted records a finished operation.
func (o *OperationMetrics) RequestCompleted(outcome string, d time.Duration) {
	o.metrics.Gauge(MetricRequestsPending, nil).Dec()
	o.metrics.Counter(MetricRequestsCompleted, MetricLabels{LabelOutcome: outcome}).Inc()
	if outcome == OutcomeSuccess {
		o.metrics.Histogram(MetricRequestLatency, nil).ObserveDuration(d)
	}
}

// QueueLength records the number of operations waiting for subscription budget.
func (o *OperationMetrics) QueueLength(n int) {
	o.metrics.Gauge(MetricRequestsQueued, nil).Set(float64(n))
}

// SubscriptionAdded records a new topic filter subscription.
func (o *OperationMetrics) SubscriptionAdded(kind string) {
	o.metrics.Gauge(MetricSubscriptions, MetricLabels{LabelKind: kind}).Inc()
}

// SubscriptionRemoved records a released topic filter subscription.
func (o *OperationMetrics) SubscriptionRemoved(kind string) {
	o.metrics.Gauge(MetricSubscriptions, MetricLabels{LabelKind: kind}).Dec()
}

// StreamEvent records a stream subscription status transition.
func (o *OperationMetrics) StreamEvent(status string) {
	o.metrics.Counter(MetricStreamEvents, MetricLabels{LabelStatus: status}).Inc()
}

// StreamMessage records a message delivered to a stream.
func (o *OperationMetrics) StreamMessage() {
	o.metrics.Counter(MetricStreamMessages, nil).Inc()
}
