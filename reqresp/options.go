package reqresp

import (
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/vitalvas/awsiot"
)

const (
	defaultOperationTimeout         = 60 * time.Second
	defaultMaxRequestResponseSubs   = 4
	defaultMaxStreamingSubs         = 10
	minRequestResponseSubscriptions = 2
	defaultStreamRetryInterval      = 500 * time.Millisecond
	defaultStreamRetries            = 5
)

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	operationTimeout   time.Duration
	maxRequestSubs     int
	maxStreamingSubs   int
	qos                byte
	publishLimit       rate.Limit
	publishBurst       int
	streamRetryInitial time.Duration
	streamRetries      uint64
	logger             awsiot.Logger
	metrics            awsiot.Metrics
}

func defaultOptions() *clientOptions {
	return &clientOptions{
		operationTimeout:   defaultOperationTimeout,
		maxRequestSubs:     defaultMaxRequestResponseSubs,
		maxStreamingSubs:   defaultMaxStreamingSubs,
		qos:                awsiot.QoS1,
		publishLimit:       rate.Inf,
		streamRetryInitial: defaultStreamRetryInterval,
		streamRetries:      defaultStreamRetries,
		logger:             awsiot.NewNoOpLogger(),
		metrics:            &awsiot.NoOpMetrics{},
	}
}

func applyOptions(opts ...Option) *clientOptions {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *clientOptions) validate() error {
	if o.operationTimeout <= 0 {
		return fmt.Errorf("%w: operation timeout must be positive", awsiot.ErrInvalidOptions)
	}
	if o.maxRequestSubs < minRequestResponseSubscriptions {
		return fmt.Errorf("%w: at least %d request-response subscriptions required",
			awsiot.ErrInvalidOptions, minRequestResponseSubscriptions)
	}
	if o.maxStreamingSubs < 1 {
		return fmt.Errorf("%w: at least one streaming subscription required", awsiot.ErrInvalidOptions)
	}
	if o.qos > awsiot.QoS1 {
		return fmt.Errorf("%w: qos %d not supported", awsiot.ErrInvalidOptions, o.qos)
	}
	return nil
}

// WithOperationTimeout sets how long a request waits for its response.
// The timer starts at submission and includes time spent queued.
func WithOperationTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		o.operationTimeout = d
	}
}

// WithMaxRequestResponseSubscriptions sets the number of topic filters
// request-response operations may hold at once. Minimum 2.
func WithMaxRequestResponseSubscriptions(n int) Option {
	return func(o *clientOptions) {
		o.maxRequestSubs = n
	}
}

// WithMaxStreamingSubscriptions sets the number of topic filters streams may hold at once.
func WithMaxStreamingSubscriptions(n int) Option {
	return func(o *clientOptions) {
		o.maxStreamingSubs = n
	}
}

// WithQoS sets the QoS for request publishes and all subscriptions.
func WithQoS(qos byte) Option {
	return func(o *clientOptions) {
		o.qos = qos
	}
}

// WithPublishRate paces request publishes with a token bucket.
func WithPublishRate(limit rate.Limit, burst int) Option {
	return func(o *clientOptions) {
		o.publishLimit = limit
		o.publishBurst = burst
	}
}

// WithStreamRetry sets the backoff used when a stream subscribe fails.
// A stream halts after retries failed attempts.
func WithStreamRetry(initial time.Duration, retries uint64) Option {
	return func(o *clientOptions) {
		o.streamRetryInitial = initial
		o.streamRetries = retries
	}
}

// WithLogger sets the logger.
func WithLogger(logger awsiot.Logger) Option {
	return func(o *clientOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(metrics awsiot.Metrics) Option {
	return func(o *clientOptions) {
		if metrics != nil {
			o.metrics = metrics
		}
	}
}
