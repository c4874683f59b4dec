// Package devicedefender publishes AWS IoT Device Defender metrics reports.
package devicedefender

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/vitalvas/awsiot"
)

// ErrInvalidTaskState is returned when starting a task that is not ready.
var ErrInvalidTaskState = errors.New("invalid report task state")

// TaskStatus is the lifecycle state of a ReportTask.
type TaskStatus int

const (
	TaskReady TaskStatus = iota
	TaskRunning
	TaskStopped
)

func (s TaskStatus) String() string {
	switch s {
	case TaskReady:
		return "ready"
	case TaskRunning:
		return "running"
	case TaskStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type customMetric struct {
	name    string
	collect func(ctx context.Context) (CustomMetricValue, error)
}

// ReportTask periodically publishes metrics reports for one thing.
type ReportTask struct {
	conn      awsiot.Connection
	thingName string
	opts      *options
	logger    awsiot.Logger

	mu       sync.Mutex
	status   TaskStatus
	custom   []customMetric
	cancel   context.CancelFunc
	done     chan struct{}
	lastID   int64
	lastNet  *NetworkStats
	sample   *ConnectionSample
	sampleAt time.Time
}

// NewReportTask creates a task in the ready state.
func NewReportTask(conn awsiot.Connection, thingName string, opts ...Option) (*ReportTask, error) {
	if thingName == "" {
		return nil, awsiot.NewMissingFieldError("thingName")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	if o.format != ReportFormatJSON {
		return nil, fmt.Errorf("%w: unsupported report format %s", awsiot.ErrInvalidOptions, o.format)
	}
	if o.period < MinTaskPeriod {
		return nil, fmt.Errorf("%w: task period %s is below %s", awsiot.ErrInvalidOptions, o.period, MinTaskPeriod)
	}

	return &ReportTask{
		conn:      conn,
		thingName: thingName,
		opts:      o,
		logger:    o.logger.WithFields(awsiot.LogFields{awsiot.LogFieldThingName: thingName}),
	}, nil
}

// Status returns the task state.
func (t *ReportTask) Status() TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// ReportTopic returns the topic reports are published to.
func (t *ReportTask) ReportTopic() string {
	return awsiot.JoinTopic("$aws/things", t.thingName, "defender", "metrics", "json")
}

func (t *ReportTask) register(name string, fn func(ctx context.Context) (CustomMetricValue, error)) error {
	if name == "" {
		return awsiot.NewMissingFieldError("metricName")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, m := range t.custom {
		if m.name == name {
			return fmt.Errorf("%w: custom metric %q already registered", awsiot.ErrInvalidOptions, name)
		}
	}
	t.custom = append(t.custom, customMetric{name: name, collect: fn})
	return nil
}

// RegisterCustomMetricNumber adds a number metric. A callback error skips
// the metric in that report.
func (t *ReportTask) RegisterCustomMetricNumber(name string, fn func(ctx context.Context) (float64, error)) error {
	return t.register(name, func(ctx context.Context) (CustomMetricValue, error) {
		v, err := fn(ctx)
		return CustomMetricValue{Number: &v}, err
	})
}

// RegisterCustomMetricNumberList adds a number list metric.
func (t *ReportTask) RegisterCustomMetricNumberList(name string, fn func(ctx context.Context) ([]float64, error)) error {
	return t.register(name, func(ctx context.Context) (CustomMetricValue, error) {
		v, err := fn(ctx)
		if v == nil {
			v = []float64{}
		}
		return CustomMetricValue{NumberList: v}, err
	})
}

// RegisterCustomMetricStringList adds a string list metric.
func (t *ReportTask) RegisterCustomMetricStringList(name string, fn func(ctx context.Context) ([]string, error)) error {
	return t.register(name, func(ctx context.Context) (CustomMetricValue, error) {
		v, err := fn(ctx)
		if v == nil {
			v = []string{}
		}
		return CustomMetricValue{StringList: v}, err
	})
}

// RegisterCustomMetricIPAddressList adds an IP address list metric.
// Invalid addresses are left out.
func (t *ReportTask) RegisterCustomMetricIPAddressList(name string, fn func(ctx context.Context) ([]netip.Addr, error)) error {
	return t.register(name, func(ctx context.Context) (CustomMetricValue, error) {
		v, err := fn(ctx)
		return CustomMetricValue{IPList: ipStrings(v)}, err
	})
}

// RegisterCustomMetricCPUUsage adds the cpu_usage metric.
func (t *ReportTask) RegisterCustomMetricCPUUsage() error {
	return t.RegisterCustomMetricNumber("cpu_usage", CPUUsage)
}

// RegisterCustomMetricMemoryUsage adds the memory_usage metric in kilobytes.
func (t *ReportTask) RegisterCustomMetricMemoryUsage() error {
	return t.RegisterCustomMetricNumber("memory_usage", MemoryUsage)
}

// RegisterCustomMetricProcessorCount adds the processor_count metric.
func (t *ReportTask) RegisterCustomMetricProcessorCount() error {
	return t.RegisterCustomMetricNumber("processor_count", ProcessorCount)
}

// Start subscribes to the report replies and begins publishing. The first
// report is sent immediately.
func (t *ReportTask) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.status != TaskReady {
		status := t.status
		t.mu.Unlock()
		return fmt.Errorf("%w: task is %s", ErrInvalidTaskState, status)
	}
	t.mu.Unlock()

	topic := t.ReportTopic()
	var subscribed []string
	for _, reply := range []string{topic + "/accepted", topic + "/rejected"} {
		if err := t.conn.Subscribe(ctx, reply, awsiot.QoS1, t.handleReply); err != nil {
			t.unsubscribe(ctx, subscribed)
			return fmt.Errorf("%w: %s: %w", awsiot.ErrSubscribeFailed, reply, err)
		}
		subscribed = append(subscribed, reply)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != TaskReady {
		return fmt.Errorf("%w: task is %s", ErrInvalidTaskState, t.status)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.done = make(chan struct{})
	t.status = TaskRunning

	go t.run(runCtx, t.done)

	t.logger.Info("report task started", awsiot.LogFields{awsiot.LogFieldDuration: t.opts.period.String()})
	return nil
}

// Stop halts publishing and unsubscribes the reply topics. The cancellation
// handler runs once. Stopping a stopped task is a no-op.
func (t *ReportTask) Stop(ctx context.Context) error {
	t.mu.Lock()
	switch t.status {
	case TaskStopped:
		t.mu.Unlock()
		return nil
	case TaskReady:
		t.mu.Unlock()
		return fmt.Errorf("%w: task is %s", ErrInvalidTaskState, TaskReady)
	}
	t.status = TaskStopped
	cancel, done := t.cancel, t.done
	t.mu.Unlock()

	cancel()
	<-done

	topic := t.ReportTopic()
	t.unsubscribe(ctx, []string{topic + "/accepted", topic + "/rejected"})

	t.logger.Info("report task stopped", nil)
	if t.opts.onCancelled != nil {
		t.opts.onCancelled()
	}
	return nil
}

func (t *ReportTask) unsubscribe(ctx context.Context, filters []string) {
	if len(filters) == 0 {
		return
	}
	if err := t.conn.Unsubscribe(ctx, filters...); err != nil {
		t.logger.Warn("unsubscribe report replies failed", awsiot.LogFields{awsiot.LogFieldError: err.Error()})
	}
}

func (t *ReportTask) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(t.opts.period)
	defer ticker.Stop()

	for {
		t.publish(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (t *ReportTask) publish(ctx context.Context) {
	report := t.buildReport(ctx)

	payload, err := json.Marshal(report)
	if err != nil {
		t.logger.Error("encode report failed", awsiot.LogFields{awsiot.LogFieldError: err.Error()})
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, t.opts.publishTimeout)
	defer cancel()

	err = t.conn.Publish(pubCtx, &awsiot.Message{
		Topic:   t.ReportTopic(),
		Payload: payload,
		QoS:     awsiot.QoS1,
	})
	if err != nil {
		if ctx.Err() == nil {
			t.logger.Warn("publish report failed", awsiot.LogFields{awsiot.LogFieldError: err.Error()})
		}
		return
	}

	t.opts.metrics.Counter(awsiot.MetricReportsPublished, nil).Inc()
	t.logger.Debug("report published", awsiot.LogFields{
		"report_id":          report.Header.ReportID,
		awsiot.LogFieldBytes: len(payload),
	})
}

func (t *ReportTask) buildReport(ctx context.Context) *Report {
	now := t.opts.now()

	t.mu.Lock()
	id := max(now.Unix(), t.lastID+1)
	t.lastID = id
	custom := append([]customMetric(nil), t.custom...)
	t.mu.Unlock()

	report := &Report{Header: Header{ReportID: id, Version: ReportVersion}}

	if stats, err := t.opts.collector.NetworkStats(ctx); err != nil {
		t.logger.Warn("collect network stats failed", awsiot.LogFields{awsiot.LogFieldError: err.Error()})
	} else {
		if t.lastNet != nil {
			d := stats.Sub(*t.lastNet)
			report.Metrics.NetworkStats = &d
		}
		t.lastNet = &stats
	}

	if sample := t.connections(ctx, now); sample != nil {
		report.Metrics.ListeningTCPPorts = listening(sample.ListeningTCP)
		report.Metrics.ListeningUDPPorts = listening(sample.ListeningUDP)
		report.Metrics.TCPConnections = established(sample.Established)
	}

	for _, m := range custom {
		v, err := m.collect(ctx)
		if err != nil {
			t.logger.Debug("custom metric skipped", awsiot.LogFields{
				"metric":             m.name,
				awsiot.LogFieldError: err.Error(),
			})
			continue
		}
		if report.CustomMetrics == nil {
			report.CustomMetrics = make(map[string][]CustomMetricValue)
		}
		report.CustomMetrics[m.name] = []CustomMetricValue{v}
	}

	return report
}

// connections returns the socket listing, sampling again only once the
// sample period has passed.
func (t *ReportTask) connections(ctx context.Context, now time.Time) *ConnectionSample {
	if t.sample != nil && now.Sub(t.sampleAt) < t.opts.samplePeriod {
		return t.sample
	}

	sample, err := t.opts.collector.Connections(ctx)
	if err != nil {
		t.logger.Warn("collect connections failed", awsiot.LogFields{awsiot.LogFieldError: err.Error()})
		return t.sample
	}

	t.sample, t.sampleAt = sample, now
	return sample
}

func (t *ReportTask) handleReply(msg *awsiot.Message) {
	var resp ReportResponse
	if err := json.Unmarshal(msg.Payload, &resp); err != nil {
		t.logger.Warn("undecodable report reply", awsiot.LogFields{
			awsiot.LogFieldTopic: msg.Topic,
			awsiot.LogFieldError: err.Error(),
		})
		return
	}

	fields := awsiot.LogFields{awsiot.LogFieldTopic: msg.Topic}
	if resp.ReportID != nil {
		fields["report_id"] = *resp.ReportID
	}

	if strings.HasSuffix(msg.Topic, "/rejected") {
		t.opts.metrics.Counter(awsiot.MetricReportsRejected, nil).Inc()
		if resp.StatusDetails != nil && resp.StatusDetails.ErrorCode != nil {
			fields[awsiot.LogFieldError] = *resp.StatusDetails.ErrorCode
		}
		t.logger.Warn("report rejected", fields)
		return
	}

	t.logger.Debug("report accepted", fields)
}
