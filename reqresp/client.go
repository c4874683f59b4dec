// Package reqresp correlates MQTT request/response exchanges and manages
// persistent streaming subscriptions on top of an awsiot.Connection.
//
// A request publishes a payload and completes when a message arrives on
// one of its response paths. Responses are matched to requests either by a
// correlation token carried in the JSON payload or, when no token path is
// configured, by the response topic alone. Subscriptions are reference
// counted and shared between operations, bounded by separate budgets for
// request-response and streaming use.
package reqresp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/vitalvas/awsiot"
)

// RequestResponseClient is the engine consumed by service clients.
type RequestResponseClient interface {
	// Request submits an exchange and waits for its result.
	Request(ctx context.Context, opts *RequestOptions) (*Response, error)

	// CreateStream prepares a streaming subscription. It must be opened.
	CreateStream(opts StreamOptions) (*StreamingOperation, error)
}

var _ RequestResponseClient = (*Client)(nil)

type operationState int

const (
	opQueued operationState = iota
	opPending
	opPublished
	opDone
)

type operation struct {
	id        uint64
	opts      *RequestOptions
	filters   []string
	paths     []compiledPath
	handler   ResponseHandler
	submitted time.Time

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once

	// guarded by Client.mu
	state operationState
	subs  []*subscription
	timer *time.Timer
}

func (op *operation) holds(sub *subscription) bool {
	for _, s := range op.subs {
		if s == sub {
			return true
		}
	}
	return false
}

type pathEntry struct {
	op   *operation
	path compiledPath
}

// Client is the request/response and streaming engine.
type Client struct {
	conn    awsiot.Connection
	options *clientOptions
	logger  awsiot.Logger
	metrics *awsiot.OperationMetrics
	limiter *rate.Limiter
	jobs    *jobQueue

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	removeListener func()

	mu      sync.Mutex
	closed  bool
	nextID  uint64
	useSeq  uint64
	ops     map[uint64]*operation
	queue   []*operation
	paths   map[string][]*pathEntry
	subs    map[string]*subscription
	counts  [2]int
	streams map[uint64]*StreamingOperation

	// online is closed while the connection is up.
	online chan struct{}
}

// NewClient creates an engine bound to conn.
func NewClient(conn awsiot.Connection, opts ...Option) (*Client, error) {
	if conn == nil {
		return nil, fmt.Errorf("%w: connection is required", awsiot.ErrInvalidOptions)
	}

	o := applyOptions(opts...)
	if err := o.validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		conn:    conn,
		options: o,
		logger:  o.logger,
		metrics: awsiot.NewOperationMetrics(o.metrics),
		jobs:    newJobQueue(),
		ctx:     ctx,
		cancel:  cancel,
		ops:     make(map[uint64]*operation),
		paths:   make(map[string][]*pathEntry),
		subs:    make(map[string]*subscription),
		streams: make(map[uint64]*StreamingOperation),
		online:  make(chan struct{}),
	}
	if conn.IsConnected() {
		close(c.online)
	}

	if o.publishLimit != rate.Inf {
		c.limiter = rate.NewLimiter(o.publishLimit, o.publishBurst)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.jobs.run()
	}()

	c.removeListener = conn.AddEventListener(c.onConnectionEvent)

	return c, nil
}

// SubmitRequest starts an exchange. The handler is called exactly once
// with the response or an error, unless SubmitRequest itself returns an
// error, in which case it is never called.
func (c *Client) SubmitRequest(opts *RequestOptions, handler ResponseHandler) error {
	_, err := c.submit(opts, handler)
	return err
}

// Request starts an exchange and waits for its result.
// Cancelling ctx completes the operation with the context error.
func (c *Client) Request(ctx context.Context, opts *RequestOptions) (*Response, error) {
	type result struct {
		resp *Response
		err  error
	}

	ch := make(chan result, 1)
	op, err := c.submit(opts, func(resp *Response, err error) {
		ch <- result{resp: resp, err: err}
	})
	if err != nil {
		return nil, err
	}

	select {
	case res := <-ch:
		return res.resp, res.err
	case <-ctx.Done():
		c.complete(op, nil, ctx.Err())
		res := <-ch
		return res.resp, res.err
	}
}

func (c *Client) submit(opts *RequestOptions, handler ResponseHandler) (*operation, error) {
	if handler == nil {
		return nil, fmt.Errorf("%w: response handler is required", awsiot.ErrInvalidOptions)
	}

	filters, paths, err := opts.compile()
	if err != nil {
		return nil, err
	}

	if len(filters) > c.options.maxRequestSubs {
		return nil, fmt.Errorf("%w: request needs %d filters, limit is %d",
			awsiot.ErrSubscriptionBudget, len(filters), c.options.maxRequestSubs)
	}

	ctx, cancel := context.WithCancel(c.ctx)
	op := &operation{
		opts:      opts,
		filters:   filters,
		paths:     paths,
		handler:   handler,
		submitted: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		return nil, awsiot.ErrClientClosed
	}

	c.nextID++
	op.id = c.nextID
	c.ops[op.id] = op
	c.metrics.RequestSubmitted()
	op.timer = time.AfterFunc(c.options.operationTimeout, func() {
		c.complete(op, nil, awsiot.ErrTimeout)
	})

	started := len(c.queue) == 0 && c.tryAcquireLocked(op)
	if !started {
		op.state = opQueued
		c.queue = append(c.queue, op)
		c.metrics.QueueLength(len(c.queue))
	}
	c.mu.Unlock()

	c.logger.Debug("request submitted", awsiot.LogFields{
		awsiot.LogFieldOperationID: op.id,
		awsiot.LogFieldTopic:       opts.PublishTopic,
		"queued":                   !started,
	})

	if started {
		go c.run(op)
	}

	return op, nil
}

// tryAcquireLocked takes references on every filter of op, evicting unused
// request-response subscriptions when the budget requires it.
func (c *Client) tryAcquireLocked(op *operation) bool {
	missing := 0
	for _, f := range op.filters {
		if _, ok := c.subs[f]; !ok {
			missing++
		}
	}

	free := c.options.maxRequestSubs - c.counts[kindRequest]
	if missing > free {
		evictable := c.evictableLocked(op.filters)
		if missing > free+len(evictable) {
			return false
		}

		evicted := make([]string, 0, missing-free)
		for _, sub := range evictable[:missing-free] {
			c.removeSubLocked(sub)
			evicted = append(evicted, sub.filter)
		}
		c.jobs.push(c.unsubscribeJob(evicted))
	}

	var created []*subscription
	for _, f := range op.filters {
		sub, ok := c.subs[f]
		if !ok {
			sub = c.addSubLocked(f, kindRequest)
			created = append(created, sub)
		}
		sub.refs++
		op.subs = append(op.subs, sub)
	}

	if len(created) > 0 {
		c.jobs.push(c.subscribeJob(created))
	}

	for _, p := range op.paths {
		c.paths[p.topic] = append(c.paths[p.topic], &pathEntry{op: op, path: p})
	}

	op.state = opPending
	c.wg.Add(1)
	return true
}

// drainQueueLocked starts queued operations in FIFO order while they fit.
func (c *Client) drainQueueLocked() []*operation {
	var started []*operation
	for len(c.queue) > 0 && !c.closed {
		op := c.queue[0]
		if !c.tryAcquireLocked(op) {
			break
		}
		c.queue = c.queue[1:]
		started = append(started, op)
	}
	if len(started) > 0 {
		c.metrics.QueueLength(len(c.queue))
	}
	return started
}

// run waits for the operation's subscriptions and publishes the request.
func (c *Client) run(op *operation) {
	defer c.wg.Done()

	for _, sub := range op.subs {
		select {
		case <-sub.ready:
		case <-op.ctx.Done():
			return
		}

		if sub.err != nil {
			c.complete(op, nil, fmt.Errorf("%w: %s: %w", awsiot.ErrSubscribeFailed, sub.filter, sub.err))
			return
		}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(op.ctx); err != nil {
			c.complete(op, nil, fmt.Errorf("%w: %w", awsiot.ErrPublishFailed, err))
			return
		}
	}

	c.mu.Lock()
	if op.state != opPending {
		c.mu.Unlock()
		return
	}
	op.state = opPublished
	c.mu.Unlock()

	msg := &awsiot.Message{
		Topic:   op.opts.PublishTopic,
		Payload: op.opts.Payload,
		QoS:     c.options.qos,
	}

	for {
		err := c.conn.Publish(op.ctx, msg)
		if err == nil {
			break
		}
		if !c.offline(err) {
			c.complete(op, nil, fmt.Errorf("%w: %w", awsiot.ErrPublishFailed, err))
			return
		}

		c.logger.Debug("publish waiting for connection", awsiot.LogFields{
			awsiot.LogFieldOperationID: op.id,
			awsiot.LogFieldTopic:       msg.Topic,
		})
		if !c.waitOnline(op.ctx) {
			return
		}
	}

	c.logger.Debug("request published", awsiot.LogFields{
		awsiot.LogFieldOperationID: op.id,
		awsiot.LogFieldTopic:       msg.Topic,
		awsiot.LogFieldBytes:       len(msg.Payload),
	})
}

// waitOnline blocks until the connection is up. It returns false when ctx
// ends first; the operation's timeout or Close completes it then.
func (c *Client) waitOnline(ctx context.Context) bool {
	c.mu.Lock()
	if !c.conn.IsConnected() {
		c.markOfflineLocked()
	}
	online := c.online
	c.mu.Unlock()

	select {
	case <-online:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Client) markOfflineLocked() {
	select {
	case <-c.online:
		c.online = make(chan struct{})
	default:
	}
}

func (c *Client) markOnlineLocked() {
	select {
	case <-c.online:
	default:
		close(c.online)
	}
}

// complete finishes op once, releases its resources and calls its handler.
func (c *Client) complete(op *operation, resp *Response, err error) {
	op.once.Do(func() {
		op.cancel()

		c.mu.Lock()
		if op.timer != nil {
			op.timer.Stop()
		}
		started := c.finishLocked(op)
		c.mu.Unlock()

		for _, next := range started {
			go c.run(next)
		}

		c.recordCompletion(op, err)
		op.handler(resp, err)
	})
}

func (c *Client) finishLocked(op *operation) []*operation {
	delete(c.ops, op.id)

	if op.state == opQueued {
		for i, q := range c.queue {
			if q == op {
				c.queue = append(c.queue[:i], c.queue[i+1:]...)
				break
			}
		}
		c.metrics.QueueLength(len(c.queue))
	} else {
		for _, p := range op.paths {
			c.unregisterPathLocked(p.topic, op)
		}
		for _, sub := range op.subs {
			c.releaseLocked(sub)
		}
	}

	op.state = opDone
	return c.drainQueueLocked()
}

func (c *Client) unregisterPathLocked(topic string, op *operation) {
	entries := c.paths[topic]
	kept := entries[:0]
	for _, e := range entries {
		if e.op != op {
			kept = append(kept, e)
		}
	}

	if len(kept) == 0 {
		delete(c.paths, topic)
		return
	}
	c.paths[topic] = kept
}

func (c *Client) recordCompletion(op *operation, err error) {
	elapsed := time.Since(op.submitted)

	outcome := awsiot.OutcomeSuccess
	switch {
	case err == nil:
	case errors.Is(err, awsiot.ErrTimeout):
		outcome = awsiot.OutcomeTimeout
	default:
		outcome = awsiot.OutcomeError
	}
	c.metrics.RequestCompleted(outcome, elapsed)

	fields := awsiot.LogFields{
		awsiot.LogFieldOperationID: op.id,
		awsiot.LogFieldTopic:       op.opts.PublishTopic,
		awsiot.LogFieldDuration:    elapsed.String(),
	}
	if err != nil {
		fields[awsiot.LogFieldError] = err.Error()
		c.logger.Warn("request failed", fields)
		return
	}
	c.logger.Debug("request completed", fields)
}

// handleMessage is the connection handler of every subscription.
func (c *Client) handleMessage(sub *subscription, msg *awsiot.Message) {
	if op := c.correlate(sub, msg); op != nil {
		c.complete(op, &Response{Topic: msg.Topic, Payload: msg.Payload}, nil)
	}

	c.dispatch(sub, msg)
}

// correlate finds the published operation a response belongs to.
// Only operations holding the subscription the message arrived on qualify.
func (c *Client) correlate(sub *subscription, msg *awsiot.Message) *operation {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.paths[msg.Topic]
	if len(entries) == 0 {
		return nil
	}

	var doc any
	parsed := false

	for _, e := range entries {
		if e.op.state != opPublished || !e.op.holds(sub) {
			continue
		}

		if e.path.pointer == nil {
			return e.op
		}

		if !parsed {
			parsed = true
			if err := json.Unmarshal(msg.Payload, &doc); err != nil {
				c.logger.Debug("response payload is not json", awsiot.LogFields{
					awsiot.LogFieldTopic: msg.Topic,
					awsiot.LogFieldError: err.Error(),
				})
				doc = nil
			}
		}
		if doc == nil {
			continue
		}

		value, _, err := e.path.pointer.Get(doc)
		if err != nil {
			continue
		}
		if token, ok := value.(string); ok && token == e.op.opts.CorrelationToken {
			return e.op
		}
	}

	c.logger.Debug("response matched no operation", awsiot.LogFields{
		awsiot.LogFieldTopic: msg.Topic,
	})
	return nil
}

// onConnectionEvent tracks connection state for streams and subscriptions.
func (c *Client) onConnectionEvent(event error) {
	switch {
	case errors.Is(event, awsiot.ErrConnectionLost), errors.Is(event, awsiot.ErrDisconnected):
		c.mu.Lock()
		c.markOfflineLocked()
		lost := c.markStreamsLostLocked()
		c.mu.Unlock()

		for _, s := range lost {
			s.emit(StatusLost, event)
		}

	case errors.Is(event, awsiot.ErrConnected):
		var ce *awsiot.ConnectedEvent
		sessionPresent := errors.As(event, &ce) && ce.SessionPresent

		c.mu.Lock()
		c.markOnlineLocked()
		if !c.closed {
			c.jobs.push(c.resubscribeJob(sessionPresent))
		}
		c.mu.Unlock()
	}
}

// Close fails every pending operation with ErrClientClosed, halts every
// stream and unsubscribes all filters. It waits for background work to end.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true

	ops := make([]*operation, 0, len(c.ops))
	for _, op := range c.ops {
		ops = append(ops, op)
	}
	streams := make([]*StreamingOperation, 0, len(c.streams))
	for _, s := range c.streams {
		streams = append(streams, s)
	}
	c.mu.Unlock()

	c.removeListener()

	for _, op := range ops {
		c.complete(op, nil, awsiot.ErrClientClosed)
	}
	for _, s := range streams {
		s.halt(awsiot.ErrClientClosed)
	}

	c.cancel()

	c.mu.Lock()
	filters := make([]string, 0, len(c.subs))
	for _, sub := range c.subs {
		if sub.state != subFailed {
			filters = append(filters, sub.filter)
		}
		c.removeSubLocked(sub)
	}
	if len(filters) > 0 {
		c.jobs.push(c.unsubscribeJob(filters))
	}
	c.mu.Unlock()

	c.jobs.stop()
	c.wg.Wait()

	c.logger.Debug("request-response client closed", nil)
	return nil
}
