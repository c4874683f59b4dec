package reqresp

import (
	"errors"
	"fmt"

	"github.com/vitalvas/awsiot"
)

// ErrStreamClosed is returned when opening a stream that was closed or halted.
var ErrStreamClosed = errors.New("stream closed")

// SubscriptionStatus is the state reported to a stream's status handler.
type SubscriptionStatus int

const (
	// StatusEstablished means the stream's filter is subscribed and messages flow.
	StatusEstablished SubscriptionStatus = iota + 1

	// StatusLost means the connection dropped; the stream recovers on reconnect.
	StatusLost

	// StatusHalted means the stream stopped for good and will not recover.
	StatusHalted
)

func (s SubscriptionStatus) String() string {
	switch s {
	case StatusEstablished:
		return "established"
	case StatusLost:
		return "lost"
	case StatusHalted:
		return "halted"
	default:
		return "unknown"
	}
}

// SubscriptionStatusEvent reports a stream status change.
// Err carries the cause for lost and halted streams.
type SubscriptionStatusEvent struct {
	Status SubscriptionStatus
	Err    error
}

// IncomingPublish is a message delivered to a stream.
type IncomingPublish struct {
	Topic          string
	Payload        []byte
	ContentType    string
	MessageExpiry  uint32
	UserProperties map[string]string
}

// StreamOptions configures a streaming operation.
type StreamOptions struct {
	// TopicFilter is the filter to subscribe; wildcards are allowed.
	TopicFilter string

	// PublishHandler receives every message matching the filter.
	PublishHandler func(*IncomingPublish)

	// StatusHandler receives subscription status changes. Optional.
	StatusHandler func(*SubscriptionStatusEvent)
}

type streamState int

const (
	streamCreated streamState = iota
	streamOpen
	streamHalted
	streamClosed
)

// StreamingOperation is a persistent subscription delivering messages to a handler.
type StreamingOperation struct {
	client         *Client
	id             uint64
	filter         string
	publishHandler func(*IncomingPublish)
	statusHandler  func(*SubscriptionStatusEvent)

	// guarded by Client.mu
	state  streamState
	status SubscriptionStatus
	sub    *subscription
}

// CreateStream prepares a stream. Nothing is subscribed until Open is called.
func (c *Client) CreateStream(opts StreamOptions) (*StreamingOperation, error) {
	if err := awsiot.ValidateTopicFilter(opts.TopicFilter); err != nil {
		return nil, fmt.Errorf("%w: stream filter: %w", awsiot.ErrInvalidOptions, err)
	}
	if opts.PublishHandler == nil {
		return nil, fmt.Errorf("%w: publish handler is required", awsiot.ErrInvalidOptions)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, awsiot.ErrClientClosed
	}

	c.nextID++
	return &StreamingOperation{
		client:         c,
		id:             c.nextID,
		filter:         opts.TopicFilter,
		publishHandler: opts.PublishHandler,
		statusHandler:  opts.StatusHandler,
	}, nil
}

// TopicFilter returns the stream's filter.
func (s *StreamingOperation) TopicFilter() string {
	return s.filter
}

// Open subscribes the stream's filter. Status changes are reported to the
// status handler: established on success, halted when the streaming budget
// is exhausted or subscribing fails after retries. Opening an open stream
// is a no-op.
func (s *StreamingOperation) Open() error {
	c := s.client

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return awsiot.ErrClientClosed
	}

	switch s.state {
	case streamOpen:
		c.mu.Unlock()
		return nil
	case streamHalted, streamClosed:
		c.mu.Unlock()
		return ErrStreamClosed
	}

	sub, ok := c.subs[s.filter]
	switch {
	case !ok && c.counts[kindStream] >= c.options.maxStreamingSubs:
		s.state = streamHalted
		s.status = StatusHalted
		c.mu.Unlock()

		err := fmt.Errorf("%w: %d streaming subscriptions in use", awsiot.ErrSubscriptionBudget, c.options.maxStreamingSubs)
		c.logger.Warn("stream halted", awsiot.LogFields{
			awsiot.LogFieldFilter: s.filter,
			awsiot.LogFieldError:  err.Error(),
		})
		s.emit(StatusHalted, err)
		return nil

	case !ok:
		sub = c.addSubLocked(s.filter, kindStream)
		c.jobs.push(c.subscribeJob([]*subscription{sub}))

	case sub.state == subActive:
		c.jobs.push(c.establishJob(s))
	}

	sub.refs++
	sub.streams[s.id] = s
	s.sub = sub
	s.state = streamOpen
	c.streams[s.id] = s
	c.mu.Unlock()

	c.logger.Debug("stream opened", awsiot.LogFields{awsiot.LogFieldFilter: s.filter})
	return nil
}

// Close stops delivery and releases the stream's subscription. It is idempotent.
func (s *StreamingOperation) Close() error {
	c := s.client

	c.mu.Lock()
	prev := s.state
	if prev == streamClosed {
		c.mu.Unlock()
		return nil
	}
	s.state = streamClosed

	var started []*operation
	if prev == streamOpen {
		delete(c.streams, s.id)
		delete(s.sub.streams, s.id)
		c.releaseLocked(s.sub)
		started = c.drainQueueLocked()
	}
	c.mu.Unlock()

	for _, next := range started {
		go c.run(next)
	}
	return nil
}

// halt stops an open stream and reports err.
func (s *StreamingOperation) halt(err error) {
	c := s.client

	c.mu.Lock()
	if s.state != streamOpen {
		c.mu.Unlock()
		return
	}
	s.state = streamHalted
	s.status = StatusHalted
	delete(c.streams, s.id)
	delete(s.sub.streams, s.id)
	c.releaseLocked(s.sub)
	c.mu.Unlock()

	s.emit(StatusHalted, err)
}

func (s *StreamingOperation) emit(status SubscriptionStatus, err error) {
	s.client.metrics.StreamEvent(status.String())

	fields := awsiot.LogFields{
		awsiot.LogFieldFilter: s.filter,
		awsiot.LogFieldStatus: status.String(),
	}
	if err != nil {
		fields[awsiot.LogFieldError] = err.Error()
	}
	s.client.logger.Debug("stream status", fields)

	if s.statusHandler != nil {
		s.statusHandler(&SubscriptionStatusEvent{Status: status, Err: err})
	}
}

// establishJob reports an open stream as established once its shared
// subscription is already active.
func (c *Client) establishJob(s *StreamingOperation) func() {
	return func() {
		c.mu.Lock()
		ok := s.state == streamOpen && s.status != StatusEstablished && s.sub.state == subActive
		if ok {
			s.status = StatusEstablished
		}
		c.mu.Unlock()

		if ok {
			s.emit(StatusEstablished, nil)
		}
	}
}

func (c *Client) establishSubStreamsLocked(sub *subscription) []*StreamingOperation {
	var out []*StreamingOperation
	for _, s := range sub.streams {
		if s.state == streamOpen && s.status != StatusEstablished {
			s.status = StatusEstablished
			out = append(out, s)
		}
	}
	return out
}

func (c *Client) haltSubStreamsLocked(sub *subscription) []*StreamingOperation {
	var out []*StreamingOperation
	for id, s := range sub.streams {
		if s.state != streamOpen {
			continue
		}
		s.state = streamHalted
		s.status = StatusHalted
		delete(c.streams, id)
		delete(sub.streams, id)
		sub.refs--
		out = append(out, s)
	}
	return out
}

func (c *Client) markStreamsLostLocked() []*StreamingOperation {
	var out []*StreamingOperation
	for _, s := range c.streams {
		if s.state == streamOpen && s.status == StatusEstablished {
			s.status = StatusLost
			out = append(out, s)
		}
	}
	return out
}

func subscribeError(filter string, err error) error {
	return fmt.Errorf("%w: %s: %w", awsiot.ErrSubscribeFailed, filter, err)
}
