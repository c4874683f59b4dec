package reqresp

import (
	"context"
	"errors"
	"slices"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/vitalvas/awsiot"
)

type subscriptionKind int

const (
	kindRequest subscriptionKind = iota
	kindStream
)

func (k subscriptionKind) String() string {
	if k == kindStream {
		return "stream"
	}
	return "request"
}

type subscriptionState int

const (
	subSubscribing subscriptionState = iota
	subActive
	subFailed
)

// subscription is one topic filter held on the connection.
// Request-response subscriptions linger with zero references until their
// budget slot is needed; stream subscriptions are dropped as soon as unused.
type subscription struct {
	filter string
	kind   subscriptionKind

	// ready is closed once the first subscribe attempt finished; err is
	// written before that and never changes afterwards.
	ready chan struct{}
	err   error

	// guarded by Client.mu
	state    subscriptionState
	refs     int
	lastUsed uint64
	streams  map[uint64]*StreamingOperation

	// deferred is set while a first subscribe waits for the connection.
	deferred bool
}

func (c *Client) addSubLocked(filter string, kind subscriptionKind) *subscription {
	sub := &subscription{
		filter:  filter,
		kind:    kind,
		ready:   make(chan struct{}),
		streams: make(map[uint64]*StreamingOperation),
	}
	c.subs[filter] = sub
	c.counts[kind]++
	c.metrics.SubscriptionAdded(kind.String())
	return sub
}

// removeSubLocked forgets sub. It is a no-op when sub was already replaced.
func (c *Client) removeSubLocked(sub *subscription) {
	if c.subs[sub.filter] != sub {
		return
	}
	delete(c.subs, sub.filter)
	c.counts[sub.kind]--
	c.metrics.SubscriptionRemoved(sub.kind.String())
}

// releaseLocked drops one reference on sub.
func (c *Client) releaseLocked(sub *subscription) {
	sub.refs--
	if sub.refs > 0 || c.subs[sub.filter] != sub {
		return
	}

	c.useSeq++
	sub.lastUsed = c.useSeq

	if sub.kind == kindStream {
		c.removeSubLocked(sub)
		if sub.state != subFailed {
			c.jobs.push(c.unsubscribeJob([]string{sub.filter}))
		}
	}
}

// evictableLocked lists unused request-response subscriptions, least
// recently used first, skipping the filters in keep.
func (c *Client) evictableLocked(keep []string) []*subscription {
	var out []*subscription
	for _, sub := range c.subs {
		if sub.kind != kindRequest || sub.refs > 0 || sub.state == subFailed {
			continue
		}
		if slices.Contains(keep, sub.filter) {
			continue
		}
		out = append(out, sub)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].lastUsed < out[j].lastUsed
	})
	return out
}

func (c *Client) newStreamBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.options.streamRetryInitial
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, c.options.streamRetries), ctx)
}

// offline reports whether err is caused by a missing connection rather
// than by the broker rejecting the subscription.
func (c *Client) offline(err error) bool {
	return errors.Is(err, awsiot.ErrNotConnected) || !c.conn.IsConnected()
}

// subscribeOnce subscribes a filter, retrying with backoff for streams.
// It returns awsiot.ErrNotConnected without retrying while offline.
func (c *Client) subscribeOnce(sub *subscription) error {
	ctx, cancel := context.WithTimeout(c.ctx, c.options.operationTimeout)
	defer cancel()

	attempt := func() error {
		if !c.conn.IsConnected() {
			return awsiot.ErrNotConnected
		}
		return c.conn.Subscribe(ctx, sub.filter, c.options.qos, func(msg *awsiot.Message) {
			c.handleMessage(sub, msg)
		})
	}

	if sub.kind != kindStream {
		return attempt()
	}

	return backoff.Retry(func() error {
		err := attempt()
		if err == nil {
			return nil
		}
		if c.offline(err) {
			return backoff.Permanent(err)
		}
		c.logger.Debug("stream subscribe attempt failed", awsiot.LogFields{
			awsiot.LogFieldFilter: sub.filter,
			awsiot.LogFieldError:  err.Error(),
		})
		return err
	}, c.newStreamBackOff(ctx))
}

// subscribeJob subscribes newly created filters in parallel.
func (c *Client) subscribeJob(subs []*subscription) func() {
	return func() {
		var g errgroup.Group
		for _, sub := range subs {
			g.Go(func() error {
				err := c.subscribeOnce(sub)
				c.finishSubscribe(sub, err)
				return err
			})
		}
		_ = g.Wait()
	}
}

func (c *Client) finishSubscribe(sub *subscription, err error) {
	if err != nil && c.offline(err) {
		c.mu.Lock()
		sub.deferred = true
		c.mu.Unlock()

		c.logger.Debug("subscribe deferred until connected", awsiot.LogFields{
			awsiot.LogFieldFilter: sub.filter,
		})
		return
	}

	c.mu.Lock()

	var established, halted []*StreamingOperation
	var started []*operation

	if err != nil {
		sub.err = err
		sub.state = subFailed
		halted = c.haltSubStreamsLocked(sub)
		c.removeSubLocked(sub)
		started = c.drainQueueLocked()
	} else {
		sub.state = subActive
		established = c.establishSubStreamsLocked(sub)
	}
	close(sub.ready)
	c.mu.Unlock()

	for _, next := range started {
		go c.run(next)
	}

	if err != nil {
		c.logger.Warn("subscribe failed", awsiot.LogFields{
			awsiot.LogFieldFilter: sub.filter,
			awsiot.LogFieldError:  err.Error(),
		})
		for _, s := range halted {
			s.emit(StatusHalted, subscribeError(sub.filter, err))
		}
		return
	}

	c.logger.Debug("subscribed", awsiot.LogFields{awsiot.LogFieldFilter: sub.filter})
	for _, s := range established {
		s.emit(StatusEstablished, nil)
	}
}

// unsubscribeJob removes filters from the connection. Failures are logged.
func (c *Client) unsubscribeJob(filters []string) func() {
	return func() {
		if len(filters) == 0 {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.options.operationTimeout)
		defer cancel()

		if err := c.conn.Unsubscribe(ctx, filters...); err != nil {
			c.logger.Warn("unsubscribe failed", awsiot.LogFields{
				awsiot.LogFieldFilter: filters,
				awsiot.LogFieldError:  err.Error(),
			})
			return
		}
		c.logger.Debug("unsubscribed", awsiot.LogFields{awsiot.LogFieldFilter: filters})
	}
}

// resubscribeJob restores active subscriptions after a reconnect and
// performs the first subscribe of filters deferred while offline.
// With a present session the broker kept the active ones and streams are
// re-established directly.
func (c *Client) resubscribeJob(sessionPresent bool) func() {
	return func() {
		c.mu.Lock()
		var active, deferred []*subscription
		for _, sub := range c.subs {
			switch {
			case sub.state == subActive:
				active = append(active, sub)
			case sub.state == subSubscribing && sub.deferred:
				sub.deferred = false
				deferred = append(deferred, sub)
			}
		}
		c.mu.Unlock()

		var g errgroup.Group
		for _, sub := range active {
			g.Go(func() error {
				var err error
				if !sessionPresent {
					err = c.subscribeOnce(sub)
				}
				c.finishResubscribe(sub, err)
				return err
			})
		}
		for _, sub := range deferred {
			g.Go(func() error {
				err := c.subscribeOnce(sub)
				c.finishSubscribe(sub, err)
				return err
			})
		}
		_ = g.Wait()
	}
}

func (c *Client) finishResubscribe(sub *subscription, err error) {
	if err != nil && c.offline(err) {
		// lost again; the next connected event retries
		c.logger.Debug("resubscribe deferred until connected", awsiot.LogFields{
			awsiot.LogFieldFilter: sub.filter,
		})
		return
	}

	c.mu.Lock()
	if c.subs[sub.filter] != sub {
		c.mu.Unlock()
		return
	}

	var established, halted []*StreamingOperation
	if err != nil {
		if len(sub.streams) > 0 {
			halted = c.haltSubStreamsLocked(sub)
		}
		if sub.refs == 0 || sub.kind == kindStream {
			sub.state = subFailed
			c.removeSubLocked(sub)
		}
	} else {
		established = c.establishSubStreamsLocked(sub)
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("resubscribe failed", awsiot.LogFields{
			awsiot.LogFieldFilter: sub.filter,
			awsiot.LogFieldError:  err.Error(),
		})
	}
	for _, s := range halted {
		s.emit(StatusHalted, subscribeError(sub.filter, err))
	}
	for _, s := range established {
		s.emit(StatusEstablished, nil)
	}
}

// dispatch delivers a message to the open streams of sub.
func (c *Client) dispatch(sub *subscription, msg *awsiot.Message) {
	c.mu.Lock()
	var targets []*StreamingOperation
	for _, s := range sub.streams {
		if s.state == streamOpen {
			targets = append(targets, s)
		}
	}
	c.mu.Unlock()

	if len(targets) == 0 {
		return
	}

	publish := &IncomingPublish{
		Topic:          msg.Topic,
		Payload:        msg.Payload,
		ContentType:    msg.ContentType,
		MessageExpiry:  msg.MessageExpiry,
		UserProperties: msg.UserProperties,
	}

	for _, s := range targets {
		c.metrics.StreamMessage()
		s.publishHandler(publish)
	}
}
