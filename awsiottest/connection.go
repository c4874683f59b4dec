// Package awsiottest provides an in-memory awsiot.Connection for tests.
package awsiottest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vitalvas/awsiot"
)

// Connection is an in-memory awsiot.Connection.
// Published messages are recorded and can be awaited with NextPublished;
// inbound messages are injected with Deliver.
type Connection struct {
	awsiot.EventListeners

	mu            sync.Mutex
	connected     bool
	handlers      map[string]awsiot.MessageHandler
	subscribed    []string
	unsubscribed  []string
	subscribeErrs map[string]error
	publishErr    error
	published     chan *awsiot.Message
}

// NewConnection creates a connected in-memory connection.
func NewConnection() *Connection {
	return &Connection{
		connected:     true,
		handlers:      make(map[string]awsiot.MessageHandler),
		subscribeErrs: make(map[string]error),
		published:     make(chan *awsiot.Message, 256),
	}
}

// Subscribe records the filter and registers its handler.
func (c *Connection) Subscribe(_ context.Context, filter string, _ byte, handler awsiot.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.subscribed = append(c.subscribed, filter)
	if err := c.subscribeErrs[filter]; err != nil {
		return err
	}
	if !c.connected {
		return awsiot.ErrNotConnected
	}

	c.handlers[filter] = handler
	return nil
}

// Unsubscribe records and removes the filters.
func (c *Connection) Unsubscribe(_ context.Context, filters ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, f := range filters {
		c.unsubscribed = append(c.unsubscribed, f)
		delete(c.handlers, f)
	}
	return nil
}

// Publish records the message.
func (c *Connection) Publish(_ context.Context, msg *awsiot.Message) error {
	c.mu.Lock()
	err := c.publishErr
	connected := c.connected
	c.mu.Unlock()

	if err != nil {
		return err
	}
	if !connected {
		return awsiot.ErrNotConnected
	}

	c.published <- msg
	return nil
}

// IsConnected reports the simulated connection state.
func (c *Connection) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// FailSubscribe makes every subscribe to filter return err. A nil err clears it.
func (c *Connection) FailSubscribe(filter string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.subscribeErrs, filter)
		return
	}
	c.subscribeErrs[filter] = err
}

// FailPublish makes every publish return err. A nil err clears it.
func (c *Connection) FailPublish(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishErr = err
}

// Deliver hands a message to every handler whose filter matches topic.
func (c *Connection) Deliver(topic string, payload []byte) {
	c.DeliverMessage(&awsiot.Message{Topic: topic, Payload: payload, QoS: awsiot.QoS1})
}

// DeliverMessage hands msg to every handler whose filter matches its topic.
func (c *Connection) DeliverMessage(msg *awsiot.Message) {
	c.mu.Lock()
	var handlers []awsiot.MessageHandler
	for filter, h := range c.handlers {
		if awsiot.TopicMatch(filter, msg.Topic) {
			handlers = append(handlers, h)
		}
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(msg)
	}
}

// Drop simulates an unexpected connection loss. Subscriptions are discarded.
func (c *Connection) Drop(cause error) {
	c.mu.Lock()
	c.connected = false
	c.handlers = make(map[string]awsiot.MessageHandler)
	c.mu.Unlock()

	c.Emit(awsiot.NewConnectionLostError(cause))
}

// Resume simulates a successful reconnect.
func (c *Connection) Resume(sessionPresent bool) {
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	c.Emit(awsiot.NewConnectedEvent(sessionPresent))
}

// Subscribed returns every filter passed to Subscribe, in call order.
func (c *Connection) Subscribed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.subscribed...)
}

// Unsubscribed returns every filter passed to Unsubscribe, in call order.
func (c *Connection) Unsubscribed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.unsubscribed...)
}

// HasHandler reports whether filter currently has a handler.
func (c *Connection) HasHandler(filter string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.handlers[filter]
	return ok
}

// NextPublished waits for the next published message or fails the test.
func (c *Connection) NextPublished(t testing.TB) *awsiot.Message {
	t.Helper()

	select {
	case msg := <-c.published:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for publish")
		return nil
	}
}

// AssertNoPublish fails the test if a message is published within d.
func (c *Connection) AssertNoPublish(t testing.TB, d time.Duration) {
	t.Helper()

	select {
	case msg := <-c.published:
		t.Fatalf("unexpected publish to %s", msg.Topic)
	case <-time.After(d):
	}
}

// Eventually waits until cond holds or fails the test.
func Eventually(t testing.TB, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}
