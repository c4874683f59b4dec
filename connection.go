package awsiot

import (
	"context"
	"errors"
)

// QoS levels used by the AWS IoT message broker.
const (
	QoS0 byte = 0
	QoS1 byte = 1
)

// Message is an application message sent to or received from AWS IoT.
type Message struct {
	// Topic is the topic name to publish to or received from.
	Topic string

	// Payload is the application message payload.
	Payload []byte

	// QoS is the Quality of Service level (0 or 1 on AWS IoT).
	QoS byte

	// Retain indicates if this is a retained message.
	Retain bool

	// ContentType is the MIME type of the payload (MQTT 5 only).
	ContentType string

	// MessageExpiry is the lifetime of the message in seconds.
	// Zero means no expiry or not reported (MQTT 5 only).
	MessageExpiry uint32

	// UserProperties contains user-defined name-value pairs (MQTT 5 only).
	UserProperties map[string]string
}

// MessageHandler handles incoming messages.
type MessageHandler func(msg *Message)

// EventHandler receives connection lifecycle events.
// Events are errors so they can be matched with errors.Is() and errors.As().
type EventHandler func(event error)

// Connection is the MQTT transport consumed by service clients.
// Implementations live in the connection/mqtt5 and connection/mqtt311 packages.
type Connection interface {
	// Subscribe subscribes to a topic filter with a message handler.
	// Subscribing to an already subscribed filter replaces its handler.
	Subscribe(ctx context.Context, filter string, qos byte, handler MessageHandler) error

	// Unsubscribe unsubscribes from topic filters.
	Unsubscribe(ctx context.Context, filters ...string) error

	// Publish sends a message to the broker.
	Publish(ctx context.Context, msg *Message) error

	// IsConnected returns true if the connection is established.
	IsConnected() bool

	// AddEventListener registers a lifecycle listener and returns a function removing it.
	AddEventListener(handler EventHandler) (remove func())
}

// Sentinel events for connection lifecycle - check with errors.Is().
var (
	// ErrConnected is emitted when the connection is (re)established.
	ErrConnected = errors.New("connected")

	// ErrDisconnected is emitted when the connection is closed on purpose.
	ErrDisconnected = errors.New("disconnected")

	// ErrConnectionLost is emitted when the connection drops unexpectedly.
	ErrConnectionLost = errors.New("connection lost")
)

// ConnectedEvent contains details about a successful connection.
// Extract with errors.As().
type ConnectedEvent struct {
	SessionPresent bool
}

func (e *ConnectedEvent) Error() string { return ErrConnected.Error() }
func (e *ConnectedEvent) Unwrap() error { return ErrConnected }

// NewConnectedEvent creates a new ConnectedEvent.
func NewConnectedEvent(sessionPresent bool) *ConnectedEvent {
	return &ConnectedEvent{SessionPresent: sessionPresent}
}

// ConnectionLostError contains details about an unexpected disconnection.
// Extract with errors.As().
type ConnectionLostError struct {
	Cause error
}

func (e *ConnectionLostError) Error() string {
	if e.Cause != nil {
		return "connection lost: " + e.Cause.Error()
	}
	return "connection lost"
}

func (e *ConnectionLostError) Unwrap() error { return ErrConnectionLost }

// NewConnectionLostError creates a new ConnectionLostError.
func NewConnectionLostError(cause error) *ConnectionLostError {
	return &ConnectionLostError{Cause: cause}
}
