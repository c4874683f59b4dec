// Package mqtt5 adapts an MQTT v5.0 client to awsiot.Connection.
package mqtt5

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/vitalvas/mqttv5"

	"github.com/vitalvas/awsiot"
)

// Option configures Dial.
type Option func(*dialOptions)

type dialOptions struct {
	client []mqttv5.Option
	logger awsiot.Logger
}

// WithClientOptions passes options to the underlying MQTT v5.0 client.
// Lifecycle events are delivered through AddEventListener, so an
// mqttv5.OnEvent option passed here is replaced.
func WithClientOptions(opts ...mqttv5.Option) Option {
	return func(o *dialOptions) {
		o.client = append(o.client, opts...)
	}
}

// WithEndpoint connects to an AWS IoT data endpoint with mutual TLS on port 8883.
func WithEndpoint(endpoint string, tlsConfig *tls.Config) Option {
	return func(o *dialOptions) {
		o.client = append(o.client,
			mqttv5.WithServers("tls://"+endpoint+":"+strconv.Itoa(awsiot.PortMQTT)),
			mqttv5.WithTLS(tlsConfig),
		)
	}
}

// WithALPNEndpoint connects to an AWS IoT data endpoint on port 443 using ALPN.
func WithALPNEndpoint(endpoint string, tlsConfig *tls.Config) Option {
	return func(o *dialOptions) {
		o.client = append(o.client,
			mqttv5.WithServers("tls://"+endpoint+":"+strconv.Itoa(awsiot.PortALPN)),
			mqttv5.WithTLS(awsiot.WithALPN(tlsConfig, awsiot.ALPNMQTT)),
		)
	}
}

// URLPresigner signs a broker URL for a connection attempt.
// *sigv4.Presigner satisfies it.
type URLPresigner interface {
	Presign(ctx context.Context) (string, error)
}

// WithWebsocketEndpoint connects over websockets to a URL signed before
// every connection attempt, so reconnects use fresh credentials.
// tlsConfig may be nil to use the system roots.
func WithWebsocketEndpoint(presigner URLPresigner, tlsConfig *tls.Config) Option {
	return func(o *dialOptions) {
		o.client = append(o.client, mqttv5.WithServerResolver(func(ctx context.Context) ([]string, error) {
			u, err := presigner.Presign(ctx)
			if err != nil {
				o.logger.Warn("presign websocket url failed", awsiot.LogFields{awsiot.LogFieldError: err.Error()})
				return nil, err
			}
			return []string{u}, nil
		}))
		if tlsConfig != nil {
			o.client = append(o.client, mqttv5.WithTLS(tlsConfig))
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger awsiot.Logger) Option {
	return func(o *dialOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Connection is an awsiot.Connection backed by an MQTT v5.0 client.
type Connection struct {
	awsiot.EventListeners

	client *mqttv5.Client
	logger awsiot.Logger
}

var _ awsiot.Connection = (*Connection)(nil)

// Dial connects to the broker. The client stays connected, reconnecting
// per its options, until Close is called or ctx is cancelled.
func Dial(ctx context.Context, opts ...Option) (*Connection, error) {
	o := &dialOptions{logger: awsiot.NewNoOpLogger()}
	for _, opt := range opts {
		opt(o)
	}

	c := &Connection{logger: o.logger}

	clientOpts := append(o.client, mqttv5.OnEvent(func(_ *mqttv5.Client, event error) {
		c.onEvent(event)
	}))

	client, err := mqttv5.DialContext(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("mqtt5 dial: %w", err)
	}
	c.client = client

	c.logger.Info("connected", awsiot.LogFields{"client_id": client.ClientID()})
	return c, nil
}

// onEvent translates client events into awsiot connection events.
func (c *Connection) onEvent(event error) {
	switch {
	case errors.Is(event, mqttv5.ErrConnected):
		var ce *mqttv5.ConnectedEvent
		sessionPresent := errors.As(event, &ce) && ce.SessionPresent
		c.Emit(awsiot.NewConnectedEvent(sessionPresent))

	case errors.Is(event, mqttv5.ErrConnectionLost):
		var cl *mqttv5.ConnectionLostError
		cause := event
		if errors.As(event, &cl) && cl.Cause != nil {
			cause = cl.Cause
		}
		c.logger.Warn("connection lost", awsiot.LogFields{awsiot.LogFieldError: cause.Error()})
		c.Emit(awsiot.NewConnectionLostError(cause))

	case errors.Is(event, mqttv5.ErrServerDisconnect):
		c.logger.Warn("server disconnect", awsiot.LogFields{awsiot.LogFieldError: event.Error()})
		c.Emit(awsiot.NewConnectionLostError(event))

	case errors.Is(event, mqttv5.ErrDisconnected):
		c.Emit(awsiot.ErrDisconnected)

	default:
		c.logger.Debug("client event", awsiot.LogFields{awsiot.LogFieldError: event.Error()})
	}
}

// Subscribe subscribes to filter. The client does not wait for SUBACK;
// a rejected subscription is reported as a client event.
func (c *Connection) Subscribe(ctx context.Context, filter string, qos byte, handler awsiot.MessageHandler) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return clientError(c.client.Subscribe(filter, qos, func(msg *mqttv5.Message) {
		handler(fromClientMessage(msg))
	}))
}

// Unsubscribe unsubscribes from filters.
func (c *Connection) Unsubscribe(ctx context.Context, filters ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return clientError(c.client.Unsubscribe(filters...))
}

// Publish sends msg.
func (c *Connection) Publish(ctx context.Context, msg *awsiot.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return clientError(c.client.Publish(toClientMessage(msg)))
}

// clientError maps the client's offline error to awsiot.ErrNotConnected.
func clientError(err error) error {
	if errors.Is(err, mqttv5.ErrNotConnected) {
		return awsiot.ErrNotConnected
	}
	return err
}

// IsConnected reports whether the client is connected.
func (c *Connection) IsConnected() bool {
	return c.client.IsConnected()
}

// ClientID returns the MQTT client identifier.
func (c *Connection) ClientID() string {
	return c.client.ClientID()
}

// Close disconnects from the broker.
func (c *Connection) Close() error {
	return c.client.Close()
}

func toClientMessage(msg *awsiot.Message) *mqttv5.Message {
	out := &mqttv5.Message{
		Topic:         msg.Topic,
		Payload:       msg.Payload,
		QoS:           msg.QoS,
		Retain:        msg.Retain,
		ContentType:   msg.ContentType,
		MessageExpiry: msg.MessageExpiry,
	}

	if len(msg.UserProperties) > 0 {
		keys := make([]string, 0, len(msg.UserProperties))
		for k := range msg.UserProperties {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		out.UserProperties = make([]mqttv5.StringPair, 0, len(keys))
		for _, k := range keys {
			out.UserProperties = append(out.UserProperties, mqttv5.StringPair{Key: k, Value: msg.UserProperties[k]})
		}
	}

	return out
}

func fromClientMessage(msg *mqttv5.Message) *awsiot.Message {
	out := &awsiot.Message{
		Topic:         msg.Topic,
		Payload:       msg.Payload,
		QoS:           msg.QoS,
		Retain:        msg.Retain,
		ContentType:   msg.ContentType,
		MessageExpiry: msg.MessageExpiry,
	}

	if len(msg.UserProperties) > 0 {
		out.UserProperties = make(map[string]string, len(msg.UserProperties))
		for _, p := range msg.UserProperties {
			out.UserProperties[p.Key] = p.Value
		}
	}

	return out
}
