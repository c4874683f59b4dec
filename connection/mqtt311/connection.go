// Package mqtt311 adapts the Eclipse Paho MQTT 3.1.1 client to awsiot.Connection.
//
// MQTT 3.1.1 has no message properties: content type, message expiry and
// user properties are dropped on publish and never set on delivery.
package mqtt311

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/vitalvas/awsiot"
)

// Option configures Dial.
type Option func(*dialOptions)

type dialOptions struct {
	client *mqtt.ClientOptions
	logger awsiot.Logger
}

// WithBroker adds a broker URL such as tcp://host:1883 or tls://host:8883.
func WithBroker(url string) Option {
	return func(o *dialOptions) {
		o.client.AddBroker(url)
	}
}

// WithEndpoint connects to an AWS IoT data endpoint with mutual TLS on port 8883.
func WithEndpoint(endpoint string, tlsConfig *tls.Config) Option {
	return func(o *dialOptions) {
		o.client.AddBroker("tls://" + endpoint + ":" + strconv.Itoa(awsiot.PortMQTT))
		o.client.SetTLSConfig(tlsConfig)
	}
}

// WithALPNEndpoint connects to an AWS IoT data endpoint on port 443 using ALPN.
func WithALPNEndpoint(endpoint string, tlsConfig *tls.Config) Option {
	return func(o *dialOptions) {
		o.client.AddBroker("tls://" + endpoint + ":" + strconv.Itoa(awsiot.PortALPN))
		o.client.SetTLSConfig(awsiot.WithALPN(tlsConfig, awsiot.ALPNMQTT))
	}
}

// WithClientID sets the client identifier.
func WithClientID(id string) Option {
	return func(o *dialOptions) {
		o.client.SetClientID(id)
	}
}

// WithKeepAlive sets the keep-alive interval.
func WithKeepAlive(d time.Duration) Option {
	return func(o *dialOptions) {
		o.client.SetKeepAlive(d)
	}
}

// WithCleanSession sets the clean session flag.
func WithCleanSession(clean bool) Option {
	return func(o *dialOptions) {
		o.client.SetCleanSession(clean)
	}
}

// WithPahoOptions gives direct access to the Paho client options.
// Connection handlers set here are replaced by Dial.
func WithPahoOptions(fn func(*mqtt.ClientOptions)) Option {
	return func(o *dialOptions) {
		fn(o.client)
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

// Connection is an awsiot.Connection backed by a Paho MQTT 3.1.1 client.
type Connection struct {
	awsiot.EventListeners

	client mqtt.Client
	logger awsiot.Logger
}

var _ awsiot.Connection = (*Connection)(nil)

// Dial connects to the broker and waits for the CONNACK or ctx.
func Dial(ctx context.Context, opts ...Option) (*Connection, error) {
	return dial(ctx, mqtt.NewClient, opts...)
}

func dial(ctx context.Context, newClient func(*mqtt.ClientOptions) mqtt.Client, opts ...Option) (*Connection, error) {
	o := &dialOptions{
		client: mqtt.NewClientOptions().
			SetAutoReconnect(true).
			SetConnectRetry(false).
			SetOrderMatters(false).
			SetKeepAlive(30 * time.Second),
		logger: awsiot.NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}

	c := &Connection{logger: o.logger}

	o.client.SetOnConnectHandler(c.onConnect)
	o.client.SetConnectionLostHandler(c.onConnectionLost)
	o.client.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		c.logger.Debug("reconnecting", nil)
	})

	c.client = newClient(o.client)

	if err := wait(ctx, c.client.Connect()); err != nil {
		c.client.Disconnect(0)
		return nil, fmt.Errorf("mqtt311 dial: %w", err)
	}

	c.logger.Info("connected", awsiot.LogFields{"client_id": o.client.ClientID})
	return c, nil
}

// onConnect reports every (re)connect. Paho does not expose the session
// present flag to this handler, so listeners always resubscribe.
func (c *Connection) onConnect(mqtt.Client) {
	c.Emit(awsiot.NewConnectedEvent(false))
}

func (c *Connection) onConnectionLost(_ mqtt.Client, err error) {
	c.logger.Warn("connection lost", awsiot.LogFields{awsiot.LogFieldError: err.Error()})
	c.Emit(awsiot.NewConnectionLostError(err))
}

// Subscribe subscribes to filter and waits for the SUBACK.
func (c *Connection) Subscribe(ctx context.Context, filter string, qos byte, handler awsiot.MessageHandler) error {
	token := c.client.Subscribe(filter, qos, func(_ mqtt.Client, msg mqtt.Message) {
		handler(&awsiot.Message{
			Topic:   msg.Topic(),
			Payload: msg.Payload(),
			QoS:     msg.Qos(),
			Retain:  msg.Retained(),
		})
	})
	return wait(ctx, token)
}

// Unsubscribe unsubscribes from filters and waits for the UNSUBACK.
func (c *Connection) Unsubscribe(ctx context.Context, filters ...string) error {
	return wait(ctx, c.client.Unsubscribe(filters...))
}

// Publish sends msg. For QoS 1 it waits for the PUBACK.
func (c *Connection) Publish(ctx context.Context, msg *awsiot.Message) error {
	return wait(ctx, c.client.Publish(msg.Topic, msg.QoS, msg.Retain, msg.Payload))
}

// IsConnected reports whether the client is connected.
func (c *Connection) IsConnected() bool {
	return c.client.IsConnected()
}

// Close disconnects, allowing 250ms for in-flight work.
func (c *Connection) Close() error {
	c.client.Disconnect(250)
	c.Emit(awsiot.ErrDisconnected)
	return nil
}

func wait(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		if errors.Is(token.Error(), mqtt.ErrNotConnected) {
			return awsiot.ErrNotConnected
		}
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
