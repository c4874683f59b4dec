// Package iotsecuretunneling receives AWS IoT secure tunnel notifications.
//
// Opening the tunnel itself is left to a local proxy; this package only
// delivers the access token the service pushes to the device.
package iotsecuretunneling

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/vitalvas/awsiot"
)

// SubscribeToTunnelsNotifyRequest selects the thing whose notifications are delivered.
type SubscribeToTunnelsNotifyRequest struct {
	ThingName *string `json:"-"`
}

// SecureTunnelingNotifyResponse is published when a tunnel is opened for the thing.
type SecureTunnelingNotifyResponse struct {
	Region            *string  `json:"region,omitempty"`
	ClientMode        *string  `json:"clientMode,omitempty"`
	Services          []string `json:"services,omitempty"`
	ClientAccessToken *string  `json:"clientAccessToken,omitempty"`
}

// NotifyHandler receives a decoded notification, or the decode error.
type NotifyHandler func(resp *SecureTunnelingNotifyResponse, err error)

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(logger awsiot.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithQoS sets the subscription QoS. Default is QoS 1.
func WithQoS(qos byte) Option {
	return func(c *Client) {
		c.qos = qos
	}
}

// Client subscribes to tunnel notifications directly on a connection.
type Client struct {
	conn   awsiot.Connection
	logger awsiot.Logger
	qos    byte
}

// NewClient creates a secure tunneling client.
func NewClient(conn awsiot.Connection, opts ...Option) *Client {
	c := &Client{
		conn:   conn,
		logger: awsiot.NewNoOpLogger(),
		qos:    awsiot.QoS1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NotifyTopic returns the topic tunnel notifications for thingName arrive on.
func NotifyTopic(thingName string) string {
	return awsiot.JoinTopic("$aws/things", thingName, "tunnels", "notify")
}

// SubscribeToTunnelsNotify subscribes to the thing's tunnel notifications.
// It returns once the broker acknowledged the subscription. Unsubscribe
// with the connection using NotifyTopic.
func (c *Client) SubscribeToTunnelsNotify(ctx context.Context, req *SubscribeToTunnelsNotifyRequest, handler NotifyHandler) error {
	if req.ThingName == nil || *req.ThingName == "" {
		return awsiot.NewMissingFieldError("thingName")
	}
	if handler == nil {
		return fmt.Errorf("%w: notify handler is required", awsiot.ErrInvalidOptions)
	}

	topic := NotifyTopic(*req.ThingName)
	log := c.logger.WithFields(awsiot.LogFields{awsiot.LogFieldThingName: *req.ThingName})

	err := c.conn.Subscribe(ctx, topic, c.qos, func(msg *awsiot.Message) {
		resp := new(SecureTunnelingNotifyResponse)
		if err := json.Unmarshal(msg.Payload, resp); err != nil {
			log.Warn("undecodable tunnel notification", awsiot.LogFields{
				awsiot.LogFieldTopic: msg.Topic,
				awsiot.LogFieldError: err.Error(),
			})
			handler(nil, fmt.Errorf("%w: %w", awsiot.ErrPayloadParse, err))
			return
		}

		log.Info("tunnel notification", awsiot.LogFields{"client_mode": deref(resp.ClientMode)})
		handler(resp, nil)
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", awsiot.ErrSubscribeFailed, topic, err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
