package iotshadow

import (
	"context"

	"github.com/vitalvas/awsiot"
	"github.com/vitalvas/awsiot/internal/servicev1"
	"github.com/vitalvas/awsiot/internal/servicev2"
)

// Handler receives a decoded message, or the decode error.
type Handler[T any] = servicev1.Handler[T]

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientLogger sets the logger used for undecodable messages.
func WithClientLogger(logger awsiot.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClientQoS sets the QoS of subscriptions and publishes. Default is QoS 1.
func WithClientQoS(qos byte) ClientOption {
	return func(c *Client) {
		c.qos = qos
	}
}

// Client works on the classic shadow directly on a connection.
// Replies are delivered to the handlers subscribed for them; matching a
// reply to its request by clientToken is left to the caller.
type Client struct {
	conn   awsiot.Connection
	logger awsiot.Logger
	qos    byte
}

// NewClient creates a shadow client on conn.
func NewClient(conn awsiot.Connection, opts ...ClientOption) *Client {
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

func subscribe[T any](ctx context.Context, c *Client, thingName *string, handler Handler[T], levels ...string) error {
	if err := servicev2.Require(servicev2.Field("thingName", thingName)); err != nil {
		return err
	}
	return servicev1.Subscribe(ctx, c.conn, c.logger, shadowTopic(*thingName, nil, levels...), c.qos, handler)
}

func publish(ctx context.Context, c *Client, thingName *string, body any, op string) error {
	if err := servicev2.Require(servicev2.Field("thingName", thingName)); err != nil {
		return err
	}
	return servicev1.Publish(ctx, c.conn, shadowTopic(*thingName, nil, op), c.qos, body)
}

// SubscribeToGetShadowAccepted delivers accepted get replies.
func (c *Client) SubscribeToGetShadowAccepted(ctx context.Context, req *GetShadowSubscriptionRequest, handler Handler[GetShadowResponse]) error {
	return subscribe(ctx, c, req.ThingName, handler, "get", "accepted")
}

// SubscribeToGetShadowRejected delivers rejected get replies.
func (c *Client) SubscribeToGetShadowRejected(ctx context.Context, req *GetShadowSubscriptionRequest, handler Handler[ErrorResponse]) error {
	return subscribe(ctx, c, req.ThingName, handler, "get", "rejected")
}

// SubscribeToUpdateShadowAccepted delivers accepted update replies.
func (c *Client) SubscribeToUpdateShadowAccepted(ctx context.Context, req *UpdateShadowSubscriptionRequest, handler Handler[UpdateShadowResponse]) error {
	return subscribe(ctx, c, req.ThingName, handler, "update", "accepted")
}

// SubscribeToUpdateShadowRejected delivers rejected update replies.
func (c *Client) SubscribeToUpdateShadowRejected(ctx context.Context, req *UpdateShadowSubscriptionRequest, handler Handler[ErrorResponse]) error {
	return subscribe(ctx, c, req.ThingName, handler, "update", "rejected")
}

// SubscribeToDeleteShadowAccepted delivers accepted delete replies.
func (c *Client) SubscribeToDeleteShadowAccepted(ctx context.Context, req *DeleteShadowSubscriptionRequest, handler Handler[DeleteShadowResponse]) error {
	return subscribe(ctx, c, req.ThingName, handler, "delete", "accepted")
}

// SubscribeToDeleteShadowRejected delivers rejected delete replies.
func (c *Client) SubscribeToDeleteShadowRejected(ctx context.Context, req *DeleteShadowSubscriptionRequest, handler Handler[ErrorResponse]) error {
	return subscribe(ctx, c, req.ThingName, handler, "delete", "rejected")
}

// SubscribeToShadowDeltaUpdatedEvents delivers shadow deltas.
func (c *Client) SubscribeToShadowDeltaUpdatedEvents(ctx context.Context, req *ShadowDeltaUpdatedSubscriptionRequest, handler Handler[ShadowDeltaUpdatedEvent]) error {
	return subscribe(ctx, c, req.ThingName, handler, "update", "delta")
}

// SubscribeToShadowUpdatedEvents delivers the shadow documents of every accepted update.
func (c *Client) SubscribeToShadowUpdatedEvents(ctx context.Context, req *ShadowUpdatedSubscriptionRequest, handler Handler[ShadowUpdatedEvent]) error {
	return subscribe(ctx, c, req.ThingName, handler, "update", "documents")
}

// PublishGetShadow publishes a get request.
func (c *Client) PublishGetShadow(ctx context.Context, req *GetShadowRequest) error {
	return publish(ctx, c, req.ThingName, req, "get")
}

// PublishUpdateShadow publishes an update request.
func (c *Client) PublishUpdateShadow(ctx context.Context, req *UpdateShadowRequest) error {
	return publish(ctx, c, req.ThingName, req, "update")
}

// PublishDeleteShadow publishes a delete request.
func (c *Client) PublishDeleteShadow(ctx context.Context, req *DeleteShadowRequest) error {
	return publish(ctx, c, req.ThingName, req, "delete")
}
