// Package iotshadow is a client for the AWS IoT Device Shadow MQTT API,
// covering classic and named shadows.
//
// Requests are correlated with a fresh clientToken; the token set on a
// request is replaced.
package iotshadow

import (
	"context"

	"github.com/vitalvas/awsiot"
	"github.com/vitalvas/awsiot/internal/servicev2"
	"github.com/vitalvas/awsiot/reqresp"
)

// StreamOptions configures a typed event stream.
type StreamOptions[T any] = servicev2.StreamOptions[T]

// Option configures a ClientV2.
type Option func(*ClientV2)

// WithLogger sets the logger used for dropped stream events.
func WithLogger(logger awsiot.Logger) Option {
	return func(c *ClientV2) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// ClientV2 runs shadow requests through a request/response engine.
// Request errors are *awsiot.ServiceError[V2ErrorResponse].
type ClientV2 struct {
	rr     reqresp.RequestResponseClient
	logger awsiot.Logger
}

// NewClientV2 creates a shadow client.
func NewClientV2(rr reqresp.RequestResponseClient, opts ...Option) *ClientV2 {
	c := &ClientV2{
		rr:     rr,
		logger: awsiot.NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// shadowTopic builds a classic shadow topic, or a named one when shadowName is set.
func shadowTopic(thingName string, shadowName *string, levels ...string) string {
	prefix := []string{"$aws/things", thingName, "shadow"}
	if shadowName != nil {
		prefix = append(prefix, "name", *shadowName)
	}
	return awsiot.JoinTopic(append(prefix, levels...)...)
}

func request[R any](ctx context.Context, c *ClientV2, publishTopic string, filters []string, token string, body any) (*R, error) {
	payload, err := servicev2.Encode(body)
	if err != nil {
		return nil, err
	}

	return servicev2.Do[R, V2ErrorResponse](ctx, c.rr, &servicev2.Exchange{
		PublishTopic: publishTopic,
		Filters:      filters,
		Token:        token,
		Payload:      payload,
	})
}

// wildcard subscribes to every reply of a get or delete.
func wildcard(topic string) []string {
	return []string{topic + "/+"}
}

// updateReplies avoids update/+ so the delta and documents topics are not received.
func updateReplies(topic string) []string {
	return []string{topic + "/accepted", topic + "/rejected"}
}

// GetShadow reads the classic shadow.
func (c *ClientV2) GetShadow(ctx context.Context, req *GetShadowRequest) (*GetShadowResponse, error) {
	if err := servicev2.Require(servicev2.Field("thingName", req.ThingName)); err != nil {
		return nil, err
	}

	token := servicev2.NewToken()
	body := *req
	body.ClientToken = &token

	topic := shadowTopic(*req.ThingName, nil, "get")
	return request[GetShadowResponse](ctx, c, topic, wildcard(topic), token, &body)
}

// GetNamedShadow reads a named shadow.
func (c *ClientV2) GetNamedShadow(ctx context.Context, req *GetNamedShadowRequest) (*GetShadowResponse, error) {
	if err := servicev2.Require(
		servicev2.Field("thingName", req.ThingName),
		servicev2.Field("shadowName", req.ShadowName),
	); err != nil {
		return nil, err
	}

	token := servicev2.NewToken()
	body := *req
	body.ClientToken = &token

	topic := shadowTopic(*req.ThingName, req.ShadowName, "get")
	return request[GetShadowResponse](ctx, c, topic, wildcard(topic), token, &body)
}

// UpdateShadow updates the classic shadow.
func (c *ClientV2) UpdateShadow(ctx context.Context, req *UpdateShadowRequest) (*UpdateShadowResponse, error) {
	if err := servicev2.Require(servicev2.Field("thingName", req.ThingName)); err != nil {
		return nil, err
	}

	token := servicev2.NewToken()
	body := *req
	body.ClientToken = &token

	topic := shadowTopic(*req.ThingName, nil, "update")
	return request[UpdateShadowResponse](ctx, c, topic, updateReplies(topic), token, &body)
}

// UpdateNamedShadow updates a named shadow.
func (c *ClientV2) UpdateNamedShadow(ctx context.Context, req *UpdateNamedShadowRequest) (*UpdateShadowResponse, error) {
	if err := servicev2.Require(
		servicev2.Field("thingName", req.ThingName),
		servicev2.Field("shadowName", req.ShadowName),
	); err != nil {
		return nil, err
	}

	token := servicev2.NewToken()
	body := *req
	body.ClientToken = &token

	topic := shadowTopic(*req.ThingName, req.ShadowName, "update")
	return request[UpdateShadowResponse](ctx, c, topic, updateReplies(topic), token, &body)
}

// DeleteShadow deletes the classic shadow.
func (c *ClientV2) DeleteShadow(ctx context.Context, req *DeleteShadowRequest) (*DeleteShadowResponse, error) {
	if err := servicev2.Require(servicev2.Field("thingName", req.ThingName)); err != nil {
		return nil, err
	}

	token := servicev2.NewToken()
	body := *req
	body.ClientToken = &token

	topic := shadowTopic(*req.ThingName, nil, "delete")
	return request[DeleteShadowResponse](ctx, c, topic, wildcard(topic), token, &body)
}

// DeleteNamedShadow deletes a named shadow.
func (c *ClientV2) DeleteNamedShadow(ctx context.Context, req *DeleteNamedShadowRequest) (*DeleteShadowResponse, error) {
	if err := servicev2.Require(
		servicev2.Field("thingName", req.ThingName),
		servicev2.Field("shadowName", req.ShadowName),
	); err != nil {
		return nil, err
	}

	token := servicev2.NewToken()
	body := *req
	body.ClientToken = &token

	topic := shadowTopic(*req.ThingName, req.ShadowName, "delete")
	return request[DeleteShadowResponse](ctx, c, topic, wildcard(topic), token, &body)
}

// CreateShadowDeltaUpdatedStream creates a stream of classic shadow deltas.
func (c *ClientV2) CreateShadowDeltaUpdatedStream(req *ShadowDeltaUpdatedSubscriptionRequest, opts StreamOptions[ShadowDeltaUpdatedEvent]) (*reqresp.StreamingOperation, error) {
	if err := servicev2.Require(servicev2.Field("thingName", req.ThingName)); err != nil {
		return nil, err
	}

	return servicev2.Stream(c.rr, c.logger, shadowTopic(*req.ThingName, nil, "update", "delta"),
		servicev2.DecodeJSON[ShadowDeltaUpdatedEvent], opts)
}

// CreateNamedShadowDeltaUpdatedStream creates a stream of named shadow deltas.
func (c *ClientV2) CreateNamedShadowDeltaUpdatedStream(req *NamedShadowDeltaUpdatedSubscriptionRequest, opts StreamOptions[ShadowDeltaUpdatedEvent]) (*reqresp.StreamingOperation, error) {
	if err := servicev2.Require(
		servicev2.Field("thingName", req.ThingName),
		servicev2.Field("shadowName", req.ShadowName),
	); err != nil {
		return nil, err
	}

	return servicev2.Stream(c.rr, c.logger, shadowTopic(*req.ThingName, req.ShadowName, "update", "delta"),
		servicev2.DecodeJSON[ShadowDeltaUpdatedEvent], opts)
}

// CreateShadowUpdatedStream creates a stream of classic shadow documents.
func (c *ClientV2) CreateShadowUpdatedStream(req *ShadowUpdatedSubscriptionRequest, opts StreamOptions[ShadowUpdatedEvent]) (*reqresp.StreamingOperation, error) {
	if err := servicev2.Require(servicev2.Field("thingName", req.ThingName)); err != nil {
		return nil, err
	}

	return servicev2.Stream(c.rr, c.logger, shadowTopic(*req.ThingName, nil, "update", "documents"),
		servicev2.DecodeJSON[ShadowUpdatedEvent], opts)
}

// CreateNamedShadowUpdatedStream creates a stream of named shadow documents.
func (c *ClientV2) CreateNamedShadowUpdatedStream(req *NamedShadowUpdatedSubscriptionRequest, opts StreamOptions[ShadowUpdatedEvent]) (*reqresp.StreamingOperation, error) {
	if err := servicev2.Require(
		servicev2.Field("thingName", req.ThingName),
		servicev2.Field("shadowName", req.ShadowName),
	); err != nil {
		return nil, err
	}

	return servicev2.Stream(c.rr, c.logger, shadowTopic(*req.ThingName, req.ShadowName, "update", "documents"),
		servicev2.DecodeJSON[ShadowUpdatedEvent], opts)
}
