// Package iotcommands is a client for the AWS IoT commands MQTT API.
//
// Command executions arrive on streams; the device reports progress with
// UpdateCommandExecution. Update replies carry no correlation token and
// are matched by topic.
package iotcommands

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

// WithLogger sets the logger used by the client.
func WithLogger(logger awsiot.Logger) Option {
	return func(c *ClientV2) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// ClientV2 runs commands requests through a request/response engine.
// Request errors are *awsiot.ServiceError[V2ErrorResponse].
type ClientV2 struct {
	rr     reqresp.RequestResponseClient
	logger awsiot.Logger
}

// NewClientV2 creates a commands client.
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

func deviceTypeName(d *DeviceType) (string, error) {
	if d == nil || *d == DeviceTypeUnknown {
		return "", awsiot.NewMissingFieldError("deviceType")
	}
	return d.String(), nil
}

func executionsTopic(deviceType, deviceID string, levels ...string) string {
	return awsiot.JoinTopic(append([]string{"$aws/commands", deviceType, deviceID, "executions"}, levels...)...)
}

// UpdateCommandExecution reports the status of a command execution.
func (c *ClientV2) UpdateCommandExecution(ctx context.Context, req *UpdateCommandExecutionRequest) (*UpdateCommandExecutionResponse, error) {
	deviceType, err := deviceTypeName(req.DeviceType)
	if err != nil {
		return nil, err
	}
	if err := servicev2.Require(
		servicev2.Field("deviceId", req.DeviceID),
		servicev2.Field("executionId", req.ExecutionID),
	); err != nil {
		return nil, err
	}

	payload, err := servicev2.Encode(req)
	if err != nil {
		return nil, err
	}

	base := executionsTopic(deviceType, *req.DeviceID, *req.ExecutionID, "response")
	accepted := base + "/accepted/json"
	rejected := base + "/rejected/json"

	return servicev2.Do[UpdateCommandExecutionResponse, V2ErrorResponse](ctx, c.rr, &servicev2.Exchange{
		PublishTopic: base + "/json",
		Filters:      []string{accepted, rejected},
		Accepted:     accepted,
		Rejected:     rejected,
		Payload:      payload,
	})
}

func decodeExecution(p *reqresp.IncomingPublish) (*CommandExecutionEvent, error) {
	return newCommandExecutionEvent(p.Topic, p.Payload, p.ContentType, p.MessageExpiry), nil
}

func (c *ClientV2) executionStream(req *CommandExecutionsSubscriptionRequest, suffix []string, opts StreamOptions[CommandExecutionEvent]) (*reqresp.StreamingOperation, error) {
	deviceType, err := deviceTypeName(req.DeviceType)
	if err != nil {
		return nil, err
	}
	if err := servicev2.Require(servicev2.Field("deviceId", req.DeviceID)); err != nil {
		return nil, err
	}

	filter := executionsTopic(deviceType, *req.DeviceID, append([]string{"+", "request"}, suffix...)...)
	return servicev2.Stream(c.rr, c.logger, filter, decodeExecution, opts)
}

// CreateCommandExecutionsJSONPayloadStream creates a stream of commands
// whose payload is JSON. The stream must be opened.
func (c *ClientV2) CreateCommandExecutionsJSONPayloadStream(req *CommandExecutionsSubscriptionRequest, opts StreamOptions[CommandExecutionEvent]) (*reqresp.StreamingOperation, error) {
	return c.executionStream(req, []string{"json"}, opts)
}

// CreateCommandExecutionsCBORPayloadStream creates a stream of commands
// whose payload is CBOR. The stream must be opened.
func (c *ClientV2) CreateCommandExecutionsCBORPayloadStream(req *CommandExecutionsSubscriptionRequest, opts StreamOptions[CommandExecutionEvent]) (*reqresp.StreamingOperation, error) {
	return c.executionStream(req, []string{"cbor"}, opts)
}

// CreateCommandExecutionsGenericPayloadStream creates a stream of commands
// with an opaque payload. The stream must be opened.
func (c *ClientV2) CreateCommandExecutionsGenericPayloadStream(req *CommandExecutionsSubscriptionRequest, opts StreamOptions[CommandExecutionEvent]) (*reqresp.StreamingOperation, error) {
	return c.executionStream(req, nil, opts)
}
