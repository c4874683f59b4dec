// Package servicev1 holds the subscribe and publish plumbing shared by the
// V1 service clients, which work on a connection without the
// request/response engine.
package servicev1

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/vitalvas/awsiot"
)

// Handler receives a decoded message, or the decode error.
type Handler[T any] func(resp *T, err error)

// Subscribe subscribes to topic and decodes every publish into T.
// It returns once the broker acknowledged the subscription.
func Subscribe[T any](ctx context.Context, conn awsiot.Connection, logger awsiot.Logger, topic string, qos byte, handler Handler[T]) error {
	if handler == nil {
		return fmt.Errorf("%w: handler is required", awsiot.ErrInvalidOptions)
	}

	err := conn.Subscribe(ctx, topic, qos, func(msg *awsiot.Message) {
		out := new(T)
		if err := json.Unmarshal(msg.Payload, out); err != nil {
			logger.Warn("undecodable message", awsiot.LogFields{
				awsiot.LogFieldTopic: msg.Topic,
				awsiot.LogFieldBytes: len(msg.Payload),
				awsiot.LogFieldError: err.Error(),
			})
			handler(nil, fmt.Errorf("%w: %w", awsiot.ErrPayloadParse, err))
			return
		}
		handler(out, nil)
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", awsiot.ErrSubscribeFailed, topic, err)
	}
	return nil
}

// Publish encodes body as JSON and publishes it on topic.
func Publish(ctx context.Context, conn awsiot.Connection, topic string, qos byte, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	if err := conn.Publish(ctx, &awsiot.Message{Topic: topic, Payload: payload, QoS: qos}); err != nil {
		return fmt.Errorf("%w: %s: %w", awsiot.ErrPublishFailed, topic, err)
	}
	return nil
}
