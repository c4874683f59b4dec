// Package servicev2 holds the request and stream plumbing shared by the
// V2 service clients.
package servicev2

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/vitalvas/awsiot"
	"github.com/vitalvas/awsiot/reqresp"
)

// ClientTokenPath is the payload field carrying the correlation token.
const ClientTokenPath = "clientToken"

// Exchange describes one request/response operation of a service.
type Exchange struct {
	PublishTopic string
	Filters      []string

	// Accepted and Rejected are the response topics. Defaults are the
	// publish topic suffixed with /accepted and /rejected.
	Accepted string
	Rejected string

	// Token enables correlation through the clientToken payload field.
	Token string

	Payload []byte
}

// NewToken returns a fresh correlation token.
func NewToken() string {
	return uuid.NewString()
}

func (x *Exchange) responseTopics() (string, string) {
	accepted, rejected := x.Accepted, x.Rejected
	if accepted == "" {
		accepted = x.PublishTopic + "/accepted"
	}
	if rejected == "" {
		rejected = x.PublishTopic + "/rejected"
	}
	return accepted, rejected
}

func (x *Exchange) options() *reqresp.RequestOptions {
	accepted, rejected := x.responseTopics()

	opts := &reqresp.RequestOptions{
		PublishTopic:             x.PublishTopic,
		SubscriptionTopicFilters: x.Filters,
		Payload:                  x.Payload,
		CorrelationToken:         x.Token,
		ResponsePaths: []reqresp.ResponsePath{
			{Topic: accepted},
			{Topic: rejected},
		},
	}

	if x.Token != "" {
		for i := range opts.ResponsePaths {
			opts.ResponsePaths[i].CorrelationTokenJSONPath = ClientTokenPath
		}
	}

	return opts
}

// Do runs the exchange and decodes the reply: R from the accepted topic,
// E as a modeled error from the rejected topic. Every failure is a
// *awsiot.ServiceError[E].
func Do[R, E any](ctx context.Context, rr reqresp.RequestResponseClient, x *Exchange) (*R, error) {
	resp, err := rr.Request(ctx, x.options())
	if err != nil {
		return nil, awsiot.NewUnmodeledError[E](err)
	}

	accepted, rejected := x.responseTopics()

	switch resp.Topic {
	case accepted:
		out := new(R)
		if err := json.Unmarshal(resp.Payload, out); err != nil {
			return nil, awsiot.NewUnmodeledError[E](fmt.Errorf("%w: %w", awsiot.ErrPayloadParse, err))
		}
		return out, nil

	case rejected:
		modeled := new(E)
		if err := json.Unmarshal(resp.Payload, modeled); err != nil {
			return nil, awsiot.NewUnmodeledError[E](fmt.Errorf("%w: %w", awsiot.ErrPayloadParse, err))
		}
		return nil, awsiot.NewModeledError(modeled)

	default:
		return nil, awsiot.NewUnmodeledError[E](fmt.Errorf("%w: %s", awsiot.ErrInvalidResponsePath, resp.Topic))
	}
}

// Encode marshals a request payload.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return data, nil
}

// StreamOptions configures a typed stream.
type StreamOptions[T any] struct {
	// EventHandler receives every decoded event.
	EventHandler func(*T)

	// StatusHandler receives subscription status changes. Optional.
	StatusHandler func(*reqresp.SubscriptionStatusEvent)
}

// Decoder turns an incoming publish into an event.
type Decoder[T any] func(*reqresp.IncomingPublish) (*T, error)

// DecodeJSON is the Decoder for plain JSON events.
func DecodeJSON[T any](p *reqresp.IncomingPublish) (*T, error) {
	out := new(T)
	if err := json.Unmarshal(p.Payload, out); err != nil {
		return nil, fmt.Errorf("%w: %w", awsiot.ErrPayloadParse, err)
	}
	return out, nil
}

// Stream creates a stream on filter whose publishes are decoded before
// reaching the event handler. Publishes that fail to decode are logged
// and dropped.
func Stream[T any](rr reqresp.RequestResponseClient, logger awsiot.Logger, filter string, decode Decoder[T], opts StreamOptions[T]) (*reqresp.StreamingOperation, error) {
	if opts.EventHandler == nil {
		return nil, fmt.Errorf("%w: event handler is required", awsiot.ErrInvalidOptions)
	}

	return rr.CreateStream(reqresp.StreamOptions{
		TopicFilter:   filter,
		StatusHandler: opts.StatusHandler,
		PublishHandler: func(p *reqresp.IncomingPublish) {
			event, err := decode(p)
			if err != nil {
				logger.Warn("dropping undecodable event", awsiot.LogFields{
					awsiot.LogFieldTopic: p.Topic,
					awsiot.LogFieldBytes: len(p.Payload),
					awsiot.LogFieldError: err.Error(),
				})
				return
			}
			opts.EventHandler(event)
		},
	})
}

// Placeholder is a request field used to build a topic.
type Placeholder struct {
	Name  string
	Value *string
}

// Field makes a Placeholder.
func Field(name string, value *string) Placeholder {
	return Placeholder{Name: name, Value: value}
}

// Require returns a MissingFieldError for the first absent or empty placeholder.
func Require(fields ...Placeholder) error {
	for _, f := range fields {
		if f.Value == nil || *f.Value == "" {
			return awsiot.NewMissingFieldError(f.Name)
		}
	}
	return nil
}
