package reqresp

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonpointer"

	"github.com/vitalvas/awsiot"
)

// ResponsePath is a topic a response may arrive on.
type ResponsePath struct {
	// Topic is the exact topic name of the response.
	Topic string

	// CorrelationTokenJSONPath locates the correlation token inside the
	// response payload. Both JSON pointers ("/clientToken") and dotted
	// paths ("clientToken", "a.b") are accepted. Empty means responses on
	// this topic are correlated by topic alone.
	CorrelationTokenJSONPath string
}

// RequestOptions describes one request/response exchange.
type RequestOptions struct {
	// PublishTopic is where the request payload is published.
	PublishTopic string

	// SubscriptionTopicFilters must cover every response path topic.
	SubscriptionTopicFilters []string

	// ResponsePaths lists the topics that complete the operation.
	ResponsePaths []ResponsePath

	// Payload is the serialized request.
	Payload []byte

	// CorrelationToken is matched against the token found in responses.
	CorrelationToken string
}

// Response is the message that completed an operation.
type Response struct {
	Topic   string
	Payload []byte
}

// ResponseHandler receives the single result of an operation.
type ResponseHandler func(resp *Response, err error)

type compiledPath struct {
	topic   string
	pointer *gojsonpointer.JsonPointer
}

// compile validates opts and returns the deduplicated filters and compiled response paths.
func (o *RequestOptions) compile() ([]string, []compiledPath, error) {
	if o == nil {
		return nil, nil, fmt.Errorf("%w: nil request options", awsiot.ErrInvalidOptions)
	}

	if err := awsiot.ValidateTopicName(o.PublishTopic); err != nil {
		return nil, nil, fmt.Errorf("%w: publish topic: %w", awsiot.ErrInvalidOptions, err)
	}

	if len(o.SubscriptionTopicFilters) == 0 {
		return nil, nil, fmt.Errorf("%w: no subscription topic filters", awsiot.ErrInvalidOptions)
	}

	if len(o.ResponsePaths) == 0 {
		return nil, nil, fmt.Errorf("%w: no response paths", awsiot.ErrInvalidOptions)
	}

	filters := make([]string, 0, len(o.SubscriptionTopicFilters))
	seen := make(map[string]struct{}, len(o.SubscriptionTopicFilters))
	for _, f := range o.SubscriptionTopicFilters {
		if err := awsiot.ValidateTopicFilter(f); err != nil {
			return nil, nil, fmt.Errorf("%w: filter %q: %w", awsiot.ErrInvalidOptions, f, err)
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		filters = append(filters, f)
	}

	paths := make([]compiledPath, 0, len(o.ResponsePaths))
	for _, p := range o.ResponsePaths {
		if err := awsiot.ValidateTopicName(p.Topic); err != nil {
			return nil, nil, fmt.Errorf("%w: response topic: %w", awsiot.ErrInvalidOptions, err)
		}

		if !coveredBy(p.Topic, filters) {
			return nil, nil, fmt.Errorf("%w: response topic %q not covered by any filter", awsiot.ErrInvalidOptions, p.Topic)
		}

		hasPath := p.CorrelationTokenJSONPath != ""
		hasToken := o.CorrelationToken != ""
		if hasPath != hasToken {
			return nil, nil, fmt.Errorf("%w: correlation token and token path must be set together", awsiot.ErrInvalidOptions)
		}

		cp := compiledPath{topic: p.Topic}
		if hasPath {
			ptr, err := gojsonpointer.NewJsonPointer(toJSONPointer(p.CorrelationTokenJSONPath))
			if err != nil {
				return nil, nil, fmt.Errorf("%w: token path %q: %w", awsiot.ErrInvalidOptions, p.CorrelationTokenJSONPath, err)
			}
			cp.pointer = &ptr
		}
		paths = append(paths, cp)
	}

	return filters, paths, nil
}

func coveredBy(topic string, filters []string) bool {
	for _, f := range filters {
		if awsiot.TopicMatch(f, topic) {
			return true
		}
	}
	return false
}

// toJSONPointer converts a dotted path into a JSON pointer.
func toJSONPointer(path string) string {
	if strings.HasPrefix(path, "/") {
		return path
	}
	return "/" + strings.ReplaceAll(path, ".", "/")
}
