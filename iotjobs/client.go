// Package iotjobs is a client for the AWS IoT Jobs MQTT API.
//
// Requests are correlated with a fresh clientToken; the token set on a
// request is replaced.
package iotjobs

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

// ClientV2 runs jobs requests through a request/response engine.
// Request errors are *awsiot.ServiceError[V2ErrorResponse].
type ClientV2 struct {
	rr     reqresp.RequestResponseClient
	logger awsiot.Logger
}

// NewClientV2 creates a jobs client.
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

func thingJobsTopic(thingName string, levels ...string) string {
	return awsiot.JoinTopic(append([]string{"$aws/things", thingName, "jobs"}, levels...)...)
}

func request[R any](ctx context.Context, c *ClientV2, publishTopic, token string, body any) (*R, error) {
	payload, err := servicev2.Encode(body)
	if err != nil {
		return nil, err
	}

	return servicev2.Do[R, V2ErrorResponse](ctx, c.rr, &servicev2.Exchange{
		PublishTopic: publishTopic,
		Filters:      []string{publishTopic + "/+"},
		Token:        token,
		Payload:      payload,
	})
}

// DescribeJobExecution gets the details of a job execution.
func (c *ClientV2) DescribeJobExecution(ctx context.Context, req *DescribeJobExecutionRequest) (*DescribeJobExecutionResponse, error) {
	if err := servicev2.Require(
		servicev2.Field("thingName", req.ThingName),
		servicev2.Field("jobId", req.JobID),
	); err != nil {
		return nil, err
	}

	token := servicev2.NewToken()
	body := *req
	body.ClientToken = &token

	return request[DescribeJobExecutionResponse](ctx, c, thingJobsTopic(*req.ThingName, *req.JobID, "get"), token, &body)
}

// GetPendingJobExecutions lists the in-progress and queued executions of a thing.
func (c *ClientV2) GetPendingJobExecutions(ctx context.Context, req *GetPendingJobExecutionsRequest) (*GetPendingJobExecutionsResponse, error) {
	if err := servicev2.Require(servicev2.Field("thingName", req.ThingName)); err != nil {
		return nil, err
	}

	token := servicev2.NewToken()
	body := *req
	body.ClientToken = &token

	return request[GetPendingJobExecutionsResponse](ctx, c, thingJobsTopic(*req.ThingName, "get"), token, &body)
}

// StartNextPendingJobExecution moves the next queued execution to IN_PROGRESS.
func (c *ClientV2) StartNextPendingJobExecution(ctx context.Context, req *StartNextPendingJobExecutionRequest) (*StartNextJobExecutionResponse, error) {
	if err := servicev2.Require(servicev2.Field("thingName", req.ThingName)); err != nil {
		return nil, err
	}

	token := servicev2.NewToken()
	body := *req
	body.ClientToken = &token

	return request[StartNextJobExecutionResponse](ctx, c, thingJobsTopic(*req.ThingName, "start-next"), token, &body)
}

// UpdateJobExecution updates the status of a job execution.
func (c *ClientV2) UpdateJobExecution(ctx context.Context, req *UpdateJobExecutionRequest) (*UpdateJobExecutionResponse, error) {
	if err := servicev2.Require(
		servicev2.Field("thingName", req.ThingName),
		servicev2.Field("jobId", req.JobID),
	); err != nil {
		return nil, err
	}

	token := servicev2.NewToken()
	body := *req
	body.ClientToken = &token

	return request[UpdateJobExecutionResponse](ctx, c, thingJobsTopic(*req.ThingName, *req.JobID, "update"), token, &body)
}

// CreateJobExecutionsChangedStream creates a stream of changes to the
// pending execution list of a thing. The stream must be opened.
func (c *ClientV2) CreateJobExecutionsChangedStream(req *JobExecutionsChangedSubscriptionRequest, opts StreamOptions[JobExecutionsChangedEvent]) (*reqresp.StreamingOperation, error) {
	if err := servicev2.Require(servicev2.Field("thingName", req.ThingName)); err != nil {
		return nil, err
	}

	return servicev2.Stream(c.rr, c.logger, thingJobsTopic(*req.ThingName, "notify"),
		servicev2.DecodeJSON[JobExecutionsChangedEvent], opts)
}

// CreateNextJobExecutionChangedStream creates a stream of changes to the
// next pending execution of a thing. The stream must be opened.
func (c *ClientV2) CreateNextJobExecutionChangedStream(req *NextJobExecutionChangedSubscriptionRequest, opts StreamOptions[NextJobExecutionChangedEvent]) (*reqresp.StreamingOperation, error) {
	if err := servicev2.Require(servicev2.Field("thingName", req.ThingName)); err != nil {
		return nil, err
	}

	return servicev2.Stream(c.rr, c.logger, thingJobsTopic(*req.ThingName, "notify-next"),
		servicev2.DecodeJSON[NextJobExecutionChangedEvent], opts)
}
