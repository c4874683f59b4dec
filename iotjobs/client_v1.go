package iotjobs

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

// Client publishes jobs requests and subscribes to their replies directly
// on a connection. Matching a reply to its request is left to the caller.
type Client struct {
	conn   awsiot.Connection
	logger awsiot.Logger
	qos    byte
}

// NewClient creates a jobs client on conn.
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
	return servicev1.Subscribe(ctx, c.conn, c.logger, thingJobsTopic(*thingName, levels...), c.qos, handler)
}

func subscribeJob[T any](ctx context.Context, c *Client, thingName, jobID *string, handler Handler[T], levels ...string) error {
	if err := servicev2.Require(servicev2.Field("jobId", jobID)); err != nil {
		return err
	}
	return subscribe(ctx, c, thingName, handler, append([]string{*jobID}, levels...)...)
}

// SubscribeToDescribeJobExecutionAccepted delivers accepted describe replies.
func (c *Client) SubscribeToDescribeJobExecutionAccepted(ctx context.Context, req *DescribeJobExecutionSubscriptionRequest, handler Handler[DescribeJobExecutionResponse]) error {
	return subscribeJob(ctx, c, req.ThingName, req.JobID, handler, "get", "accepted")
}

// SubscribeToDescribeJobExecutionRejected delivers rejected describe replies.
func (c *Client) SubscribeToDescribeJobExecutionRejected(ctx context.Context, req *DescribeJobExecutionSubscriptionRequest, handler Handler[RejectedError]) error {
	return subscribeJob(ctx, c, req.ThingName, req.JobID, handler, "get", "rejected")
}

// SubscribeToGetPendingJobExecutionsAccepted delivers accepted pending-list replies.
func (c *Client) SubscribeToGetPendingJobExecutionsAccepted(ctx context.Context, req *GetPendingJobExecutionsSubscriptionRequest, handler Handler[GetPendingJobExecutionsResponse]) error {
	return subscribe(ctx, c, req.ThingName, handler, "get", "accepted")
}

// SubscribeToGetPendingJobExecutionsRejected delivers rejected pending-list replies.
func (c *Client) SubscribeToGetPendingJobExecutionsRejected(ctx context.Context, req *GetPendingJobExecutionsSubscriptionRequest, handler Handler[RejectedError]) error {
	return subscribe(ctx, c, req.ThingName, handler, "get", "rejected")
}

// SubscribeToStartNextPendingJobExecutionAccepted delivers accepted start-next replies.
func (c *Client) SubscribeToStartNextPendingJobExecutionAccepted(ctx context.Context, req *StartNextPendingJobExecutionSubscriptionRequest, handler Handler[StartNextJobExecutionResponse]) error {
	return subscribe(ctx, c, req.ThingName, handler, "start-next", "accepted")
}

// SubscribeToStartNextPendingJobExecutionRejected delivers rejected start-next replies.
func (c *Client) SubscribeToStartNextPendingJobExecutionRejected(ctx context.Context, req *StartNextPendingJobExecutionSubscriptionRequest, handler Handler[RejectedError]) error {
	return subscribe(ctx, c, req.ThingName, handler, "start-next", "rejected")
}

// SubscribeToUpdateJobExecutionAccepted delivers accepted update replies.
func (c *Client) SubscribeToUpdateJobExecutionAccepted(ctx context.Context, req *UpdateJobExecutionSubscriptionRequest, handler Handler[UpdateJobExecutionResponse]) error {
	return subscribeJob(ctx, c, req.ThingName, req.JobID, handler, "update", "accepted")
}

// SubscribeToUpdateJobExecutionRejected delivers rejected update replies.
func (c *Client) SubscribeToUpdateJobExecutionRejected(ctx context.Context, req *UpdateJobExecutionSubscriptionRequest, handler Handler[RejectedError]) error {
	return subscribeJob(ctx, c, req.ThingName, req.JobID, handler, "update", "rejected")
}

// SubscribeToJobExecutionsChangedEvents delivers changes to the pending execution list.
func (c *Client) SubscribeToJobExecutionsChangedEvents(ctx context.Context, req *JobExecutionsChangedSubscriptionRequest, handler Handler[JobExecutionsChangedEvent]) error {
	return subscribe(ctx, c, req.ThingName, handler, "notify")
}

// SubscribeToNextJobExecutionChangedEvents delivers changes to the next pending execution.
func (c *Client) SubscribeToNextJobExecutionChangedEvents(ctx context.Context, req *NextJobExecutionChangedSubscriptionRequest, handler Handler[NextJobExecutionChangedEvent]) error {
	return subscribe(ctx, c, req.ThingName, handler, "notify-next")
}

// PublishDescribeJobExecution publishes a describe request.
func (c *Client) PublishDescribeJobExecution(ctx context.Context, req *DescribeJobExecutionRequest) error {
	if err := servicev2.Require(
		servicev2.Field("thingName", req.ThingName),
		servicev2.Field("jobId", req.JobID),
	); err != nil {
		return err
	}
	return servicev1.Publish(ctx, c.conn, thingJobsTopic(*req.ThingName, *req.JobID, "get"), c.qos, req)
}

// PublishGetPendingJobExecutions publishes a pending-list request.
func (c *Client) PublishGetPendingJobExecutions(ctx context.Context, req *GetPendingJobExecutionsRequest) error {
	if err := servicev2.Require(servicev2.Field("thingName", req.ThingName)); err != nil {
		return err
	}
	return servicev1.Publish(ctx, c.conn, thingJobsTopic(*req.ThingName, "get"), c.qos, req)
}

// PublishStartNextPendingJobExecution publishes a start-next request.
func (c *Client) PublishStartNextPendingJobExecution(ctx context.Context, req *StartNextPendingJobExecutionRequest) error {
	if err := servicev2.Require(servicev2.Field("thingName", req.ThingName)); err != nil {
		return err
	}
	return servicev1.Publish(ctx, c.conn, thingJobsTopic(*req.ThingName, "start-next"), c.qos, req)
}

// PublishUpdateJobExecution publishes an update request.
func (c *Client) PublishUpdateJobExecution(ctx context.Context, req *UpdateJobExecutionRequest) error {
	if err := servicev2.Require(
		servicev2.Field("thingName", req.ThingName),
		servicev2.Field("jobId", req.JobID),
	); err != nil {
		return err
	}
	return servicev1.Publish(ctx, c.conn, thingJobsTopic(*req.ThingName, *req.JobID, "update"), c.qos, req)
}
