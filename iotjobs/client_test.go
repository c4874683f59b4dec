package iotjobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/vitalvas/awsiot"
	"github.com/vitalvas/awsiot/awsiottest"
	"github.com/vitalvas/awsiot/reqresp"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestClient(t *testing.T) (*ClientV2, *awsiottest.Connection) {
	t.Helper()

	conn := awsiottest.NewConnection()
	rr, err := reqresp.NewClient(conn, reqresp.WithOperationTimeout(time.Second))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rr.Close() })

	return NewClientV2(rr), conn
}

func TestDescribeJobExecution(t *testing.T) {
	ctx := context.Background()

	t.Run("accepted", func(t *testing.T) {
		c, conn := newTestClient(t)

		ch := awsiottest.Go(func() (*DescribeJobExecutionResponse, error) {
			return c.DescribeJobExecution(ctx, &DescribeJobExecutionRequest{
				ThingName:          awsiot.String("dev-1"),
				JobID:              awsiot.String("job-7"),
				ClientToken:        awsiot.String("ignored"),
				IncludeJobDocument: awsiot.Bool(true),
			})
		})

		msg := conn.NextPublished(t)
		assert.Equal(t, "$aws/things/dev-1/jobs/job-7/get", msg.Topic)
		assert.Equal(t, []string{"$aws/things/dev-1/jobs/job-7/get/+"}, conn.Subscribed())

		token := awsiottest.ClientToken(t, msg.Payload)
		assert.NotEqual(t, "ignored", token)
		assert.Contains(t, string(msg.Payload), `"includeJobDocument":true`)
		assert.NotContains(t, string(msg.Payload), "dev-1")

		conn.Deliver(msg.Topic+"/accepted", []byte(`{"clientToken":"`+token+`","execution":{"jobId":"job-7","status":"IN_PROGRESS","versionNumber":2},"timestamp":1700000000}`))

		r := awsiottest.Await(t, ch)
		require.NoError(t, r.Err)
		assert.Equal(t, "job-7", *r.Value.Execution.JobID)
		assert.Equal(t, JobStatusInProgress, *r.Value.Execution.Status)
		assert.Equal(t, int64(1700000000), r.Value.Timestamp.Unix())
	})

	t.Run("rejected", func(t *testing.T) {
		c, conn := newTestClient(t)

		ch := awsiottest.Go(func() (*DescribeJobExecutionResponse, error) {
			return c.DescribeJobExecution(ctx, &DescribeJobExecutionRequest{
				ThingName: awsiot.String("dev-1"),
				JobID:     awsiot.String("missing"),
			})
		})

		msg := conn.NextPublished(t)
		token := awsiottest.ClientToken(t, msg.Payload)
		conn.Deliver(msg.Topic+"/rejected", []byte(`{"clientToken":"`+token+`","code":"ResourceNotFound","message":"no such job"}`))

		r := awsiottest.Await(t, ch)
		require.Error(t, r.Err)
		assert.ErrorIs(t, r.Err, awsiot.ErrModeledServiceError)

		var serr *awsiot.ServiceError[V2ErrorResponse]
		require.ErrorAs(t, r.Err, &serr)
		require.True(t, serr.HasModeledError())
		assert.Equal(t, RejectedErrorCodeResourceNotFound, *serr.ModeledError().Code)
		assert.Contains(t, serr.Error(), "ResourceNotFound: no such job")
	})

	t.Run("unparsable payload", func(t *testing.T) {
		c, conn := newTestClient(t)

		ch := awsiottest.Go(func() (*DescribeJobExecutionResponse, error) {
			return c.DescribeJobExecution(ctx, &DescribeJobExecutionRequest{
				ThingName: awsiot.String("dev-1"),
				JobID:     awsiot.String("job-7"),
			})
		})

		msg := conn.NextPublished(t)
		token := awsiottest.ClientToken(t, msg.Payload)
		conn.Deliver(msg.Topic+"/accepted", []byte(`{"clientToken":"`+token+`","execution":"oops"}`))

		r := awsiottest.Await(t, ch)
		assert.ErrorIs(t, r.Err, awsiot.ErrPayloadParse)

		var serr *awsiot.ServiceError[V2ErrorResponse]
		require.ErrorAs(t, r.Err, &serr)
		assert.False(t, serr.HasModeledError())
	})

	t.Run("missing placeholder", func(t *testing.T) {
		c, conn := newTestClient(t)

		_, err := c.DescribeJobExecution(ctx, &DescribeJobExecutionRequest{ThingName: awsiot.String("dev-1")})
		assert.ErrorIs(t, err, awsiot.ErrMissingField)

		var mf *awsiot.MissingFieldError
		require.ErrorAs(t, err, &mf)
		assert.Equal(t, "jobId", mf.Field)
		assert.Empty(t, conn.Subscribed())
	})

	t.Run("timeout", func(t *testing.T) {
		c, conn := newTestClient(t)

		ch := awsiottest.Go(func() (*DescribeJobExecutionResponse, error) {
			return c.DescribeJobExecution(ctx, &DescribeJobExecutionRequest{
				ThingName: awsiot.String("dev-1"),
				JobID:     awsiot.String("job-7"),
			})
		})
		conn.NextPublished(t)

		r := awsiottest.Await(t, ch)
		assert.ErrorIs(t, r.Err, awsiot.ErrTimeout)
	})
}

func TestRequestTopics(t *testing.T) {
	ctx := context.Background()
	thing := awsiot.String("dev-1")

	tests := []struct {
		name  string
		call  func(c *ClientV2) error
		topic string
	}{
		{
			name: "get pending",
			call: func(c *ClientV2) error {
				_, err := c.GetPendingJobExecutions(ctx, &GetPendingJobExecutionsRequest{ThingName: thing})
				return err
			},
			topic: "$aws/things/dev-1/jobs/get",
		},
		{
			name: "start next",
			call: func(c *ClientV2) error {
				_, err := c.StartNextPendingJobExecution(ctx, &StartNextPendingJobExecutionRequest{
					ThingName:            thing,
					StepTimeoutInMinutes: awsiot.Int64(10),
				})
				return err
			},
			topic: "$aws/things/dev-1/jobs/start-next",
		},
		{
			name: "update",
			call: func(c *ClientV2) error {
				status := JobStatusSucceeded
				_, err := c.UpdateJobExecution(ctx, &UpdateJobExecutionRequest{
					ThingName: thing,
					JobID:     awsiot.String("job-7"),
					Status:    &status,
				})
				return err
			},
			topic: "$aws/things/dev-1/jobs/job-7/update",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, conn := newTestClient(t)

			ch := awsiottest.Go(func() (struct{}, error) { return struct{}{}, tt.call(c) })

			msg := conn.NextPublished(t)
			assert.Equal(t, tt.topic, msg.Topic)
			assert.Equal(t, []string{tt.topic + "/+"}, conn.Subscribed())

			token := awsiottest.ClientToken(t, msg.Payload)
			conn.Deliver(tt.topic+"/accepted", []byte(`{"clientToken":"`+token+`"}`))

			require.NoError(t, awsiottest.Await(t, ch).Err)
		})
	}
}

func TestStreams(t *testing.T) {
	t.Run("job executions changed", func(t *testing.T) {
		c, conn := newTestClient(t)

		events := make(chan *JobExecutionsChangedEvent, 4)
		s, err := c.CreateJobExecutionsChangedStream(
			&JobExecutionsChangedSubscriptionRequest{ThingName: awsiot.String("dev-1")},
			StreamOptions[JobExecutionsChangedEvent]{
				EventHandler: func(ev *JobExecutionsChangedEvent) { events <- ev },
			},
		)
		require.NoError(t, err)
		require.NoError(t, s.Open())
		defer s.Close()

		awsiottest.Eventually(t, func() bool { return conn.HasHandler("$aws/things/dev-1/jobs/notify") })

		conn.Deliver("$aws/things/dev-1/jobs/notify", []byte(`not json`))
		conn.Deliver("$aws/things/dev-1/jobs/notify", []byte(`{"jobs":{"QUEUED":[{"jobId":"a"}]}}`))

		require.Len(t, events, 1)
		ev := <-events
		assert.Len(t, ev.JobsWithStatus(JobStatusQueued), 1)
	})

	t.Run("next job execution changed", func(t *testing.T) {
		c, conn := newTestClient(t)

		events := make(chan *NextJobExecutionChangedEvent, 4)
		s, err := c.CreateNextJobExecutionChangedStream(
			&NextJobExecutionChangedSubscriptionRequest{ThingName: awsiot.String("dev-1")},
			StreamOptions[NextJobExecutionChangedEvent]{
				EventHandler: func(ev *NextJobExecutionChangedEvent) { events <- ev },
			},
		)
		require.NoError(t, err)
		require.NoError(t, s.Open())
		defer s.Close()

		awsiottest.Eventually(t, func() bool { return conn.HasHandler("$aws/things/dev-1/jobs/notify-next") })

		conn.Deliver("$aws/things/dev-1/jobs/notify-next", []byte(`{"execution":{"jobId":"b","status":"QUEUED"},"timestamp":1}`))

		require.Len(t, events, 1)
		ev := <-events
		assert.Equal(t, "b", *ev.Execution.JobID)
	})

	t.Run("validation", func(t *testing.T) {
		c, _ := newTestClient(t)

		_, err := c.CreateNextJobExecutionChangedStream(&NextJobExecutionChangedSubscriptionRequest{},
			StreamOptions[NextJobExecutionChangedEvent]{EventHandler: func(*NextJobExecutionChangedEvent) {}})
		assert.ErrorIs(t, err, awsiot.ErrMissingField)

		_, err = c.CreateNextJobExecutionChangedStream(
			&NextJobExecutionChangedSubscriptionRequest{ThingName: awsiot.String("dev-1")},
			StreamOptions[NextJobExecutionChangedEvent]{})
		assert.ErrorIs(t, err, awsiot.ErrInvalidOptions)
	})
}
