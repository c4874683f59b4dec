package reqresp

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/vitalvas/awsiot"
	"github.com/vitalvas/awsiot/awsiottest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const shadowGet = "$aws/things/dev-1/shadow/get"

func shadowGetOptions(token string) *RequestOptions {
	return &RequestOptions{
		PublishTopic:             shadowGet,
		SubscriptionTopicFilters: []string{shadowGet + "/+"},
		ResponsePaths: []ResponsePath{
			{Topic: shadowGet + "/accepted", CorrelationTokenJSONPath: "clientToken"},
			{Topic: shadowGet + "/rejected", CorrelationTokenJSONPath: "clientToken"},
		},
		Payload:          []byte(`{"clientToken":"` + token + `"}`),
		CorrelationToken: token,
	}
}

func commandOptions(execID string) *RequestOptions {
	base := "$aws/commands/things/dev-1/executions/" + execID + "/response"
	return &RequestOptions{
		PublishTopic:             base + "/json",
		SubscriptionTopicFilters: []string{base + "/accepted/json", base + "/rejected/json"},
		ResponsePaths: []ResponsePath{
			{Topic: base + "/accepted/json"},
			{Topic: base + "/rejected/json"},
		},
		Payload: []byte(`{"status":"SUCCEEDED"}`),
	}
}

func newTestClient(t *testing.T, conn awsiot.Connection, opts ...Option) *Client {
	t.Helper()

	c, err := NewClient(conn, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

type result struct {
	resp *Response
	err  error
}

func submit(t *testing.T, c *Client, opts *RequestOptions) <-chan result {
	t.Helper()

	ch := make(chan result, 2)
	require.NoError(t, c.SubmitRequest(opts, func(resp *Response, err error) {
		ch <- result{resp: resp, err: err}
	}))
	return ch
}

func wait(t *testing.T, ch <-chan result) result {
	t.Helper()

	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for completion")
		return result{}
	}
}

func TestNewClient(t *testing.T) {
	t.Run("requires connection", func(t *testing.T) {
		_, err := NewClient(nil)
		assert.ErrorIs(t, err, awsiot.ErrInvalidOptions)
	})

	t.Run("request budget minimum", func(t *testing.T) {
		_, err := NewClient(awsiottest.NewConnection(), WithMaxRequestResponseSubscriptions(1))
		assert.ErrorIs(t, err, awsiot.ErrInvalidOptions)
	})

	t.Run("rejects qos 2", func(t *testing.T) {
		_, err := NewClient(awsiottest.NewConnection(), WithQoS(2))
		assert.ErrorIs(t, err, awsiot.ErrInvalidOptions)
	})

	t.Run("rejects non positive timeout", func(t *testing.T) {
		_, err := NewClient(awsiottest.NewConnection(), WithOperationTimeout(0))
		assert.ErrorIs(t, err, awsiot.ErrInvalidOptions)
	})
}

func TestSubmitRequestValidation(t *testing.T) {
	conn := awsiottest.NewConnection()
	c := newTestClient(t, conn)
	noop := func(*Response, error) {}

	tests := []struct {
		name    string
		opts    *RequestOptions
		wantErr error
	}{
		{"nil options", nil, awsiot.ErrInvalidOptions},
		{"wildcard publish topic", &RequestOptions{
			PublishTopic:             "a/+",
			SubscriptionTopicFilters: []string{"a/#"},
			ResponsePaths:            []ResponsePath{{Topic: "a/b"}},
		}, awsiot.ErrInvalidOptions},
		{"no filters", &RequestOptions{
			PublishTopic:  "a",
			ResponsePaths: []ResponsePath{{Topic: "a/b"}},
		}, awsiot.ErrInvalidOptions},
		{"no response paths", &RequestOptions{
			PublishTopic:             "a",
			SubscriptionTopicFilters: []string{"a/#"},
		}, awsiot.ErrInvalidOptions},
		{"response not covered", &RequestOptions{
			PublishTopic:             "a",
			SubscriptionTopicFilters: []string{"a/+"},
			ResponsePaths:            []ResponsePath{{Topic: "b/accepted"}},
		}, awsiot.ErrInvalidOptions},
		{"token without path", &RequestOptions{
			PublishTopic:             "a",
			SubscriptionTopicFilters: []string{"a/+"},
			ResponsePaths:            []ResponsePath{{Topic: "a/accepted"}},
			CorrelationToken:         "t",
		}, awsiot.ErrInvalidOptions},
		{"path without token", &RequestOptions{
			PublishTopic:             "a",
			SubscriptionTopicFilters: []string{"a/+"},
			ResponsePaths:            []ResponsePath{{Topic: "a/accepted", CorrelationTokenJSONPath: "clientToken"}},
		}, awsiot.ErrInvalidOptions},
		{"too many filters", &RequestOptions{
			PublishTopic:             "a",
			SubscriptionTopicFilters: []string{"a/1", "a/2", "a/3", "a/4", "a/5"},
			ResponsePaths:            []ResponsePath{{Topic: "a/1"}},
		}, awsiot.ErrSubscriptionBudget},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.SubmitRequest(tt.opts, noop)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("nil handler", func(t *testing.T) {
		err := c.SubmitRequest(shadowGetOptions("x"), nil)
		assert.ErrorIs(t, err, awsiot.ErrInvalidOptions)
	})
}

func TestTokenCorrelation(t *testing.T) {
	t.Run("accepted response completes request", func(t *testing.T) {
		conn := awsiottest.NewConnection()
		c := newTestClient(t, conn)

		done := submit(t, c, shadowGetOptions("tok-1"))

		msg := conn.NextPublished(t)
		assert.Equal(t, shadowGet, msg.Topic)
		assert.Equal(t, awsiot.QoS1, msg.QoS)
		assert.JSONEq(t, `{"clientToken":"tok-1"}`, string(msg.Payload))

		conn.Deliver(shadowGet+"/accepted", []byte(`{"clientToken":"tok-1","version":3}`))

		r := wait(t, done)
		require.NoError(t, r.err)
		assert.Equal(t, shadowGet+"/accepted", r.resp.Topic)
		assert.JSONEq(t, `{"clientToken":"tok-1","version":3}`, string(r.resp.Payload))
	})

	t.Run("out of order responses reach their own requests", func(t *testing.T) {
		conn := awsiottest.NewConnection()
		c := newTestClient(t, conn)

		first := submit(t, c, shadowGetOptions("a"))
		second := submit(t, c, shadowGetOptions("b"))
		conn.NextPublished(t)
		conn.NextPublished(t)

		conn.Deliver(shadowGet+"/rejected", []byte(`{"clientToken":"b","code":404}`))
		conn.Deliver(shadowGet+"/accepted", []byte(`{"clientToken":"a"}`))

		r2 := wait(t, second)
		require.NoError(t, r2.err)
		assert.Equal(t, shadowGet+"/rejected", r2.resp.Topic)

		r1 := wait(t, first)
		require.NoError(t, r1.err)
		assert.Equal(t, shadowGet+"/accepted", r1.resp.Topic)

		assert.Equal(t, []string{shadowGet + "/+"}, conn.Subscribed())
	})

	t.Run("unknown or missing token is ignored", func(t *testing.T) {
		conn := awsiottest.NewConnection()
		c := newTestClient(t, conn, WithOperationTimeout(100*time.Millisecond))

		done := submit(t, c, shadowGetOptions("mine"))
		conn.NextPublished(t)

		conn.Deliver(shadowGet+"/accepted", []byte(`{"clientToken":"other"}`))
		conn.Deliver(shadowGet+"/accepted", []byte(`{}`))
		conn.Deliver(shadowGet+"/accepted", []byte(`not json`))

		r := wait(t, done)
		assert.ErrorIs(t, r.err, awsiot.ErrTimeout)
	})

	t.Run("json pointer path", func(t *testing.T) {
		conn := awsiottest.NewConnection()
		c := newTestClient(t, conn)

		opts := shadowGetOptions("deep")
		for i := range opts.ResponsePaths {
			opts.ResponsePaths[i].CorrelationTokenJSONPath = "/meta/token"
		}
		done := submit(t, c, opts)
		conn.NextPublished(t)

		conn.Deliver(shadowGet+"/accepted", []byte(`{"meta":{"token":"deep"}}`))
		r := wait(t, done)
		require.NoError(t, r.err)
	})
}

func TestTopicCorrelation(t *testing.T) {
	conn := awsiottest.NewConnection()
	c := newTestClient(t, conn)

	opts := commandOptions("abc-123")
	done := submit(t, c, opts)

	msg := conn.NextPublished(t)
	assert.Equal(t, "$aws/commands/things/dev-1/executions/abc-123/response/json", msg.Topic)

	conn.Deliver("$aws/commands/things/dev-1/executions/abc-123/response/rejected/json", []byte(`{"error":"InvalidRequest"}`))

	r := wait(t, done)
	require.NoError(t, r.err)
	assert.Equal(t, "$aws/commands/things/dev-1/executions/abc-123/response/rejected/json", r.resp.Topic)
	assert.ElementsMatch(t, opts.SubscriptionTopicFilters, conn.Subscribed())
}

func TestExactlyOnceCompletion(t *testing.T) {
	conn := awsiottest.NewConnection()
	c := newTestClient(t, conn, WithOperationTimeout(100*time.Millisecond))

	var calls atomic.Int32
	done := make(chan struct{})
	require.NoError(t, c.SubmitRequest(shadowGetOptions("once"), func(_ *Response, err error) {
		if calls.Add(1) == 1 {
			assert.NoError(t, err)
			close(done)
		}
	}))
	conn.NextPublished(t)

	conn.Deliver(shadowGet+"/accepted", []byte(`{"clientToken":"once"}`))
	conn.Deliver(shadowGet+"/accepted", []byte(`{"clientToken":"once"}`))
	<-done

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestTimeout(t *testing.T) {
	conn := awsiottest.NewConnection()
	m := awsiot.NewMemoryMetrics()
	c := newTestClient(t, conn, WithOperationTimeout(50*time.Millisecond), WithMetrics(m))

	done := submit(t, c, shadowGetOptions("slow"))
	r := wait(t, done)

	assert.ErrorIs(t, r.err, awsiot.ErrTimeout)
	assert.Nil(t, r.resp)
	assert.Equal(t, float64(1), m.CounterValue(awsiot.MetricRequestsCompleted, awsiot.MetricLabels{awsiot.LabelOutcome: awsiot.OutcomeTimeout}))
	assert.Equal(t, float64(0), m.GaugeValue(awsiot.MetricRequestsPending, nil))
}

func TestSubscribeFailure(t *testing.T) {
	conn := awsiottest.NewConnection()
	conn.FailSubscribe(shadowGet+"/+", errors.New("suback failure"))
	c := newTestClient(t, conn)

	r := wait(t, submit(t, c, shadowGetOptions("x")))
	assert.ErrorIs(t, r.err, awsiot.ErrSubscribeFailed)

	t.Run("next request subscribes again", func(t *testing.T) {
		conn.FailSubscribe(shadowGet+"/+", nil)

		done := submit(t, c, shadowGetOptions("y"))
		conn.NextPublished(t)
		conn.Deliver(shadowGet+"/accepted", []byte(`{"clientToken":"y"}`))
		require.NoError(t, wait(t, done).err)
		assert.Len(t, conn.Subscribed(), 2)
	})
}

func TestPublishFailure(t *testing.T) {
	conn := awsiottest.NewConnection()
	tooLarge := errors.New("packet too large")
	conn.FailPublish(tooLarge)
	c := newTestClient(t, conn)

	r := wait(t, submit(t, c, shadowGetOptions("x")))
	assert.ErrorIs(t, r.err, awsiot.ErrPublishFailed)
	assert.ErrorIs(t, r.err, tooLarge)
}

func TestSubscriptionBudget(t *testing.T) {
	t.Run("queued request starts when budget frees", func(t *testing.T) {
		conn := awsiottest.NewConnection()
		c := newTestClient(t, conn, WithMaxRequestResponseSubscriptions(2))

		first := submit(t, c, commandOptions("e1"))
		conn.NextPublished(t)

		second := submit(t, c, commandOptions("e2"))
		conn.AssertNoPublish(t, 50*time.Millisecond)

		conn.Deliver("$aws/commands/things/dev-1/executions/e1/response/accepted/json", []byte(`{}`))
		require.NoError(t, wait(t, first).err)

		msg := conn.NextPublished(t)
		assert.Equal(t, "$aws/commands/things/dev-1/executions/e2/response/json", msg.Topic)
		assert.ElementsMatch(t, []string{
			"$aws/commands/things/dev-1/executions/e1/response/accepted/json",
			"$aws/commands/things/dev-1/executions/e1/response/rejected/json",
		}, conn.Unsubscribed())

		conn.Deliver("$aws/commands/things/dev-1/executions/e2/response/accepted/json", []byte(`{}`))
		require.NoError(t, wait(t, second).err)
	})

	t.Run("unused subscriptions are reused", func(t *testing.T) {
		conn := awsiottest.NewConnection()
		c := newTestClient(t, conn)

		for _, token := range []string{"a", "b", "c"} {
			done := submit(t, c, shadowGetOptions(token))
			conn.NextPublished(t)
			conn.Deliver(shadowGet+"/accepted", []byte(`{"clientToken":"`+token+`"}`))
			require.NoError(t, wait(t, done).err)
		}

		assert.Equal(t, []string{shadowGet + "/+"}, conn.Subscribed())
		assert.Empty(t, conn.Unsubscribed())
	})

	t.Run("queued request times out", func(t *testing.T) {
		conn := awsiottest.NewConnection()
		c := newTestClient(t, conn,
			WithMaxRequestResponseSubscriptions(2),
			WithOperationTimeout(100*time.Millisecond),
		)

		first := submit(t, c, commandOptions("e1"))
		second := submit(t, c, commandOptions("e2"))
		conn.NextPublished(t)

		assert.ErrorIs(t, wait(t, first).err, awsiot.ErrTimeout)
		assert.ErrorIs(t, wait(t, second).err, awsiot.ErrTimeout)
	})

	t.Run("queue keeps fifo order", func(t *testing.T) {
		conn := awsiottest.NewConnection()
		c := newTestClient(t, conn, WithMaxRequestResponseSubscriptions(2))

		first := submit(t, c, commandOptions("e1"))
		conn.NextPublished(t)

		second := submit(t, c, commandOptions("e2"))
		third := submit(t, c, shadowGetOptions("s"))

		conn.Deliver("$aws/commands/things/dev-1/executions/e1/response/accepted/json", []byte(`{}`))
		require.NoError(t, wait(t, first).err)

		msg := conn.NextPublished(t)
		assert.Equal(t, "$aws/commands/things/dev-1/executions/e2/response/json", msg.Topic)
		conn.AssertNoPublish(t, 50*time.Millisecond)

		conn.Deliver("$aws/commands/things/dev-1/executions/e2/response/accepted/json", []byte(`{}`))
		require.NoError(t, wait(t, second).err)

		msg = conn.NextPublished(t)
		assert.Equal(t, shadowGet, msg.Topic)
		conn.Deliver(shadowGet+"/accepted", []byte(`{"clientToken":"s"}`))
		require.NoError(t, wait(t, third).err)
	})
}

func TestRequest(t *testing.T) {
	t.Run("synchronous response", func(t *testing.T) {
		conn := awsiottest.NewConnection()
		c := newTestClient(t, conn)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn.NextPublished(t)
			conn.Deliver(shadowGet+"/accepted", []byte(`{"clientToken":"sync"}`))
		}()

		resp, err := c.Request(context.Background(), shadowGetOptions("sync"))
		wg.Wait()

		require.NoError(t, err)
		assert.Equal(t, shadowGet+"/accepted", resp.Topic)
	})

	t.Run("context cancellation", func(t *testing.T) {
		conn := awsiottest.NewConnection()
		c := newTestClient(t, conn)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := c.Request(ctx, shadowGetOptions("never"))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("invalid options", func(t *testing.T) {
		c := newTestClient(t, awsiottest.NewConnection())
		_, err := c.Request(context.Background(), &RequestOptions{})
		assert.ErrorIs(t, err, awsiot.ErrInvalidOptions)
	})
}

func TestClose(t *testing.T) {
	t.Run("fails pending and rejects new requests", func(t *testing.T) {
		conn := awsiottest.NewConnection()
		c, err := NewClient(conn)
		require.NoError(t, err)

		done := submit(t, c, shadowGetOptions("pending"))
		conn.NextPublished(t)

		require.NoError(t, c.Close())
		assert.ErrorIs(t, wait(t, done).err, awsiot.ErrClientClosed)
		assert.Equal(t, []string{shadowGet + "/+"}, conn.Unsubscribed())

		err = c.SubmitRequest(shadowGetOptions("late"), func(*Response, error) {})
		assert.ErrorIs(t, err, awsiot.ErrClientClosed)

		assert.NoError(t, c.Close())
	})

	t.Run("removes connection listener", func(t *testing.T) {
		conn := awsiottest.NewConnection()
		c, err := NewClient(conn)
		require.NoError(t, err)
		assert.Equal(t, 1, conn.Len())

		require.NoError(t, c.Close())
		assert.Equal(t, 0, conn.Len())
	})
}

func TestPublishRate(t *testing.T) {
	conn := awsiottest.NewConnection()
	c := newTestClient(t, conn, WithPublishRate(20, 1))

	start := time.Now()
	first := submit(t, c, commandOptions("r1"))
	second := submit(t, c, commandOptions("r2"))
	conn.NextPublished(t)
	conn.NextPublished(t)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)

	conn.Deliver("$aws/commands/things/dev-1/executions/r1/response/accepted/json", []byte(`{}`))
	conn.Deliver("$aws/commands/things/dev-1/executions/r2/response/accepted/json", []byte(`{}`))
	require.NoError(t, wait(t, first).err)
	require.NoError(t, wait(t, second).err)
}

func TestConnectionLossKeepsRequestsWaiting(t *testing.T) {
	conn := awsiottest.NewConnection()
	c := newTestClient(t, conn)

	done := submit(t, c, shadowGetOptions("survivor"))
	conn.NextPublished(t)

	conn.Drop(errors.New("eof"))
	conn.Resume(false)

	awsiottest.Eventually(t, func() bool { return conn.HasHandler(shadowGet + "/+") })
	conn.Deliver(shadowGet+"/accepted", []byte(`{"clientToken":"survivor"}`))
	require.NoError(t, wait(t, done).err)
}

func TestRequestWhileOffline(t *testing.T) {
	accepted := "$aws/commands/things/dev-1/executions/abc/response/accepted/json"

	t.Run("waits for reconnect", func(t *testing.T) {
		conn := awsiottest.NewConnection()
		c := newTestClient(t, conn)

		conn.Drop(errors.New("eof"))
		done := submit(t, c, commandOptions("abc"))

		select {
		case r := <-done:
			t.Fatalf("request completed while offline: %v", r.err)
		case <-time.After(50 * time.Millisecond):
		}
		conn.AssertNoPublish(t, 10*time.Millisecond)

		conn.Resume(false)

		msg := conn.NextPublished(t)
		assert.Equal(t, "$aws/commands/things/dev-1/executions/abc/response/json", msg.Topic)
		assert.True(t, conn.HasHandler(accepted))

		conn.Deliver(accepted, []byte(`{"executionId":"abc"}`))
		r := wait(t, done)
		require.NoError(t, r.err)
		assert.Equal(t, accepted, r.resp.Topic)
	})

	t.Run("times out when the connection stays down", func(t *testing.T) {
		conn := awsiottest.NewConnection()
		c := newTestClient(t, conn, WithOperationTimeout(50*time.Millisecond))

		conn.Drop(errors.New("eof"))
		r := wait(t, submit(t, c, commandOptions("abc")))
		assert.ErrorIs(t, r.err, awsiot.ErrTimeout)
		assert.Empty(t, conn.Subscribed())
	})

	t.Run("publish waits on an active subscription", func(t *testing.T) {
		conn := awsiottest.NewConnection()
		c := newTestClient(t, conn)

		first := submit(t, c, shadowGetOptions("one"))
		conn.NextPublished(t)
		conn.Deliver(shadowGet+"/accepted", []byte(`{"clientToken":"one"}`))
		require.NoError(t, wait(t, first).err)

		conn.Drop(errors.New("eof"))
		second := submit(t, c, shadowGetOptions("two"))
		conn.AssertNoPublish(t, 50*time.Millisecond)

		conn.Resume(false)
		msg := conn.NextPublished(t)
		assert.Equal(t, "two", awsiottest.ClientToken(t, msg.Payload))

		awsiottest.Eventually(t, func() bool { return conn.HasHandler(shadowGet + "/+") })
		conn.Deliver(shadowGet+"/accepted", []byte(`{"clientToken":"two"}`))
		require.NoError(t, wait(t, second).err)
	})
}

func TestToJSONPointer(t *testing.T) {
	assert.Equal(t, "/clientToken", toJSONPointer("clientToken"))
	assert.Equal(t, "/a/b", toJSONPointer("a.b"))
	assert.Equal(t, "/a/b", toJSONPointer("/a/b"))
}
