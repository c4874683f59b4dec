package iotshadow

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
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

func TestGetShadow(t *testing.T) {
	ctx := context.Background()

	t.Run("accepted", func(t *testing.T) {
		c, conn := newTestClient(t)

		ch := awsiottest.Go(func() (*GetShadowResponse, error) {
			return c.GetShadow(ctx, &GetShadowRequest{ThingName: awsiot.String("dev-1")})
		})

		msg := conn.NextPublished(t)
		assert.Equal(t, "$aws/things/dev-1/shadow/get", msg.Topic)
		assert.Equal(t, []string{"$aws/things/dev-1/shadow/get/+"}, conn.Subscribed())

		token := awsiottest.ClientToken(t, msg.Payload)
		conn.Deliver("$aws/things/dev-1/shadow/get/accepted", []byte(`{
			"clientToken":"`+token+`",
			"state":{"desired":{"color":"red"},"reported":{"color":"blue"},"delta":{"color":"red"}},
			"metadata":{"desired":{"color":{"timestamp":1}}},
			"version":12,
			"timestamp":1700000000
		}`))

		r := awsiottest.Await(t, ch)
		require.NoError(t, r.Err)
		assert.JSONEq(t, `{"color":"red"}`, string(r.Value.State.Delta))
		assert.JSONEq(t, `{"color":"blue"}`, string(r.Value.State.Reported))
		assert.Equal(t, int32(12), *r.Value.Version)
		assert.NotNil(t, r.Value.Metadata.Desired)
		assert.Nil(t, r.Value.Metadata.Reported)
	})

	t.Run("not found", func(t *testing.T) {
		c, conn := newTestClient(t)

		ch := awsiottest.Go(func() (*GetShadowResponse, error) {
			return c.GetShadow(ctx, &GetShadowRequest{ThingName: awsiot.String("dev-1")})
		})

		msg := conn.NextPublished(t)
		token := awsiottest.ClientToken(t, msg.Payload)
		conn.Deliver("$aws/things/dev-1/shadow/get/rejected", []byte(`{"clientToken":"`+token+`","code":404,"message":"No shadow exists with name: 'dev-1'"}`))

		r := awsiottest.Await(t, ch)
		var serr *awsiot.ServiceError[V2ErrorResponse]
		require.ErrorAs(t, r.Err, &serr)
		require.True(t, serr.HasModeledError())
		assert.Equal(t, int32(404), *serr.ModeledError().Code)
		assert.Contains(t, serr.Error(), "404: No shadow exists")
	})

	t.Run("concurrent requests share the subscription", func(t *testing.T) {
		c, conn := newTestClient(t)

		first := awsiottest.Go(func() (*GetShadowResponse, error) {
			return c.GetShadow(ctx, &GetShadowRequest{ThingName: awsiot.String("dev-1")})
		})
		firstToken := awsiottest.ClientToken(t, conn.NextPublished(t).Payload)

		second := awsiottest.Go(func() (*GetShadowResponse, error) {
			return c.GetShadow(ctx, &GetShadowRequest{ThingName: awsiot.String("dev-1")})
		})
		secondToken := awsiottest.ClientToken(t, conn.NextPublished(t).Payload)

		assert.Equal(t, []string{"$aws/things/dev-1/shadow/get/+"}, conn.Subscribed())

		conn.Deliver("$aws/things/dev-1/shadow/get/accepted", []byte(`{"clientToken":"`+secondToken+`","version":2}`))
		conn.Deliver("$aws/things/dev-1/shadow/get/accepted", []byte(`{"clientToken":"`+firstToken+`","version":1}`))

		r1 := awsiottest.Await(t, first)
		r2 := awsiottest.Await(t, second)
		require.NoError(t, r1.Err)
		require.NoError(t, r2.Err)
		assert.Equal(t, int32(1), *r1.Value.Version)
		assert.Equal(t, int32(2), *r2.Value.Version)
	})
}

func TestUpdateShadow(t *testing.T) {
	ctx := context.Background()

	t.Run("classic", func(t *testing.T) {
		c, conn := newTestClient(t)

		ch := awsiottest.Go(func() (*UpdateShadowResponse, error) {
			return c.UpdateShadow(ctx, &UpdateShadowRequest{
				ThingName: awsiot.String("dev-1"),
				State: &ShadowState{
					Reported: json.RawMessage(`{"color":"red"}`),
					Desired:  json.RawMessage(`null`),
				},
			})
		})

		msg := conn.NextPublished(t)
		assert.Equal(t, "$aws/things/dev-1/shadow/update", msg.Topic)
		assert.ElementsMatch(t, []string{
			"$aws/things/dev-1/shadow/update/accepted",
			"$aws/things/dev-1/shadow/update/rejected",
		}, conn.Subscribed())

		var sent map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(msg.Payload, &sent))
		assert.JSONEq(t, `{"desired":null,"reported":{"color":"red"}}`, string(sent["state"]))

		token := awsiottest.ClientToken(t, msg.Payload)

		// deltas are not replies
		conn.Deliver("$aws/things/dev-1/shadow/update/delta", []byte(`{"clientToken":"`+token+`"}`))
		conn.Deliver("$aws/things/dev-1/shadow/update/accepted", []byte(`{"clientToken":"`+token+`","state":{"reported":{"color":"red"}},"version":3}`))

		r := awsiottest.Await(t, ch)
		require.NoError(t, r.Err)
		assert.Equal(t, int32(3), *r.Value.Version)
		assert.JSONEq(t, `{"color":"red"}`, string(r.Value.State.Reported))
	})

	t.Run("named", func(t *testing.T) {
		c, conn := newTestClient(t)

		ch := awsiottest.Go(func() (*UpdateShadowResponse, error) {
			return c.UpdateNamedShadow(ctx, &UpdateNamedShadowRequest{
				ThingName:  awsiot.String("dev-1"),
				ShadowName: awsiot.String("config"),
				State:      &ShadowState{Desired: json.RawMessage(`{"rate":5}`)},
				Version:    awsiot.Int32(7),
			})
		})

		msg := conn.NextPublished(t)
		assert.Equal(t, "$aws/things/dev-1/shadow/name/config/update", msg.Topic)
		assert.Contains(t, string(msg.Payload), `"version":7`)

		token := awsiottest.ClientToken(t, msg.Payload)
		conn.Deliver(msg.Topic+"/rejected", []byte(`{"clientToken":"`+token+`","code":409,"message":"Version conflict"}`))

		r := awsiottest.Await(t, ch)
		assert.ErrorIs(t, r.Err, awsiot.ErrModeledServiceError)
	})

	t.Run("missing shadow name", func(t *testing.T) {
		c, _ := newTestClient(t)

		_, err := c.UpdateNamedShadow(ctx, &UpdateNamedShadowRequest{ThingName: awsiot.String("dev-1")})
		assert.ErrorIs(t, err, awsiot.ErrMissingField)
	})
}

func TestDeleteShadow(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		call  func(c *ClientV2) (*DeleteShadowResponse, error)
		topic string
	}{
		{
			name: "classic",
			call: func(c *ClientV2) (*DeleteShadowResponse, error) {
				return c.DeleteShadow(ctx, &DeleteShadowRequest{ThingName: awsiot.String("dev-1")})
			},
			topic: "$aws/things/dev-1/shadow/delete",
		},
		{
			name: "named",
			call: func(c *ClientV2) (*DeleteShadowResponse, error) {
				return c.DeleteNamedShadow(ctx, &DeleteNamedShadowRequest{
					ThingName:  awsiot.String("dev-1"),
					ShadowName: awsiot.String("config"),
				})
			},
			topic: "$aws/things/dev-1/shadow/name/config/delete",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, conn := newTestClient(t)

			ch := awsiottest.Go(func() (*DeleteShadowResponse, error) { return tt.call(c) })

			msg := conn.NextPublished(t)
			assert.Equal(t, tt.topic, msg.Topic)
			assert.Equal(t, []string{tt.topic + "/+"}, conn.Subscribed())

			token := awsiottest.ClientToken(t, msg.Payload)
			conn.Deliver(tt.topic+"/accepted", []byte(`{"clientToken":"`+token+`","version":4,"timestamp":1700000000}`))

			r := awsiottest.Await(t, ch)
			require.NoError(t, r.Err)
			assert.Equal(t, int32(4), *r.Value.Version)
		})
	}
}

func TestGetNamedShadow(t *testing.T) {
	c, conn := newTestClient(t)

	ch := awsiottest.Go(func() (*GetShadowResponse, error) {
		return c.GetNamedShadow(context.Background(), &GetNamedShadowRequest{
			ThingName:  awsiot.String("dev-1"),
			ShadowName: awsiot.String("config"),
		})
	})

	msg := conn.NextPublished(t)
	assert.Equal(t, "$aws/things/dev-1/shadow/name/config/get", msg.Topic)

	token := awsiottest.ClientToken(t, msg.Payload)
	conn.Deliver(msg.Topic+"/accepted", []byte(`{"clientToken":"`+token+`","version":1}`))
	require.NoError(t, awsiottest.Await(t, ch).Err)
}

func TestShadowStreams(t *testing.T) {
	t.Run("delta", func(t *testing.T) {
		c, conn := newTestClient(t)

		events := make(chan *ShadowDeltaUpdatedEvent, 2)
		s, err := c.CreateShadowDeltaUpdatedStream(
			&ShadowDeltaUpdatedSubscriptionRequest{ThingName: awsiot.String("dev-1")},
			StreamOptions[ShadowDeltaUpdatedEvent]{EventHandler: func(ev *ShadowDeltaUpdatedEvent) { events <- ev }},
		)
		require.NoError(t, err)
		require.NoError(t, s.Open())
		defer s.Close()

		awsiottest.Eventually(t, func() bool { return conn.HasHandler("$aws/things/dev-1/shadow/update/delta") })
		conn.Deliver("$aws/things/dev-1/shadow/update/delta", []byte(`{"state":{"color":"red"},"version":5}`))

		require.Len(t, events, 1)
		ev := <-events
		assert.JSONEq(t, `{"color":"red"}`, string(ev.State))
		assert.Equal(t, int32(5), *ev.Version)
	})

	t.Run("named documents", func(t *testing.T) {
		c, conn := newTestClient(t)

		events := make(chan *ShadowUpdatedEvent, 2)
		s, err := c.CreateNamedShadowUpdatedStream(
			&NamedShadowUpdatedSubscriptionRequest{ThingName: awsiot.String("dev-1"), ShadowName: awsiot.String("config")},
			StreamOptions[ShadowUpdatedEvent]{EventHandler: func(ev *ShadowUpdatedEvent) { events <- ev }},
		)
		require.NoError(t, err)
		require.NoError(t, s.Open())
		defer s.Close()

		topic := "$aws/things/dev-1/shadow/name/config/update/documents"
		awsiottest.Eventually(t, func() bool { return conn.HasHandler(topic) })
		conn.Deliver(topic, []byte(`{
			"previous":{"state":{"reported":{"v":1}},"version":1},
			"current":{"state":{"reported":{"v":2}},"version":2},
			"timestamp":1700000000
		}`))

		require.Len(t, events, 1)
		ev := <-events
		assert.Equal(t, int32(1), *ev.Previous.Version)
		assert.Equal(t, int32(2), *ev.Current.Version)
	})

	t.Run("classic documents and named delta topics", func(t *testing.T) {
		c, conn := newTestClient(t)

		s1, err := c.CreateShadowUpdatedStream(&ShadowUpdatedSubscriptionRequest{ThingName: awsiot.String("dev-1")},
			StreamOptions[ShadowUpdatedEvent]{EventHandler: func(*ShadowUpdatedEvent) {}})
		require.NoError(t, err)
		assert.Equal(t, "$aws/things/dev-1/shadow/update/documents", s1.TopicFilter())

		s2, err := c.CreateNamedShadowDeltaUpdatedStream(
			&NamedShadowDeltaUpdatedSubscriptionRequest{ThingName: awsiot.String("dev-1"), ShadowName: awsiot.String("config")},
			StreamOptions[ShadowDeltaUpdatedEvent]{EventHandler: func(*ShadowDeltaUpdatedEvent) {}})
		require.NoError(t, err)
		assert.Equal(t, "$aws/things/dev-1/shadow/name/config/update/delta", s2.TopicFilter())

		assert.Empty(t, conn.Subscribed())
	})
}

func TestShadowStateJSON(t *testing.T) {
	t.Run("absent sections are omitted", func(t *testing.T) {
		data, err := json.Marshal(&ShadowState{Reported: json.RawMessage(`{"a":1}`)})
		require.NoError(t, err)
		assert.JSONEq(t, `{"reported":{"a":1}}`, string(data))
	})

	t.Run("placeholders are not serialized", func(t *testing.T) {
		data, err := json.Marshal(&GetNamedShadowRequest{
			ThingName:   awsiot.String("dev-1"),
			ShadowName:  awsiot.String("config"),
			ClientToken: awsiot.String("t"),
		})
		require.NoError(t, err)
		assert.JSONEq(t, `{"clientToken":"t"}`, string(data))
	})

	t.Run("error string", func(t *testing.T) {
		assert.Equal(t, "unknown", (&V2ErrorResponse{}).String())
		assert.Equal(t, "400", (&V2ErrorResponse{Code: awsiot.Int32(400)}).String())
	})
}
