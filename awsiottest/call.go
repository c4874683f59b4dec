package awsiottest

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
)

// Result is the outcome of a call started with Go.
type Result[T any] struct {
	Value T
	Err   error
}

// Go runs fn in a goroutine and returns a channel receiving its result.
func Go[T any](fn func() (T, error)) <-chan Result[T] {
	ch := make(chan Result[T], 1)
	go func() {
		v, err := fn()
		ch <- Result[T]{Value: v, Err: err}
	}()
	return ch
}

// Await waits for the result of a call started with Go or fails the test.
func Await[T any](t testing.TB, ch <-chan Result[T]) Result[T] {
	t.Helper()

	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for call result")
		return Result[T]{}
	}
}

// ClientToken returns the clientToken field of a JSON payload.
func ClientToken(t testing.TB, payload []byte) string {
	t.Helper()

	var body struct {
		ClientToken string `json:"clientToken"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		t.Fatalf("decode request payload: %v", err)
	}
	if body.ClientToken == "" {
		t.Fatal("request payload has no clientToken")
	}
	return body.ClientToken
}
