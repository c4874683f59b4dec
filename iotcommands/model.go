package iotcommands

import (
	"github.com/vitalvas/awsiot"
)

// StatusReason explains a reported execution status.
type StatusReason struct {
	// ReasonCode matches [A-Z0-9_-]+ and is at most 64 characters.
	ReasonCode        *string `json:"reasonCode,omitempty"`
	ReasonDescription *string `json:"reasonDescription,omitempty"`
}

// UpdateCommandExecutionRequest reports the status of a command execution.
type UpdateCommandExecutionRequest struct {
	DeviceType  *DeviceType `json:"-"`
	DeviceID    *string     `json:"-"`
	ExecutionID *string     `json:"-"`

	Status       *CommandExecutionStatus `json:"status,omitempty"`
	StatusReason *StatusReason           `json:"statusReason,omitempty"`
}

// UpdateCommandExecutionResponse is the accepted reply to UpdateCommandExecution.
type UpdateCommandExecutionResponse struct {
	ExecutionID *string `json:"executionId,omitempty"`
}

// CommandExecutionsSubscriptionRequest selects the device for a command stream.
type CommandExecutionsSubscriptionRequest struct {
	DeviceType *DeviceType
	DeviceID   *string
}

// CommandExecutionEvent is a command sent to the device.
// It is built from the publish itself rather than decoded from the payload.
type CommandExecutionEvent struct {
	// ExecutionID is taken from the topic and is nil for an unexpected topic.
	ExecutionID *string

	// Payload is the raw command document: JSON, CBOR or opaque bytes
	// depending on the stream.
	Payload []byte

	ContentType *string

	// Timeout is the remaining execution time in seconds, from the message expiry.
	Timeout *int32
}

// V2ErrorResponse is the payload of a rejected commands request.
type V2ErrorResponse struct {
	Error        *RejectedErrorCode `json:"error,omitempty"`
	ErrorMessage *string            `json:"errorMessage,omitempty"`
	ExecutionID  *string            `json:"executionId,omitempty"`
}

func (e *V2ErrorResponse) String() string {
	code := "Unknown"
	if e.Error != nil {
		code = e.Error.String()
	}
	if e.ErrorMessage != nil {
		return code + ": " + *e.ErrorMessage
	}
	return code
}

// executionIDSegment is the topic level holding the execution id in
// $aws/commands/{deviceType}/{deviceId}/executions/{executionId}/request.
const executionIDSegment = 5

func newCommandExecutionEvent(topic string, payload []byte, contentType string, expiry uint32) *CommandExecutionEvent {
	ev := &CommandExecutionEvent{Payload: payload}

	if id, ok := awsiot.TopicSegment(topic, executionIDSegment); ok && id != "" {
		ev.ExecutionID = &id
	}
	if contentType != "" {
		ev.ContentType = &contentType
	}
	if expiry > 0 {
		timeout := int32(min(expiry, uint32(1<<31-1)))
		ev.Timeout = &timeout
	}

	return ev
}
