package iotshadow

import (
	"strconv"

	"github.com/goccy/go-json"

	"github.com/vitalvas/awsiot"
)

// ShadowState is the desired and reported sections of a shadow document.
// A section set to json.RawMessage("null") clears it on update.
type ShadowState struct {
	Desired  json.RawMessage `json:"desired,omitempty"`
	Reported json.RawMessage `json:"reported,omitempty"`
}

// ShadowStateWithDelta is ShadowState plus the difference between desired and reported.
type ShadowStateWithDelta struct {
	Desired  json.RawMessage `json:"desired,omitempty"`
	Reported json.RawMessage `json:"reported,omitempty"`
	Delta    json.RawMessage `json:"delta,omitempty"`
}

// ShadowMetadata holds per-attribute update timestamps.
type ShadowMetadata struct {
	Desired  json.RawMessage `json:"desired,omitempty"`
	Reported json.RawMessage `json:"reported,omitempty"`
}

// GetShadowRequest reads the classic shadow of a thing.
type GetShadowRequest struct {
	ThingName *string `json:"-"`

	ClientToken *string `json:"clientToken,omitempty"`
}

// GetNamedShadowRequest reads a named shadow of a thing.
type GetNamedShadowRequest struct {
	ThingName  *string `json:"-"`
	ShadowName *string `json:"-"`

	ClientToken *string `json:"clientToken,omitempty"`
}

// GetShadowResponse is the accepted reply to a get request.
type GetShadowResponse struct {
	ClientToken *string               `json:"clientToken,omitempty"`
	State       *ShadowStateWithDelta `json:"state,omitempty"`
	Metadata    *ShadowMetadata       `json:"metadata,omitempty"`
	Timestamp   *awsiot.Timestamp     `json:"timestamp,omitempty"`
	Version     *int32                `json:"version,omitempty"`
}

// UpdateShadowRequest updates the classic shadow of a thing.
type UpdateShadowRequest struct {
	ThingName *string `json:"-"`

	ClientToken *string      `json:"clientToken,omitempty"`
	State       *ShadowState `json:"state,omitempty"`
	Version     *int32       `json:"version,omitempty"`
}

// UpdateNamedShadowRequest updates a named shadow of a thing.
type UpdateNamedShadowRequest struct {
	ThingName  *string `json:"-"`
	ShadowName *string `json:"-"`

	ClientToken *string      `json:"clientToken,omitempty"`
	State       *ShadowState `json:"state,omitempty"`
	Version     *int32       `json:"version,omitempty"`
}

// UpdateShadowResponse is the accepted reply to an update request.
type UpdateShadowResponse struct {
	ClientToken *string           `json:"clientToken,omitempty"`
	State       *ShadowState      `json:"state,omitempty"`
	Metadata    *ShadowMetadata   `json:"metadata,omitempty"`
	Timestamp   *awsiot.Timestamp `json:"timestamp,omitempty"`
	Version     *int32            `json:"version,omitempty"`
}

// DeleteShadowRequest deletes the classic shadow of a thing.
type DeleteShadowRequest struct {
	ThingName *string `json:"-"`

	ClientToken *string `json:"clientToken,omitempty"`
}

// DeleteNamedShadowRequest deletes a named shadow of a thing.
type DeleteNamedShadowRequest struct {
	ThingName  *string `json:"-"`
	ShadowName *string `json:"-"`

	ClientToken *string `json:"clientToken,omitempty"`
}

// DeleteShadowResponse is the accepted reply to a delete request.
type DeleteShadowResponse struct {
	ClientToken *string           `json:"clientToken,omitempty"`
	Timestamp   *awsiot.Timestamp `json:"timestamp,omitempty"`
	Version     *int32            `json:"version,omitempty"`
}

// ShadowUpdatedSnapshot is a complete shadow at one version.
type ShadowUpdatedSnapshot struct {
	State    *ShadowState    `json:"state,omitempty"`
	Metadata *ShadowMetadata `json:"metadata,omitempty"`
	Version  *int32          `json:"version,omitempty"`
}

// ShadowUpdatedEvent carries the shadow before and after an accepted update.
type ShadowUpdatedEvent struct {
	Previous  *ShadowUpdatedSnapshot `json:"previous,omitempty"`
	Current   *ShadowUpdatedSnapshot `json:"current,omitempty"`
	Timestamp *awsiot.Timestamp      `json:"timestamp,omitempty"`
}

// ShadowDeltaUpdatedEvent carries the desired state the device has not reported yet.
type ShadowDeltaUpdatedEvent struct {
	State       json.RawMessage   `json:"state,omitempty"`
	Metadata    json.RawMessage   `json:"metadata,omitempty"`
	Timestamp   *awsiot.Timestamp `json:"timestamp,omitempty"`
	Version     *int32            `json:"version,omitempty"`
	ClientToken *string           `json:"clientToken,omitempty"`
}

// ShadowDeltaUpdatedSubscriptionRequest selects the classic shadow for a delta stream.
type ShadowDeltaUpdatedSubscriptionRequest struct {
	ThingName *string `json:"-"`
}

// NamedShadowDeltaUpdatedSubscriptionRequest selects a named shadow for a delta stream.
type NamedShadowDeltaUpdatedSubscriptionRequest struct {
	ThingName  *string `json:"-"`
	ShadowName *string `json:"-"`
}

// ShadowUpdatedSubscriptionRequest selects the classic shadow for a documents stream.
type ShadowUpdatedSubscriptionRequest struct {
	ThingName *string `json:"-"`
}

// NamedShadowUpdatedSubscriptionRequest selects a named shadow for a documents stream.
type NamedShadowUpdatedSubscriptionRequest struct {
	ThingName  *string `json:"-"`
	ShadowName *string `json:"-"`
}

// V2ErrorResponse is the payload of a rejected shadow request.
// Code is an HTTP-like status such as 404 or 409.
type V2ErrorResponse struct {
	ClientToken *string           `json:"clientToken,omitempty"`
	Code        *int32            `json:"code,omitempty"`
	Message     *string           `json:"message,omitempty"`
	Timestamp   *awsiot.Timestamp `json:"timestamp,omitempty"`
}

// ErrorResponse is the name used by the service model for V2ErrorResponse.
type ErrorResponse = V2ErrorResponse

func (e *V2ErrorResponse) String() string {
	code := "unknown"
	if e.Code != nil {
		code = strconv.Itoa(int(*e.Code))
	}
	if e.Message != nil {
		return code + ": " + *e.Message
	}
	return code
}

// GetShadowSubscriptionRequest selects the classic shadow whose get replies are delivered.
type GetShadowSubscriptionRequest struct {
	ThingName *string `json:"-"`
}

// UpdateShadowSubscriptionRequest selects the classic shadow whose update replies are delivered.
type UpdateShadowSubscriptionRequest struct {
	ThingName *string `json:"-"`
}

// DeleteShadowSubscriptionRequest selects the classic shadow whose delete replies are delivered.
type DeleteShadowSubscriptionRequest struct {
	ThingName *string `json:"-"`
}
