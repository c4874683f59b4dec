package iotjobs

import (
	"github.com/goccy/go-json"

	"github.com/vitalvas/awsiot"
)

// JobExecutionData is a job execution with its document.
type JobExecutionData struct {
	JobID           *string           `json:"jobId,omitempty"`
	ThingName       *string           `json:"thingName,omitempty"`
	JobDocument     json.RawMessage   `json:"jobDocument,omitempty"`
	Status          *JobStatus        `json:"status,omitempty"`
	StatusDetails   map[string]string `json:"statusDetails,omitempty"`
	QueuedAt        *awsiot.Timestamp `json:"queuedAt,omitempty"`
	StartedAt       *awsiot.Timestamp `json:"startedAt,omitempty"`
	LastUpdatedAt   *awsiot.Timestamp `json:"lastUpdatedAt,omitempty"`
	VersionNumber   *int32            `json:"versionNumber,omitempty"`
	ExecutionNumber *int64            `json:"executionNumber,omitempty"`
}

// JobExecutionState is the mutable state of a job execution.
type JobExecutionState struct {
	Status        *JobStatus        `json:"status,omitempty"`
	StatusDetails map[string]string `json:"statusDetails,omitempty"`
	VersionNumber *int32            `json:"versionNumber,omitempty"`
}

// JobExecutionSummary is a short description of a job execution.
type JobExecutionSummary struct {
	JobID           *string           `json:"jobId,omitempty"`
	ExecutionNumber *int64            `json:"executionNumber,omitempty"`
	VersionNumber   *int32            `json:"versionNumber,omitempty"`
	QueuedAt        *awsiot.Timestamp `json:"queuedAt,omitempty"`
	StartedAt       *awsiot.Timestamp `json:"startedAt,omitempty"`
	LastUpdatedAt   *awsiot.Timestamp `json:"lastUpdatedAt,omitempty"`
}

// DescribeJobExecutionRequest asks for one job execution.
type DescribeJobExecutionRequest struct {
	ThingName *string `json:"-"`
	JobID     *string `json:"-"`

	ClientToken        *string `json:"clientToken,omitempty"`
	ExecutionNumber    *int64  `json:"executionNumber,omitempty"`
	IncludeJobDocument *bool   `json:"includeJobDocument,omitempty"`
}

// DescribeJobExecutionResponse is the accepted reply to DescribeJobExecution.
type DescribeJobExecutionResponse struct {
	ClientToken *string           `json:"clientToken,omitempty"`
	Execution   *JobExecutionData `json:"execution,omitempty"`
	Timestamp   *awsiot.Timestamp `json:"timestamp,omitempty"`
}

// GetPendingJobExecutionsRequest asks for the unfinished executions of a thing.
type GetPendingJobExecutionsRequest struct {
	ThingName *string `json:"-"`

	ClientToken *string `json:"clientToken,omitempty"`
}

// GetPendingJobExecutionsResponse is the accepted reply to GetPendingJobExecutions.
type GetPendingJobExecutionsResponse struct {
	ClientToken    *string               `json:"clientToken,omitempty"`
	InProgressJobs []JobExecutionSummary `json:"inProgressJobs,omitempty"`
	QueuedJobs     []JobExecutionSummary `json:"queuedJobs,omitempty"`
	Timestamp      *awsiot.Timestamp     `json:"timestamp,omitempty"`
}

// StartNextPendingJobExecutionRequest starts the next queued execution.
type StartNextPendingJobExecutionRequest struct {
	ThingName *string `json:"-"`

	ClientToken          *string           `json:"clientToken,omitempty"`
	StepTimeoutInMinutes *int64            `json:"stepTimeoutInMinutes,omitempty"`
	StatusDetails        map[string]string `json:"statusDetails,omitempty"`
}

// StartNextJobExecutionResponse is the accepted reply to StartNextPendingJobExecution.
// Execution is nil when nothing is pending.
type StartNextJobExecutionResponse struct {
	ClientToken *string           `json:"clientToken,omitempty"`
	Execution   *JobExecutionData `json:"execution,omitempty"`
	Timestamp   *awsiot.Timestamp `json:"timestamp,omitempty"`
}

// UpdateJobExecutionRequest changes the status of a job execution.
type UpdateJobExecutionRequest struct {
	ThingName *string `json:"-"`
	JobID     *string `json:"-"`

	Status                   *JobStatus        `json:"status,omitempty"`
	StatusDetails            map[string]string `json:"statusDetails,omitempty"`
	ExpectedVersion          *int32            `json:"expectedVersion,omitempty"`
	ExecutionNumber          *int64            `json:"executionNumber,omitempty"`
	IncludeJobExecutionState *bool             `json:"includeJobExecutionState,omitempty"`
	IncludeJobDocument       *bool             `json:"includeJobDocument,omitempty"`
	StepTimeoutInMinutes     *int64            `json:"stepTimeoutInMinutes,omitempty"`
	ClientToken              *string           `json:"clientToken,omitempty"`
}

// UpdateJobExecutionResponse is the accepted reply to UpdateJobExecution.
type UpdateJobExecutionResponse struct {
	ClientToken    *string            `json:"clientToken,omitempty"`
	ExecutionState *JobExecutionState `json:"executionState,omitempty"`
	JobDocument    json.RawMessage    `json:"jobDocument,omitempty"`
	Timestamp      *awsiot.Timestamp  `json:"timestamp,omitempty"`
}

// JobExecutionsChangedEvent lists the pending executions of a thing by
// status whenever an execution is added or finishes.
type JobExecutionsChangedEvent struct {
	Jobs      map[string][]JobExecutionSummary `json:"jobs,omitempty"`
	Timestamp *awsiot.Timestamp                `json:"timestamp,omitempty"`
}

// JobsWithStatus returns the executions listed under status.
func (e *JobExecutionsChangedEvent) JobsWithStatus(status JobStatus) []JobExecutionSummary {
	return e.Jobs[status.String()]
}

// NextJobExecutionChangedEvent reports a change of the next pending execution.
// Execution is nil when nothing is pending.
type NextJobExecutionChangedEvent struct {
	Execution *JobExecutionData `json:"execution,omitempty"`
	Timestamp *awsiot.Timestamp `json:"timestamp,omitempty"`
}

// JobExecutionsChangedSubscriptionRequest selects the thing for a
// JobExecutionsChanged stream.
type JobExecutionsChangedSubscriptionRequest struct {
	ThingName *string `json:"-"`
}

// NextJobExecutionChangedSubscriptionRequest selects the thing for a
// NextJobExecutionChanged stream.
type NextJobExecutionChangedSubscriptionRequest struct {
	ThingName *string `json:"-"`
}

// DescribeJobExecutionSubscriptionRequest selects the execution whose
// describe replies are delivered.
type DescribeJobExecutionSubscriptionRequest struct {
	ThingName *string `json:"-"`
	JobID     *string `json:"-"`
}

// GetPendingJobExecutionsSubscriptionRequest selects the thing whose
// pending-list replies are delivered.
type GetPendingJobExecutionsSubscriptionRequest struct {
	ThingName *string `json:"-"`
}

// StartNextPendingJobExecutionSubscriptionRequest selects the thing whose
// start-next replies are delivered.
type StartNextPendingJobExecutionSubscriptionRequest struct {
	ThingName *string `json:"-"`
}

// UpdateJobExecutionSubscriptionRequest selects the execution whose
// update replies are delivered.
type UpdateJobExecutionSubscriptionRequest struct {
	ThingName *string `json:"-"`
	JobID     *string `json:"-"`
}

// V2ErrorResponse is the payload of a rejected jobs request.
type V2ErrorResponse struct {
	ClientToken    *string            `json:"clientToken,omitempty"`
	Code           *RejectedErrorCode `json:"code,omitempty"`
	Message        *string            `json:"message,omitempty"`
	Timestamp      *awsiot.Timestamp  `json:"timestamp,omitempty"`
	ExecutionState *JobExecutionState `json:"executionState,omitempty"`
}

// RejectedError is the name used by the service model for V2ErrorResponse.
type RejectedError = V2ErrorResponse

func (e *V2ErrorResponse) String() string {
	code := "Unknown"
	if e.Code != nil {
		code = e.Code.String()
	}
	if e.Message != nil {
		return code + ": " + *e.Message
	}
	return code
}
