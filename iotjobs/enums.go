package iotjobs

import (
	"github.com/vitalvas/awsiot"
)

// JobStatus is the status of a job execution.
type JobStatus int

const (
	JobStatusUnknown JobStatus = iota
	JobStatusQueued
	JobStatusInProgress
	JobStatusTimedOut
	JobStatusFailed
	JobStatusSucceeded
	JobStatusCanceled
	JobStatusRejected
	JobStatusRemoved
)

var jobStatusNames = awsiot.NewEnumTable[JobStatus]("JobStatus",
	"QUEUED",
	"IN_PROGRESS",
	"TIMED_OUT",
	"FAILED",
	"SUCCEEDED",
	"CANCELED",
	"REJECTED",
	"REMOVED",
)

// ParseJobStatus returns the status named s.
func ParseJobStatus(s string) (JobStatus, error) { return jobStatusNames.Parse(s) }

// JobStatusValues returns every defined status.
func JobStatusValues() []JobStatus { return jobStatusNames.Values() }

func (s JobStatus) String() string {
	return jobStatusNames.String(s)
}

func (s JobStatus) MarshalText() ([]byte, error) {
	return jobStatusNames.MarshalText(s)
}

func (s *JobStatus) UnmarshalText(b []byte) error {
	*s = jobStatusNames.UnmarshalText(b)
	return nil
}

// RejectedErrorCode is the reason the service rejected a jobs request.
type RejectedErrorCode int

const (
	RejectedErrorCodeUnknown RejectedErrorCode = iota
	RejectedErrorCodeInvalidTopic
	RejectedErrorCodeInvalidJSON
	RejectedErrorCodeInvalidRequest
	RejectedErrorCodeInvalidStateTransition
	RejectedErrorCodeResourceNotFound
	RejectedErrorCodeVersionMismatch
	RejectedErrorCodeInternalError
	RejectedErrorCodeRequestThrottled
	RejectedErrorCodeTerminalStateReached
)

var rejectedErrorCodeNames = awsiot.NewEnumTable[RejectedErrorCode]("RejectedErrorCode",
	"InvalidTopic",
	"InvalidJson",
	"InvalidRequest",
	"InvalidStateTransition",
	"ResourceNotFound",
	"VersionMismatch",
	"InternalError",
	"RequestThrottled",
	"TerminalStateReached",
)

// ParseRejectedErrorCode returns the code named s.
func ParseRejectedErrorCode(s string) (RejectedErrorCode, error) {
	return rejectedErrorCodeNames.Parse(s)
}

// RejectedErrorCodeValues returns every defined code.
func RejectedErrorCodeValues() []RejectedErrorCode { return rejectedErrorCodeNames.Values() }

func (c RejectedErrorCode) String() string {
	return rejectedErrorCodeNames.String(c)
}

func (c RejectedErrorCode) MarshalText() ([]byte, error) {
	return rejectedErrorCodeNames.MarshalText(c)
}

func (c *RejectedErrorCode) UnmarshalText(b []byte) error {
	*c = rejectedErrorCodeNames.UnmarshalText(b)
	return nil
}
