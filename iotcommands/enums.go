package iotcommands

import (
	"github.com/vitalvas/awsiot"
)

// DeviceType is the kind of device a command targets.
type DeviceType int

const (
	DeviceTypeUnknown DeviceType = iota
	DeviceTypeThings
	DeviceTypeClients
)

var deviceTypeNames = awsiot.NewEnumTable[DeviceType]("DeviceType", "things", "clients")

// ParseDeviceType returns the device type named s.
func ParseDeviceType(s string) (DeviceType, error) { return deviceTypeNames.Parse(s) }

// DeviceTypeValues returns every defined device type.
func DeviceTypeValues() []DeviceType { return deviceTypeNames.Values() }

func (d DeviceType) String() string {
	return deviceTypeNames.String(d)
}

func (d DeviceType) MarshalText() ([]byte, error) {
	return deviceTypeNames.MarshalText(d)
}

func (d *DeviceType) UnmarshalText(b []byte) error {
	*d = deviceTypeNames.UnmarshalText(b)
	return nil
}

// CommandExecutionStatus is the status a device reports for a command execution.
type CommandExecutionStatus int

const (
	CommandExecutionStatusUnknown CommandExecutionStatus = iota
	CommandExecutionStatusInProgress
	CommandExecutionStatusSucceeded
	CommandExecutionStatusFailed
	CommandExecutionStatusRejected
	CommandExecutionStatusTimedOut
)

var commandExecutionStatusNames = awsiot.NewEnumTable[CommandExecutionStatus]("CommandExecutionStatus",
	"IN_PROGRESS",
	"SUCCEEDED",
	"FAILED",
	"REJECTED",
	"TIMED_OUT",
)

// ParseCommandExecutionStatus returns the status named s.
func ParseCommandExecutionStatus(s string) (CommandExecutionStatus, error) {
	return commandExecutionStatusNames.Parse(s)
}

// CommandExecutionStatusValues returns every defined status.
func CommandExecutionStatusValues() []CommandExecutionStatus {
	return commandExecutionStatusNames.Values()
}

func (s CommandExecutionStatus) String() string {
	return commandExecutionStatusNames.String(s)
}

func (s CommandExecutionStatus) MarshalText() ([]byte, error) {
	return commandExecutionStatusNames.MarshalText(s)
}

func (s *CommandExecutionStatus) UnmarshalText(b []byte) error {
	*s = commandExecutionStatusNames.UnmarshalText(b)
	return nil
}

// RejectedErrorCode is the reason the service rejected a commands request.
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
