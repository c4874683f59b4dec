package iotjobs

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalvas/awsiot"
)

func TestJobStatus(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		for _, s := range JobStatusValues() {
			parsed, err := ParseJobStatus(s.String())
			require.NoError(t, err)
			assert.Equal(t, s, parsed)
		}
		assert.Len(t, JobStatusValues(), 8)
	})

	t.Run("wire names", func(t *testing.T) {
		assert.Equal(t, "IN_PROGRESS", JobStatusInProgress.String())
		assert.Equal(t, "TIMED_OUT", JobStatusTimedOut.String())
		assert.Equal(t, "REMOVED", JobStatusRemoved.String())
	})

	t.Run("unknown", func(t *testing.T) {
		s, err := ParseJobStatus("PAUSED")
		assert.ErrorIs(t, err, awsiot.ErrUnknownEnumValue)
		assert.Equal(t, JobStatusUnknown, s)

		_, err = JobStatusUnknown.MarshalText()
		assert.ErrorIs(t, err, awsiot.ErrUnknownEnumValue)
	})
}

func TestRejectedErrorCode(t *testing.T) {
	for _, c := range RejectedErrorCodeValues() {
		parsed, err := ParseRejectedErrorCode(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, parsed)
	}
	assert.Equal(t, "InvalidJson", RejectedErrorCodeInvalidJSON.String())

	_, err := ParseRejectedErrorCode("Nope")
	assert.ErrorIs(t, err, awsiot.ErrUnknownEnumValue)
}

func TestJobExecutionDataJSON(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		status := JobStatusQueued
		in := JobExecutionData{
			JobID:           awsiot.String("job-1"),
			ThingName:       awsiot.String("dev-1"),
			JobDocument:     json.RawMessage(`{"operation":"reboot"}`),
			Status:          &status,
			StatusDetails:   map[string]string{"step": "1"},
			QueuedAt:        awsiot.TimestampFromUnix(1700000000),
			VersionNumber:   awsiot.Int32(3),
			ExecutionNumber: awsiot.Int64(9),
		}

		data, err := json.Marshal(&in)
		require.NoError(t, err)

		var out JobExecutionData
		require.NoError(t, json.Unmarshal(data, &out))
		assert.Equal(t, in.JobID, out.JobID)
		assert.Equal(t, JobStatusQueued, *out.Status)
		assert.JSONEq(t, `{"operation":"reboot"}`, string(out.JobDocument))
		assert.Equal(t, in.StatusDetails, out.StatusDetails)
		assert.Equal(t, int64(1700000000), out.QueuedAt.Unix())
		assert.Equal(t, int32(3), *out.VersionNumber)
		assert.Equal(t, int64(9), *out.ExecutionNumber)
		assert.Nil(t, out.StartedAt)
		assert.Nil(t, out.LastUpdatedAt)
	})

	t.Run("absent fields are omitted", func(t *testing.T) {
		data, err := json.Marshal(&JobExecutionData{JobID: awsiot.String("job-1")})
		require.NoError(t, err)
		assert.JSONEq(t, `{"jobId":"job-1"}`, string(data))
	})

	t.Run("unknown status does not fail the document", func(t *testing.T) {
		var out JobExecutionData
		require.NoError(t, json.Unmarshal([]byte(`{"jobId":"job-1","status":"PAUSED"}`), &out))
		assert.Equal(t, JobStatusUnknown, *out.Status)
		assert.Equal(t, "job-1", *out.JobID)
	})
}

func TestPlaceholdersNotSerialized(t *testing.T) {
	data, err := json.Marshal(&UpdateJobExecutionRequest{
		ThingName: awsiot.String("dev-1"),
		JobID:     awsiot.String("job-1"),
		Status:    func() *JobStatus { s := JobStatusSucceeded; return &s }(),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"SUCCEEDED"}`, string(data))
}

func TestJobExecutionsChangedEvent(t *testing.T) {
	var ev JobExecutionsChangedEvent
	require.NoError(t, json.Unmarshal([]byte(`{
		"jobs": {
			"QUEUED": [{"jobId":"a","executionNumber":1}],
			"IN_PROGRESS": [{"jobId":"b"}]
		},
		"timestamp": 1700000000
	}`), &ev))

	queued := ev.JobsWithStatus(JobStatusQueued)
	require.Len(t, queued, 1)
	assert.Equal(t, "a", *queued[0].JobID)
	assert.Len(t, ev.JobsWithStatus(JobStatusInProgress), 1)
	assert.Empty(t, ev.JobsWithStatus(JobStatusFailed))
}

func TestV2ErrorResponseString(t *testing.T) {
	code := RejectedErrorCodeVersionMismatch
	assert.Equal(t, "VersionMismatch: stale", (&V2ErrorResponse{Code: &code, Message: awsiot.String("stale")}).String())
	assert.Equal(t, "Unknown", (&V2ErrorResponse{}).String())
}
