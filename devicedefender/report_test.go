package devicedefender

import (
	"reflect"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalvas/awsiot"
)

func TestReportJSONRoundTrip(t *testing.T) {
	number := 42.5

	tests := []struct {
		name  string
		value any
		empty string
	}{
		{
			name: "report",
			value: &Report{
				Header: Header{ReportID: 1700000000, Version: ReportVersion},
				Metrics: Metrics{
					ListeningTCPPorts: &ListeningPorts{
						Ports: []Port{{Interface: "eth0", Port: 22}, {Port: 8883}},
						Total: 2,
					},
					ListeningUDPPorts: &ListeningPorts{Ports: []Port{{Port: 53}}, Total: 1},
					NetworkStats:      &NetworkStats{BytesIn: 100, BytesOut: 200, PacketsIn: 3, PacketsOut: 4},
					TCPConnections: &TCPConnections{
						EstablishedConnections: EstablishedConnections{
							Connections: []Connection{{LocalInterface: "eth0", LocalPort: 50000, RemoteAddr: "10.0.0.1:8883"}},
							Total:       1,
						},
					},
				},
				CustomMetrics: map[string][]CustomMetricValue{
					"temperature": {{Number: &number}},
					"load":        {{NumberList: []float64{0.5, 1.5}}},
					"mode":        {{StringList: []string{"eco"}}},
					"peers":       {{IPList: []string{"10.0.0.2", "fe80::1"}}},
				},
			},
		},
		{
			name: "report response",
			value: &ReportResponse{
				ThingName: awsiot.String("dev-1"),
				ReportID:  awsiot.Int64(1700000000),
				Status:    awsiot.String("REJECTED"),
				StatusDetails: &StatusDetails{
					ErrorCode:    awsiot.String("InvalidJson"),
					ErrorMessage: awsiot.String("malformed report"),
				},
			},
		},
		{
			name:  "empty report",
			value: &Report{},
			empty: `{"header":{"report_id":0,"version":""},"metrics":{}}`,
		},
		{name: "empty report response", value: &ReportResponse{}, empty: `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.value)
			require.NoError(t, err)
			if tt.empty != "" {
				assert.JSONEq(t, tt.empty, string(data))
			}

			out := reflect.New(reflect.TypeOf(tt.value).Elem()).Interface()
			require.NoError(t, json.Unmarshal(data, out))
			assert.Equal(t, tt.value, out)
		})
	}
}

func TestReportResponseWireNames(t *testing.T) {
	var out ReportResponse
	require.NoError(t, json.Unmarshal([]byte(`{
		"thingName": "dev-1",
		"reportId": 7,
		"status": "REJECTED",
		"statusDetails": {"ErrorCode": "InvalidJson", "ErrorMessage": "bad"}
	}`), &out))

	assert.Equal(t, int64(7), *out.ReportID)
	assert.Equal(t, "InvalidJson", *out.StatusDetails.ErrorCode)
	assert.Equal(t, "bad", *out.StatusDetails.ErrorMessage)
}
