package devicedefender

import (
	"net/netip"
)

// ReportVersion is the Device Defender report schema version.
const ReportVersion = "1.0"

// Report is a Device Defender metrics report in the JSON long-name format.
type Report struct {
	Header        Header                         `json:"header"`
	Metrics       Metrics                        `json:"metrics"`
	CustomMetrics map[string][]CustomMetricValue `json:"custom_metrics,omitempty"`
}

// Header identifies a report. ReportID increases with every report of a thing.
type Header struct {
	ReportID int64  `json:"report_id"`
	Version  string `json:"version"`
}

// Metrics holds the device-side metrics. Sections that could not be
// collected are omitted.
type Metrics struct {
	ListeningTCPPorts *ListeningPorts `json:"listening_tcp_ports,omitempty"`
	ListeningUDPPorts *ListeningPorts `json:"listening_udp_ports,omitempty"`
	NetworkStats      *NetworkStats   `json:"network_stats,omitempty"`
	TCPConnections    *TCPConnections `json:"tcp_connections,omitempty"`
}

// ListeningPorts lists ports with a listening socket.
type ListeningPorts struct {
	Ports []Port `json:"ports"`
	Total int    `json:"total"`
}

// Port is a listening port, with the interface it is bound to when known.
type Port struct {
	Interface string `json:"interface,omitempty"`
	Port      uint32 `json:"port"`
}

// NetworkStats are traffic counters. In a report they are the change
// since the previous report.
type NetworkStats struct {
	BytesIn    uint64 `json:"bytes_in"`
	BytesOut   uint64 `json:"bytes_out"`
	PacketsIn  uint64 `json:"packets_in"`
	PacketsOut uint64 `json:"packets_out"`
}

// Sub returns the change from prev to s. Counters that went backwards,
// as after an interface reset, report zero.
func (s NetworkStats) Sub(prev NetworkStats) NetworkStats {
	return NetworkStats{
		BytesIn:    delta(s.BytesIn, prev.BytesIn),
		BytesOut:   delta(s.BytesOut, prev.BytesOut),
		PacketsIn:  delta(s.PacketsIn, prev.PacketsIn),
		PacketsOut: delta(s.PacketsOut, prev.PacketsOut),
	}
}

func delta(cur, prev uint64) uint64 {
	if cur < prev {
		return 0
	}
	return cur - prev
}

// TCPConnections wraps the established connection list.
type TCPConnections struct {
	EstablishedConnections EstablishedConnections `json:"established_connections"`
}

// EstablishedConnections lists established TCP connections.
type EstablishedConnections struct {
	Connections []Connection `json:"connections"`
	Total       int          `json:"total"`
}

// Connection is an established TCP connection.
type Connection struct {
	LocalInterface string `json:"local_interface,omitempty"`
	LocalPort      uint32 `json:"local_port"`
	RemoteAddr     string `json:"remote_addr"`
}

// CustomMetricValue is one value of a custom metric. Exactly one field is set.
type CustomMetricValue struct {
	Number     *float64  `json:"number,omitempty"`
	NumberList []float64 `json:"number_list,omitempty"`
	StringList []string  `json:"string_list,omitempty"`
	IPList     []string  `json:"ip_list,omitempty"`
}

// ReportResponse is published by the service on the accepted and rejected topics.
type ReportResponse struct {
	ThingName     *string        `json:"thingName,omitempty"`
	ReportID      *int64         `json:"reportId,omitempty"`
	Status        *string        `json:"status,omitempty"`
	StatusDetails *StatusDetails `json:"statusDetails,omitempty"`
}

// StatusDetails explains a rejected report.
type StatusDetails struct {
	ErrorCode    *string `json:"ErrorCode,omitempty"`
	ErrorMessage *string `json:"ErrorMessage,omitempty"`
}

// ConnectionSample is one listing of the device's sockets.
type ConnectionSample struct {
	ListeningTCP []Port
	ListeningUDP []Port
	Established  []Connection
}

func listening(ports []Port) *ListeningPorts {
	if ports == nil {
		ports = []Port{}
	}
	return &ListeningPorts{Ports: ports, Total: len(ports)}
}

func established(conns []Connection) *TCPConnections {
	if conns == nil {
		conns = []Connection{}
	}
	return &TCPConnections{
		EstablishedConnections: EstablishedConnections{Connections: conns, Total: len(conns)},
	}
}

func ipStrings(addrs []netip.Addr) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a.IsValid() {
			out = append(out, a.String())
		}
	}
	return out
}
