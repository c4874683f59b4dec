package devicedefender

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	psnet "github.com/shirou/gopsutil/v4/net"
)

// Collector reads the device metrics included in every report.
type Collector interface {
	// NetworkStats returns cumulative traffic counters over all interfaces.
	NetworkStats(ctx context.Context) (NetworkStats, error)

	// Connections lists listening ports and established TCP connections.
	Connections(ctx context.Context) (*ConnectionSample, error)
}

// SystemCollector reads metrics from the host with gopsutil.
type SystemCollector struct{}

// NewSystemCollector creates a host collector.
func NewSystemCollector() *SystemCollector {
	return &SystemCollector{}
}

// NetworkStats sums the counters of every interface.
func (c *SystemCollector) NetworkStats(ctx context.Context) (NetworkStats, error) {
	counters, err := psnet.IOCountersWithContext(ctx, false)
	if err != nil {
		return NetworkStats{}, fmt.Errorf("read network counters: %w", err)
	}

	var out NetworkStats
	for _, c := range counters {
		out.BytesIn += c.BytesRecv
		out.BytesOut += c.BytesSent
		out.PacketsIn += c.PacketsRecv
		out.PacketsOut += c.PacketsSent
	}
	return out, nil
}

// Connections lists the host's TCP and UDP sockets.
func (c *SystemCollector) Connections(ctx context.Context) (*ConnectionSample, error) {
	ifaces := interfaceByIP(ctx)

	tcp, err := psnet.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return nil, fmt.Errorf("list tcp connections: %w", err)
	}
	udp, err := psnet.ConnectionsWithContext(ctx, "udp")
	if err != nil {
		return nil, fmt.Errorf("list udp connections: %w", err)
	}

	return sampleConnections(tcp, udp, ifaces), nil
}

func sampleConnections(tcp, udp []psnet.ConnectionStat, ifaces map[string]string) *ConnectionSample {
	sample := &ConnectionSample{}
	seen := make(map[Port]bool)

	for _, conn := range tcp {
		switch conn.Status {
		case "LISTEN":
			p := Port{Interface: ifaces[conn.Laddr.IP], Port: conn.Laddr.Port}
			if !seen[p] {
				seen[p] = true
				sample.ListeningTCP = append(sample.ListeningTCP, p)
			}
		case "ESTABLISHED":
			sample.Established = append(sample.Established, Connection{
				LocalInterface: ifaces[conn.Laddr.IP],
				LocalPort:      conn.Laddr.Port,
				RemoteAddr:     net.JoinHostPort(conn.Raddr.IP, strconv.FormatUint(uint64(conn.Raddr.Port), 10)),
			})
		}
	}

	clear(seen)
	for _, conn := range udp {
		// unconnected UDP sockets are the listening ones
		if conn.Raddr.Port != 0 || conn.Laddr.Port == 0 {
			continue
		}
		p := Port{Interface: ifaces[conn.Laddr.IP], Port: conn.Laddr.Port}
		if !seen[p] {
			seen[p] = true
			sample.ListeningUDP = append(sample.ListeningUDP, p)
		}
	}

	return sample
}

// interfaceByIP maps local addresses to interface names. Failures yield
// an empty map and reports carry no interface names.
func interfaceByIP(ctx context.Context) map[string]string {
	out := make(map[string]string)

	ifaces, err := psnet.InterfacesWithContext(ctx)
	if err != nil {
		return out
	}
	for _, iface := range ifaces {
		for _, addr := range iface.Addrs {
			ip, _, _ := strings.Cut(addr.Addr, "/")
			out[ip] = iface.Name
		}
	}
	return out
}

// CPUUsage returns the host CPU utilisation in percent since the previous call.
func CPUUsage(ctx context.Context) (float64, error) {
	pct, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, err
	}
	if len(pct) == 0 {
		return 0, fmt.Errorf("no cpu usage reported")
	}
	return pct[0], nil
}

// MemoryUsage returns used physical memory in kilobytes.
func MemoryUsage(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return float64(vm.Used / 1024), nil
}

// ProcessorCount returns the number of logical CPUs.
func ProcessorCount(ctx context.Context) (float64, error) {
	n, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return 0, err
	}
	return float64(n), nil
}
