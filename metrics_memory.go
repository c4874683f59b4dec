package awsiot

import (
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryMetrics is an in-memory implementation of Metrics.
// Useful in tests and for exposing counters through a custom endpoint.
type MemoryMetrics struct {
	mu         sync.RWMutex
	counters   map[string]*memoryCounter
	gauges     map[string]*memoryGauge
	histograms map[string]*memoryHistogram
}

// NewMemoryMetrics creates a new in-memory metrics instance.
func NewMemoryMetrics() *MemoryMetrics {
	return &MemoryMetrics{
		counters:   make(map[string]*memoryCounter),
		gauges:     make(map[string]*memoryGauge),
		histograms: make(map[string]*memoryHistogram),
	}
}

func labelsKey(name string, labels MetricLabels) string {
	if len(labels) == 0 {
		return name
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
	}

	return b.String()
}

// Counter returns a counter metric.
func (m *MemoryMetrics) Counter(name string, labels MetricLabels) Counter {
	key := labelsKey(name, labels)

	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.counters[key]; ok {
		return c
	}

	c := &memoryCounter{name: name, labels: labels}
	m.counters[key] = c

	return c
}

// Gauge returns a gauge metric.
func (m *MemoryMetrics) Gauge(name string, labels MetricLabels) Gauge {
	key := labelsKey(name, labels)

	m.mu.Lock()
	defer m.mu.Unlock()

	if g, ok := m.gauges[key]; ok {
		return g
	}

	g := &memoryGauge{name: name, labels: labels}
	m.gauges[key] = g

	return g
}

// Histogram returns a histogram metric.
func (m *MemoryMetrics) Histogram(name string, labels MetricLabels) Histogram {
	key := labelsKey(name, labels)

	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok := m.histograms[key]; ok {
		return h
	}

	h := &memoryHistogram{name: name, labels: labels}
	m.histograms[key] = h

	return h
}

// CounterValue returns the current value of a counter, or 0 if it was never created.
func (m *MemoryMetrics) CounterValue(name string, labels MetricLabels) float64 {
	key := labelsKey(name, labels)

	m.mu.RLock()
	defer m.mu.RUnlock()

	if c, ok := m.counters[key]; ok {
		return c.Value()
	}
	return 0
}

// GaugeValue returns the current value of a gauge, or 0 if it was never created.
func (m *MemoryMetrics) GaugeValue(name string, labels MetricLabels) float64 {
	key := labelsKey(name, labels)

	m.mu.RLock()
	defer m.mu.RUnlock()

	if g, ok := m.gauges[key]; ok {
		return g.Value()
	}
	return 0
}

// HistogramCount returns the number of observations of a histogram.
func (m *MemoryMetrics) HistogramCount(name string, labels MetricLabels) uint64 {
	key := labelsKey(name, labels)

	m.mu.RLock()
	defer m.mu.RUnlock()

	if h, ok := m.histograms[key]; ok {
		return h.Count()
	}
	return 0
}

type memoryCounter struct {
	name   string
	labels MetricLabels
	value  atomic.Uint64
}

func (c *memoryCounter) Inc() {
	c.Add(1)
}

func (c *memoryCounter) Add(delta float64) {
	for {
		old := c.value.Load()
		newVal := float64FromBits(old) + delta
		if c.value.CompareAndSwap(old, float64ToBits(newVal)) {
			break
		}
	}
}

func (c *memoryCounter) Value() float64 {
	return float64FromBits(c.value.Load())
}

type memoryGauge struct {
	name   string
	labels MetricLabels
	value  atomic.Uint64
}

func (g *memoryGauge) Set(value float64) {
	g.value.Store(float64ToBits(value))
}

func (g *memoryGauge) Inc() {
	g.Add(1)
}

func (g *memoryGauge) Dec() {
	g.Add(-1)
}

func (g *memoryGauge) Add(delta float64) {
	for {
		old := g.value.Load()
		newVal := float64FromBits(old) + delta
		if g.value.CompareAndSwap(old, float64ToBits(newVal)) {
			break
		}
	}
}

func (g *memoryGauge) Sub(delta float64) {
	g.Add(-delta)
}

func (g *memoryGauge) Value() float64 {
	return float64FromBits(g.value.Load())
}

type memoryHistogram struct {
	name   string
	labels MetricLabels
	count  atomic.Uint64
	sum    atomic.Uint64
}

func (h *memoryHistogram) Observe(value float64) {
	h.count.Add(1)

	for {
		old := h.sum.Load()
		newSum := float64FromBits(old) + value
		if h.sum.CompareAndSwap(old, float64ToBits(newSum)) {
			break
		}
	}
}

func (h *memoryHistogram) ObserveDuration(d time.Duration) {
	h.Observe(d.Seconds())
}

func (h *memoryHistogram) Count() uint64 {
	return h.count.Load()
}

func (h *memoryHistogram) Sum() float64 {
	return float64FromBits(h.sum.Load())
}

// float64ToBits converts a float64 to uint64 bits.
func float64ToBits(f float64) uint64 {
	return math.Float64bits(f)
}

// float64FromBits converts uint64 bits to float64.
func float64FromBits(b uint64) float64 {
	return math.Float64frombits(b)
}
