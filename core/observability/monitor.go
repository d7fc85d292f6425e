package observability

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Outcome classifies how a connection ended
type Outcome int

const (
	OutcomeServed Outcome = iota
	OutcomeNotFound
	OutcomeBadRequest
	OutcomeTimeout
	OutcomeHandlerFailure
	OutcomeWriteFailure
	OutcomeDropped
	numOutcomes
)

var outcomeNames = [numOutcomes]string{
	"served",
	"not_found",
	"bad_request",
	"timeout",
	"handler_failure",
	"write_failure",
	"dropped",
}

func (o Outcome) String() string {
	if o < 0 || o >= numOutcomes {
		return "unknown"
	}
	return outcomeNames[o]
}

// Monitor counts connections and per-route latencies. All methods are
// safe for concurrent use by the workers.
type Monitor struct {
	enabled atomic.Bool
	routes  sync.Map // route name -> *RouteMetrics

	connections  atomic.Uint64
	bytesWritten atomic.Uint64
	outcomes     [numOutcomes]atomic.Uint64
}

// RouteMetrics stores per-route metrics
type RouteMetrics struct {
	Name           string
	Count          atomic.Uint64
	Errors         atomic.Uint64
	TotalDuration  atomic.Uint64
	MinDuration    atomic.Uint64
	MaxDuration    atomic.Uint64
	latencyBuckets [len(bucketBounds) + 1]atomic.Uint64
}

// Upper bounds of the latency histogram; the last bucket is open ended
var bucketBounds = [...]time.Duration{
	time.Millisecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
	5 * time.Second,
	10 * time.Second,
}

// Bottleneck represents a performance issue
type Bottleneck struct {
	Type       string
	Location   string
	Severity   int
	Impact     float64
	DetectedAt time.Time
	Details    string
}

// NewMonitor creates an enabled monitor
func NewMonitor() *Monitor {
	m := &Monitor{}
	m.enabled.Store(true)
	return m
}

// SetEnabled turns recording on or off
func (m *Monitor) SetEnabled(on bool) {
	m.enabled.Store(on)
}

// ConnectionAccepted counts an accepted connection
func (m *Monitor) ConnectionAccepted() {
	m.connections.Add(1)
}

// RecordOutcome counts how a connection ended
func (m *Monitor) RecordOutcome(o Outcome) {
	if !m.enabled.Load() || o < 0 || o >= numOutcomes {
		return
	}
	m.outcomes[o].Add(1)
}

// RecordBytes adds to the bytes-written counter
func (m *Monitor) RecordBytes(n int64) {
	if n > 0 {
		m.bytesWritten.Add(uint64(n))
	}
}

// RecordRequest records one handled request for route
func (m *Monitor) RecordRequest(route string, duration time.Duration, isError bool) {
	if !m.enabled.Load() {
		return
	}

	val, _ := m.routes.LoadOrStore(route, &RouteMetrics{Name: route})
	metrics := val.(*RouteMetrics)

	metrics.Count.Add(1)
	if isError {
		metrics.Errors.Add(1)
	}

	d := uint64(max(duration, 0))
	metrics.TotalDuration.Add(d)
	updateMinMax(metrics, d)
	metrics.latencyBuckets[bucketIndex(duration)].Add(1)
}

func updateMinMax(m *RouteMetrics, d uint64) {
	for {
		min := m.MinDuration.Load()
		if min != 0 && d >= min {
			break
		}
		if m.MinDuration.CompareAndSwap(min, d) {
			break
		}
	}
	for {
		max := m.MaxDuration.Load()
		if d <= max {
			break
		}
		if m.MaxDuration.CompareAndSwap(max, d) {
			break
		}
	}
}

func bucketIndex(d time.Duration) int {
	for i, bound := range bucketBounds {
		if d < bound {
			return i
		}
	}
	return len(bucketBounds)
}

// Snapshot is a point-in-time copy of the counters
type Snapshot struct {
	Connections  uint64
	BytesWritten uint64
	Outcomes     map[string]uint64
	Routes       []RouteSnapshot
}

// RouteSnapshot is a point-in-time copy of one route's metrics
type RouteSnapshot struct {
	Name        string
	Count       uint64
	Errors      uint64
	AvgDuration time.Duration
	MinDuration time.Duration
	MaxDuration time.Duration
	Buckets     []uint64
}

// Snapshot copies the current counters. Routes are sorted by name.
func (m *Monitor) Snapshot() Snapshot {
	s := Snapshot{
		Connections:  m.connections.Load(),
		BytesWritten: m.bytesWritten.Load(),
		Outcomes:     make(map[string]uint64, numOutcomes),
	}
	for i := range m.outcomes {
		s.Outcomes[Outcome(i).String()] = m.outcomes[i].Load()
	}

	m.routes.Range(func(_, value any) bool {
		rm := value.(*RouteMetrics)
		rs := RouteSnapshot{
			Name:        rm.Name,
			Count:       rm.Count.Load(),
			Errors:      rm.Errors.Load(),
			MinDuration: time.Duration(rm.MinDuration.Load()),
			MaxDuration: time.Duration(rm.MaxDuration.Load()),
			Buckets:     make([]uint64, len(rm.latencyBuckets)),
		}
		if rs.Count > 0 {
			rs.AvgDuration = time.Duration(rm.TotalDuration.Load() / rs.Count)
		}
		for i := range rm.latencyBuckets {
			rs.Buckets[i] = rm.latencyBuckets[i].Load()
		}
		s.Routes = append(s.Routes, rs)
		return true
	})

	sort.Slice(s.Routes, func(i, j int) bool {
		return s.Routes[i].Name < s.Routes[j].Name
	})
	return s
}

// DetectBottlenecks flags routes with high average latency or error rate
func (m *Monitor) DetectBottlenecks() []Bottleneck {
	bottlenecks := make([]Bottleneck, 0)

	for _, r := range m.Snapshot().Routes {
		if r.Count == 0 {
			continue
		}

		// High latency
		if r.AvgDuration > 100*time.Millisecond {
			bottlenecks = append(bottlenecks, Bottleneck{
				Type:       "latency",
				Location:   r.Name,
				Severity:   8,
				Impact:     100.0,
				DetectedAt: time.Now(),
				Details:    fmt.Sprintf("High latency (%v avg)", r.AvgDuration),
			})
		}

		// High error rate
		if r.Errors > 0 && float64(r.Errors)/float64(r.Count) > 0.05 {
			rate := float64(r.Errors) / float64(r.Count) * 100
			bottlenecks = append(bottlenecks, Bottleneck{
				Type:       "errors",
				Location:   r.Name,
				Severity:   10,
				Impact:     rate,
				DetectedAt: time.Now(),
				Details:    fmt.Sprintf("%.1f%% error rate", rate),
			})
		}
	}

	return bottlenecks
}

// StartTrace starts timing
func (m *Monitor) StartTrace() time.Time {
	return time.Now()
}

// EndTrace ends timing and records
func (m *Monitor) EndTrace(route string, start time.Time, isError bool) {
	m.RecordRequest(route, time.Since(start), isError)
}
