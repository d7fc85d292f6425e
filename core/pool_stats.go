package core

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/samsonhttp/samson/core/observability"
	"github.com/samsonhttp/samson/core/pools"
)

// ServerStats represents the server's pool and request statistics
type ServerStats struct {
	Workers  WorkerStats       `json:"workers"`
	Buffers  BufferStats       `json:"buffers"`
	Requests RequestStats      `json:"requests"`
	Routes   []RouteStats      `json:"routes"`
	Outcomes map[string]uint64 `json:"outcomes"`
}

// WorkerStats mirrors the worker pool counters
type WorkerStats struct {
	Size      int    `json:"size"`
	Busy      int    `json:"busy"`
	Submitted uint64 `json:"submitted"`
	Completed uint64 `json:"completed"`
	Panicked  uint64 `json:"panicked"`
	Pending   uint64 `json:"pending"`
}

// BufferStats summarises the buffer pool
type BufferStats struct {
	Size    int     `json:"size"`
	Gets    uint64  `json:"gets"`
	News    uint64  `json:"news"`
	HitRate float64 `json:"hit_rate"`
}

// RequestStats counts connections and bytes written
type RequestStats struct {
	Connections  uint64 `json:"connections"`
	BytesWritten uint64 `json:"bytes_written"`
}

// RouteStats is one route's request count and latency
type RouteStats struct {
	Path      string  `json:"path"`
	Count     uint64  `json:"count"`
	Errors    uint64  `json:"errors"`
	AvgMillis float64 `json:"avg_ms"`
	MaxMillis float64 `json:"max_ms"`
}

// Stats returns statistics for the worker pool, the buffer pool and the
// request counters. Worker figures are zero before Listen.
func (s *Server) Stats() ServerStats {
	s.mu.Lock()
	pool := s.pool
	s.mu.Unlock()

	var stats ServerStats
	if pool != nil {
		stats.Workers = workerStats(pool.Stats())
	}

	buf := s.buffers.Stats()
	stats.Buffers = BufferStats{
		Size:    buf.Size,
		Gets:    buf.ReaderGets + buf.WriterGets,
		News:    buf.ReaderNews + buf.WriterNews,
		HitRate: buf.HitRate(),
	}

	snap := s.monitor.Snapshot()
	stats.Requests = RequestStats{
		Connections:  snap.Connections,
		BytesWritten: snap.BytesWritten,
	}
	stats.Outcomes = snap.Outcomes
	stats.Routes = routeStats(snap.Routes)

	return stats
}

func workerStats(ps pools.WorkerPoolStats) WorkerStats {
	return WorkerStats{
		Size:      ps.NumWorkers,
		Busy:      ps.BusyWorkers,
		Submitted: ps.TasksSubmitted,
		Completed: ps.TasksCompleted,
		Panicked:  ps.TasksPanicked,
		Pending:   ps.TasksPending,
	}
}

func routeStats(routes []observability.RouteSnapshot) []RouteStats {
	out := make([]RouteStats, 0, len(routes))
	for _, r := range routes {
		out = append(out, RouteStats{
			Path:      r.Name,
			Count:     r.Count,
			Errors:    r.Errors,
			AvgMillis: float64(r.AvgDuration.Microseconds()) / 1000,
			MaxMillis: float64(r.MaxDuration.Microseconds()) / 1000,
		})
	}
	return out
}

// StatsJSON returns the statistics as indented JSON
func (s *Server) StatsJSON() string {
	data, _ := json.MarshalIndent(s.Stats(), "", "  ")
	return string(data)
}

// StatsText returns the statistics as human-readable text
func (s *Server) StatsText() string {
	stats := s.Stats()

	var b strings.Builder
	fmt.Fprintf(&b, `Server Statistics
=================

Workers:
  Size:      %d
  Busy:      %d
  Submitted: %d
  Completed: %d
  Panicked:  %d
  Pending:   %d

Buffers:
  Size:     %d
  Gets:     %d
  Hit Rate: %.2f%%

Connections:   %d
Bytes Written: %d
`,
		stats.Workers.Size, stats.Workers.Busy, stats.Workers.Submitted,
		stats.Workers.Completed, stats.Workers.Panicked, stats.Workers.Pending,
		stats.Buffers.Size, stats.Buffers.Gets, stats.Buffers.HitRate*100,
		stats.Requests.Connections, stats.Requests.BytesWritten,
	)

	if len(stats.Routes) > 0 {
		b.WriteString("\nRoutes:\n")
		for _, r := range stats.Routes {
			fmt.Fprintf(&b, "  %-20s %6d requests %4d errors %8.3fms avg\n", r.Path, r.Count, r.Errors, r.AvgMillis)
		}
	}
	return b.String()
}
