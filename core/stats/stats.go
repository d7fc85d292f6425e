package stats

import (
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/samsonhttp/samson/core"
	"github.com/samsonhttp/samson/core/http"
)

// ContentTypeProtobuf selects the binary encoding when sent in Accept
const ContentTypeProtobuf = "application/x-protobuf"

// Source is anything that can report server statistics
type Source interface {
	Stats() core.ServerStats
}

// SystemStats holds process and host figures
type SystemStats struct {
	// Process specific
	NumGoroutine int    `json:"num_goroutine"`
	Alloc        uint64 `json:"alloc_bytes"`
	Sys          uint64 `json:"sys_bytes"`
	NumGC        uint32 `json:"num_gc"`

	// System wide
	TotalRAM        uint64  `json:"total_ram"`
	AvailableRAM    uint64  `json:"available_ram"`
	UsedRAMPercent  float64 `json:"used_ram_percent"`
	TotalCPUCores   int     `json:"total_cpu_cores"`
	CPUUsagePercent float64 `json:"cpu_usage_percent"`
}

// Status is the payload served by Handler
type Status struct {
	Timestamp time.Time        `json:"timestamp"`
	Uptime    string           `json:"uptime"`
	Server    core.ServerStats `json:"server"`
	System    SystemStats      `json:"system"`
}

// Collect gathers server and host statistics. Host figures that cannot be
// read on this platform are left at zero.
func Collect(src Source, started time.Time) Status {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	sys := SystemStats{
		NumGoroutine:  runtime.NumGoroutine(),
		Alloc:         memStats.Alloc,
		Sys:           memStats.Sys,
		NumGC:         memStats.NumGC,
		TotalCPUCores: runtime.NumCPU(),
	}

	if vMem, err := mem.VirtualMemory(); err == nil && vMem != nil {
		sys.TotalRAM = vMem.Total
		sys.AvailableRAM = vMem.Available
		sys.UsedRAMPercent = vMem.UsedPercent
	}
	// Non-blocking: compares against the previous call
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		sys.CPUUsagePercent = pct[0]
	}

	return Status{
		Timestamp: time.Now(),
		Uptime:    time.Since(started).Round(time.Second).String(),
		Server:    src.Stats(),
		System:    sys,
	}
}

// ToStruct converts a status into a protobuf Struct
func ToStruct(status Status) (*structpb.Struct, error) {
	data, err := json.Marshal(status)
	if err != nil {
		return nil, err
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return structpb.NewStruct(fields)
}

// Handler serves the statistics of src. The payload is protobuf JSON, or
// binary protobuf when the client accepts application/x-protobuf.
func Handler(src Source) http.Handler {
	started := time.Now()

	return http.HandlerFunc(func(req *http.Request) *http.Response {
		st, err := ToStruct(Collect(src, started))
		if err != nil {
			return http.Error(http.StatusInternalServerError, fmt.Sprintf("collect stats: %v", err))
		}

		if strings.Contains(req.Header.Get(http.HeaderAccept), ContentTypeProtobuf) {
			data, err := proto.Marshal(st)
			if err != nil {
				return http.Error(http.StatusInternalServerError, err.Error())
			}
			return http.Data(http.StatusOK, ContentTypeProtobuf, data)
		}

		data, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(st)
		if err != nil {
			return http.Error(http.StatusInternalServerError, err.Error())
		}
		return http.Data(http.StatusOK, "application/json", data)
	})
}
