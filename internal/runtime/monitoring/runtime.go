package monitoring

import (
	"runtime"
	"runtime/metrics"
	"sync"
	"time"

	"github.com/drblury/shipflow/internal/runtime/logging"
)

// RuntimeUsage is the process activity between two samples.
type RuntimeUsage struct {
	CPUPercent  float64
	HeapBytes   uint64
	Goroutines  int
	GCCycles    uint32
	GCPauseTime time.Duration
}

// Fields renders the usage as log fields.
func (u RuntimeUsage) Fields() logging.LogFields {
	return logging.LogFields{
		"cpu_percent": u.CPUPercent,
		"heap_bytes":  u.HeapBytes,
		"goroutines":  u.Goroutines,
		"gc_cycles":   u.GCCycles,
		"gc_pause_ms": u.GCPauseTime.Milliseconds(),
	}
}

// RuntimeSampler reports process usage deltas between invocations of a
// reused process.
type RuntimeSampler struct {
	mu             sync.Mutex
	samples        []metrics.Sample
	lastCPUSeconds float64
	lastSample     time.Time
	lastGC         uint32
	lastPause      uint64
	numCPU         float64
}

func NewRuntimeSampler() *RuntimeSampler {
	s := &RuntimeSampler{
		samples: []metrics.Sample{{Name: "/sched/cpu:seconds"}},
		numCPU:  float64(runtime.NumCPU()),
	}
	s.Sample()
	return s
}

// Sample returns the usage since the previous call.
func (s *RuntimeSampler) Sample() RuntimeUsage {
	s.mu.Lock()
	defer s.mu.Unlock()

	metrics.Read(s.samples)
	now := time.Now()
	var usage RuntimeUsage

	if v := s.samples[0].Value; v.Kind() == metrics.KindFloat64 {
		cpuSeconds := v.Float64()
		if !s.lastSample.IsZero() {
			wall := now.Sub(s.lastSample).Seconds()
			if wall > 0 && s.numCPU > 0 {
				usage.CPUPercent = (cpuSeconds - s.lastCPUSeconds) / wall / s.numCPU * 100
			}
		}
		s.lastCPUSeconds = cpuSeconds
	}
	s.lastSample = now

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	usage.HeapBytes = mem.HeapAlloc
	usage.Goroutines = runtime.NumGoroutine()
	usage.GCCycles = mem.NumGC - s.lastGC
	usage.GCPauseTime = time.Duration(mem.PauseTotalNs - s.lastPause)
	s.lastGC = mem.NumGC
	s.lastPause = mem.PauseTotalNs
	return usage
}
