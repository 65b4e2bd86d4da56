// Package system reports the daemon's runtime resource usage.
package system

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
)

// Info describes the host the daemon runs on.
type Info struct {
	OS        string
	Arch      string
	NumCPU    int
	GoVersion string
}

func (i Info) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("os", i.OS),
		slog.String("arch", i.Arch),
		slog.Int("cpus", i.NumCPU),
		slog.String("go", i.GoVersion),
	)
}

// Stats is a point-in-time view of the runtime.
type Stats struct {
	Goroutines int
	HeapAlloc  uint64
	HeapSys    uint64
	NumGC      uint32
	LastPause  time.Duration
	Uptime     time.Duration
}

func (s Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("goroutines", s.Goroutines),
		slog.String("heapAlloc", humanize.IBytes(s.HeapAlloc)),
		slog.String("heapSys", humanize.IBytes(s.HeapSys)),
		slog.Any("numGC", s.NumGC),
		slog.Duration("lastPause", s.LastPause),
		slog.Duration("uptime", s.Uptime.Round(time.Second)),
	)
}

// Constrained reports whether the process looks overloaded: too many
// goroutines or long GC pauses.
func (s Stats) Constrained() bool {
	return s.Goroutines > 1000 || s.LastPause > 10*time.Millisecond
}

type Monitor struct {
	startTime time.Time
}

func NewMonitor() *Monitor {
	return &Monitor{startTime: time.Now()}
}

func (m *Monitor) Info() Info {
	return Info{
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		NumCPU:    runtime.NumCPU(),
		GoVersion: runtime.Version(),
	}
}

func (m *Monitor) Snapshot() Stats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	var lastPause time.Duration
	if ms.NumGC > 0 {
		lastPause = time.Duration(ms.PauseNs[(ms.NumGC+255)%256])
	}
	return Stats{
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  ms.HeapAlloc,
		HeapSys:    ms.HeapSys,
		NumGC:      ms.NumGC,
		LastPause:  lastPause,
		Uptime:     time.Since(m.startTime),
	}
}

// Run logs a snapshot every interval until ctx is done. A non-positive
// interval disables reporting.
func (m *Monitor) Run(ctx context.Context, logger *slog.Logger, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := m.Snapshot()
			if stats.Constrained() {
				logger.Warn("Runtime under pressure", "stats", stats)
			} else {
				logger.Debug("Runtime stats", "stats", stats)
			}
		}
	}
}
