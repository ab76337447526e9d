package system

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"clockwork/pkg/clockwork"
)

// Report is a point-in-time view of the process and the hosting runtime.
type Report struct {
	At         time.Time
	Status     string
	Uptime     time.Duration
	GoVersion  string
	Module     string
	Goroutines int
	CPUs       int
	MemAlloc   uint64
	MemSys     uint64
	HeapInuse  uint64
	NumGC      uint32
	Runtime    clockwork.Snapshot
	MaxThreads int
}

// Collect builds a Report. rt may be nil.
func Collect(rt *clockwork.Runtime, startedAt time.Time) Report {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	r := Report{
		At:         time.Now(),
		Status:     "Running",
		GoVersion:  runtime.Version(),
		Goroutines: runtime.NumGoroutine(),
		CPUs:       runtime.NumCPU(),
		MemAlloc:   m.Alloc,
		MemSys:     m.Sys,
		HeapInuse:  m.HeapInuse,
		NumGC:      m.NumGC,
	}
	if !startedAt.IsZero() {
		r.Uptime = r.At.Sub(startedAt)
	}
	if bi, ok := debug.ReadBuildInfo(); ok && bi != nil {
		r.Module = strings.TrimSpace(bi.Main.Path + " " + bi.Main.Version)
	}
	if rt != nil {
		r.Runtime = rt.Snapshot()
		r.MaxThreads = rt.Config().MaxThreads
		switch {
		case r.Runtime.Closed:
			r.Status = "Closed"
		case r.Runtime.StopRequested:
			r.Status = "Stopping"
		case r.Runtime.UnitPanics > 0:
			r.Status = "Degraded"
		}
	}
	return r
}

// Render formats the report as plain text.
func (r Report) Render() string {
	var b strings.Builder
	b.Grow(1024)

	b.WriteString("Health Status\n")
	b.WriteString(fmt.Sprintf("Status: %s\n", r.Status))
	b.WriteString(fmt.Sprintf("Uptime: %s\n", durRel(r.Uptime)))
	b.WriteString("\n")

	b.WriteString("Memory Usage\n")
	b.WriteString(fmt.Sprintf("  - Allocated:  %s\n", fmtBytes(r.MemAlloc)))
	b.WriteString(fmt.Sprintf("  - System:     %s\n", fmtBytes(r.MemSys)))
	b.WriteString(fmt.Sprintf("  - Heap Inuse: %s\n", fmtBytes(r.HeapInuse)))
	b.WriteString(fmt.Sprintf("  - GC Runs:    %d\n", r.NumGC))
	b.WriteString("\n")

	b.WriteString("Go Runtime\n")
	b.WriteString(fmt.Sprintf("  - Go Version: %s\n", r.GoVersion))
	if r.Module != "" {
		b.WriteString(fmt.Sprintf("  - Module:     %s\n", r.Module))
	}
	b.WriteString(fmt.Sprintf("  - Goroutines: %d\n", r.Goroutines))
	b.WriteString(fmt.Sprintf("  - CPUs:       %d\n", r.CPUs))
	b.WriteString("\n")

	s := r.Runtime
	b.WriteString("Scheduler\n")
	b.WriteString(fmt.Sprintf("  - Max Threads:  %d\n", r.MaxThreads))
	b.WriteString(fmt.Sprintf("  - Active Units: %d (%d started)\n", s.UnitsActive, s.UnitsStarted))
	b.WriteString(fmt.Sprintf("  - Firings:      %d repeating, %d once (%d dropped)\n", s.RepeatingFirings, s.OnceRuns, s.OnceDropped))
	b.WriteString(fmt.Sprintf("  - Panics:       %d\n", s.UnitPanics))
	if s.FirstError != "" {
		b.WriteString(fmt.Sprintf("  - First Error:  %s\n", s.FirstError))
	}
	if len(s.Units) > 0 {
		b.WriteString("\nUnits\n")
		for _, u := range s.Units {
			b.WriteString(fmt.Sprintf("  - %-10s %d active, %d started, %d panics, ran %s\n", u.Kind, u.Active, u.Started, u.Panics, u.TotalRuntime.Round(time.Millisecond)))
		}
	}
	return b.String()
}

func fmtBytes(n uint64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)
	switch {
	case n >= GB:
		return fmt.Sprintf("%.1fGB", float64(n)/GB)
	case n >= MB:
		return fmt.Sprintf("%.1fMB", float64(n)/MB)
	case n >= KB:
		return fmt.Sprintf("%.1fKB", float64(n)/KB)
	default:
		return fmt.Sprintf("%dB", n)
	}
}

func durRel(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
