// Package system is a demo application that periodically reports process
// and runtime health.
package system

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"clockwork/internal/schedule"
	"clockwork/pkg/clockwork"
	"clockwork/pkg/logx"
)

const defaultEvery = "1m"

type Config struct {
	// Every is a schedule string; default "1m".
	Every string `json:"every,omitempty"`
	// Verbose logs the full multi-line report instead of a single line.
	Verbose bool `json:"verbose,omitempty"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Every) == "" {
		return nil
	}
	if _, err := schedule.ParseSchedule(c.Every); err != nil {
		return fmt.Errorf("every: %w", err)
	}
	return nil
}

type App struct {
	log       logx.Logger
	cfg       Config
	startedAt time.Time

	mu   sync.Mutex
	rt   *clockwork.Runtime
	last Report
	runs int
}

func New(cfg Config) *App {
	a := &App{}
	a.Configure(cfg)
	return a
}

func (a *App) Name() string { return "system" }

func (a *App) Configure(cfg Config) {
	if strings.TrimSpace(cfg.Every) == "" {
		cfg.Every = defaultEvery
	}
	a.cfg = cfg
	a.log = logx.Default().With(logx.String("app", a.Name()))
}

func (a *App) Setup(h clockwork.Handle) {
	a.mu.Lock()
	a.rt = h.Runtime()
	a.mu.Unlock()
	if a.startedAt.IsZero() {
		a.startedAt = time.Now()
	}
	if err := h.ScheduleSpec(a.report, a.cfg.Every); err != nil {
		a.log.Error("report not scheduled", logx.String("every", a.cfg.Every), logx.Err(err))
	}
}

// Run emits one report up front and then waits for the stop signal.
func (a *App) Run(ctx context.Context, h clockwork.Handle) error {
	a.report()
	return clockwork.DefaultRun(ctx, h)
}

func (a *App) Shutdown() {
	a.mu.Lock()
	runs := a.runs
	a.mu.Unlock()
	a.log.Info("system reporter shut down", logx.Int("reports", runs), logx.String("uptime", durRel(time.Since(a.startedAt))))
}

func (a *App) report() {
	a.mu.Lock()
	rt := a.rt
	a.mu.Unlock()

	r := Collect(rt, a.startedAt)

	a.mu.Lock()
	a.last = r
	a.runs++
	a.mu.Unlock()

	if a.cfg.Verbose {
		a.log.Info(r.Render())
		return
	}
	a.log.Info("health",
		logx.String("status", r.Status),
		logx.String("uptime", durRel(r.Uptime)),
		logx.Int("goroutines", r.Goroutines),
		logx.String("mem_alloc", fmtBytes(r.MemAlloc)),
		logx.Int64("units_active", r.Runtime.UnitsActive),
		logx.Uint64("unit_panics", r.Runtime.UnitPanics),
	)
}

// Last returns the most recent report and how many were produced.
func (a *App) Last() (Report, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last, a.runs
}
