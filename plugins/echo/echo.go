// Package echo is a demo application: it logs configured texts on their own
// schedules, sharing one counter, and stops itself after run_for.
package echo

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"clockwork/internal/config"
	"clockwork/internal/schedule"
	"clockwork/pkg/clockwork"
	"clockwork/pkg/logx"
)

type Echo struct {
	Text  string `json:"text"`
	Every string `json:"every"`
}

type Config struct {
	Prefix string `json:"prefix,omitempty"`
	Echoes []Echo `json:"echoes"`
	// RunFor stops the app after this long; empty runs until stopped.
	RunFor string `json:"run_for,omitempty"`
}

func (c Config) Validate() error {
	for i, e := range c.Echoes {
		if strings.TrimSpace(e.Text) == "" {
			return fmt.Errorf("echoes[%d].text required", i)
		}
		if _, err := schedule.ParseSchedule(e.Every); err != nil {
			return fmt.Errorf("echoes[%d].every: %w", i, err)
		}
	}
	_, err := config.ParseDurationField("app.run_for", c.RunFor)
	return err
}

type App struct {
	log    logx.Logger
	cfg    Config
	runFor time.Duration

	count atomic.Uint64
	mu    sync.Mutex
	fired map[string]uint64
}

func New(cfg Config) *App {
	a := &App{}
	a.Configure(cfg)
	return a
}

func (a *App) Name() string { return "echo" }

func (a *App) Configure(cfg Config) {
	a.cfg = cfg
	a.log = logx.Default().With(logx.String("app", a.Name()))
	// Validated before Configure; a bad value here means no limit.
	a.runFor, _ = config.ParseDurationField("app.run_for", cfg.RunFor)
	a.fired = make(map[string]uint64, len(cfg.Echoes))
}

func (a *App) Setup(h clockwork.Handle) {
	for _, e := range a.cfg.Echoes {
		e := e
		text := a.cfg.Prefix + e.Text
		err := h.ScheduleSpec(func() {
			n := a.count.Add(1)
			a.mu.Lock()
			a.fired[e.Text]++
			a.mu.Unlock()
			a.log.Info(text, logx.Uint64("count", n))
		}, e.Every)
		if err != nil {
			a.log.Error("echo not scheduled", logx.String("text", e.Text), logx.String("every", e.Every), logx.Err(err))
		}
	}
	a.log.Debug("echoes scheduled", logx.Int("n", len(a.cfg.Echoes)))
}

func (a *App) Run(ctx context.Context, h clockwork.Handle) error {
	if a.runFor <= 0 {
		return clockwork.DefaultRun(ctx, h)
	}
	timer := time.NewTimer(a.runFor)
	defer timer.Stop()
	select {
	case <-timer.C:
		h.Stop()
	case <-h.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (a *App) Shutdown() {
	a.log.Info("echo shut down", logx.Uint64("total", a.Count()))
}

// Count is the number of echoes logged so far.
func (a *App) Count() uint64 { return a.count.Load() }

// Fired returns per-text firing counts.
func (a *App) Fired() map[string]uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]uint64, len(a.fired))
	for k, v := range a.fired {
		out[k] = v
	}
	return out
}
