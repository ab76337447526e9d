package clockwork

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"clockwork/internal/schedule"
	"clockwork/pkg/logx"
)

// Handle schedules work on a Runtime and observes its stop signal.
// Handles are small values; copies share the same runtime and signal.
type Handle struct {
	rt   *Runtime
	stop *StopSignal
}

// Runtime returns the runtime behind the handle.
func (h Handle) Runtime() *Runtime { return h.rt }

// ScheduleRepeating runs task at start and then once per period until the stop
// signal is raised. The signal is checked before each wait, so a stop requested
// while waiting lets the task fire one more time. Missed ticks are skipped and
// consecutive firings are never closer than period.
//
// It panics when period is not positive or timers are disabled.
func (h Handle) ScheduleRepeating(task func(), start time.Time, period time.Duration) {
	h.rt.requireTime()
	if task == nil {
		panic("clockwork: ScheduleRepeating with nil task")
	}
	if period <= 0 {
		panic(fmt.Sprintf("clockwork: ScheduleRepeating period must be > 0, got %s", period))
	}
	h.rt.launch("repeating", func(ctx context.Context) {
		next := start
		timer := time.NewTimer(time.Until(next))
		defer timer.Stop()
		for !h.stop.Raised() {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
			fired := time.Now()
			if !h.rt.execute(ctx, "repeating", task) {
				return
			}
			h.rt.firings.Add(1)

			next = nextTick(next, fired, time.Now(), period)
			timer.Reset(time.Until(next))
		}
	})
}

// nextTick advances the grid anchored at prev by one period, never closer
// than period to the last firing and skipping grid points already in the past.
func nextTick(prev, fired, now time.Time, period time.Duration) time.Time {
	next := prev.Add(period)
	if earliest := fired.Add(period); next.Before(earliest) {
		next = earliest
	}
	if next.Before(now) {
		missed := now.Sub(next)/period + 1
		next = next.Add(missed * period)
	}
	return next
}

// ScheduleOnce runs task once after delay, regardless of the stop signal.
// If the runtime is torn down first the task is silently dropped.
//
// It panics when timers are disabled.
func (h Handle) ScheduleOnce(task func(), delay time.Duration) {
	h.rt.requireTime()
	if task == nil {
		panic("clockwork: ScheduleOnce with nil task")
	}
	ok := h.rt.launch("once", func(ctx context.Context) {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			h.rt.onceDropped.Add(1)
			return
		case <-timer.C:
		}
		if h.rt.execute(ctx, "once", task) {
			h.rt.onceRuns.Add(1)
		} else {
			h.rt.onceDropped.Add(1)
		}
	})
	if !ok {
		h.rt.onceDropped.Add(1)
	}
}

// Spawn runs fn concurrently, holding one worker permit for its whole duration.
// ctx is cancelled when the runtime is torn down.
func (h Handle) Spawn(fn func(ctx context.Context)) {
	if fn == nil {
		panic("clockwork: Spawn with nil func")
	}
	h.rt.launch("spawn", func(ctx context.Context) {
		h.rt.execute(ctx, "spawn", func() { fn(ctx) })
	})
}

// ScheduleSpec schedules task from a schedule string: a cron expression
// ("*/5 * * * *", "*/10 * * * * *", "@hourly"), a duration ("30s") or an
// HH:MM interval ("01:30"). Intervals behave like ScheduleRepeating starting
// one interval from now. Cron schedules are evaluated in runtime.timezone and
// follow the same stop rules.
func (h Handle) ScheduleSpec(task func(), spec string) error {
	if !h.rt.cfg.EnableTime {
		return ErrTimersDisabled
	}
	if task == nil {
		return errors.New("clockwork: ScheduleSpec with nil task")
	}
	ps, err := schedule.ParseSchedule(spec)
	if err != nil {
		return fmt.Errorf("clockwork: %w", err)
	}
	if ps.Kind == schedule.SpecInterval {
		h.ScheduleRepeating(task, time.Now().Add(ps.Every), ps.Every)
		return nil
	}

	sched, err := schedule.Compile(ps, h.rt.settings.loc)
	if err != nil {
		return fmt.Errorf("clockwork: %w", err)
	}
	first := sched.Next(time.Now())
	if first.IsZero() {
		return fmt.Errorf("clockwork: schedule %q never fires", spec)
	}
	if h.rt.log.Enabled(logx.LevelDebug) {
		var upcoming []string
		for _, t := range schedule.Preview(sched, time.Now(), 3) {
			upcoming = append(upcoming, t.Format("2006-01-02 15:04:05"))
		}
		h.rt.log.Debug("cron scheduled", logx.String("spec", ps.Cron), logx.String("next", strings.Join(upcoming, ", ")))
	}

	h.rt.launch("cron", func(ctx context.Context) {
		timer := time.NewTimer(time.Until(first))
		defer timer.Stop()
		for !h.stop.Raised() {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
			if !h.rt.execute(ctx, "cron", task) {
				return
			}
			h.rt.firings.Add(1)

			next := sched.Next(time.Now())
			if next.IsZero() {
				return
			}
			timer.Reset(time.Until(next))
		}
	})
	return nil
}

// Stop raises the stop signal. It is idempotent and does not wait for anything.
func (h Handle) Stop() { h.stop.Raise() }

// Stopped reports whether the stop signal has been raised.
func (h Handle) Stopped() bool { return h.stop.Raised() }

// Done is closed once the stop signal is raised.
func (h Handle) Done() <-chan struct{} { return h.stop.Done() }
