package main

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"clockwork/internal/config"
	"clockwork/pkg/clockwork"
	"clockwork/pkg/logx"
	"clockwork/plugins/echo"
	"clockwork/plugins/system"
)

// appKind runs one application type from a config file.
type appKind interface {
	check(path string) (string, error)
	run(ctx context.Context, path string) error
	watch(ctx context.Context, path string) error
}

var registry = map[string]appKind{
	"echo":   hosted[echo.Config, echo.App, *echo.App]{},
	"system": hosted[system.Config, system.App, *system.App]{},
}

type hosted[C any, T any, P interface {
	*T
	clockwork.App[C]
}] struct{}

func (hosted[C, T, P]) check(path string) (string, error) {
	cfg, err := clockwork.LoadConfig[C](path)
	if err != nil {
		return "", err
	}
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	rc := cfg.Runtime
	return fmt.Sprintf("enable_io=%t enable_time=%t max_threads=%d", rc.EnableIO, rc.EnableTime, rc.MaxThreads), nil
}

func (hosted[C, T, P]) run(_ context.Context, path string) error {
	h, err := clockwork.HostFromFile[C, T, P](path)
	if err != nil {
		return err
	}
	return h.Start()
}

// watch runs the app on its own thread and replaces it whenever the config
// file changes to a new valid document. It returns when the app stops by
// itself or ctx is done.
func (hosted[C, T, P]) watch(ctx context.Context, path string) error {
	log := logx.Default().With(logx.String("comp", "watch"))

	w := config.NewWatcher(path, clockwork.LoadConfig[C])
	w.SetLogger(log)
	w.SetValidator(func(_ context.Context, cfg clockwork.AppConfig[C]) error { return cfg.Validate() })
	cfg, err := w.Load()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	updates := w.Subscribe(1)
	defer w.Unsubscribe(updates)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Watch(gctx) })
	g.Go(func() error {
		defer cancel()
		for generation := 1; ; generation++ {
			ctl, err := clockwork.SpawnFromConfig[C, T, P](cfg, clockwork.WithSignals(false))
			if err != nil {
				return err
			}
			log.Info("app started", logx.Int("generation", generation))

			select {
			case <-ctl.Done():
				return ctl.Join()
			case <-gctx.Done():
				return ctl.StopAndJoin()
			case next, ok := <-updates:
				if err := ctl.StopAndJoin(); err != nil || !ok {
					return err
				}
				log.Info("config changed; restarting app", logx.Int("generation", generation))
				cfg = next
			}
		}
	})
	return g.Wait()
}
