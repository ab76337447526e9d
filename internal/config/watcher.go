package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"

	"clockwork/pkg/logx"
)

const defaultDebounce = 250 * time.Millisecond

// Watcher reloads a config file when it changes and publishes the decoded
// value to subscribers. Reloads are debounced, skipped when the decoded
// content did not change, and dropped when the validator rejects them.
type Watcher[T any] struct {
	path  string
	parse func(path string) (T, error)

	mu       sync.RWMutex
	cur      T
	lastHash uint64

	// subsMu guards subscriber list and ensures we never send on a channel
	// that is concurrently being closed in Unsubscribe().
	subsMu sync.Mutex
	subs   []chan T

	log       logx.Logger
	validator func(ctx context.Context, cfg T) error
	debounce  time.Duration
}

// NewWatcher watches path, decoding it with parse on every change.
func NewWatcher[T any](path string, parse func(path string) (T, error)) *Watcher[T] {
	return &Watcher[T]{path: path, parse: parse, debounce: defaultDebounce}
}

func (w *Watcher[T]) SetLogger(log logx.Logger) { w.log = log }

// SetValidator installs a validation hook used by Watch() before committing/publishing.
func (w *Watcher[T]) SetValidator(fn func(ctx context.Context, cfg T) error) {
	w.validator = fn
}

// SetDebounce changes how long Watch waits for writes to settle. Non-positive resets the default.
func (w *Watcher[T]) SetDebounce(d time.Duration) {
	if d <= 0 {
		d = defaultDebounce
	}
	w.debounce = d
}

// Load parses the file and commits the result without publishing it.
func (w *Watcher[T]) Load() (T, error) {
	cfg, err := w.parse(w.path)
	if err != nil {
		var zero T
		return zero, err
	}
	w.Commit(cfg)
	return cfg, nil
}

func (w *Watcher[T]) Commit(cfg T) {
	w.mu.Lock()
	w.cur = cfg
	w.lastHash = hashValue(cfg)
	w.mu.Unlock()
}

func (w *Watcher[T]) Get() T {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cur
}

// hashValue hashes the JSON form of v, so formatting-only edits do not count as changes.
func hashValue(v any) uint64 {
	b, err := json.Marshal(v)
	if err != nil || len(b) == 0 {
		return 0
	}
	return xxhash.Sum64(b)
}

func (w *Watcher[T]) Subscribe(buffer int) chan T {
	ch := make(chan T, buffer)
	w.subsMu.Lock()
	w.subs = append(w.subs, ch)
	w.subsMu.Unlock()
	return ch
}

func (w *Watcher[T]) Unsubscribe(ch chan T) {
	if ch == nil {
		return
	}
	w.subsMu.Lock()
	defer w.subsMu.Unlock()
	for i, s := range w.subs {
		if s == ch {
			// swap-remove (order doesn't matter)
			last := len(w.subs) - 1
			w.subs[i] = w.subs[last]
			w.subs[last] = nil
			w.subs = w.subs[:last]
			close(ch)
			return
		}
	}
}

func (w *Watcher[T]) publish(cfg T) {
	// Hold subsMu while sending to avoid send-on-closed panics.
	w.subsMu.Lock()
	defer w.subsMu.Unlock()
	for _, ch := range w.subs {
		if ch == nil {
			continue
		}
		// Always try to deliver the latest config.
		// If subscriber is slow and buffer is full, drop ONE oldest item then push the newest.
		select {
		case ch <- cfg:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- cfg:
			default:
				if !w.log.IsZero() {
					w.log.Debug(
						"config update dropped (subscriber slow)",
						logx.Int("queue_len", len(ch)),
						logx.Int("queue_cap", cap(ch)),
					)
				}
			}
		}
	}
}

// reload is the debounced body of Watch.
func (w *Watcher[T]) reload(ctx context.Context) {
	cfg, err := w.parse(w.path)
	if err != nil {
		if !w.log.IsZero() {
			w.log.Warn("config parse failed", logx.String("path", w.path), logx.Err(err))
		}
		return
	}

	// Skip redundant reloads when content is unchanged.
	h := hashValue(cfg)
	w.mu.RLock()
	unchanged := h != 0 && h == w.lastHash
	w.mu.RUnlock()
	if unchanged {
		if !w.log.IsZero() {
			w.log.Debug("config unchanged; skipping publish", logx.String("path", w.path))
		}
		return
	}

	// validate before commit/publish (transactional)
	if w.validator != nil {
		vctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := w.validator(vctx, cfg)
		cancel()
		if err != nil {
			if !w.log.IsZero() {
				w.log.Warn("config rejected", logx.String("path", w.path), logx.Err(err))
			}
			return
		}
	}

	w.Commit(cfg)
	w.publish(cfg)
	if !w.log.IsZero() {
		w.log.Info("config published", logx.String("path", w.path), logx.String("hash", fmt.Sprintf("%x", h)))
	}
}

// Watch blocks until ctx is done, publishing accepted changes to subscribers.
func (w *Watcher[T]) Watch(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	file := filepath.Base(w.path)

	// When fsnotify gets into a bad state (common on Windows + certain editors),
	// the watcher may stop delivering events or close its channels.
	// Self-heal by recreating the watcher with a small exponential backoff.
	const (
		restartBackoffBase = 250 * time.Millisecond
		restartBackoffMax  = 5 * time.Second
	)
	backoff := restartBackoffBase
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	nextWait := func() time.Duration {
		wait := backoff + time.Duration(rng.Int63n(int64(backoff/2)+1))
		if backoff < restartBackoffMax {
			backoff *= 2
			if backoff > restartBackoffMax {
				backoff = restartBackoffMax
			}
		}
		return wait
	}

	// debounce to avoid partial writes
	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		if !w.log.IsZero() {
			w.log.Debug("config change detected; scheduling reload", logx.String("path", w.path))
		}
		timer = time.AfterFunc(w.debounce, func() {
			if ctx.Err() != nil {
				return
			}
			w.reload(ctx)
		})
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		fw, err := fsnotify.NewWatcher()
		if err != nil {
			if !w.log.IsZero() {
				w.log.Warn("config watch init failed", logx.Err(err), logx.String("dir", dir))
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(nextWait()):
				continue
			}
		}

		if err := fw.Add(dir); err != nil {
			_ = fw.Close()
			if !w.log.IsZero() {
				w.log.Warn("config watch add failed", logx.Err(err), logx.String("dir", dir))
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(nextWait()):
				continue
			}
		}

		// success; reset backoff so transient issues don't cause long restart delays
		backoff = restartBackoffBase
		if !w.log.IsZero() {
			w.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", file))
		}

		// inner loop: runs until watcher breaks, then outer loop recreates it.
		broken := false
		for !broken {
			select {
			case <-ctx.Done():
				_ = fw.Close()
				return nil
			case ev, ok := <-fw.Events:
				if !ok {
					broken = true
					break
				}
				// Compare by basename (more robust across absolute/relative paths and OS quirks).
				if strings.EqualFold(filepath.Base(ev.Name), file) {
					if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove|fsnotify.Chmod) != 0 {
						debounce()
					}
				}
			case err, ok := <-fw.Errors:
				if !ok {
					broken = true
					break
				}
				if err == nil {
					continue
				}
				if errors.Is(err, fsnotify.ErrEventOverflow) {
					if !w.log.IsZero() {
						w.log.Warn("config watch overflow; forcing reload", logx.Err(err), logx.String("dir", dir))
					}
					debounce()
					continue
				}
				if !w.log.IsZero() {
					w.log.Warn("config watch error", logx.Err(err), logx.String("dir", dir))
				}
				if strings.Contains(strings.ToLower(err.Error()), "closed") {
					broken = true
				}
			}
		}

		_ = fw.Close()
		if ctx.Err() != nil {
			return nil
		}
		wait := nextWait()
		if !w.log.IsZero() {
			w.log.Warn(
				"config watcher stopped; restarting",
				logx.String("dir", dir),
				logx.String("file", file),
				logx.Duration("backoff", wait),
			)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
			continue
		}
	}
}
