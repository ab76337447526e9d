package clockwork

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestRuntime(t *testing.T, mutate func(*RuntimeConfig)) *Runtime {
	t.Helper()
	cfg := DefaultRuntimeConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	rt, err := NewRuntime(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = rt.Close(ctx)
	})
	return rt
}

// recorder collects events from concurrent tasks.
type recorder struct {
	mu     sync.Mutex
	events []string
	times  []time.Time
}

func (r *recorder) add(ev string) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.times = append(r.times, time.Now())
	r.mu.Unlock()
}

func (r *recorder) snapshot() ([]string, []time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...), append([]time.Time(nil), r.times...)
}

func (r *recorder) count(ev string) int {
	events, _ := r.snapshot()
	n := 0
	for _, e := range events {
		if e == ev {
			n++
		}
	}
	return n
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type kindSet struct {
	mu   sync.Mutex
	seen map[string]int
}

func (k *kindSet) add(kind string) {
	k.mu.Lock()
	if k.seen == nil {
		k.seen = map[string]int{}
	}
	k.seen[kind]++
	k.mu.Unlock()
}

func (k *kindSet) has(kind string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.seen[kind] > 0
}
