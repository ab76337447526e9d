package clockwork

import "sync/atomic"

// StopSignal is a one-way flag: once raised it stays raised.
type StopSignal struct {
	raised atomic.Bool
	done   chan struct{}
}

func NewStopSignal() *StopSignal {
	return &StopSignal{done: make(chan struct{})}
}

// Raise sets the flag. Only the first call closes Done.
func (s *StopSignal) Raise() {
	if s.raised.CompareAndSwap(false, true) {
		close(s.done)
	}
}

func (s *StopSignal) Raised() bool { return s.raised.Load() }

// Done is closed when the signal is raised.
func (s *StopSignal) Done() <-chan struct{} { return s.done }
