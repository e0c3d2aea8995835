package playback

import (
	"sync"
	"time"
)

// fakeScheduler records deferred callbacks and fires them on demand.
type fakeScheduler struct {
	mu        sync.Mutex
	timers    []*fakeTimer
	scheduled int // AfterFunc calls
	stopped   int // Stop calls that cancelled a live timer
}

type fakeTimer struct {
	s       *fakeScheduler
	delay   time.Duration
	fn      func()
	fired   bool
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	t.s.stopped++
	return true
}

func (s *fakeScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &fakeTimer{s: s, delay: d, fn: fn}
	s.timers = append(s.timers, t)
	s.scheduled++
	return t
}

// pending returns the timers that have neither fired nor been stopped.
func (s *fakeScheduler) pending() []*fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*fakeTimer
	for _, t := range s.timers {
		if !t.fired && !t.stopped {
			result = append(result, t)
		}
	}
	return result
}

// runOnlyPending fires the timers pending at call time, but not timers they
// arm. It returns the number fired.
func (s *fakeScheduler) runOnlyPending() int {
	timers := s.pending()
	for _, t := range timers {
		s.mu.Lock()
		if t.stopped {
			s.mu.Unlock()
			continue
		}
		t.fired = true
		s.mu.Unlock()

		t.fn()
	}
	return len(timers)
}

// runAll fires timers until none are pending or limit is reached.
func (s *fakeScheduler) runAll(limit int) int {
	fired := 0
	for fired < limit && len(s.pending()) > 0 {
		fired += s.runOnlyPending()
	}
	return fired
}

// lastDelay returns the delay of the most recently armed timer.
func (s *fakeScheduler) lastDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.timers) == 0 {
		return 0
	}
	return s.timers[len(s.timers)-1].delay
}

func (s *fakeScheduler) counts() (scheduled, stopped int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduled, s.stopped
}
