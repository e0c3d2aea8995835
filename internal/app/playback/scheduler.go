package playback

import "time"

// Timer is a pending fire-once callback.
type Timer interface {
	// Stop prevents the callback from firing. It reports false if the
	// callback already fired or was stopped.
	Stop() bool
}

// Scheduler arms fire-once deferred callbacks.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

// SchedulerFunc adapts a function to the Scheduler interface.
type SchedulerFunc func(d time.Duration, fn func()) Timer

// AfterFunc calls f(d, fn).
func (f SchedulerFunc) AfterFunc(d time.Duration, fn func()) Timer {
	return f(d, fn)
}

// WallClock schedules callbacks with time.AfterFunc.
var WallClock Scheduler = SchedulerFunc(func(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
})
