package playback

import (
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/speedreader/internal/domain/passage"
)

// ErrClosed is returned by transport controls once the engine is torn down.
var ErrClosed = errors.New("engine closed")

const defaultEventBuffer = 64

// Option configures an Engine.
type Option func(*Engine)

// WithScheduler replaces the wall clock scheduler.
func WithScheduler(s Scheduler) Option {
	return func(e *Engine) {
		e.scheduler = s
	}
}

// WithName sets the name used in log lines.
func WithName(name string) Option {
	return func(e *Engine) {
		e.name = name
	}
}

// WithEventBuffer sets the capacity of the Events channel. The same number
// of events may wait behind a slow consumer before chunk reveals are
// coalesced.
func WithEventBuffer(n int) Option {
	return func(e *Engine) {
		e.eventBuffer = n
	}
}

// Engine reveals a passage chunk by chunk at a fixed words-per-minute rate.
//
// At most one tick is pending at any time: every transport call cancels the
// pending tick before deciding whether to arm a new one.
type Engine struct {
	mu sync.Mutex

	name string

	// Passage and playback state
	passage  passage.Passage
	position int
	visible  string
	playing  bool
	finished bool

	// Configuration
	config Config

	// Timer
	scheduler Scheduler
	timer     Timer
	timerGen  uint64 // Bumped on every cancel; ticks from older generations are ignored

	// Events
	eventBuffer int
	eventCh     chan Event
	queue       []Event       // Events not yet handed to eventCh, oldest first
	wake        chan struct{} // Nudges the forwarder after queue or closed changes
	quit        chan struct{} // Closed by Close
	forwarded   chan struct{} // Closed once the forwarder has closed eventCh
	subscribers map[uint64]func(Event)
	nextSubID   uint64
	outbox      []func() // Callbacks to run once the lock is released

	closed bool
}

// New creates an engine for text. If cfg.AutoPlay is set the first tick is
// armed before New returns.
func New(text string, cfg Config, opts ...Option) (*Engine, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		passage:     passage.New(text),
		playing:     cfg.AutoPlay,
		config:      cfg,
		scheduler:   WallClock,
		eventBuffer: defaultEventBuffer,
		wake:        make(chan struct{}, 1),
		quit:        make(chan struct{}),
		forwarded:   make(chan struct{}),
		subscribers: make(map[uint64]func(Event)),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.eventBuffer = max(e.eventBuffer, 1)
	e.eventCh = make(chan Event, e.eventBuffer)
	go e.forward()

	zlog.Debug().Msgf("playback: engine created: name=%s words=%d speed=%v chunk=%d autoplay=%v",
		e.name, e.passage.Len(), cfg.SpeedWPM, cfg.WordsPerChunk, cfg.AutoPlay)

	e.mu.Lock()
	e.advanceLocked()
	e.mu.Unlock()

	return e, nil
}

// Events returns the event channel. Events arrive in emission order and the
// channel is closed by Close. A consumer that falls behind misses
// intermediate chunk reveals but never a state change or finish.
func (e *Engine) Events() <-chan Event {
	return e.eventCh
}

// Subscribe registers fn to be called after every event, outside the engine
// lock. The returned function removes the subscription.
func (e *Engine) Subscribe(fn func(Event)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextSubID
	e.nextSubID++
	e.subscribers[id] = fn

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.subscribers, id)
	}
}

// Play starts or resumes playback. Playing a finished passage starts it over.
func (e *Engine) Play() error {
	return e.do(func() {
		if e.finished {
			e.rewindLocked()
		}
		e.playing = true
		e.emitLocked(EventStateChanged)
		e.advanceLocked()
	})
}

// Pause stops playback before the next tick fires. Pausing while paused
// changes nothing.
func (e *Engine) Pause() error {
	return e.do(func() {
		wasPlaying := e.playing
		e.playing = false
		if wasPlaying {
			e.emitLocked(EventStateChanged)
		}
		e.advanceLocked()
	})
}

// Reset re-tokenizes the input text, rewinds to the first word and sets
// playing to autoPlay.
func (e *Engine) Reset(autoPlay bool) error {
	return e.do(func() {
		e.resetLocked(e.passage.Text, autoPlay)
	})
}

// Advance re-evaluates the tick loop: the pending tick is cancelled and, if
// playing, a new one is armed at the current speed.
func (e *Engine) Advance() error {
	return e.do(e.advanceLocked)
}

// SetText replaces the input text and starts over, keeping the current
// playing flag. Setting the same text is a no-op.
func (e *Engine) SetText(text string) error {
	return e.do(func() {
		if text == e.passage.Text {
			return
		}
		e.resetLocked(text, e.playing)
	})
}

// SetSpeed changes the reading speed. While playing the pending tick is
// re-armed at the new rate; position and visible text are untouched.
func (e *Engine) SetSpeed(wpm float64) error {
	if err := validateSpeed(wpm); err != nil {
		return err
	}
	return e.do(func() {
		if wpm == e.config.SpeedWPM {
			return
		}
		e.config.SpeedWPM = wpm
		e.reconfiguredLocked()
	})
}

// SetWordsPerChunk changes the chunk size, with the same rescheduling rules
// as SetSpeed.
func (e *Engine) SetWordsPerChunk(n int) error {
	if err := validateWordsPerChunk(n); err != nil {
		return err
	}
	return e.do(func() {
		if n == e.config.WordsPerChunk {
			return
		}
		e.config.WordsPerChunk = n
		e.reconfiguredLocked()
	})
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// State returns the current playback state.
func (e *Engine) State() State {
	return e.Snapshot().State()
}

// Close cancels the pending tick and closes the event channel. Events not
// yet received may be discarded.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		<-e.forwarded
		return
	}
	e.cancelTimerLocked()
	e.closed = true
	e.playing = false
	e.outbox = nil
	e.queue = nil
	e.subscribers = make(map[uint64]func(Event))
	close(e.quit)
	e.mu.Unlock()

	<-e.forwarded

	zlog.Debug().Msgf("playback: engine closed: name=%s", e.name)
}

// do runs fn under the lock and then the callbacks it queued.
func (e *Engine) do(fn func()) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	fn()
	pending := e.takeOutboxLocked()
	e.mu.Unlock()

	runAll(pending)
	return nil
}

// advanceLocked cancels the pending tick and, if playing, arms the next one.
// Must be called with lock held.
func (e *Engine) advanceLocked() {
	e.cancelTimerLocked()

	if !e.playing {
		return
	}

	interval := e.config.Interval()
	gen := e.timerGen
	e.timer = e.scheduler.AfterFunc(interval, func() {
		e.tick(gen)
	})

	zlog.Debug().Msgf("playback: tick scheduled: name=%s interval=%v position=%d", e.name, interval, e.position)
}

// tick reveals the next chunk and either re-arms or finishes.
func (e *Engine) tick(gen uint64) {
	e.mu.Lock()
	if e.closed || gen != e.timerGen {
		e.mu.Unlock()
		return
	}
	e.timer = nil

	total := e.passage.Len()
	chunk := e.config.WordsPerChunk

	// A chunk covering the whole passage is always counted from the first word.
	chunkStart := e.position
	if chunk >= total-1 {
		chunkStart = 0
	}
	newPosition := min(e.position+chunk, total)

	e.visible = e.passage.Chunk(chunkStart, newPosition)
	e.position = newPosition
	e.emitLocked(EventChunkRevealed)

	if newPosition < total {
		e.advanceLocked()
	} else {
		e.finishLocked()
	}

	pending := e.takeOutboxLocked()
	e.mu.Unlock()

	runAll(pending)
}

// finishLocked stops playback after the last chunk.
// Must be called with lock held.
func (e *Engine) finishLocked() {
	e.playing = false
	e.finished = true

	zlog.Debug().Msgf("playback: passage finished: name=%s words=%d", e.name, len(e.passage.Words))

	e.emitLocked(EventFinished)
	if onFinish := e.config.OnFinish; onFinish != nil {
		e.outbox = append(e.outbox, onFinish)
	}
}

// resetLocked replaces the whole state and re-evaluates the tick loop.
// Must be called with lock held.
func (e *Engine) resetLocked(text string, autoPlay bool) {
	e.passage = passage.New(text)
	e.rewindLocked()
	e.playing = autoPlay
	e.emitLocked(EventStateChanged)
	e.advanceLocked()
}

// rewindLocked moves back to the first word.
// Must be called with lock held.
func (e *Engine) rewindLocked() {
	e.position = 0
	e.visible = ""
	e.finished = false
}

// reconfiguredLocked applies a speed or chunk change.
// Must be called with lock held.
func (e *Engine) reconfiguredLocked() {
	e.emitLocked(EventStateChanged)
	if e.playing {
		e.advanceLocked()
	}
}

// cancelTimerLocked stops the pending tick, if any.
// Must be called with lock held.
func (e *Engine) cancelTimerLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.timerGen++
}

// emitLocked queues an event for the forwarder and queues subscriber calls.
// Must be called with lock held.
func (e *Engine) emitLocked(t EventType) {
	ev := Event{Type: t, Snapshot: e.snapshotLocked()}

	if len(e.queue) >= e.eventBuffer {
		e.coalesceLocked()
	}
	e.queue = append(e.queue, ev)
	select {
	case e.wake <- struct{}{}:
	default:
	}

	for _, fn := range e.subscribers {
		e.outbox = append(e.outbox, func() { fn(ev) })
	}
}

// coalesceLocked drops the oldest queued chunk reveal. Later events carry a
// complete snapshot, so only intermediate progress is lost.
// Must be called with lock held.
func (e *Engine) coalesceLocked() {
	for i, ev := range e.queue {
		if ev.Type == EventChunkRevealed {
			e.queue = append(e.queue[:i], e.queue[i+1:]...)
			return
		}
	}
}

// forward hands queued events to eventCh in order, blocking while the
// consumer is behind. It closes eventCh once the engine is closed.
func (e *Engine) forward() {
	defer close(e.forwarded)
	defer close(e.eventCh)

	for {
		e.mu.Lock()
		batch := e.queue
		e.queue = nil
		closed := e.closed
		e.mu.Unlock()

		for _, ev := range batch {
			select {
			case e.eventCh <- ev:
			case <-e.quit:
				return
			}
		}
		if closed {
			return
		}

		select {
		case <-e.wake:
		case <-e.quit:
		}
	}
}

func (e *Engine) takeOutboxLocked() []func() {
	pending := e.outbox
	e.outbox = nil
	return pending
}

func (e *Engine) snapshotLocked() Snapshot {
	words := make([]string, len(e.passage.Words))
	copy(words, e.passage.Words)

	return Snapshot{
		Position:      e.position,
		VisibleText:   e.visible,
		IsPlaying:     e.playing,
		Finished:      e.finished,
		Words:         words,
		SpeedWPM:      e.config.SpeedWPM,
		WordsPerChunk: e.config.WordsPerChunk,
	}
}

func runAll(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}
