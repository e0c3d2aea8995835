// Package reader hosts playback engines and fans their events out to subscribers.
package reader

import (
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/speedreader/internal/app/notification"
	"github.com/osa030/speedreader/internal/app/playback"
	"github.com/osa030/speedreader/internal/infra/metrics"
)

// Reader is a hosted playback engine with its notification fan-out.
type Reader struct {
	ID        string
	CreatedAt time.Time

	engine       *playback.Engine
	notification *notification.Manager
	metrics      *metrics.Metrics
	done         chan struct{}
}

func newReader(id string, engine *playback.Engine, m *metrics.Metrics) *Reader {
	r := &Reader{
		ID:           id,
		CreatedAt:    time.Now(),
		engine:       engine,
		notification: notification.NewManager(id),
		metrics:      m,
		done:         make(chan struct{}),
	}
	go r.eventLoop()
	return r
}

// Engine returns the reader's playback engine.
func (r *Reader) Engine() *playback.Engine {
	return r.engine
}

// Notifications returns the reader's notification manager.
func (r *Reader) Notifications() *notification.Manager {
	return r.notification
}

// Snapshot returns the current engine state.
func (r *Reader) Snapshot() playback.Snapshot {
	return r.engine.Snapshot()
}

// Done is closed once the event loop has drained after Close.
func (r *Reader) Done() <-chan struct{} {
	return r.done
}

// close tears the engine down and waits for the event loop to drain.
func (r *Reader) close() {
	r.engine.Close()
	<-r.done
	r.notification.Close()
}

// eventLoop forwards engine events to subscribers in order until the engine
// closes its event channel.
func (r *Reader) eventLoop() {
	defer close(r.done)

	for ev := range r.engine.Events() {
		zlog.Debug().Msgf("reader event: id=%s type=%s position=%d", r.ID, ev.Type, ev.Snapshot.Position)
		if r.metrics != nil {
			r.metrics.PlaybackEvents.WithLabelValues(ev.Type.String()).Inc()
		}
		r.notification.Publish(ev)
	}
}
