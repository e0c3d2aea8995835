// Package notification provides the notification manager for broadcasting reader snapshots.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/speedreader/internal/app/playback"
)

const defaultSendTimeout = 500 * time.Millisecond

// Message is a snapshot delivered to a subscriber.
type Message struct {
	SequenceNo uint64            `json:"sequence_no"`
	ReaderID   string            `json:"reader_id"`
	Type       string            `json:"type"`  // Event type, or "initial_state"
	State      string            `json:"state"` // Derived playback state
	Snapshot   playback.Snapshot `json:"snapshot"`
}

// TypeInitialState is sent once to a new subscriber before any event.
const TypeInitialState = "initial_state"

// Stream represents a notification stream for a subscriber.
type Stream interface {
	Send(*Message) error
}

// subscription represents a subscriber's subscription.
type subscription struct {
	id     string
	stream Stream
}

// Manager manages notification subscriptions and broadcasting for one reader.
type Manager struct {
	mu            sync.RWMutex
	readerID      string
	subscriptions map[string]*subscription
	sequenceNo    uint64
	sequenceNoMu  sync.Mutex
	sendTimeout   time.Duration
}

// NewManager creates a new notification manager.
func NewManager(readerID string) *Manager {
	return &Manager{
		readerID:      readerID,
		subscriptions: make(map[string]*subscription),
		sendTimeout:   defaultSendTimeout,
	}
}

// Subscribe adds a new subscription and returns the subscription ID.
func (m *Manager) Subscribe(stream Stream) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.subscriptions[id] = &subscription{
		id:     id,
		stream: stream,
	}
	return id
}

// SubscribeWithInitialState subscribes stream and sends it an initial_state
// message built from snapshot before any broadcast reaches it. Broadcasts
// stamped before the initial message are already reflected in its snapshot
// and are skipped, so the stream sees strictly increasing sequence numbers.
func (m *Manager) SubscribeWithInitialState(stream Stream, snapshot func() playback.Snapshot) (string, error) {
	gate := &gatedStream{stream: stream}
	gate.mu.Lock()
	defer gate.mu.Unlock()

	id := m.Subscribe(gate)

	// The sequence number is taken before the snapshot.
	msg := m.NewMessage(TypeInitialState, playback.Snapshot{})
	msg.Snapshot = snapshot()
	msg.State = msg.Snapshot.State().String()
	gate.after = msg.SequenceNo

	if err := stream.Send(msg); err != nil {
		m.Unsubscribe(id)
		return "", err
	}
	return id, nil
}

// gatedStream drops messages stamped at or before after.
type gatedStream struct {
	mu     sync.Mutex
	stream Stream
	after  uint64
}

func (g *gatedStream) Send(msg *Message) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if msg.SequenceNo <= g.after {
		return nil
	}
	return g.stream.Send(msg)
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, subscriptionID)
}

// NewMessage builds a message stamped with the next sequence number.
func (m *Manager) NewMessage(typ string, snap playback.Snapshot) *Message {
	m.sequenceNoMu.Lock()
	m.sequenceNo++
	seq := m.sequenceNo
	m.sequenceNoMu.Unlock()

	return &Message{
		SequenceNo: seq,
		ReaderID:   m.readerID,
		Type:       typ,
		State:      snap.State().String(),
		Snapshot:   snap,
	}
}

// Publish converts a playback event into a message and broadcasts it.
func (m *Manager) Publish(ev playback.Event) {
	m.Broadcast(m.NewMessage(ev.Type.String(), ev.Snapshot))
}

// Broadcast sends a message to all subscribers.
// Each stream send is done in a goroutine with a timeout to prevent blocking.
func (m *Manager) Broadcast(msg *Message) {
	m.mu.RLock()
	// Copy subscriptions to avoid holding lock during sends
	subs := make([]*subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s *subscription) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), m.sendTimeout)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- s.stream.Send(msg)
			}()

			select {
			case err := <-done:
				if err != nil {
					zlog.Debug().Msgf("notification: send failed, dropping subscriber: reader=%s subscription=%s err=%v",
						m.readerID, s.id, err)
					m.Unsubscribe(s.id)
				}
			case <-ctx.Done():
				zlog.Debug().Msgf("notification: send timed out: reader=%s subscription=%s", m.readerID, s.id)
			}
		}(sub)
	}

	wg.Wait()
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close removes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = make(map[string]*subscription)
}
