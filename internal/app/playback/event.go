package playback

// EventType represents a playback event type.
type EventType int

const (
	EventChunkRevealed EventType = iota // A tick revealed the next chunk
	EventStateChanged                   // Play, pause, reset, text or config change
	EventFinished                       // The passage was exhausted
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventChunkRevealed:
		return "chunk_revealed"
	case EventStateChanged:
		return "state_changed"
	case EventFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Event represents a playback event.
type Event struct {
	Type     EventType
	Snapshot Snapshot // Engine state right after the event
}

// State returns the playback state carried by the event.
func (e Event) State() State {
	return e.Snapshot.State()
}
