// Package playback provides the timer-driven speed reading engine.
package playback

// State represents the playback state.
type State int

const (
	StateIdle     State = iota // Nothing revealed yet and not playing
	StatePlaying               // A tick is pending or about to be armed
	StatePaused                // Stopped part way through the passage
	StateFinished              // The whole passage has been revealed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Snapshot is a read-only copy of the engine state for hosts to render.
type Snapshot struct {
	Position      int      `json:"position"`     // Count of words advanced past
	VisibleText   string   `json:"visible_text"` // Most recently revealed chunk
	IsPlaying     bool     `json:"is_playing"`
	Finished      bool     `json:"finished"` // Set on natural completion, cleared by play/reset
	Words         []string `json:"words"`
	SpeedWPM      float64  `json:"speed_wpm"`
	WordsPerChunk int      `json:"words_per_chunk"`
}

// State derives the playback state from the snapshot.
func (s Snapshot) State() State {
	switch {
	case s.Finished:
		return StateFinished
	case s.IsPlaying:
		return StatePlaying
	case s.Position > 0:
		return StatePaused
	default:
		return StateIdle
	}
}

// Remaining returns the number of words not yet advanced past.
func (s Snapshot) Remaining() int {
	return len(s.Words) - s.Position
}
