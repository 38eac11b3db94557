package live

import "time"

// Turn is one completed conversational exchange unit, bounded by a
// turn-complete signal.
type Turn struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// turnWindow is the bounded rolling conversation memory. Appending past
// capacity evicts the oldest turn. Not safe for concurrent use; it is
// owned exclusively by the orchestrator goroutine.
type turnWindow struct {
	capacity int
	turns    []Turn
}

func newTurnWindow(capacity int) *turnWindow {
	if capacity <= 0 {
		capacity = 1
	}
	return &turnWindow{capacity: capacity}
}

// Append records a turn, evicting the oldest when full.
func (w *turnWindow) Append(turn Turn) {
	if len(w.turns) >= w.capacity {
		copy(w.turns, w.turns[1:])
		w.turns = w.turns[:len(w.turns)-1]
	}
	w.turns = append(w.turns, turn)
}

// Recent returns up to n most recent turns in arrival order.
func (w *turnWindow) Recent(n int) []Turn {
	if n <= 0 || len(w.turns) == 0 {
		return nil
	}
	if n > len(w.turns) {
		n = len(w.turns)
	}
	out := make([]Turn, n)
	copy(out, w.turns[len(w.turns)-n:])
	return out
}

// Snapshot returns a copy of the full window in arrival order.
func (w *turnWindow) Snapshot() []Turn {
	out := make([]Turn, len(w.turns))
	copy(out, w.turns)
	return out
}

// Len returns the number of held turns.
func (w *turnWindow) Len() int { return len(w.turns) }

// Clear empties the window.
func (w *turnWindow) Clear() { w.turns = w.turns[:0] }
