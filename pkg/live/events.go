package live

// Event is the interface for all session events surfaced to the front
// end via Session.Events().
type Event interface {
	// EventType returns the event type string for serialization.
	EventType() string
}

// StateChangedEvent is emitted on every connection state transition.
type StateChangedEvent struct {
	From ConnState `json:"from"`
	To   ConnState `json:"to"`
}

func (e *StateChangedEvent) EventType() string { return "state.changed" }

// ConnectedEvent is emitted when a model connection is established.
type ConnectedEvent struct {
	Model string `json:"model"`
}

func (e *ConnectedEvent) EventType() string { return "session.connected" }

// ModelFallbackEvent is emitted when the active model is quota-limited
// and the orchestrator advances to the next fallback.
type ModelFallbackEvent struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (e *ModelFallbackEvent) EventType() string { return "session.fallback" }

// ReconnectingEvent is emitted when a mid-session transport failure
// starts a recovery episode.
type ReconnectingEvent struct {
	Reason string `json:"reason"`
}

func (e *ReconnectingEvent) EventType() string { return "session.reconnecting" }

// TextDeltaEvent carries a partial text chunk of the current model turn.
type TextDeltaEvent struct {
	Text string `json:"text"`
}

func (e *TextDeltaEvent) EventType() string { return "text.delta" }

// TurnCompleteEvent is emitted when the model finishes a turn. Text is
// the assembled turn text, already committed to the conversation window.
type TurnCompleteEvent struct {
	Text string `json:"text"`
}

func (e *TurnCompleteEvent) EventType() string { return "turn.complete" }

// InterruptedEvent is emitted when the user spoke over the assistant
// and buffered playback audio was flushed.
type InterruptedEvent struct{}

func (e *InterruptedEvent) EventType() string { return "playback.interrupted" }

// ToolCallEvent surfaces a server-initiated tool invocation.
type ToolCallEvent struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

func (e *ToolCallEvent) EventType() string { return "tool.call" }

// SourceDisabledEvent is emitted when a capture device fails and its
// mode is degraded rather than terminating the session.
type SourceDisabledEvent struct {
	Source string `json:"source"` // "mic", "camera" or "screen"
	Reason string `json:"reason"`
}

func (e *SourceDisabledEvent) EventType() string { return "capture.disabled" }

// ErrorEvent carries a non-terminal diagnostic.
type ErrorEvent struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (e *ErrorEvent) EventType() string { return "error" }

// ClosedEvent is the last event of a session. Err is nil on clean
// shutdown and the terminal error otherwise.
type ClosedEvent struct {
	Err error `json:"-"`
}

func (e *ClosedEvent) EventType() string { return "session.closed" }
