package live

import "time"

// FrameKind distinguishes the two media frame types.
type FrameKind int

const (
	FrameAudio FrameKind = iota
	FrameImage
)

// String returns a human-readable frame kind.
func (k FrameKind) String() string {
	if k == FrameAudio {
		return "audio"
	}
	return "image"
}

// MediaFrame is one captured unit of media. Immutable once produced;
// it is owned by the queue holding it until consumed exactly once.
type MediaFrame struct {
	Kind       FrameKind
	Payload    []byte
	MIMEType   string
	CapturedAt time.Time

	// SampleRate is set for audio frames.
	SampleRate int
	// Width and Height are set for image frames.
	Width, Height int
}

// OutboundMessage is an item bound for the transport. Exactly one
// payload method applies; the zero cases never leave the uplink.
type OutboundMessage interface {
	outbound()
}

// AudioChunk carries one captured PCM frame upstream.
type AudioChunk struct{ Frame MediaFrame }

// ImageChunk carries one encoded image frame upstream.
type ImageChunk struct{ Frame MediaFrame }

// TextTurn carries user (or replayed context) text upstream. Role is
// "user" or "model"; context replay preserves the original speaker.
type TextTurn struct {
	Role string
	Text string
}

// TurnComplete marks the end of the current user turn.
type TurnComplete struct{}

// ControlSignal carries an out-of-band control operation, such as
// signalling the end of the audio stream at shutdown.
type ControlSignal struct{ Op ControlOp }

// ControlOp enumerates control operations the transport understands.
type ControlOp string

const (
	// ControlAudioStreamEnd tells the endpoint no more audio will follow.
	ControlAudioStreamEnd ControlOp = "audio_stream_end"
)

func (AudioChunk) outbound()    {}
func (ImageChunk) outbound()    {}
func (TextTurn) outbound()      {}
func (TurnComplete) outbound()  {}
func (ControlSignal) outbound() {}

// InboundEvent is a classified message from the transport.
type InboundEvent interface {
	inbound()
}

// InboundAudio is one PCM chunk of synthesized speech.
type InboundAudio struct {
	Data       []byte
	SampleRate int
}

// InboundText is a partial text chunk of the current model turn.
type InboundText struct{ Text string }

// InboundTurnComplete marks the end of the current model turn.
type InboundTurnComplete struct{}

// InboundInterrupted signals the user spoke over the assistant; all
// buffered playback audio is stale and must be flushed.
type InboundInterrupted struct{}

// InboundToolCall is a server-initiated tool invocation.
type InboundToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// InboundErrorNotice is an in-band service error (quota warnings,
// imminent disconnects) requiring orchestrator classification.
type InboundErrorNotice struct {
	Kind    string
	Message string
}

func (InboundAudio) inbound()        {}
func (InboundText) inbound()         {}
func (InboundTurnComplete) inbound() {}
func (InboundInterrupted) inbound()  {}
func (InboundToolCall) inbound()     {}
func (InboundErrorNotice) inbound()  {}
