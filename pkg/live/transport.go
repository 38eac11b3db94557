package live

import "context"

// DialOptions carries the per-connection parameters the orchestrator
// chooses at (re)connect time. Everything else about the endpoint is
// fixed in the dialer itself.
type DialOptions struct {
	// Model is the fully qualified model resource name.
	Model string
	// EnableSearch grounds responses with web search. Toggling it takes
	// effect on the next connection, so it rides the dial options.
	EnableSearch bool
}

// TransportDialer establishes duplex connections to the remote endpoint.
// Dial failures carry a *core.Error whose kind drives fallback policy.
type TransportDialer interface {
	Dial(ctx context.Context, opts DialOptions) (TransportConn, error)
}

// TransportConn is one established duplex connection. Send and Receive
// may be called from different goroutines; each is single-caller.
type TransportConn interface {
	// Send serializes and transmits one outbound message in order.
	Send(msg OutboundMessage) error

	// Receive blocks for the next classified inbound event. A dropped
	// connection surfaces as a *core.Error with KindDisconnected.
	Receive() (InboundEvent, error)

	// Close releases the connection. Safe to call more than once.
	Close() error
}

// AudioSource yields fixed-size PCM frames from a capture device.
// Exclusively owned by one capture task at a time.
type AudioSource interface {
	// CaptureAudio blocks until one chunk is available or ctx ends.
	CaptureAudio(ctx context.Context) (MediaFrame, error)
	Close() error
}

// ImageSource yields encoded image frames from a camera or screen.
// Exclusively owned by one capture task at a time; enabling a video
// mode acquires the device, disabling releases it.
type ImageSource interface {
	// CaptureImage grabs and encodes one frame.
	CaptureImage(ctx context.Context) (MediaFrame, error)
	Close() error
}

// MediaSink consumes PCM frames for playback. Play blocks at the
// device's real-time rate, which makes the sink the pacing authority
// for the playback pipeline.
type MediaSink interface {
	Play(frame MediaFrame) error

	// Flush discards device-buffered audio immediately. Idempotent.
	Flush()

	Close() error
}

// Sources bundles the capture devices handed to a session. Any entry
// may be nil; the corresponding mode is then unavailable.
type Sources struct {
	Mic    AudioSource
	Camera ImageSource
	Screen ImageSource
}
