package live

import (
	"fmt"
	"time"
)

// ConnState represents the orchestrator's connection lifecycle state.
type ConnState int

const (
	// StateDisconnected is the initial state before Start.
	StateDisconnected ConnState = iota
	// StateConnecting is the initial connect/fallback attempt.
	StateConnecting
	// StateActive is a live, fully wired session.
	StateActive
	// StateReconnecting is recovery after a mid-session transport failure.
	StateReconnecting
	// StateClosed is terminal: explicit shutdown or unrecoverable error.
	StateClosed
)

// String returns a human-readable state name.
func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateActive:
		return "ACTIVE"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// VideoMode selects which image sources the capture pipeline runs.
type VideoMode string

const (
	VideoModeCamera VideoMode = "camera"
	VideoModeScreen VideoMode = "screen"
	VideoModeBoth   VideoMode = "both"
	VideoModeNone   VideoMode = "none"
)

// ParseVideoMode validates a mode string from config or CLI input.
func ParseVideoMode(s string) (VideoMode, error) {
	switch VideoMode(s) {
	case VideoModeCamera, VideoModeScreen, VideoModeBoth, VideoModeNone:
		return VideoMode(s), nil
	default:
		return "", fmt.Errorf("invalid video mode %q (want camera, screen, both or none)", s)
	}
}

// CameraEnabled reports whether the mode includes the camera source.
func (m VideoMode) CameraEnabled() bool {
	return m == VideoModeCamera || m == VideoModeBoth
}

// ScreenEnabled reports whether the mode includes the screen source.
func (m VideoMode) ScreenEnabled() bool {
	return m == VideoModeScreen || m == VideoModeBoth
}

// AudioFormat specifies PCM parameters for one direction of the stream.
type AudioFormat struct {
	// SampleRate in Hz. The Live API sends 16 kHz up and 24 kHz down.
	SampleRate int `json:"sample_rate"`

	// Channels: 1 for mono, 2 for stereo.
	Channels int `json:"channels"`

	// BitsPerSample: typically 16 for PCM.
	BitsPerSample int `json:"bits_per_sample"`
}

// BytesPerSecond returns the audio byte rate.
func (f AudioFormat) BytesPerSecond() int {
	return f.SampleRate * f.Channels * (f.BitsPerSample / 8)
}

// Duration returns the playback duration of the given byte count.
func (f AudioFormat) Duration(bytes int) time.Duration {
	bps := f.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(bytes) * time.Second / time.Duration(bps)
}

// SessionConfig holds all configuration for a live session.
type SessionConfig struct {
	// Model is the primary remote endpoint identifier.
	Model string `json:"model"`

	// FallbackModels are tried in order when the active model is
	// quota-limited or unavailable.
	FallbackModels []string `json:"fallback_models,omitempty"`

	// VideoMode selects the image sources started at connect time.
	VideoMode VideoMode `json:"video_mode"`

	// SendFormat is the microphone capture format.
	SendFormat AudioFormat `json:"send_format"`

	// ReceiveFormat is the playback format.
	ReceiveFormat AudioFormat `json:"receive_format"`

	// CameraInterval paces camera frame capture. A source is never
	// polled faster than its interval.
	CameraInterval time.Duration `json:"camera_interval"`

	// ScreenInterval paces screen frame capture.
	ScreenInterval time.Duration `json:"screen_interval"`

	// MediaQueueSize bounds the outbound media queue.
	MediaQueueSize int `json:"media_queue_size"`

	// TextQueueSize bounds the text-input queue. Text producers block
	// rather than drop: user intent is never discarded.
	TextQueueSize int `json:"text_queue_size"`

	// PlaybackLookahead bounds the playback buffer, in chunks. Once
	// full, sink consumption paces the downlink.
	PlaybackLookahead int `json:"playback_lookahead"`

	// PlaybackEnqueueTimeout is how long the downlink blocks on a full
	// playback buffer before evicting the oldest buffered chunk.
	PlaybackEnqueueTimeout time.Duration `json:"playback_enqueue_timeout"`

	// ConversationMemory caps the rolling window of completed turns.
	ConversationMemory int `json:"conversation_memory"`

	// ReplayTurns is how many recent turns are re-sent as context after
	// a reconnect. Zero disables replay.
	ReplayTurns int `json:"replay_turns"`

	// InitialPrompt, when EnableInitialPrompt is set, is enqueued as the
	// first turn after connecting, before any media.
	InitialPrompt       string `json:"initial_prompt,omitempty"`
	EnableInitialPrompt bool   `json:"enable_initial_prompt"`

	// AutoEndTurn closes each injected text turn immediately.
	AutoEndTurn bool `json:"auto_end_turn"`

	// EnableSearch requests the Google Search tool at (re)connect time.
	EnableSearch bool `json:"enable_search"`

	// ConnectAttempts caps transient retries per model per episode.
	ConnectAttempts int `json:"connect_attempts"`

	// ConnectBackoff is the initial backoff between transient retries;
	// it doubles per attempt.
	ConnectBackoff time.Duration `json:"connect_backoff"`

	// Debug mirrors engine debug lines to stderr.
	Debug bool `json:"debug"`
}

// DefaultSessionConfig returns a SessionConfig with the stock Live API
// audio formats and capture cadence.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Model: "models/gemini-2.5-flash-preview-native-audio-dialog",
		FallbackModels: []string{
			"models/gemini-2.5-flash-exp-native-audio-thinking-dialog",
			"models/gemini-2.0-flash-live-001",
		},
		VideoMode:              VideoModeNone,
		SendFormat:             AudioFormat{SampleRate: 16000, Channels: 1, BitsPerSample: 16},
		ReceiveFormat:          AudioFormat{SampleRate: 24000, Channels: 1, BitsPerSample: 16},
		CameraInterval:         2 * time.Second,
		ScreenInterval:         3 * time.Second,
		MediaQueueSize:         5,
		TextQueueSize:          16,
		PlaybackLookahead:      32,
		PlaybackEnqueueTimeout: 2 * time.Second,
		ConversationMemory:     20,
		ReplayTurns:            4,
		AutoEndTurn:            true,
		ConnectAttempts:        3,
		ConnectBackoff:         500 * time.Millisecond,
	}
}

// withDefaults fills zero values so a partially specified config is usable.
func (c SessionConfig) withDefaults() SessionConfig {
	d := DefaultSessionConfig()
	if c.Model == "" {
		c.Model = d.Model
	}
	if c.VideoMode == "" {
		c.VideoMode = VideoModeNone
	}
	if c.SendFormat.SampleRate == 0 {
		c.SendFormat = d.SendFormat
	}
	if c.ReceiveFormat.SampleRate == 0 {
		c.ReceiveFormat = d.ReceiveFormat
	}
	if c.CameraInterval <= 0 {
		c.CameraInterval = d.CameraInterval
	}
	if c.ScreenInterval <= 0 {
		c.ScreenInterval = d.ScreenInterval
	}
	if c.MediaQueueSize <= 0 {
		c.MediaQueueSize = d.MediaQueueSize
	}
	if c.TextQueueSize <= 0 {
		c.TextQueueSize = d.TextQueueSize
	}
	if c.PlaybackLookahead <= 0 {
		c.PlaybackLookahead = d.PlaybackLookahead
	}
	if c.PlaybackEnqueueTimeout <= 0 {
		c.PlaybackEnqueueTimeout = d.PlaybackEnqueueTimeout
	}
	if c.ConversationMemory <= 0 {
		c.ConversationMemory = d.ConversationMemory
	}
	if c.ConnectAttempts <= 0 {
		c.ConnectAttempts = d.ConnectAttempts
	}
	if c.ConnectBackoff <= 0 {
		c.ConnectBackoff = d.ConnectBackoff
	}
	return c
}
