// Package config loads the vai-live environment configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vango-go/vai-live/pkg/live"
)

// Config is the full engine and device configuration, sourced from the
// environment with sensible defaults for everything but the API key.
type Config struct {
	// APIKey authenticates against the Live API. Required.
	APIKey string

	Model          string
	FallbackModels []string

	VideoMode live.VideoMode

	// Audio capture/playback.
	SendSampleRate    int
	ReceiveSampleRate int
	ChunkBytes        int

	// Image capture. The camera streams MJPEG at the device's own
	// encoding, so only its frame size is bounded; screen frames are
	// re-encoded and take a quality setting too.
	CameraInterval    time.Duration
	ScreenInterval    time.Duration
	CameraDevice      string
	CameraMaxWidth    int
	CameraMaxHeight   int
	ScreenMaxWidth    int
	ScreenMaxHeight   int
	ScreenJPEGQuality int

	// Engine behavior.
	MediaQueueSize         int
	PlaybackLookahead      int
	PlaybackEnqueueTimeout time.Duration
	ConversationMemory     int
	ReplayTurns            int
	ConnectAttempts        int
	ConnectBackoff         time.Duration

	InitialPrompt string
	AutoEndTurn   bool
	EnableSearch  bool

	Voice             string
	SystemInstruction string
	MediaResolution   string
	TurnCoverage      string

	// CompressionTrigger is the token count at which the server starts
	// sliding-window context compression. Zero disables it.
	CompressionTrigger int

	Debug bool
}

// LoadFromEnv builds a Config from the process environment.
func LoadFromEnv() (Config, error) {
	mode, err := live.ParseVideoMode(envOr("VAI_LIVE_VIDEO_MODE", string(live.VideoModeNone)))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		APIKey:                 strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		Model:                  envOr("VAI_LIVE_MODEL", "models/gemini-2.5-flash-preview-native-audio-dialog"),
		FallbackModels:         splitCSV(envOr("VAI_LIVE_FALLBACK_MODELS", "models/gemini-2.5-flash-exp-native-audio-thinking-dialog,models/gemini-2.0-flash-live-001")),
		VideoMode:              mode,
		SendSampleRate:         envIntOr("VAI_LIVE_SEND_SAMPLE_RATE", 16000),
		ReceiveSampleRate:      envIntOr("VAI_LIVE_RECEIVE_SAMPLE_RATE", 24000),
		ChunkBytes:             envIntOr("VAI_LIVE_CHUNK_BYTES", 2048),
		CameraInterval:         envDurationOr("VAI_LIVE_CAMERA_INTERVAL", 2*time.Second),
		ScreenInterval:         envDurationOr("VAI_LIVE_SCREEN_INTERVAL", 3*time.Second),
		CameraDevice:           envOr("VAI_LIVE_CAMERA_DEVICE", "/dev/video0"),
		CameraMaxWidth:         envIntOr("VAI_LIVE_CAMERA_MAX_WIDTH", 1024),
		CameraMaxHeight:        envIntOr("VAI_LIVE_CAMERA_MAX_HEIGHT", 1024),
		ScreenMaxWidth:         envIntOr("VAI_LIVE_SCREEN_MAX_WIDTH", 1920),
		ScreenMaxHeight:        envIntOr("VAI_LIVE_SCREEN_MAX_HEIGHT", 1080),
		ScreenJPEGQuality:      envIntOr("VAI_LIVE_SCREEN_JPEG_QUALITY", 75),
		MediaQueueSize:         envIntOr("VAI_LIVE_MEDIA_QUEUE_SIZE", 5),
		PlaybackLookahead:      envIntOr("VAI_LIVE_PLAYBACK_LOOKAHEAD", 32),
		PlaybackEnqueueTimeout: envDurationOr("VAI_LIVE_PLAYBACK_ENQUEUE_TIMEOUT", 2*time.Second),
		ConversationMemory:     envIntOr("VAI_LIVE_CONVERSATION_MEMORY", 20),
		ReplayTurns:            envIntOr("VAI_LIVE_REPLAY_TURNS", 4),
		ConnectAttempts:        envIntOr("VAI_LIVE_CONNECT_ATTEMPTS", 3),
		ConnectBackoff:         envDurationOr("VAI_LIVE_CONNECT_BACKOFF", 500*time.Millisecond),
		InitialPrompt:          envOr("VAI_LIVE_INITIAL_PROMPT", ""),
		AutoEndTurn:            envBoolOr("VAI_LIVE_AUTO_END_TURN", true),
		EnableSearch:           envBoolOr("VAI_LIVE_ENABLE_SEARCH", false),
		Voice:                  envOr("VAI_LIVE_VOICE", ""),
		SystemInstruction:      envOr("VAI_LIVE_SYSTEM_INSTRUCTION", ""),
		MediaResolution:        envOr("VAI_LIVE_MEDIA_RESOLUTION", ""),
		TurnCoverage:           envOr("VAI_LIVE_TURN_COVERAGE", ""),
		CompressionTrigger:     envIntOr("VAI_LIVE_COMPRESSION_TRIGGER", 25600),
		Debug:                  envBoolOr("VAI_LIVE_DEBUG", false),
	}

	if cfg.APIKey == "" {
		return Config{}, fmt.Errorf("GEMINI_API_KEY is not set")
	}
	if cfg.ChunkBytes <= 0 {
		return Config{}, fmt.Errorf("VAI_LIVE_CHUNK_BYTES must be positive")
	}
	if cfg.ScreenJPEGQuality < 1 || cfg.ScreenJPEGQuality > 100 {
		return Config{}, fmt.Errorf("VAI_LIVE_SCREEN_JPEG_QUALITY must be in 1..100")
	}
	return cfg, nil
}

// SessionConfig maps the environment configuration onto the engine's
// session settings.
func (c Config) SessionConfig() live.SessionConfig {
	cfg := live.DefaultSessionConfig()
	cfg.Model = c.Model
	cfg.FallbackModels = c.FallbackModels
	cfg.VideoMode = c.VideoMode
	cfg.SendFormat.SampleRate = c.SendSampleRate
	cfg.ReceiveFormat.SampleRate = c.ReceiveSampleRate
	cfg.CameraInterval = c.CameraInterval
	cfg.ScreenInterval = c.ScreenInterval
	cfg.MediaQueueSize = c.MediaQueueSize
	cfg.PlaybackLookahead = c.PlaybackLookahead
	cfg.PlaybackEnqueueTimeout = c.PlaybackEnqueueTimeout
	cfg.ConversationMemory = c.ConversationMemory
	cfg.ReplayTurns = c.ReplayTurns
	cfg.ConnectAttempts = c.ConnectAttempts
	cfg.ConnectBackoff = c.ConnectBackoff
	cfg.InitialPrompt = c.InitialPrompt
	cfg.EnableInitialPrompt = strings.TrimSpace(c.InitialPrompt) != ""
	cfg.AutoEndTurn = c.AutoEndTurn
	cfg.EnableSearch = c.EnableSearch
	cfg.Debug = c.Debug
	return cfg
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
