package config

import (
	"testing"
	"time"

	"github.com/vango-go/vai-live/pkg/live"
)

var liveEnvKeys = []string{
	"GEMINI_API_KEY",
	"VAI_LIVE_MODEL",
	"VAI_LIVE_FALLBACK_MODELS",
	"VAI_LIVE_VIDEO_MODE",
	"VAI_LIVE_SEND_SAMPLE_RATE",
	"VAI_LIVE_RECEIVE_SAMPLE_RATE",
	"VAI_LIVE_CHUNK_BYTES",
	"VAI_LIVE_CAMERA_INTERVAL",
	"VAI_LIVE_SCREEN_INTERVAL",
	"VAI_LIVE_CAMERA_DEVICE",
	"VAI_LIVE_CAMERA_MAX_WIDTH",
	"VAI_LIVE_CAMERA_MAX_HEIGHT",
	"VAI_LIVE_SCREEN_MAX_WIDTH",
	"VAI_LIVE_SCREEN_MAX_HEIGHT",
	"VAI_LIVE_SCREEN_JPEG_QUALITY",
	"VAI_LIVE_MEDIA_QUEUE_SIZE",
	"VAI_LIVE_PLAYBACK_LOOKAHEAD",
	"VAI_LIVE_PLAYBACK_ENQUEUE_TIMEOUT",
	"VAI_LIVE_CONVERSATION_MEMORY",
	"VAI_LIVE_REPLAY_TURNS",
	"VAI_LIVE_CONNECT_ATTEMPTS",
	"VAI_LIVE_CONNECT_BACKOFF",
	"VAI_LIVE_INITIAL_PROMPT",
	"VAI_LIVE_AUTO_END_TURN",
	"VAI_LIVE_ENABLE_SEARCH",
	"VAI_LIVE_VOICE",
	"VAI_LIVE_SYSTEM_INSTRUCTION",
	"VAI_LIVE_MEDIA_RESOLUTION",
	"VAI_LIVE_TURN_COVERAGE",
	"VAI_LIVE_COMPRESSION_TRIGGER",
	"VAI_LIVE_DEBUG",
}

func clearLiveEnv(t *testing.T) {
	t.Helper()
	for _, key := range liveEnvKeys {
		t.Setenv(key, "")
	}
}

func TestLoadFromEnvDefaults(t *testing.T) {
	clearLiveEnv(t)
	t.Setenv("GEMINI_API_KEY", "test-key")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Model != "models/gemini-2.5-flash-preview-native-audio-dialog" {
		t.Fatalf("Model = %q", cfg.Model)
	}
	if len(cfg.FallbackModels) != 2 {
		t.Fatalf("FallbackModels = %v, want 2 entries", cfg.FallbackModels)
	}
	if cfg.VideoMode != live.VideoModeNone {
		t.Fatalf("VideoMode = %q, want none", cfg.VideoMode)
	}
	if cfg.SendSampleRate != 16000 || cfg.ReceiveSampleRate != 24000 {
		t.Fatalf("sample rates = %d/%d, want 16000/24000", cfg.SendSampleRate, cfg.ReceiveSampleRate)
	}
	if cfg.ChunkBytes != 2048 {
		t.Fatalf("ChunkBytes = %d, want 2048", cfg.ChunkBytes)
	}
	if cfg.CameraInterval != 2*time.Second || cfg.ScreenInterval != 3*time.Second {
		t.Fatalf("intervals = %v/%v", cfg.CameraInterval, cfg.ScreenInterval)
	}
	if cfg.MediaQueueSize != 5 {
		t.Fatalf("MediaQueueSize = %d, want 5", cfg.MediaQueueSize)
	}
	if cfg.CameraMaxWidth != 1024 || cfg.CameraMaxHeight != 1024 {
		t.Fatalf("camera cap = %dx%d, want 1024x1024", cfg.CameraMaxWidth, cfg.CameraMaxHeight)
	}
	if cfg.ScreenMaxWidth != 1920 || cfg.ScreenMaxHeight != 1080 {
		t.Fatalf("screen cap = %dx%d, want 1920x1080", cfg.ScreenMaxWidth, cfg.ScreenMaxHeight)
	}
	if cfg.ScreenJPEGQuality != 75 {
		t.Fatalf("ScreenJPEGQuality = %d, want 75", cfg.ScreenJPEGQuality)
	}
	if cfg.CompressionTrigger != 25600 {
		t.Fatalf("CompressionTrigger = %d, want 25600", cfg.CompressionTrigger)
	}
	if !cfg.AutoEndTurn {
		t.Fatal("AutoEndTurn should default on")
	}
	if cfg.EnableSearch {
		t.Fatal("EnableSearch should default off")
	}
}

func TestLoadFromEnvRequiresAPIKey(t *testing.T) {
	clearLiveEnv(t)

	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("expected an error without GEMINI_API_KEY")
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	clearLiveEnv(t)
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("VAI_LIVE_MODEL", "models/custom")
	t.Setenv("VAI_LIVE_FALLBACK_MODELS", "models/a, models/b ,")
	t.Setenv("VAI_LIVE_VIDEO_MODE", "both")
	t.Setenv("VAI_LIVE_CAMERA_INTERVAL", "750ms")
	t.Setenv("VAI_LIVE_ENABLE_SEARCH", "yes")
	t.Setenv("VAI_LIVE_INITIAL_PROMPT", "hello")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.Model != "models/custom" {
		t.Fatalf("Model = %q", cfg.Model)
	}
	if len(cfg.FallbackModels) != 2 || cfg.FallbackModels[1] != "models/b" {
		t.Fatalf("FallbackModels = %v", cfg.FallbackModels)
	}
	if cfg.VideoMode != live.VideoModeBoth {
		t.Fatalf("VideoMode = %q", cfg.VideoMode)
	}
	if cfg.CameraInterval != 750*time.Millisecond {
		t.Fatalf("CameraInterval = %v", cfg.CameraInterval)
	}
	if !cfg.EnableSearch {
		t.Fatal("EnableSearch override ignored")
	}

	sess := cfg.SessionConfig()
	if sess.Model != "models/custom" || !sess.EnableInitialPrompt || sess.InitialPrompt != "hello" {
		t.Fatalf("SessionConfig mapping = %+v", sess)
	}
	if !sess.VideoMode.CameraEnabled() || !sess.VideoMode.ScreenEnabled() {
		t.Fatalf("VideoMode mapping = %q", sess.VideoMode)
	}
}

func TestLoadFromEnvRejectsBadValues(t *testing.T) {
	clearLiveEnv(t)
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("VAI_LIVE_VIDEO_MODE", "hologram")

	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("expected an error for an invalid video mode")
	}

	t.Setenv("VAI_LIVE_VIDEO_MODE", "none")
	t.Setenv("VAI_LIVE_SCREEN_JPEG_QUALITY", "250")
	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("expected an error for an out-of-range jpeg quality")
	}
}
