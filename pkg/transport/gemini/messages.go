package gemini

import (
	"strconv"
	"strings"

	"google.golang.org/genai"
)

// clientMessage is the envelope for everything sent to the Live API.
// Exactly one field is set per message.
type clientMessage struct {
	Setup         *setupPayload  `json:"setup,omitempty"`
	ClientContent *clientContent `json:"clientContent,omitempty"`
	RealtimeInput *realtimeInput `json:"realtimeInput,omitempty"`
}

// setupPayload is the first message on every connection. The server
// answers with setupComplete before any other traffic.
type setupPayload struct {
	Model                    string                                `json:"model"`
	GenerationConfig         *generationConfig                     `json:"generationConfig,omitempty"`
	SystemInstruction        *genai.Content                        `json:"systemInstruction,omitempty"`
	Tools                    []*genai.Tool                         `json:"tools,omitempty"`
	ContextWindowCompression *genai.ContextWindowCompressionConfig `json:"contextWindowCompression,omitempty"`
	RealtimeInputConfig      *realtimeInputConfig                  `json:"realtimeInputConfig,omitempty"`
}

// realtimeInputConfig tunes how continuous media contributes to turns.
type realtimeInputConfig struct {
	TurnCoverage genai.TurnCoverage `json:"turnCoverage,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string              `json:"responseModalities,omitempty"`
	SpeechConfig       *genai.SpeechConfig   `json:"speechConfig,omitempty"`
	MediaResolution    genai.MediaResolution `json:"mediaResolution,omitempty"`
}

// clientContent carries ordinary conversation turns. TurnComplete false
// keeps the turn open for further content.
type clientContent struct {
	Turns        []*genai.Content `json:"turns,omitempty"`
	TurnComplete bool             `json:"turnComplete"`
}

// realtimeInput carries continuous media. Unlike clientContent it has
// no turn semantics; the server's VAD segments it.
type realtimeInput struct {
	MediaChunks    []*genai.Blob `json:"mediaChunks,omitempty"`
	AudioStreamEnd bool          `json:"audioStreamEnd,omitempty"`
}

// serverMessage is the envelope for everything the Live API sends.
type serverMessage struct {
	SetupComplete *setupComplete `json:"setupComplete,omitempty"`
	ServerContent *serverContent `json:"serverContent,omitempty"`
	ToolCall      *toolCall      `json:"toolCall,omitempty"`
	GoAway        *goAway        `json:"goAway,omitempty"`
}

type setupComplete struct{}

type serverContent struct {
	ModelTurn          *genai.Content `json:"modelTurn,omitempty"`
	TurnComplete       bool           `json:"turnComplete,omitempty"`
	Interrupted        bool           `json:"interrupted,omitempty"`
	GenerationComplete bool           `json:"generationComplete,omitempty"`
}

type toolCall struct {
	FunctionCalls []*genai.FunctionCall `json:"functionCalls,omitempty"`
}

type goAway struct {
	TimeLeft string `json:"timeLeft,omitempty"`
}

// sampleRateOf extracts the rate from a PCM MIME type such as
// "audio/pcm;rate=24000". Returns fallback when absent or malformed.
func sampleRateOf(mime string, fallback int) int {
	for _, param := range strings.Split(mime, ";") {
		param = strings.TrimSpace(param)
		if v, ok := strings.CutPrefix(param, "rate="); ok {
			if rate, err := strconv.Atoi(v); err == nil && rate > 0 {
				return rate
			}
		}
	}
	return fallback
}
