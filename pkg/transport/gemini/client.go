package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/vango-go/vai-live/pkg/core"
	"github.com/vango-go/vai-live/pkg/live"
)

const (
	defaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	defaultConnectTimeout = 15 * time.Second

	// defaultReceiveRate is assumed when an audio part carries no rate
	// parameter. The Live API synthesizes 24 kHz PCM.
	defaultReceiveRate = 24000
)

// Dialer connects to the Gemini Live API over WebSocket. It implements
// live.TransportDialer.
type Dialer struct {
	apiKey   string
	endpoint string
	timeout  time.Duration
	logger   *slog.Logger

	voice             string
	mediaResolution   genai.MediaResolution
	turnCoverage      genai.TurnCoverage
	systemInstruction string
	compression       *genai.ContextWindowCompressionConfig
}

// DialerOption customizes a Dialer.
type DialerOption func(*Dialer)

// WithEndpoint overrides the Live API endpoint URL. Used by tests and
// regional deployments.
func WithEndpoint(endpoint string) DialerOption {
	return func(d *Dialer) { d.endpoint = endpoint }
}

// WithConnectTimeout bounds the dial plus setup handshake.
func WithConnectTimeout(timeout time.Duration) DialerOption {
	return func(d *Dialer) { d.timeout = timeout }
}

// WithVoice selects a prebuilt synthesis voice (for example "Puck").
func WithVoice(name string) DialerOption {
	return func(d *Dialer) { d.voice = name }
}

// WithMediaResolution sets the vision token budget per image.
func WithMediaResolution(res genai.MediaResolution) DialerOption {
	return func(d *Dialer) { d.mediaResolution = res }
}

// WithTurnCoverage controls whether continuous media outside detected
// activity still counts toward the user turn.
func WithTurnCoverage(coverage genai.TurnCoverage) DialerOption {
	return func(d *Dialer) { d.turnCoverage = coverage }
}

// WithSystemInstruction sets a system prompt applied at setup time.
func WithSystemInstruction(text string) DialerOption {
	return func(d *Dialer) { d.systemInstruction = text }
}

// WithContextWindowCompression enables server-side sliding-window
// compression, which extends session length on long conversations.
func WithContextWindowCompression(trigger int64) DialerOption {
	return func(d *Dialer) {
		d.compression = &genai.ContextWindowCompressionConfig{
			SlidingWindow: &genai.SlidingWindow{},
			TriggerTokens: genai.Ptr(trigger),
		}
	}
}

// WithLogger sets the transport logger.
func WithLogger(logger *slog.Logger) DialerOption {
	return func(d *Dialer) { d.logger = logger }
}

// NewDialer creates a Live API dialer. The API key is passed as a URL
// query parameter, matching the BidiGenerateContent endpoint contract.
func NewDialer(apiKey string, opts ...DialerOption) *Dialer {
	d := &Dialer{
		apiKey:   apiKey,
		endpoint: defaultEndpoint,
		timeout:  defaultConnectTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dial opens a WebSocket, performs the setup handshake and returns a
// live connection. Errors are classified for fallback policy: HTTP 429
// and quota-flavored refusals are quota errors, auth failures are
// fatal, everything else is transient.
func (d *Dialer) Dial(ctx context.Context, opts live.DialOptions) (live.TransportConn, error) {
	wsURL, err := d.connectURL()
	if err != nil {
		return nil, core.NewFatalError("invalid endpoint", err)
	}

	dialCtx := ctx
	var cancel context.CancelFunc
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		dialCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	dialer := websocket.DefaultDialer
	if dialer == nil {
		dialer = &websocket.Dialer{}
	}
	conn, resp, err := dialer.DialContext(dialCtx, wsURL, nil)
	if err != nil {
		return nil, classifyDialError(opts.Model, resp, err)
	}

	setup := clientMessage{Setup: d.setupFor(opts)}
	if err := conn.WriteJSON(setup); err != nil {
		_ = conn.Close()
		return nil, core.NewTransientError("send setup", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(d.timeout))
	var first serverMessage
	if err := conn.ReadJSON(&first); err != nil {
		_ = conn.Close()
		return nil, classifyReadError(opts.Model, fmt.Errorf("read setup ack: %w", err))
	}
	_ = conn.SetReadDeadline(time.Time{})
	if first.SetupComplete == nil {
		_ = conn.Close()
		return nil, core.NewFatalError("setup rejected by server", nil)
	}

	d.logger.Debug("live connection established", "model", opts.Model, "search", opts.EnableSearch)
	return newConn(conn, opts.Model, d.logger), nil
}

func (d *Dialer) connectURL() (string, error) {
	u, err := url.Parse(d.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("key", d.apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// setupFor builds the session setup message for one connection.
func (d *Dialer) setupFor(opts live.DialOptions) *setupPayload {
	gen := &generationConfig{
		ResponseModalities: []string{"AUDIO"},
		MediaResolution:    d.mediaResolution,
	}
	if d.voice != "" {
		gen.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: d.voice},
			},
		}
	}

	setup := &setupPayload{
		Model:                    opts.Model,
		GenerationConfig:         gen,
		ContextWindowCompression: d.compression,
	}
	if d.systemInstruction != "" {
		setup.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: d.systemInstruction}},
		}
	}
	if d.turnCoverage != "" {
		setup.RealtimeInputConfig = &realtimeInputConfig{TurnCoverage: d.turnCoverage}
	}
	if opts.EnableSearch {
		setup.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}
	return setup
}

func classifyDialError(model string, resp *http.Response, err error) error {
	if resp != nil {
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return core.NewFatalError(fmt.Sprintf("authentication rejected (status %d)", resp.StatusCode), err)
		case resp.StatusCode == http.StatusTooManyRequests:
			return core.NewQuotaError(model, err)
		}
	}
	return core.NewTransientError("websocket dial failed", err)
}
