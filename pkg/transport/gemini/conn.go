package gemini

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/vango-go/vai-live/pkg/core"
	"github.com/vango-go/vai-live/pkg/live"
)

// Conn is one established Live API connection. Send may be called from
// one goroutine and Receive from another; the write mutex serializes
// outbound frames.
type Conn struct {
	ws     *websocket.Conn
	model  string
	logger *slog.Logger

	writeMu sync.Mutex

	// pending holds decoded events not yet returned: one server message
	// can carry several parts.
	pending []live.InboundEvent

	closeOnce sync.Once
}

func newConn(ws *websocket.Conn, model string, logger *slog.Logger) *Conn {
	return &Conn{ws: ws, model: model, logger: logger}
}

// Send serializes one outbound message onto the wire.
func (c *Conn) Send(msg live.OutboundMessage) error {
	env, err := encode(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteJSON(env); err != nil {
		return classifyReadError(c.model, err)
	}
	return nil
}

func encode(msg live.OutboundMessage) (clientMessage, error) {
	switch m := msg.(type) {
	case live.AudioChunk:
		return clientMessage{RealtimeInput: &realtimeInput{
			MediaChunks: []*genai.Blob{{MIMEType: m.Frame.MIMEType, Data: m.Frame.Payload}},
		}}, nil

	case live.ImageChunk:
		return clientMessage{RealtimeInput: &realtimeInput{
			MediaChunks: []*genai.Blob{{MIMEType: m.Frame.MIMEType, Data: m.Frame.Payload}},
		}}, nil

	case live.TextTurn:
		role := m.Role
		if role == "" {
			role = "user"
		}
		return clientMessage{ClientContent: &clientContent{
			Turns:        []*genai.Content{{Role: role, Parts: []*genai.Part{{Text: m.Text}}}},
			TurnComplete: false,
		}}, nil

	case live.TurnComplete:
		return clientMessage{ClientContent: &clientContent{TurnComplete: true}}, nil

	case live.ControlSignal:
		if m.Op == live.ControlAudioStreamEnd {
			return clientMessage{RealtimeInput: &realtimeInput{AudioStreamEnd: true}}, nil
		}
		return clientMessage{}, fmt.Errorf("unknown control op %q", m.Op)

	default:
		return clientMessage{}, fmt.Errorf("unsupported outbound message %T", msg)
	}
}

// Receive blocks for the next inbound event, reading further wire
// messages as needed. Messages that decode to nothing (usage metadata
// and the like) are skipped.
func (c *Conn) Receive() (live.InboundEvent, error) {
	for len(c.pending) == 0 {
		var msg serverMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			return nil, classifyReadError(c.model, err)
		}
		c.pending = decode(&msg)
	}
	ev := c.pending[0]
	c.pending = c.pending[1:]
	return ev, nil
}

// decode flattens one server message into ordered inbound events.
func decode(msg *serverMessage) []live.InboundEvent {
	var events []live.InboundEvent

	if sc := msg.ServerContent; sc != nil {
		// Interruption first: the consumer must flush before any new
		// content lands.
		if sc.Interrupted {
			events = append(events, live.InboundInterrupted{})
		}
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part == nil {
					continue
				}
				if part.InlineData != nil && strings.HasPrefix(part.InlineData.MIMEType, "audio/") {
					events = append(events, live.InboundAudio{
						Data:       part.InlineData.Data,
						SampleRate: sampleRateOf(part.InlineData.MIMEType, defaultReceiveRate),
					})
					continue
				}
				if part.Text != "" {
					events = append(events, live.InboundText{Text: part.Text})
				}
			}
		}
		if sc.TurnComplete {
			events = append(events, live.InboundTurnComplete{})
		}
	}

	if tc := msg.ToolCall; tc != nil {
		for _, call := range tc.FunctionCalls {
			if call == nil {
				continue
			}
			events = append(events, live.InboundToolCall{
				ID:   call.ID,
				Name: call.Name,
				Args: call.Args,
			})
		}
	}

	if msg.GoAway != nil {
		message := "server going away"
		if msg.GoAway.TimeLeft != "" {
			message += " in " + msg.GoAway.TimeLeft
		}
		events = append(events, live.InboundErrorNotice{
			Kind:    string(core.KindDisconnected),
			Message: message,
		})
	}

	return events
}

// Close shuts the connection down. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		goodbye := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, goodbye, time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	return err
}

// classifyReadError maps transport failures to recovery policy. The
// Live API signals quota exhaustion by closing with status 1011 or an
// explicit RESOURCE_EXHAUSTED refusal; everything else on an
// established connection is a disconnect.
func classifyReadError(model string, err error) error {
	if err == nil {
		return nil
	}
	if isQuotaText(err.Error()) || websocket.IsCloseError(err, websocket.CloseInternalServerErr) {
		return core.NewQuotaError(model, err)
	}
	return core.NewDisconnectedError("connection lost", err)
}

func isQuotaText(s string) bool {
	s = strings.ToLower(s)
	return strings.Contains(s, "quota") || strings.Contains(s, "resource_exhausted") || strings.Contains(s, "resource exhausted")
}
