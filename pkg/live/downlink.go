package live

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/vango-go/vai-live/pkg/core"
)

// downlinkLoop reads server events from the transport and routes them:
// audio to the playback stage, text deltas to the event stream, turn
// boundaries and tool calls to the orchestrator. An interruption
// flushes buffered playback immediately, on this goroutine, so stale
// audio stops within one chunk.
func downlinkLoop(ctx context.Context, conn TransportConn, pb *playback, notices chan<- notice, emit func(Event), logger *slog.Logger) {
	var turnText strings.Builder

	escalate := func(n notice) {
		select {
		case notices <- n:
		case <-ctx.Done():
		}
	}

	for {
		ev, err := conn.Receive()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			escalate(notice{kind: noticeReceiveFailed, err: err})
			return
		}

		switch e := ev.(type) {
		case InboundAudio:
			frame := MediaFrame{
				Kind:       FrameAudio,
				Payload:    e.Data,
				MIMEType:   "audio/pcm",
				SampleRate: e.SampleRate,
				CapturedAt: time.Now(),
			}
			if err := pb.Enqueue(ctx, frame); err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Warn("playback enqueue failed", "error", err)
			}

		case InboundText:
			turnText.WriteString(e.Text)
			emit(&TextDeltaEvent{Text: e.Text})

		case InboundTurnComplete:
			escalate(notice{kind: noticeTurnComplete, text: turnText.String()})
			turnText.Reset()

		case InboundInterrupted:
			pb.Flush()
			emit(&InterruptedEvent{})

		case InboundToolCall:
			call := e
			escalate(notice{kind: noticeToolCall, call: &call})

		case InboundErrorNotice:
			if e.Kind == string(core.KindDisconnected) {
				escalate(notice{kind: noticeGoAway, err: core.NewDisconnectedError(e.Message, nil)})
				return
			}
			escalate(notice{kind: noticeErrorNotice, source: e.Kind, text: e.Message})

		default:
			logger.Debug("unhandled server event", "type", ev)
		}
	}
}
