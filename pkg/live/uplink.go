package live

import (
	"context"
	"log/slog"
)

// uplinkLoop multiplexes queued text and captured media onto a single
// transport connection. Text always wins: before every media send the
// text channel is drained, so a user message never waits behind frames.
//
// The text channel outlives the connection (the session owns it); media
// frames are connection-scoped and discarded on reconnect. On a write
// failure the loop escalates and exits, carrying any undelivered text
// message back to the orchestrator.
func uplinkLoop(ctx context.Context, conn TransportConn, textIn <-chan OutboundMessage, media *frameQueue, notices chan<- notice, logger *slog.Logger) {
	send := func(msg OutboundMessage, isText bool) bool {
		if err := conn.Send(msg); err != nil {
			n := notice{kind: noticeSendFailed, err: err}
			if isText {
				n.unsent = msg
			}
			select {
			case notices <- n:
			case <-ctx.Done():
			}
			return false
		}
		return true
	}

	for {
		// Drain pending text before touching media.
		drained := false
		for !drained {
			select {
			case msg := <-textIn:
				if !send(msg, true) {
					return
				}
			default:
				drained = true
			}
		}

		select {
		case <-ctx.Done():
			return
		case msg := <-textIn:
			if !send(msg, true) {
				return
			}
		case <-media.Ready():
			// Re-check text first: a message may have arrived while we
			// were parked on the media queue.
			select {
			case msg := <-textIn:
				if !send(msg, true) {
					return
				}
				continue
			default:
			}
			// One frame per iteration; TryPop re-arms Ready when more
			// remain, so text gets another look between frames.
			if msg, ok := media.TryPop(); ok {
				if !send(msg, false) {
					return
				}
			}
		}
	}
}
