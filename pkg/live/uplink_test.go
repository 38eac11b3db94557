package live

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordConn struct {
	mu      sync.Mutex
	sent    []OutboundMessage
	sendErr error
	sentCh  chan OutboundMessage
}

func newRecordConn() *recordConn {
	return &recordConn{sentCh: make(chan OutboundMessage, 64)}
}

func (c *recordConn) Send(msg OutboundMessage) error {
	c.mu.Lock()
	err := c.sendErr
	if err == nil {
		c.sent = append(c.sent, msg)
	}
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.sentCh <- msg
	return nil
}

func (c *recordConn) Receive() (InboundEvent, error) {
	select {} // uplink tests never read
}

func (c *recordConn) Close() error { return nil }

func (c *recordConn) messages() []OutboundMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]OutboundMessage, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *recordConn) waitFor(t *testing.T, n int) []OutboundMessage {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-c.sentCh:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %d sends, got %d", n, i)
		}
	}
	return c.messages()
}

func TestUplinkTextBeforeQueuedMedia(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn := newRecordConn()
	textIn := make(chan OutboundMessage, 4)
	media := newFrameQueue(8)
	notices := make(chan notice, 1)

	// Media queued and text pending before the worker starts: the text
	// must reach the wire first.
	media.Push(AudioChunk{Frame: MediaFrame{Kind: FrameAudio, Payload: []byte{1}}})
	media.Push(AudioChunk{Frame: MediaFrame{Kind: FrameAudio, Payload: []byte{2}}})
	textIn <- TextTurn{Role: "user", Text: "hello"}

	go uplinkLoop(ctx, conn, textIn, media, notices, testLogger())

	sent := conn.waitFor(t, 3)
	if _, ok := sent[0].(TextTurn); !ok {
		t.Fatalf("first send = %T, want TextTurn", sent[0])
	}
	a1, ok1 := sent[1].(AudioChunk)
	a2, ok2 := sent[2].(AudioChunk)
	if !ok1 || !ok2 {
		t.Fatalf("media sends = %T, %T, want AudioChunk", sent[1], sent[2])
	}
	if a1.Frame.Payload[0] != 1 || a2.Frame.Payload[0] != 2 {
		t.Fatal("media frames sent out of capture order")
	}
}

func TestUplinkPreservesMediaOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn := newRecordConn()
	textIn := make(chan OutboundMessage)
	media := newFrameQueue(16)
	notices := make(chan notice, 1)

	go uplinkLoop(ctx, conn, textIn, media, notices, testLogger())

	for i := byte(0); i < 10; i++ {
		media.Push(AudioChunk{Frame: MediaFrame{Kind: FrameAudio, Payload: []byte{i}}})
	}

	sent := conn.waitFor(t, 10)
	for i, msg := range sent {
		chunk, ok := msg.(AudioChunk)
		if !ok {
			t.Fatalf("send %d = %T, want AudioChunk", i, msg)
		}
		if int(chunk.Frame.Payload[0]) != i {
			t.Fatalf("send %d carries frame %d", i, chunk.Frame.Payload[0])
		}
	}
}

func TestUplinkEscalatesSendFailureWithUnsentText(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn := newRecordConn()
	conn.sendErr = errors.New("broken pipe")
	textIn := make(chan OutboundMessage, 1)
	media := newFrameQueue(4)
	notices := make(chan notice, 1)

	textIn <- TextTurn{Role: "user", Text: "keep me"}

	done := make(chan struct{})
	go func() {
		uplinkLoop(ctx, conn, textIn, media, notices, testLogger())
		close(done)
	}()

	select {
	case n := <-notices:
		if n.kind != noticeSendFailed {
			t.Fatalf("notice kind = %v, want noticeSendFailed", n.kind)
		}
		turn, ok := n.unsent.(TextTurn)
		if !ok {
			t.Fatalf("unsent = %T, want TextTurn", n.unsent)
		}
		if turn.Text != "keep me" {
			t.Fatalf("unsent text = %q", turn.Text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no failure notice")
	}
	<-done
}

func TestUplinkMediaFailureHasNoUnsentText(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn := newRecordConn()
	conn.sendErr = errors.New("broken pipe")
	textIn := make(chan OutboundMessage)
	media := newFrameQueue(4)
	notices := make(chan notice, 1)

	media.Push(AudioChunk{Frame: MediaFrame{Kind: FrameAudio, Payload: []byte{9}}})

	go uplinkLoop(ctx, conn, textIn, media, notices, testLogger())

	select {
	case n := <-notices:
		if n.kind != noticeSendFailed {
			t.Fatalf("notice kind = %v, want noticeSendFailed", n.kind)
		}
		if n.unsent != nil {
			t.Fatalf("unsent = %v, want nil for media failure", n.unsent)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no failure notice")
	}
}
