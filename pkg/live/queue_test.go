package live

import (
	"testing"
)

func audioFrame(tag byte) AudioChunk {
	return AudioChunk{Frame: MediaFrame{Kind: FrameAudio, Payload: []byte{tag}}}
}

func imageFrame(tag byte) ImageChunk {
	return ImageChunk{Frame: MediaFrame{Kind: FrameImage, Payload: []byte{tag}}}
}

func tagOf(t *testing.T, msg OutboundMessage) byte {
	t.Helper()
	switch m := msg.(type) {
	case AudioChunk:
		return m.Frame.Payload[0]
	case ImageChunk:
		return m.Frame.Payload[0]
	default:
		t.Fatalf("unexpected message type %T", msg)
		return 0
	}
}

func TestFrameQueue_AudioDropsOldest(t *testing.T) {
	q := newFrameQueue(3)

	for i := byte(1); i <= 5; i++ {
		q.Push(audioFrame(i))
	}

	// Capacity 3: frames 1 and 2 are evicted, 3..5 survive in order.
	want := []byte{3, 4, 5}
	for i, w := range want {
		msg, ok := q.TryPop()
		if !ok {
			t.Fatalf("pop %d: queue empty", i)
		}
		if got := tagOf(t, msg); got != w {
			t.Errorf("pop %d = %d, want %d", i, got, w)
		}
	}
	if _, ok := q.TryPop(); ok {
		t.Error("queue should be empty")
	}

	audio, _ := q.Dropped()
	if audio != 2 {
		t.Errorf("droppedAudio = %d, want 2", audio)
	}
}

func TestFrameQueue_ImageDropsNewest(t *testing.T) {
	q := newFrameQueue(2)

	q.Push(imageFrame(1))
	q.Push(imageFrame(2))
	q.Push(imageFrame(3)) // full: incoming frame discarded

	want := []byte{1, 2}
	for i, w := range want {
		msg, ok := q.TryPop()
		if !ok {
			t.Fatalf("pop %d: queue empty", i)
		}
		if got := tagOf(t, msg); got != w {
			t.Errorf("pop %d = %d, want %d", i, got, w)
		}
	}

	_, image := q.Dropped()
	if image != 1 {
		t.Errorf("droppedImage = %d, want 1", image)
	}
}

func TestFrameQueue_AudioDisplacesNothingWhenSpace(t *testing.T) {
	q := newFrameQueue(4)
	q.Push(imageFrame(1))
	q.Push(audioFrame(2))

	if q.Len() != 2 {
		t.Fatalf("Len = %d, want 2", q.Len())
	}
	audio, image := q.Dropped()
	if audio != 0 || image != 0 {
		t.Errorf("dropped = (%d, %d), want (0, 0)", audio, image)
	}
}

func TestFrameQueue_ReadySignalsAcrossPops(t *testing.T) {
	q := newFrameQueue(4)
	q.Push(audioFrame(1))
	q.Push(audioFrame(2))

	<-q.Ready()
	if _, ok := q.TryPop(); !ok {
		t.Fatal("first pop: queue empty")
	}
	// A frame remains, so TryPop must have re-armed the signal.
	select {
	case <-q.Ready():
	default:
		t.Fatal("ready not re-armed while frames remain")
	}
	if _, ok := q.TryPop(); !ok {
		t.Fatal("second pop: queue empty")
	}
	select {
	case <-q.Ready():
		t.Fatal("ready signalled on an empty queue")
	default:
	}
}

func TestFrameQueue_Drain(t *testing.T) {
	q := newFrameQueue(4)
	q.Push(audioFrame(1))
	q.Push(imageFrame(2))

	if n := q.Drain(); n != 2 {
		t.Errorf("Drain = %d, want 2", n)
	}
	if q.Len() != 0 {
		t.Errorf("Len after drain = %d, want 0", q.Len())
	}
}
