package live

import (
	"sync"
)

// frameQueue is the bounded outbound media queue. Capacity is never
// exceeded; overflow policy depends on the frame kind:
//
//   - audio: the oldest queued frame is evicted and the new one is
//     appended, favoring recency (stale audio is useless),
//   - image: the incoming frame is discarded, since image cadence is
//     already low and audio must not be displaced.
//
// Dequeue order of surviving frames is capture order.
type frameQueue struct {
	mu    sync.Mutex
	items []OutboundMessage
	cap   int

	droppedAudio uint64
	droppedImage uint64

	// ready carries a wake-up signal for blocked consumers.
	ready chan struct{}
}

func newFrameQueue(capacity int) *frameQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &frameQueue{
		cap:   capacity,
		ready: make(chan struct{}, 1),
	}
}

// Push enqueues a media message, applying the overflow policy.
// It never blocks.
func (q *frameQueue) Push(msg OutboundMessage) {
	q.mu.Lock()
	if len(q.items) >= q.cap {
		switch msg.(type) {
		case AudioChunk:
			q.evictOldestLocked()
			q.droppedAudio++
			q.items = append(q.items, msg)
		default:
			q.droppedImage++
		}
	} else {
		q.items = append(q.items, msg)
	}
	q.mu.Unlock()
	q.signal()
}

// evictOldestLocked removes the frame at the head of the queue.
func (q *frameQueue) evictOldestLocked() {
	copy(q.items, q.items[1:])
	q.items = q.items[:len(q.items)-1]
}

// TryPop removes and returns the head without blocking. If frames
// remain the ready signal is re-armed so a selecting consumer wakes
// again without another Push.
func (q *frameQueue) TryPop() (OutboundMessage, bool) {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return nil, false
	}
	msg := q.items[0]
	q.evictOldestLocked()
	rearm := len(q.items) > 0
	q.mu.Unlock()
	if rearm {
		q.signal()
	}
	return msg, true
}

// Ready exposes the wake-up channel so callers can select over the
// queue together with other inputs.
func (q *frameQueue) Ready() <-chan struct{} {
	return q.ready
}

// Drain discards all queued frames. Used on reconnect: in-flight media
// has no replay value.
func (q *frameQueue) Drain() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = q.items[:0]
	return n
}

// Len returns the current queue depth.
func (q *frameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns the cumulative per-policy drop counts.
func (q *frameQueue) Dropped() (audio, image uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.droppedAudio, q.droppedImage
}

func (q *frameQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
