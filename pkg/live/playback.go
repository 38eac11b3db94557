package live

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// playbackItem pairs a frame with the flush generation it belongs to.
// Frames from a superseded generation are discarded instead of played.
type playbackItem struct {
	frame MediaFrame
	gen   uint64
}

// playback buffers inbound audio and feeds the MediaSink. The buffer is
// a small bounded look-ahead that smooths network jitter; once it is
// full the sink's real-time consumption rate paces the producer.
type playback struct {
	sink    MediaSink
	logger  *slog.Logger
	timeout time.Duration

	chunks chan playbackItem

	mu  sync.Mutex
	gen uint64
}

func newPlayback(sink MediaSink, lookahead int, timeout time.Duration, logger *slog.Logger) *playback {
	if lookahead <= 0 {
		lookahead = 1
	}
	return &playback{
		sink:    sink,
		logger:  logger,
		timeout: timeout,
		chunks:  make(chan playbackItem, lookahead),
	}
}

// Enqueue hands one audio chunk to the pipeline. It blocks briefly when
// the look-ahead buffer is full; past the hard timeout it evicts the
// oldest buffered chunk so end-to-end latency stays bounded.
func (p *playback) Enqueue(ctx context.Context, frame MediaFrame) error {
	item := playbackItem{frame: frame, gen: p.generation()}

	select {
	case p.chunks <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.timeout):
	}

	// Latency bound hit: make room by dropping the oldest chunk.
	select {
	case <-p.chunks:
		p.logger.Warn("playback buffer saturated, dropped oldest chunk")
	default:
	}

	select {
	case p.chunks <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush discards all buffered audio immediately and clears the sink's
// device buffer. Idempotent; chunks enqueued before the flush never
// reach the sink afterward.
func (p *playback) Flush() {
	p.mu.Lock()
	p.gen++
	p.mu.Unlock()

	for {
		select {
		case <-p.chunks:
		default:
			if p.sink != nil {
				p.sink.Flush()
			}
			return
		}
	}
}

// Buffered returns the current look-ahead depth.
func (p *playback) Buffered() int {
	return len(p.chunks)
}

func (p *playback) generation() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen
}

// run feeds the sink until ctx ends. The sink write blocks at the
// device's real-time rate; that back-pressure is what throttles the
// whole inbound audio path.
func (p *playback) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-p.chunks:
			if item.gen != p.generation() {
				continue // flushed while queued
			}
			if p.sink == nil {
				continue
			}
			if err := p.sink.Play(item.frame); err != nil {
				p.logger.Error("playback write failed", "error", err)
				return
			}
		}
	}
}
