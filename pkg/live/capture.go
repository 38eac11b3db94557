package live

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vango-go/vai-live/pkg/core"
)

// tickFactory produces the pacing channel for image capture loops.
// Tests substitute a manual channel for deterministic cadence.
type tickFactory func(interval time.Duration) (<-chan time.Time, func())

func tickerTicks(interval time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(interval)
	return t.C, t.Stop
}

// maxConsecutiveCaptureErrors bounds transient capture failures before
// the source is treated as unavailable.
const maxConsecutiveCaptureErrors = 5

// audioCaptureLoop pulls PCM frames from the microphone and pushes them
// onto the media queue. The device's own blocking read paces the loop.
// It exits on ctx cancellation or after escalating a device failure.
func audioCaptureLoop(ctx context.Context, src AudioSource, q *frameQueue, notices chan<- notice, logger *slog.Logger) {
	failures := 0
	for {
		if ctx.Err() != nil {
			return
		}
		frame, err := src.CaptureAudio(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			if core.KindOf(err) == core.KindDeviceUnavailable || failures >= maxConsecutiveCaptureErrors {
				escalateSource(ctx, notices, "mic", err)
				return
			}
			logger.Warn("audio capture error", "error", err, "consecutive", failures)
			continue
		}
		failures = 0
		q.Push(AudioChunk{Frame: frame})
	}
}

// imageCaptureLoop grabs a frame from src on every tick and pushes it
// onto the media queue. name identifies the source in escalations
// ("camera" or "screen").
func imageCaptureLoop(ctx context.Context, name string, src ImageSource, interval time.Duration, q *frameQueue, notices chan<- notice, logger *slog.Logger, ticks tickFactory) {
	if ticks == nil {
		ticks = tickerTicks
	}
	ch, stop := ticks(interval)
	defer stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
		}
		frame, err := src.CaptureImage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			if core.KindOf(err) == core.KindDeviceUnavailable || failures >= maxConsecutiveCaptureErrors {
				escalateSource(ctx, notices, name, err)
				return
			}
			logger.Warn("image capture error", "source", name, "error", err, "consecutive", failures)
			continue
		}
		failures = 0
		q.Push(ImageChunk{Frame: frame})
	}
}

func escalateSource(ctx context.Context, notices chan<- notice, source string, err error) {
	if !errors.Is(err, context.Canceled) {
		select {
		case notices <- notice{kind: noticeSourceFailed, source: source, err: err}:
		case <-ctx.Done():
		}
	}
}
