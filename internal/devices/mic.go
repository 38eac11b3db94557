package devices

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/vango-go/vai-live/pkg/core"
	"github.com/vango-go/vai-live/pkg/live"
)

// Mic captures microphone PCM and yields fixed-size frames. It
// implements live.AudioSource.
type Mic struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	sampleRate int
	chunkBytes int
	mimeType   string

	mu     sync.Mutex
	buf    []byte
	frames chan []byte

	closeOnce sync.Once
}

// NewMic opens the default capture device at the given rate, mono
// 16-bit. chunkBytes is the fixed frame size handed to the pipeline.
func NewMic(sampleRate, chunkBytes int) (*Mic, error) {
	if chunkBytes <= 0 {
		return nil, fmt.Errorf("chunkBytes must be positive")
	}

	ctxConfig := malgo.ContextConfig{}
	ctxConfig.ThreadPriority = malgo.ThreadPriorityRealtime
	mctx, err := malgo.InitContext(nil, ctxConfig, nil)
	if err != nil {
		return nil, core.NewDeviceUnavailableError("mic", err)
	}

	m := &Mic{
		ctx:        mctx,
		sampleRate: sampleRate,
		chunkBytes: chunkBytes,
		mimeType:   fmt.Sprintf("audio/pcm;rate=%d", sampleRate),
		buf:        make([]byte, 0, chunkBytes*4),
		frames:     make(chan []byte, 16),
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			m.onSamples(input)
		},
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = mctx.Uninit()
		return nil, core.NewDeviceUnavailableError("mic", err)
	}
	m.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		return nil, core.NewDeviceUnavailableError("mic", err)
	}
	return m, nil
}

// onSamples runs on the audio thread: accumulate and cut fixed frames.
// A full frame channel drops the oldest frame; blocking here would
// glitch capture.
func (m *Mic) onSamples(input []byte) {
	m.mu.Lock()
	m.buf = append(m.buf, input...)
	var ready [][]byte
	for len(m.buf) >= m.chunkBytes {
		frame := make([]byte, m.chunkBytes)
		copy(frame, m.buf[:m.chunkBytes])
		m.buf = m.buf[m.chunkBytes:]
		ready = append(ready, frame)
	}
	m.mu.Unlock()

	for _, frame := range ready {
		select {
		case m.frames <- frame:
		default:
			select {
			case <-m.frames:
			default:
			}
			select {
			case m.frames <- frame:
			default:
			}
		}
	}
}

// CaptureAudio blocks until one fixed-size PCM frame is available.
func (m *Mic) CaptureAudio(ctx context.Context) (live.MediaFrame, error) {
	select {
	case frame, ok := <-m.frames:
		if !ok {
			return live.MediaFrame{}, core.NewDeviceUnavailableError("mic", nil)
		}
		return live.MediaFrame{
			Kind:       live.FrameAudio,
			Payload:    frame,
			MIMEType:   m.mimeType,
			SampleRate: m.sampleRate,
			CapturedAt: time.Now(),
		}, nil
	case <-ctx.Done():
		return live.MediaFrame{}, ctx.Err()
	}
}

// Close stops the capture device and releases the audio context.
func (m *Mic) Close() error {
	m.closeOnce.Do(func() {
		if m.device != nil {
			_ = m.device.Stop()
			m.device.Uninit()
		}
		if m.ctx != nil {
			_ = m.ctx.Uninit()
		}
		close(m.frames)
	})
	return nil
}
