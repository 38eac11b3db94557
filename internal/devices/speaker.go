package devices

import (
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/vango-go/vai-live/pkg/core"
	"github.com/vango-go/vai-live/pkg/live"
)

// Speaker plays PCM through the default output device. It implements
// live.MediaSink: Play blocks once roughly a second of audio is
// buffered, which makes the device the pacing authority for the
// playback pipeline.
type Speaker struct {
	otoCtx *oto.Context

	mu      sync.Mutex
	cond    *sync.Cond
	player  *oto.Player
	buf     []byte
	playing bool
	closed  bool

	// highWater is the buffered byte count above which Play blocks.
	highWater int
}

// speakerContextOptions builds the device configuration: mono 16-bit
// at the given rate, with a ~100ms device buffer so an interrupt
// silences output quickly.
func speakerContextOptions(sampleRate int) *oto.NewContextOptions {
	return &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   100 * time.Millisecond,
	}
}

// NewSpeaker opens the output device at the given rate, mono 16-bit.
func NewSpeaker(sampleRate int) (*Speaker, error) {
	otoCtx, ready, err := oto.NewContext(speakerContextOptions(sampleRate))
	if err != nil {
		return nil, core.NewDeviceUnavailableError("speaker", err)
	}
	<-ready

	s := &Speaker{
		otoCtx:    otoCtx,
		buf:       make([]byte, 0, sampleRate*4),
		highWater: sampleRate * 2, // one second of 16-bit mono
	}
	s.cond = sync.NewCond(&s.mu)
	return s, nil
}

// Play buffers one frame, blocking while the buffer is above the high
// watermark so upstream backpressure tracks real playback speed.
func (s *Speaker) Play(frame live.MediaFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.NewDeviceUnavailableError("speaker", nil)
	}

	for len(s.buf) > s.highWater && !s.closed {
		s.cond.Wait()
	}
	if s.closed {
		return core.NewDeviceUnavailableError("speaker", nil)
	}

	s.buf = append(s.buf, frame.Payload...)

	// The player starts on first audio and pulls via Read.
	if !s.playing {
		s.playing = true
		s.player = s.otoCtx.NewPlayer(s)
		s.player.Play()
	}
	s.cond.Broadcast()
	return nil
}

// Read implements io.Reader for oto.Player: the device pulls audio at
// the real-time rate. Emits silence while the buffer is empty so the
// stream never starves mid-turn.
func (s *Speaker) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.buf) == 0 {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	s.cond.Broadcast()
	return n, nil
}

// Flush discards buffered audio immediately, including the device's
// internal buffer, so an interrupt silences output within one chunk.
func (s *Speaker) Flush() {
	s.mu.Lock()
	s.buf = s.buf[:0]
	player := s.player
	wasPlaying := s.playing
	s.player = nil
	s.playing = false
	s.cond.Broadcast()
	s.mu.Unlock()

	if player != nil && wasPlaying {
		player.Pause()
		_ = player.Close()
	}
}

// Close releases the output device.
func (s *Speaker) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	player := s.player
	s.player = nil
	s.cond.Broadcast()
	s.mu.Unlock()

	if player != nil {
		_ = player.Close()
	}
	return nil
}
