//go:build linux

package devices

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/blackjack/webcam"

	"github.com/vango-go/vai-live/pkg/core"
	"github.com/vango-go/vai-live/pkg/live"
)

// frameWaitTimeout is how long one WaitForFrame call blocks before the
// loop re-checks the context.
const frameWaitTimeout = 5 // seconds

// Camera captures MJPEG frames from a V4L2 device. MJPEG payloads are
// JPEG images, so frames pass straight through without re-encoding. It
// implements live.ImageSource.
type Camera struct {
	mu   sync.Mutex
	cam  *webcam.Webcam
	path string

	width  int
	height int

	closeOnce sync.Once
}

// NewCamera opens the V4L2 device at path and selects an MJPEG format
// no larger than maxWidth x maxHeight.
func NewCamera(path string, maxWidth, maxHeight int) (*Camera, error) {
	cam, err := webcam.Open(path)
	if err != nil {
		return nil, core.NewDeviceUnavailableError("camera", err)
	}

	format, ok := mjpegFormat(cam)
	if !ok {
		_ = cam.Close()
		return nil, core.NewDeviceUnavailableError("camera",
			fmt.Errorf("%s exposes no MJPEG format", path))
	}

	w, h := bestFrameSize(cam, format, maxWidth, maxHeight)
	_, gotW, gotH, err := cam.SetImageFormat(format, uint32(w), uint32(h))
	if err != nil {
		_ = cam.Close()
		return nil, core.NewDeviceUnavailableError("camera", err)
	}

	if err := cam.StartStreaming(); err != nil {
		_ = cam.Close()
		return nil, core.NewDeviceUnavailableError("camera", err)
	}

	return &Camera{
		cam:    cam,
		path:   path,
		width:  int(gotW),
		height: int(gotH),
	}, nil
}

// mjpegFormat finds the device's MJPEG pixel format.
func mjpegFormat(cam *webcam.Webcam) (webcam.PixelFormat, bool) {
	for format, desc := range cam.GetSupportedFormats() {
		name := strings.ToUpper(desc)
		if strings.Contains(name, "MJPG") || strings.Contains(name, "MJPEG") || strings.Contains(name, "MOTION-JPEG") {
			return format, true
		}
	}
	return 0, false
}

// bestFrameSize picks the largest discrete frame size fitting the
// bounds, falling back to the smallest advertised size.
func bestFrameSize(cam *webcam.Webcam, format webcam.PixelFormat, maxW, maxH int) (int, int) {
	sizes := cam.GetSupportedFrameSizes(format)
	bestW, bestH := 0, 0
	minW, minH := 0, 0
	for _, size := range sizes {
		w, h := int(size.MaxWidth), int(size.MaxHeight)
		if minW == 0 || w*h < minW*minH {
			minW, minH = w, h
		}
		if w <= maxW && h <= maxH && w*h > bestW*bestH {
			bestW, bestH = w, h
		}
	}
	if bestW == 0 {
		if minW == 0 {
			return maxW, maxH
		}
		return minW, minH
	}
	return bestW, bestH
}

// CaptureImage blocks for the next camera frame.
func (c *Camera) CaptureImage(ctx context.Context) (live.MediaFrame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cam == nil {
		return live.MediaFrame{}, core.NewDeviceUnavailableError("camera", nil)
	}

	for {
		if err := ctx.Err(); err != nil {
			return live.MediaFrame{}, err
		}
		err := c.cam.WaitForFrame(frameWaitTimeout)
		switch err.(type) {
		case nil:
		case *webcam.Timeout:
			continue
		default:
			return live.MediaFrame{}, core.NewDeviceUnavailableError("camera", err)
		}

		frame, err := c.cam.ReadFrame()
		if err != nil {
			return live.MediaFrame{}, core.NewDeviceUnavailableError("camera", err)
		}
		if len(frame) == 0 {
			continue
		}
		payload := make([]byte, len(frame))
		copy(payload, frame)
		return live.MediaFrame{
			Kind:       live.FrameImage,
			Payload:    payload,
			MIMEType:   "image/jpeg",
			CapturedAt: time.Now(),
			Width:      c.width,
			Height:     c.height,
		}, nil
	}
}

// Close stops streaming and releases the device.
func (c *Camera) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.cam != nil {
			c.cam.StopStreaming()
			err = c.cam.Close()
			c.cam = nil
		}
	})
	return err
}
