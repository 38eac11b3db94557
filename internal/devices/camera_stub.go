//go:build !linux

package devices

import (
	"context"
	"fmt"
	"runtime"

	"github.com/vango-go/vai-live/pkg/core"
	"github.com/vango-go/vai-live/pkg/live"
)

// Camera is unavailable off Linux: frame capture uses V4L2.
type Camera struct{}

// NewCamera always fails on this platform. The session degrades to the
// remaining sources instead of terminating.
func NewCamera(path string, maxWidth, maxHeight int) (*Camera, error) {
	return nil, core.NewDeviceUnavailableError("camera",
		fmt.Errorf("camera capture is not supported on %s", runtime.GOOS))
}

func (c *Camera) CaptureImage(ctx context.Context) (live.MediaFrame, error) {
	return live.MediaFrame{}, core.NewDeviceUnavailableError("camera", nil)
}

func (c *Camera) Close() error { return nil }
