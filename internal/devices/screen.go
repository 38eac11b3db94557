package devices

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"time"

	"github.com/kbinani/screenshot"
	"golang.org/x/image/draw"

	"github.com/vango-go/vai-live/pkg/core"
	"github.com/vango-go/vai-live/pkg/live"
)

// Screen grabs the primary display and encodes JPEG thumbnails. It
// implements live.ImageSource.
type Screen struct {
	display   int
	maxWidth  int
	maxHeight int
	quality   int
}

// NewScreen prepares a screen source for the primary display. It fails
// up front when no display is attached (headless hosts).
func NewScreen(maxWidth, maxHeight, jpegQuality int) (*Screen, error) {
	if screenshot.NumActiveDisplays() == 0 {
		return nil, core.NewDeviceUnavailableError("screen", nil)
	}
	return &Screen{
		display:   0,
		maxWidth:  maxWidth,
		maxHeight: maxHeight,
		quality:   jpegQuality,
	}, nil
}

// CaptureImage grabs one screen frame, downscales it under the size
// bounds and encodes it as JPEG.
func (s *Screen) CaptureImage(ctx context.Context) (live.MediaFrame, error) {
	if err := ctx.Err(); err != nil {
		return live.MediaFrame{}, err
	}
	img, err := screenshot.CaptureDisplay(s.display)
	if err != nil {
		return live.MediaFrame{}, core.NewDeviceUnavailableError("screen", err)
	}
	return encodeJPEGFrame(img, s.maxWidth, s.maxHeight, s.quality)
}

// Close releases the source. The screenshot library holds no
// persistent handle, so this is a no-op.
func (s *Screen) Close() error { return nil }

// encodeJPEGFrame downscales img to fit within maxW x maxH (preserving
// aspect ratio, never upscaling) and encodes it as JPEG.
func encodeJPEGFrame(img image.Image, maxW, maxH, quality int) (live.MediaFrame, error) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	outW, outH := fitWithin(w, h, maxW, maxH)
	if outW != w || outH != h {
		scaled := image.NewRGBA(image.Rect(0, 0, outW, outH))
		draw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), img, bounds, draw.Src, nil)
		img = scaled
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return live.MediaFrame{}, err
	}
	return live.MediaFrame{
		Kind:       live.FrameImage,
		Payload:    buf.Bytes(),
		MIMEType:   "image/jpeg",
		CapturedAt: time.Now(),
		Width:      outW,
		Height:     outH,
	}, nil
}

// fitWithin shrinks (w, h) proportionally into (maxW, maxH). Images
// already inside the bounds pass through unchanged.
func fitWithin(w, h, maxW, maxH int) (int, int) {
	if maxW <= 0 || maxH <= 0 || (w <= maxW && h <= maxH) {
		return w, h
	}
	scaleW := float64(maxW) / float64(w)
	scaleH := float64(maxH) / float64(h)
	scale := scaleW
	if scaleH < scale {
		scale = scaleH
	}
	outW := int(float64(w) * scale)
	outH := int(float64(h) * scale)
	if outW < 1 {
		outW = 1
	}
	if outH < 1 {
		outH = 1
	}
	return outW, outH
}
