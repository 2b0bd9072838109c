package camera

import (
	"fmt"
	"time"

	"github.com/blackjack/webcam"
)

func fourcc(a, b, c, d byte) webcam.PixelFormat {
	return webcam.PixelFormat(uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24)
}

// V4L2 pixel formats the normalization layer understands, in preference
// order. Anything else streams as LayoutUnknown and is rendered as
// luminance.
var preferredFormats = []struct {
	pf     webcam.PixelFormat
	layout PixelLayout
}{
	{fourcc('M', 'J', 'P', 'G'), LayoutJPEG},
	{fourcc('J', 'P', 'E', 'G'), LayoutJPEG},
	{fourcc('R', 'G', 'B', '3'), LayoutRGB},
	{fourcc('A', 'B', '2', '4'), LayoutRGBA},
}

// SystemOpener opens /dev/video<index> through V4L2.
func SystemOpener(index int) (Device, error) {
	cam, err := webcam.Open(fmt.Sprintf("/dev/video%d", index))
	if err != nil {
		return nil, fmt.Errorf("open /dev/video%d: %w", index, err)
	}
	return &v4lDevice{cam: cam}, nil
}

type v4lDevice struct {
	cam       *webcam.Webcam
	layout    PixelLayout
	width     uint32
	height    uint32
	streaming bool
}

func (d *v4lDevice) Configure(cfg CaptureConfig) error {
	if d.streaming {
		if err := d.cam.StopStreaming(); err != nil {
			return fmt.Errorf("stop streaming: %w", err)
		}
		d.streaming = false
	}
	if !cfg.SkipFormat {
		pf, layout := d.pickFormat()
		w, h := uint32(cfg.Width), uint32(cfg.Height)
		if cfg.Still {
			w, h = d.largestSize(pf, w, h)
		}
		_, gotW, gotH, err := d.cam.SetImageFormat(pf, w, h)
		if err != nil {
			return fmt.Errorf("set format %dx%d: %w", w, h, err)
		}
		d.layout = layout
		d.width = gotW
		d.height = gotH
	}
	if err := d.cam.StartStreaming(); err != nil {
		return fmt.Errorf("start streaming: %w", err)
	}
	d.streaming = true
	return nil
}

// pickFormat chooses the first supported format the encoder understands,
// falling back to whatever the driver reports first.
func (d *v4lDevice) pickFormat() (webcam.PixelFormat, PixelLayout) {
	supported := d.cam.GetSupportedFormats()
	for _, pref := range preferredFormats {
		if _, ok := supported[pref.pf]; ok {
			return pref.pf, pref.layout
		}
	}
	for pf := range supported {
		return pf, LayoutUnknown
	}
	return 0, LayoutUnknown
}

// largestSize returns the biggest discrete frame size the driver offers
// for pf, or the requested size when the driver reports nothing usable.
func (d *v4lDevice) largestSize(pf webcam.PixelFormat, w, h uint32) (uint32, uint32) {
	bestW, bestH := w, h
	for _, fs := range d.cam.GetSupportedFrameSizes(pf) {
		if fs.MaxWidth*fs.MaxHeight > bestW*bestH {
			bestW, bestH = fs.MaxWidth, fs.MaxHeight
		}
	}
	return bestW, bestH
}

func (d *v4lDevice) ReadFrame(timeout time.Duration) (Image, error) {
	secs := uint32((timeout + time.Second - 1) / time.Second)
	if secs == 0 {
		secs = 1
	}
	if err := d.cam.WaitForFrame(secs); err != nil {
		if _, ok := err.(*webcam.Timeout); ok {
			return Image{}, ErrFrameTimeout
		}
		return Image{}, fmt.Errorf("wait for frame: %w", err)
	}
	raw, err := d.cam.ReadFrame()
	if err != nil {
		return Image{}, fmt.Errorf("read frame: %w", err)
	}
	if len(raw) == 0 {
		return Image{}, ErrFrameTimeout
	}
	// The driver reuses its frame buffers, so the payload must be copied
	// out before the next read.
	return Image{
		Pix:    append([]byte(nil), raw...),
		Width:  int(d.width),
		Height: int(d.height),
		Layout: d.layout,
	}, nil
}

func (d *v4lDevice) Close() error {
	if d.streaming {
		d.cam.StopStreaming()
		d.streaming = false
	}
	return d.cam.Close()
}
