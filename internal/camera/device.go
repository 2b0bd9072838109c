package camera

import (
	"errors"
	"time"
)

// ErrFrameTimeout is returned by a Device when no frame arrived within the
// acquisition timeout. The pipeline treats it as transient and re-enters
// fallback evaluation rather than failing.
var ErrFrameTimeout = errors.New("timed out waiting for frame")

// PixelLayout identifies how a device reports pixel data.
type PixelLayout int

const (
	// LayoutJPEG is already the canonical transport encoding.
	LayoutJPEG PixelLayout = iota
	LayoutRGB
	LayoutRGBA
	LayoutUnknown
)

// Image is one raw capture from a device before normalization.
type Image struct {
	Pix    []byte
	Width  int
	Height int
	Layout PixelLayout
}

// CaptureConfig is one configuration variant to attempt against a device.
type CaptureConfig struct {
	Name   string
	Width  int
	Height int
	// Still requests the device's largest supported capture geometry.
	Still bool
	// SkipFormat leaves the driver's default format untouched.
	SkipFormat bool
}

// primaryVariants is the ordered list of configuration attempts against the
// primary camera. Each attempt is isolated: a variant-specific failure
// advances to the next one.
func primaryVariants(width, height int) []CaptureConfig {
	return []CaptureConfig{
		{Name: "minimal-preview", Width: 320, Height: 240},
		{Name: "sized-preview", Width: width, Height: height},
		{Name: "still-capture", Width: width, Height: height, Still: true},
		{Name: "default", SkipFormat: true},
	}
}

// secondaryVariant is the single configuration used when probing alternate
// (USB) capture devices.
func secondaryVariant(width, height int) CaptureConfig {
	return CaptureConfig{Name: "usb-default", Width: width, Height: height}
}

// Device is an open capture device. Configure may be called repeatedly as
// the pipeline walks its variant list; each call replaces the previous
// configuration.
type Device interface {
	Configure(cfg CaptureConfig) error
	// ReadFrame blocks for at most timeout and returns one raw image.
	ReadFrame(timeout time.Duration) (Image, error)
	Close() error
}

// Opener opens the capture device at the given index. It abstracts device
// access so the pipeline is testable without camera hardware.
type Opener func(index int) (Device, error)
