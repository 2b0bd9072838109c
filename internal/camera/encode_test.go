package camera

import (
	"bytes"
	"image/jpeg"
	"testing"
	"time"
)

func decodeCheck(t *testing.T, data []byte, wantW, wantH int) {
	t.Helper()
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output not a valid jpeg: %v", err)
	}
	if cfg.Width != wantW || cfg.Height != wantH {
		t.Errorf("geometry = %dx%d, want %dx%d", cfg.Width, cfg.Height, wantW, wantH)
	}
}

func TestEncodeJPEGPassthrough(t *testing.T) {
	payload := []byte{0xff, 0xd8, 0xff, 0xd9}
	got, err := encodeJPEG(Image{Pix: payload, Layout: LayoutJPEG}, 80)
	if err != nil {
		t.Fatalf("encodeJPEG: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("jpeg payload was re-encoded instead of passed through")
	}
}

func TestEncodeJPEGEmptyPassthrough(t *testing.T) {
	if _, err := encodeJPEG(Image{Layout: LayoutJPEG}, 80); err == nil {
		t.Error("empty jpeg frame accepted")
	}
}

func TestEncodeRGB(t *testing.T) {
	img := Image{
		Pix:    make([]byte, 8*6*3),
		Width:  8,
		Height: 6,
		Layout: LayoutRGB,
	}
	got, err := encodeJPEG(img, 80)
	if err != nil {
		t.Fatalf("encodeJPEG: %v", err)
	}
	decodeCheck(t, got, 8, 6)
}

func TestEncodeRGBA(t *testing.T) {
	img := Image{
		Pix:    make([]byte, 8*6*4),
		Width:  8,
		Height: 6,
		Layout: LayoutRGBA,
	}
	got, err := encodeJPEG(img, 80)
	if err != nil {
		t.Fatalf("encodeJPEG: %v", err)
	}
	decodeCheck(t, got, 8, 6)
}

func TestEncodeUnknownFallsBackToLuminance(t *testing.T) {
	img := Image{
		Pix:    make([]byte, 8*6),
		Width:  8,
		Height: 6,
		Layout: LayoutUnknown,
	}
	got, err := encodeJPEG(img, 80)
	if err != nil {
		t.Fatalf("encodeJPEG: %v", err)
	}
	decodeCheck(t, got, 8, 6)
}

func TestEncodeRejectsShortBuffers(t *testing.T) {
	cases := []struct {
		name string
		img  Image
	}{
		{"rgb", Image{Pix: make([]byte, 10), Width: 8, Height: 6, Layout: LayoutRGB}},
		{"rgba", Image{Pix: make([]byte, 10), Width: 8, Height: 6, Layout: LayoutRGBA}},
		{"gray", Image{Pix: make([]byte, 10), Width: 8, Height: 6, Layout: LayoutUnknown}},
		{"geometry", Image{Pix: make([]byte, 10), Width: 0, Height: 6, Layout: LayoutRGB}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := encodeJPEG(tc.img, 80); err == nil {
				t.Error("short or malformed frame accepted")
			}
		})
	}
}

func TestSynthesizeFrame(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	got, err := synthesizeFrame(320, 240, ts, 80)
	if err != nil {
		t.Fatalf("synthesizeFrame: %v", err)
	}
	decodeCheck(t, got, 320, 240)
}
