package camera

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	synthBackground = color.RGBA{R: 0x28, G: 0x28, B: 0x30, A: 0xff}
	synthBorder     = color.RGBA{R: 0x50, G: 0x50, B: 0x5c, A: 0xff}
	synthText       = color.White
)

// synthesizeFrame renders a placeholder frame carrying the current
// timestamp, used while no capture device is available. It is visually
// distinct from real camera output so operators do not mistake a stale
// scene for a live one.
func synthesizeFrame(width, height int, now time.Time, quality int) ([]byte, error) {
	m := image.NewRGBA(image.Rect(0, 0, width, height))
	draw := func(x0, y0, x1, y1 int, c color.Color) {
		for y := y0; y < y1; y++ {
			for x := x0; x < x1; x++ {
				m.Set(x, y, c)
			}
		}
	}
	draw(0, 0, width, height, synthBackground)
	draw(0, 0, width, 4, synthBorder)
	draw(0, height-4, width, height, synthBorder)
	draw(0, 0, 4, height, synthBorder)
	draw(width-4, 0, width, height, synthBorder)

	drawLabel(m, width/2, height/2-10, "NO CAMERA SIGNAL")
	drawLabel(m, width/2, height/2+14, now.Format("2006-01-02 15:04:05"))

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, m, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("jpeg encode placeholder: %w", err)
	}
	return buf.Bytes(), nil
}

// drawLabel centers text horizontally at (cx, baseline).
func drawLabel(dst *image.RGBA, cx, baseline int, text string) {
	face := basicfont.Face7x13
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(synthText),
		Face: face,
	}
	w := d.MeasureString(text)
	d.Dot = fixed.Point26_6{
		X: fixed.I(cx) - w/2,
		Y: fixed.I(baseline),
	}
	d.DrawString(text)
}
