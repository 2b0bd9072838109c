package camera

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
)

// encodeJPEG normalizes a raw capture to the canonical JPEG transport
// encoding. Frames the device already encoded pass through untouched.
func encodeJPEG(img Image, quality int) ([]byte, error) {
	if img.Layout == LayoutJPEG {
		if len(img.Pix) == 0 {
			return nil, fmt.Errorf("empty jpeg frame")
		}
		return img.Pix, nil
	}
	if img.Width <= 0 || img.Height <= 0 {
		return nil, fmt.Errorf("bad frame geometry %dx%d", img.Width, img.Height)
	}

	var m image.Image
	switch img.Layout {
	case LayoutRGB:
		need := img.Width * img.Height * 3
		if len(img.Pix) < need {
			return nil, fmt.Errorf("short rgb frame: %d bytes, need %d", len(img.Pix), need)
		}
		dst := image.NewRGBA(image.Rect(0, 0, img.Width, img.Height))
		for i := 0; i < img.Width*img.Height; i++ {
			dst.Pix[i*4] = img.Pix[i*3]
			dst.Pix[i*4+1] = img.Pix[i*3+1]
			dst.Pix[i*4+2] = img.Pix[i*3+2]
			dst.Pix[i*4+3] = 0xff
		}
		m = dst
	case LayoutRGBA:
		need := img.Width * img.Height * 4
		if len(img.Pix) < need {
			return nil, fmt.Errorf("short rgba frame: %d bytes, need %d", len(img.Pix), need)
		}
		m = &image.RGBA{
			Pix:    img.Pix[:need],
			Stride: img.Width * 4,
			Rect:   image.Rect(0, 0, img.Width, img.Height),
		}
	default:
		// Unrecognized layout: interpret the payload as single-channel
		// luminance so the stream keeps moving instead of stalling.
		need := img.Width * img.Height
		if len(img.Pix) < need {
			return nil, fmt.Errorf("short frame: %d bytes, need %d", len(img.Pix), need)
		}
		m = &image.Gray{
			Pix:    img.Pix[:need],
			Stride: img.Width,
			Rect:   image.Rect(0, 0, img.Width, img.Height),
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, m, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}
	return buf.Bytes(), nil
}
