package storage

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	"github.com/nfnt/resize"
)

const (
	imageMaxWidth   = 800
	jpegQuality     = 80
	maxImageDecodeB = 10 << 20
)

// ProcessImage decodes an uploaded product image, scales it down to the
// catalog display width and re-encodes it as JPEG. PNG and JPEG inputs are
// accepted; everything else is rejected.
func ProcessImage(r io.Reader, filename string) ([]byte, error) {
	limited := io.LimitReader(r, maxImageDecodeB)

	var img image.Image
	var err error
	switch {
	case strings.HasSuffix(strings.ToLower(filename), ".png"):
		img, err = png.Decode(limited)
	case strings.HasSuffix(strings.ToLower(filename), ".jpg"),
		strings.HasSuffix(strings.ToLower(filename), ".jpeg"):
		img, err = jpeg.Decode(limited)
	default:
		return nil, fmt.Errorf("unsupported image format %q", filename)
	}
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	scaled := img
	if img.Bounds().Dx() > imageMaxWidth {
		scaled = resize.Resize(imageMaxWidth, 0, img, resize.Lanczos3)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}
