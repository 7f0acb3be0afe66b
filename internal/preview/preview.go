// Package preview renders generated sections as grayscale images.
package preview

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"path/filepath"
	"strings"

	"github.com/cwbudde/msetgen/internal/engine"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// Supported encoder formats.
const (
	FormatPNG  = "png"
	FormatBMP  = "bmp"
	FormatTIFF = "tiff"
)

// Render shades a width x height section. Points that never escaped are black.
// Escaped points get brighter the longer they took, using count plus the escape
// velocity fraction so neighbouring bands blend.
func Render(out *engine.Buffers, width, height int, target uint32) (*image.Gray, error) {
	n := width * height
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("invalid preview size %dx%d", width, height)
	}
	if len(out.Counts) < n || len(out.HasEscaped) < n || len(out.EscapeVelocities) < n {
		return nil, fmt.Errorf("buffers hold fewer than %d points", n)
	}

	img := image.NewGray(image.Rect(0, 0, width, height))
	scale := math.Log1p(float64(target))
	if scale == 0 {
		scale = 1
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := y*width + x
			if !out.HasEscaped[i] {
				continue
			}
			smooth := float64(out.Counts[i]) + float64(out.EscapeVelocities[i])/engine.VelocityScale
			img.SetGray(x, y, color.Gray{Y: Shade(smooth, scale)})
		}
	}
	return img, nil
}

// Shade maps a smooth iteration count onto 32..255, logarithmically against
// scale = log(1 + target).
func Shade(smooth, scale float64) uint8 {
	v := math.Log1p(smooth) / scale
	if v > 1 {
		v = 1
	}
	if v < 0 {
		v = 0
	}
	return uint8(32 + math.Round(223*v))
}

// Encode writes img in the named format.
func Encode(w io.Writer, img image.Image, format string) error {
	switch strings.ToLower(format) {
	case FormatPNG, "":
		return png.Encode(w, img)
	case FormatBMP:
		return bmp.Encode(w, img)
	case FormatTIFF, "tif":
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("unsupported image format: %q", format)
	}
}

// FormatFromPath picks the encoder format from a file extension.
func FormatFromPath(path string) (string, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	switch ext {
	case FormatPNG, FormatBMP, FormatTIFF:
		return ext, nil
	case "tif":
		return FormatTIFF, nil
	default:
		return "", fmt.Errorf("unsupported image extension: %q", filepath.Ext(path))
	}
}

// ContentType returns the MIME type for format.
func ContentType(format string) string {
	switch strings.ToLower(format) {
	case FormatBMP:
		return "image/bmp"
	case FormatTIFF, "tif":
		return "image/tiff"
	default:
		return "image/png"
	}
}
