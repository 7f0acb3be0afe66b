package preview

import (
	"bytes"
	"image"
	"image/png"
	"testing"

	"github.com/cwbudde/msetgen/internal/engine"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

func testBuffers() *engine.Buffers {
	out := engine.NewBuffers(3, 2)
	// Row 0: interior, fast escape, slow escape. Row 1: escaped at target.
	out.Counts = []uint32{100, 1, 50, 100, 100, 100}
	out.HasEscaped = []bool{false, true, true, true, true, false}
	out.EscapeVelocities = []uint32{0, 5000, 9999, 0, 0, 0}
	return out
}

func TestRender(t *testing.T) {
	img, err := Render(testBuffers(), 3, 2, 100)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	if got := img.GrayAt(0, 0).Y; got != 0 {
		t.Errorf("Interior point should be black, got %d", got)
	}
	if got := img.GrayAt(2, 1).Y; got != 0 {
		t.Errorf("Interior point should be black, got %d", got)
	}

	fast, slow := img.GrayAt(1, 0).Y, img.GrayAt(2, 0).Y
	if fast < 32 || fast >= slow {
		t.Errorf("Expected 32 <= fast (%d) < slow (%d)", fast, slow)
	}
	if got := img.GrayAt(0, 1).Y; got != 255 {
		t.Errorf("Point escaping at target should be white, got %d", got)
	}
}

func TestRender_Errors(t *testing.T) {
	if _, err := Render(testBuffers(), 0, 2, 100); err == nil {
		t.Error("Expected error for zero width")
	}
	if _, err := Render(testBuffers(), 4, 2, 100); err == nil {
		t.Error("Expected error for short buffers")
	}
}

func TestShade_Monotonic(t *testing.T) {
	scale := 7.0
	prev := Shade(0, scale)
	if prev != 32 {
		t.Errorf("Expected 32 for zero, got %d", prev)
	}
	for s := 1.0; s < 2000; s *= 1.5 {
		cur := Shade(s, scale)
		if cur < prev {
			t.Fatalf("Shade not monotonic at %f: %d < %d", s, cur, prev)
		}
		prev = cur
	}
	if prev != 255 {
		t.Errorf("Expected saturation at 255, got %d", prev)
	}
}

func TestEncode(t *testing.T) {
	img, err := Render(testBuffers(), 3, 2, 100)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	decoders := map[string]func(*bytes.Reader) (image.Image, error){
		FormatPNG:  func(r *bytes.Reader) (image.Image, error) { return png.Decode(r) },
		FormatBMP:  func(r *bytes.Reader) (image.Image, error) { return bmp.Decode(r) },
		FormatTIFF: func(r *bytes.Reader) (image.Image, error) { return tiff.Decode(r) },
	}

	for format, decode := range decoders {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			if err := Encode(&buf, img, format); err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			got, err := decode(bytes.NewReader(buf.Bytes()))
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if got.Bounds() != img.Bounds() {
				t.Errorf("Bounds mismatch: %v vs %v", got.Bounds(), img.Bounds())
			}
			r, _, _, _ := got.At(0, 1).RGBA()
			if r>>8 != 255 {
				t.Errorf("Expected white pixel after round trip, got %d", r>>8)
			}
		})
	}

	if err := Encode(&bytes.Buffer{}, img, "gif"); err == nil {
		t.Error("Expected error for unsupported format")
	}
}

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path    string
		want    string
		wantErr bool
	}{
		{"out.png", FormatPNG, false},
		{"OUT.BMP", FormatBMP, false},
		{"a/b.tif", FormatTIFF, false},
		{"x.tiff", FormatTIFF, false},
		{"x.jpg", "", true},
		{"noext", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := FormatFromPath(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FormatFromPath(%q) error = %v", tt.path, err)
			}
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}

	if ContentType(FormatTIFF) != "image/tiff" || ContentType("") != "image/png" {
		t.Error("Unexpected content types")
	}
}
