package vision

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
)

func writePNG(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 100, A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "in.png")
	if err := imaging.Save(img, path); err != nil {
		t.Fatalf("save: %v", err)
	}
	return path
}

func TestPrepareFile_Downscales(t *testing.T) {
	p := NewPreparer(100, 0)
	out, err := p.PrepareFile(writePNG(t, 400, 200))
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if out.Width != 100 || out.Height != 50 {
		t.Fatalf("size = %dx%d", out.Width, out.Height)
	}
	if _, err := imaging.Decode(bytes.NewReader(out.JPEG)); err != nil {
		t.Fatalf("output is not decodable: %v", err)
	}
}

func TestPrepareFile_SmallKeepsSize(t *testing.T) {
	p := NewPreparer(0, 0)
	out, err := p.PrepareFile(writePNG(t, 64, 48))
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if out.Width != 64 || out.Height != 48 {
		t.Fatalf("size = %dx%d", out.Width, out.Height)
	}
}

func TestPrepareFile_Missing(t *testing.T) {
	if _, err := NewPreparer(0, 0).PrepareFile(filepath.Join(t.TempDir(), "nope.jpg")); !IsInvalidImage(err) {
		t.Fatalf("expected invalid image, got %v", err)
	}
}

func TestPrepareBase64(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 10, 10))); err != nil {
		t.Fatal(err)
	}
	out, err := NewPreparer(0, 0).PrepareBase64(base64.StdEncoding.EncodeToString(buf.Bytes()))
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if out.Base64() == "" {
		t.Fatalf("empty base64")
	}
	if _, err := NewPreparer(0, 0).PrepareBase64("!!!"); !IsInvalidImage(err) {
		t.Fatalf("expected invalid image for bad base64, got %v", err)
	}
}
