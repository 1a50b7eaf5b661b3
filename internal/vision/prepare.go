// Package vision prepares images for the vision-language model.
package vision

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"os"

	"github.com/disintegration/imaging"
)

// Defaults applied by NewPreparer.
const (
	DefaultMaxSide     = 768
	DefaultJPEGQuality = 85
)

// Preparer downscales images and re-encodes them as JPEG, which keeps VLM
// prompt size and load predictable.
type Preparer struct {
	MaxSide int
	Quality int
}

// NewPreparer returns a Preparer; non-positive values take the defaults.
func NewPreparer(maxSide, quality int) *Preparer {
	if maxSide <= 0 {
		maxSide = DefaultMaxSide
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return &Preparer{MaxSide: maxSide, Quality: quality}
}

// InvalidImageError reports input that could not be read as an image.
type InvalidImageError struct{ Err error }

func (e *InvalidImageError) Error() string { return "invalid image: " + e.Err.Error() }

func (e *InvalidImageError) Unwrap() error { return e.Err }

// IsInvalidImage reports whether err is an InvalidImageError.
func IsInvalidImage(err error) bool {
	var e *InvalidImageError
	return errors.As(err, &e)
}

// Image is a prepared image.
type Image struct {
	JPEG   []byte
	Width  int
	Height int
}

// Base64 returns the standard base64 encoding of the JPEG bytes.
func (i Image) Base64() string { return base64.StdEncoding.EncodeToString(i.JPEG) }

// PrepareFile opens path and prepares it. EXIF orientation is honored.
func (p *Preparer) PrepareFile(path string) (Image, error) {
	if _, err := os.Stat(path); err != nil {
		return Image{}, &InvalidImageError{Err: err}
	}
	src, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return Image{}, &InvalidImageError{Err: fmt.Errorf("decode %s: %w", path, err)}
	}
	return p.prepare(src)
}

// PrepareReader decodes r and prepares it.
func (p *Preparer) PrepareReader(r io.Reader) (Image, error) {
	src, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return Image{}, &InvalidImageError{Err: fmt.Errorf("decode: %w", err)}
	}
	return p.prepare(src)
}

// PrepareBase64 decodes a base64 payload and prepares it.
func (p *Preparer) PrepareBase64(s string) (Image, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return Image{}, &InvalidImageError{Err: fmt.Errorf("base64: %w", err)}
	}
	return p.PrepareReader(bytes.NewReader(raw))
}

func (p *Preparer) prepare(src image.Image) (Image, error) {
	b := src.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return Image{}, &InvalidImageError{Err: errors.New("zero-sized image")}
	}
	var dst image.Image = src
	if b.Dx() > p.MaxSide || b.Dy() > p.MaxSide {
		dst = imaging.Fit(src, p.MaxSide, p.MaxSide, imaging.Lanczos)
	}
	// Flatten onto white so transparent PNGs do not turn black in JPEG.
	bg := imaging.New(dst.Bounds().Dx(), dst.Bounds().Dy(), image.White)
	flat := imaging.Overlay(bg, dst, image.Pt(0, 0), 1.0)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, flat, imaging.JPEG, imaging.JPEGQuality(p.Quality)); err != nil {
		return Image{}, fmt.Errorf("encode jpeg: %w", err)
	}
	return Image{JPEG: buf.Bytes(), Width: flat.Bounds().Dx(), Height: flat.Bounds().Dy()}, nil
}
