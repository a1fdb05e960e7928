// Package imageload reads a photo, drops its metadata and prepares it for upload
package imageload

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"path/filepath"
	"strings"

	// registered decoders
	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/spf13/afero"

	errs "captioner/pkg/errors"
)

// MediaType is the content type of every normalized image
const MediaType = "image/jpeg"

// ErrUnsupportedFormat is returned for formats that have no decoder
var ErrUnsupportedFormat = errors.New("unsupported format")

// Options controls normalization
type Options struct {
	// MaxDimension caps the longest side in pixels, 0 keeps the original size
	MaxDimension int
	// Quality is the JPEG quality of the re-encoded image
	Quality int
}

// DefaultOptions returns the normalization used unless configured otherwise
func DefaultOptions() Options {
	return Options{MaxDimension: 1568, Quality: 85}
}

// Image is a normalized photo ready to send to a backend
type Image struct {
	Data []byte
	// Width and Height are the dimensions after scaling
	Width  int
	Height int
	// Format is the detected source format, e.g. "jpeg" or "png"
	Format string
}

// MediaType returns the content type of Data
func (img *Image) MediaType() string {
	return MediaType
}

// Base64 returns Data encoded as standard base64
func (img *Image) Base64() string {
	return base64.StdEncoding.EncodeToString(img.Data)
}

// DataURL returns Data as a data: URL
func (img *Image) DataURL() string {
	return "data:" + MediaType + ";base64," + img.Base64()
}

// Loader reads photos through an afero filesystem
type Loader struct {
	fs   afero.Fs
	opts Options
}

// NewLoader creates a Loader. Zero option fields take their defaults.
func NewLoader(fs afero.Fs, opts Options) *Loader {
	def := DefaultOptions()
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = def.Quality
	}
	if opts.MaxDimension < 0 {
		opts.MaxDimension = 0
	}
	return &Loader{fs: fs, opts: opts}
}

// Load decodes the photo at path and re-encodes it as JPEG, which drops
// EXIF and every other metadata block. Failures are classified corrupt.
func (l *Loader) Load(path string) (*Image, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".heic", ".heif":
		return nil, errs.Corrupt("imageload", fmt.Errorf("%w: HEIC/HEIF cannot be decoded: %s", ErrUnsupportedFormat, path))
	}

	raw, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return nil, errs.Corrupt("imageload", fmt.Errorf("read %s: %w", path, err))
	}
	return l.Decode(raw)
}

// Decode normalizes an encoded photo held in memory
func (l *Loader) Decode(raw []byte) (*Image, error) {
	src, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, errs.Corrupt("imageload", fmt.Errorf("decode: %w", err))
	}

	b := src.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, errs.Corrupt("imageload", errors.New("image has no pixels"))
	}

	w, h := fitWithin(b.Dx(), b.Dy(), l.opts.MaxDimension)

	// flatten onto white so transparent areas do not turn black in JPEG
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: l.opts.Quality}); err != nil {
		return nil, errs.Processing("imageload", fmt.Errorf("encode: %w", err))
	}

	return &Image{Data: buf.Bytes(), Width: w, Height: h, Format: format}, nil
}

// fitWithin scales w×h down so the longest side is at most limit, keeping the aspect ratio
func fitWithin(w, h, limit int) (int, int) {
	if limit <= 0 || (w <= limit && h <= limit) {
		return w, h
	}
	if w >= h {
		return limit, atLeastOne(h * limit / w)
	}
	return atLeastOne(w * limit / h), limit
}

func atLeastOne(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
