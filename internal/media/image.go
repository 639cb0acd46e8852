package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"net/http"
)

const (
	MaxLogoBytes     = 2 << 20
	MaxLogoDimension = 4096
)

var (
	ErrNotPNG      = errors.New("media: logo must be a PNG image")
	ErrTooLarge    = errors.New("media: image is too large")
	ErrUnsupported = errors.New("media: unsupported image type")
)

// StripMetadata re-encodes the image so ancillary chunks and EXIF data are
// dropped.
func StripMetadata(data []byte, contentType string) ([]byte, error) {
	switch contentType {
	case "image/jpeg":
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding jpeg: %w", err)
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 92}); err != nil {
			return nil, fmt.Errorf("encoding jpeg: %w", err)
		}
		return buf.Bytes(), nil
	case "image/png":
		img, err := png.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding png: %w", err)
		}
		return encodePNG(img)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, contentType)
}

// NormalizeLogo checks that data is a PNG within the size limits and returns
// a clean re-encoding of it.
func NormalizeLogo(data []byte) ([]byte, error) {
	if len(data) > MaxLogoBytes {
		return nil, ErrTooLarge
	}
	if http.DetectContentType(data) != "image/png" {
		return nil, ErrNotPNG
	}

	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotPNG, err)
	}
	if cfg.Width > MaxLogoDimension || cfg.Height > MaxLogoDimension {
		return nil, ErrTooLarge
	}

	return StripMetadata(data, "image/png")
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding png: %w", err)
	}
	return buf.Bytes(), nil
}
