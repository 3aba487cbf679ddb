package utils

import (
	"bytes"
	"errors"
)

var ErrUnsupportedImage = errors.New("invalid or unsupported image format")

// DetectImageFormat sniffs the image format from magic bytes. Only the
// formats the platforms accept are recognized.
func DetectImageFormat(data []byte) (string, error) {
	switch {
	case len(data) >= 3 && bytes.Equal(data[:3], []byte{0xFF, 0xD8, 0xFF}):
		return "jpg", nil
	case len(data) >= 8 && bytes.Equal(data[:8], []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}):
		return "png", nil
	case len(data) >= 6 && (bytes.Equal(data[:6], []byte("GIF87a")) || bytes.Equal(data[:6], []byte("GIF89a"))):
		return "gif", nil
	default:
		return "", ErrUnsupportedImage
	}
}
