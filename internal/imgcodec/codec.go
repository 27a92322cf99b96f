// Package imgcodec decodes captured images and re-encodes them in the
// formats the monitored application asks for.
package imgcodec

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultJPEGQuality matches the quality gdk-pixbuf uses when none is given
const DefaultJPEGQuality = 75

// Decode decodes an image in any registered format
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("decode image: empty data")
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return img, format, nil
}

// Normalize maps format aliases to their canonical name
func Normalize(format string) string {
	switch f := strings.ToLower(strings.TrimSpace(format)); f {
	case "jpg":
		return "jpeg"
	case "tif":
		return "tiff"
	case "":
		return "png"
	default:
		return f
	}
}

// Supported reports whether Encode can produce format
func Supported(format string) bool {
	switch Normalize(format) {
	case "png", "jpeg", "bmp", "tiff":
		return true
	}
	return false
}

// Encode writes img to w in format
func Encode(w io.Writer, img image.Image, format string) error {
	switch f := Normalize(format); f {
	case "png":
		return png.Encode(w, img)
	case "jpeg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: DefaultJPEGQuality})
	case "bmp":
		return bmp.Encode(w, img)
	case "tiff":
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("unsupported image format: %s", f)
	}
}

// EncodeBytes encodes img into a new buffer
func EncodeBytes(img image.Image, format string) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, img, format); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ContentType returns the MIME type for format
func ContentType(format string) string {
	switch f := Normalize(format); f {
	case "jpeg", "png", "bmp", "tiff", "gif", "webp":
		return "image/" + f
	default:
		return "application/octet-stream"
	}
}
