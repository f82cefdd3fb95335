// Package media prepares drawing images for inline provider payloads.
// It detects MIME types from magic bytes and normalizes oversized exports
// down to a bounded PNG.
package media

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"

	. "github.com/documind/cadalyst/internal/logging"

	// Register webp; CAD viewers sometimes export it
	_ "golang.org/x/image/webp"
)

// Inline payload limits. Gateway requests embed the image as base64, so
// dimension and byte caps keep requests well under provider body limits.
const (
	MaxDimension = 3000
	MaxBytes     = 6 * 1024 * 1024
)

// Supported image MIME types for vision analysis
var SupportedMIMETypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// DetectMIME returns the MIME type from magic bytes (not file extension).
func DetectMIME(data []byte) string {
	return mimetype.Detect(data).String()
}

// IsSupported returns true if the MIME type is accepted for analysis.
func IsSupported(mimeType string) bool {
	return SupportedMIMETypes[mimeType]
}

// Prepare validates and normalizes raw image bytes for analysis. Images
// already within limits pass through untouched so payloads stay
// byte-identical across repeated analyses. Oversized images are downscaled
// with Lanczos and re-encoded as PNG.
func Prepare(data []byte) ([]byte, error) {
	mime := DetectMIME(data)
	if !IsSupported(mime) {
		return nil, fmt.Errorf("unsupported image type: %s", mime)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	if width <= MaxDimension && height <= MaxDimension && len(data) <= MaxBytes {
		return data, nil
	}

	L_debug("media: normalizing image", "width", width, "height", height, "bytes", len(data))

	resized := imaging.Fit(img, MaxDimension, MaxDimension, imaging.Lanczos)

	var buf bytes.Buffer
	if err := png.Encode(&buf, resized); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	if buf.Len() > MaxBytes {
		return nil, fmt.Errorf("image still %d bytes after resize (max %d)", buf.Len(), MaxBytes)
	}

	rb := resized.Bounds()
	L_info("media: image normalized",
		"from", fmt.Sprintf("%dx%d", width, height),
		"to", fmt.Sprintf("%dx%d", rb.Dx(), rb.Dy()),
		"bytes", buf.Len())

	return buf.Bytes(), nil
}
