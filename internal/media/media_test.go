package media

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestPreparePassthrough(t *testing.T) {
	data := encodePNG(t, 100, 60)

	out, err := Prepare(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Error("in-limit images must pass through byte-identical")
	}
}

func TestPrepareDownscales(t *testing.T) {
	data := encodePNG(t, MaxDimension+500, 200)

	out, err := Prepare(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	img, format, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if format != "png" {
		t.Errorf("normalized output must be png, got %s", format)
	}
	if img.Bounds().Dx() > MaxDimension || img.Bounds().Dy() > MaxDimension {
		t.Errorf("output exceeds max dimension: %v", img.Bounds())
	}
}

func TestPrepareRejectsNonImage(t *testing.T) {
	if _, err := Prepare([]byte("%PDF-1.4 not an image")); err == nil {
		t.Fatal("expected error for non-image payload")
	}
}

func TestDetectMIME(t *testing.T) {
	data := encodePNG(t, 4, 4)
	if got := DetectMIME(data); got != "image/png" {
		t.Errorf("expected image/png, got %s", got)
	}
	if !IsSupported("image/png") || IsSupported("application/pdf") {
		t.Error("support table wrong")
	}
}
