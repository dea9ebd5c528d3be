package captcha

import (
	"bytes"
	"image/png"
	"testing"
)

func TestDigitRendererRender(t *testing.T) {
	r, err := NewDigitRenderer(5, 0, 0)
	if err != nil {
		t.Fatalf("NewDigitRenderer returned error: %v", err)
	}

	text, data, err := r.Render()
	if err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	if len(text) != 5 {
		t.Fatalf("text %q has length %d, want 5", text, len(text))
	}
	for _, c := range text {
		if c < '0' || c > '9' {
			t.Fatalf("text %q contains non-digit", text)
		}
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("rendered image is not a PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 240 || b.Dy() != 80 {
		t.Fatalf("unexpected image size: %v", b)
	}
}

func TestDigitRendererCustomSize(t *testing.T) {
	r, err := NewDigitRenderer(4, 160, 60)
	if err != nil {
		t.Fatal(err)
	}
	_, data, err := r.Render()
	if err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 160 || b.Dy() != 60 {
		t.Fatalf("unexpected image size: %v", b)
	}
}

func TestNewDigitRendererRejectsLength(t *testing.T) {
	for _, n := range []int{0, 3, 7} {
		if _, err := NewDigitRenderer(n, 0, 0); err == nil {
			t.Fatalf("length %d should be rejected", n)
		}
	}
}
