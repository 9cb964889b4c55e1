package anpr

import (
	"errors"
	"fmt"
	"image"
	"testing"
	"time"
)

func grayFrame(w, h int) Frame {
	pix := make([]byte, w*h)
	for i := range pix {
		pix[i] = byte(i % 256)
	}
	return Frame{Timestamp: time.Now(), Width: w, Height: h, Channels: 1, Pix: pix}
}

func TestFrameEmpty(t *testing.T) {
	if !(Frame{}).Empty() {
		t.Error("zero frame should be empty")
	}
	if grayFrame(4, 4).Empty() {
		t.Error("populated frame should not be empty")
	}
}

func TestFrameCloneIsIndependent(t *testing.T) {
	original := grayFrame(4, 4)
	clone := original.Clone()

	clone.Pix[0] = 255
	if original.Pix[0] == 255 {
		t.Error("mutating a clone must not touch the original")
	}
}

func TestFrameCrop(t *testing.T) {
	frame := grayFrame(8, 4)

	crop := frame.Crop(image.Rect(2, 1, 6, 3))
	if crop.Width != 4 || crop.Height != 2 {
		t.Fatalf("crop size = %dx%d, want 4x2", crop.Width, crop.Height)
	}
	// Top-left of the crop is row 1, column 2 of the source.
	if want := frame.Pix[1*8+2]; crop.Pix[0] != want {
		t.Errorf("crop origin pixel = %d, want %d", crop.Pix[0], want)
	}
}

func TestFrameCropClampsToBounds(t *testing.T) {
	frame := grayFrame(4, 4)

	crop := frame.Crop(image.Rect(-2, -2, 10, 10))
	if crop.Width != 4 || crop.Height != 4 {
		t.Errorf("clamped crop = %dx%d, want 4x4", crop.Width, crop.Height)
	}

	empty := frame.Crop(image.Rect(5, 5, 9, 9))
	if !empty.Empty() {
		t.Error("crop fully outside the frame should be empty")
	}
}

func TestFrameToImage(t *testing.T) {
	gray := grayFrame(4, 4)
	img := gray.ToImage()
	if _, ok := img.(*image.Gray); !ok {
		t.Errorf("1-channel frame converted to %T, want *image.Gray", img)
	}
	if got := img.Bounds(); got != image.Rect(0, 0, 4, 4) {
		t.Errorf("bounds = %v, want 4x4", got)
	}

	bgr := Frame{Width: 1, Height: 1, Channels: 3, Pix: []byte{255, 0, 0}} // blue in BGR
	r, g, b, _ := bgr.ToImage().At(0, 0).RGBA()
	if r != 0 || g != 0 || b != 0xffff {
		t.Errorf("BGR pixel decoded to r=%d g=%d b=%d, want pure blue", r, g, b)
	}
}

func TestCaptureErrorClassification(t *testing.T) {
	cause := errors.New("read failed")
	err := NewCaptureError(Timeout, cause)

	ce, ok := AsCaptureError(err)
	if !ok {
		t.Fatal("AsCaptureError failed on a direct CaptureError")
	}
	if ce.Kind != Timeout {
		t.Errorf("kind = %q, want %q", ce.Kind, Timeout)
	}
	if !errors.Is(err, cause) {
		t.Error("CaptureError should unwrap to its cause")
	}

	// Classification survives further wrapping.
	wrapped := fmt.Errorf("cycle failed: %w", err)
	if ce, ok := AsCaptureError(wrapped); !ok || ce.Kind != Timeout {
		t.Error("wrapped CaptureError lost its classification")
	}

	if _, ok := AsCaptureError(cause); ok {
		t.Error("plain error should not classify as CaptureError")
	}
}
