package ocr

import (
	"testing"

	"github.com/plategate/plategate/internal/anpr"
)

func TestRecognizeEmptyCrop(t *testing.T) {
	r, err := New("eng")
	if err != nil {
		t.Skipf("Tesseract not available: %v", err)
	}
	defer r.Close()

	candidate := anpr.PlateCandidate{}
	result := r.Recognize(candidate)
	if result.RawText != "" {
		t.Errorf("raw text = %q, want empty for empty crop", result.RawText)
	}
	if result.Confidence != 0 {
		t.Errorf("confidence = %f, want 0 for empty crop", result.Confidence)
	}
}

func TestNewRejectsUnknownLanguage(t *testing.T) {
	r, err := New("eng")
	if err != nil {
		t.Skipf("Tesseract not available: %v", err)
	}
	r.Close()

	if _, err := New("no-such-language"); err == nil {
		t.Error("expected error for unknown language")
	}
}
