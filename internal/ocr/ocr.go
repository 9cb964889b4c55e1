// Package ocr adapts the Tesseract engine (via gosseract) to the pipeline's
// Recognizer interface.
package ocr

import (
	"bytes"
	"fmt"
	"image/png"
	"log"

	"github.com/otiai10/gosseract/v2"

	"github.com/plategate/plategate/internal/anpr"
)

// plateCharset restricts recognition to the characters a plate can carry,
// which cuts down on stray punctuation in low-contrast crops.
const plateCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Recognizer runs Tesseract over candidate crops. It is owned by the capture
// loop goroutine and must not be shared: the underlying client keeps
// per-image state between SetImageFromBytes and Text.
type Recognizer struct {
	client *gosseract.Client
}

// New creates a recognizer for the given Tesseract language (e.g. "eng").
// Plates are a single line of constrained characters, so the client is
// pinned to single-line page segmentation and the plate charset.
func New(language string) (*Recognizer, error) {
	client := gosseract.NewClient()
	if language == "" {
		language = "eng"
	}
	if err := client.SetLanguage(language); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set OCR language %q: %w", language, err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	if err := client.SetWhitelist(plateCharset); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set character whitelist: %w", err)
	}
	return &Recognizer{client: client}, nil
}

// Recognize extracts text from one candidate crop. Engine failures produce a
// zero-confidence result instead of an error so one bad candidate never
// aborts the remaining candidates in the frame.
func (r *Recognizer) Recognize(candidate anpr.PlateCandidate) anpr.RecognitionResult {
	failed := anpr.RecognitionResult{Candidate: candidate}

	if candidate.Crop.Empty() {
		return failed
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, candidate.Crop.ToImage()); err != nil {
		log.Printf("failed to encode candidate crop: %v", err)
		return failed
	}
	if err := r.client.SetImageFromBytes(buf.Bytes()); err != nil {
		log.Printf("failed to set OCR image: %v", err)
		return failed
	}
	text, err := r.client.Text()
	if err != nil {
		log.Printf("OCR failed on candidate at %v: %v", candidate.Bounds, err)
		return failed
	}

	return anpr.RecognitionResult{
		RawText:    text,
		Confidence: r.confidence(),
		Candidate:  candidate,
	}
}

// confidence averages Tesseract's word-level confidences and scales them to
// [0,1]. No detected words means zero confidence.
func (r *Recognizer) confidence() float64 {
	boxes, err := r.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return 0
	}
	var total float64
	var count int
	for _, box := range boxes {
		if box.Confidence > 0 {
			total += box.Confidence
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return total / float64(count) / 100.0
}

// Close releases the Tesseract client.
func (r *Recognizer) Close() error {
	return r.client.Close()
}
