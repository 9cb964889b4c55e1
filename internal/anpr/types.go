// Package anpr holds the core detection pipeline: the data types that flow
// between stages, the stage interfaces, the validator and debounce gate, and
// the capture loop that drives a frame from acquisition to a recorded access
// decision.
package anpr

import (
	"fmt"
	"image"
	"image/color"
	"time"
)

// Frame is a timestamped grid of pixel intensities. Channels is 1 for
// grayscale data and 3 for BGR colour data (OpenCV channel order). Each
// pipeline stage produces a fresh Frame rather than mutating its input, so a
// Frame handed across a stage boundary is never written to again.
type Frame struct {
	Timestamp time.Time
	Width     int
	Height    int
	Channels  int
	Pix       []byte
}

// Empty reports whether the frame carries no pixel data.
func (f Frame) Empty() bool {
	return f.Width <= 0 || f.Height <= 0 || len(f.Pix) == 0
}

// Clone returns a deep copy of the frame.
func (f Frame) Clone() Frame {
	out := f
	out.Pix = make([]byte, len(f.Pix))
	copy(out.Pix, f.Pix)
	return out
}

// Crop returns a copy of the sub-region r of a 1-channel frame. The region
// is clamped to the frame bounds; an empty intersection yields an empty
// Frame.
func (f Frame) Crop(r image.Rectangle) Frame {
	if f.Channels != 1 {
		return Frame{}
	}
	r = r.Intersect(image.Rect(0, 0, f.Width, f.Height))
	if r.Empty() {
		return Frame{}
	}
	out := Frame{
		Timestamp: f.Timestamp,
		Width:     r.Dx(),
		Height:    r.Dy(),
		Channels:  1,
		Pix:       make([]byte, r.Dx()*r.Dy()),
	}
	for y := 0; y < out.Height; y++ {
		srcOff := (r.Min.Y+y)*f.Width + r.Min.X
		copy(out.Pix[y*out.Width:(y+1)*out.Width], f.Pix[srcOff:srcOff+out.Width])
	}
	return out
}

// ToImage converts the frame to a stdlib image for encoding. Grayscale
// frames become *image.Gray; BGR frames become *image.RGBA with the channel
// order swapped.
func (f Frame) ToImage() image.Image {
	switch f.Channels {
	case 1:
		img := image.NewGray(image.Rect(0, 0, f.Width, f.Height))
		copy(img.Pix, f.Pix)
		return img
	case 3:
		img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
		for y := 0; y < f.Height; y++ {
			for x := 0; x < f.Width; x++ {
				off := (y*f.Width + x) * 3
				img.SetRGBA(x, y, color.RGBA{
					R: f.Pix[off+2],
					G: f.Pix[off+1],
					B: f.Pix[off],
					A: 0xff,
				})
			}
		}
		return img
	default:
		return image.NewGray(image.Rect(0, 0, 0, 0))
	}
}

// PlateCandidate is a rectangular region hypothesized to contain a plate.
// The locator creates candidates, the recognizer consumes them, and they are
// discarded after recognition.
type PlateCandidate struct {
	Bounds      image.Rectangle
	AspectRatio float64
	Area        float64
	Crop        Frame // 1-channel cut from the processed frame
}

// RecognitionResult is the raw OCR outcome for one candidate. Confidence is
// always populated: zero on recognizer failure, never absent.
type RecognitionResult struct {
	RawText    string
	Confidence float64
	Candidate  PlateCandidate
}

// ValidatedPlate is a recognition result that passed normalization and the
// plate-format policy at or above the confidence threshold.
type ValidatedPlate struct {
	NormalizedText string    `json:"plate"`
	Confidence     float64   `json:"confidence"`
	Timestamp      time.Time `json:"timestamp"`
}

// DetectionEvent records one debounced access decision. It is immutable once
// created and handed to the emitter exactly once.
type DetectionEvent struct {
	ID                string         `json:"id"`
	Plate             ValidatedPlate `json:"plate"`
	Authorized        bool           `json:"authorized"`
	Timestamp         time.Time      `json:"timestamp"`
	DecisionLatencyMs int64          `json:"decision_latency_ms"`
}

func (e DetectionEvent) String() string {
	status := "unauthorized"
	if e.Authorized {
		status = "authorized"
	}
	return fmt.Sprintf("%s %s (confidence %.2f, %dms)",
		e.Plate.NormalizedText, status, e.Plate.Confidence, e.DecisionLatencyMs)
}

// SourceState describes the health of the frame source as seen by observers.
type SourceState string

const (
	// SourceStarting is the sentinel before the loop publishes anything.
	SourceStarting SourceState = "starting"
	// SourceRunning means frames are flowing.
	SourceRunning SourceState = "running"
	// SourceUnavailable means the source exceeded the consecutive-failure
	// limit and the loop is retrying with backoff.
	SourceUnavailable SourceState = "source_unavailable"
)

// PipelineSnapshot is the latest published pipeline state. It is the single
// piece of state shared with observer goroutines and is replaced wholesale on
// every publish so readers never see a partial mix of frame and decision.
type PipelineSnapshot struct {
	State               SourceState     `json:"state"`
	Frame               Frame           `json:"-"`
	Plate               *ValidatedPlate `json:"plate,omitempty"`
	Authorized          *bool           `json:"authorized,omitempty"`
	Timestamp           time.Time       `json:"timestamp"`
	FrameCount          int64           `json:"frame_count"`
	ConsecutiveFailures int             `json:"consecutive_failures"`
}
