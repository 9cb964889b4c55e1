package anpr

import "context"

// FrameSource abstracts a camera or video device. NextFrame returns the next
// available frame normalized to the configured resolution and channel order.
// It must not block past the source's bounded read timeout; on timeout or
// device error it returns a *CaptureError, which the capture loop treats as
// transient.
type FrameSource interface {
	NextFrame(ctx context.Context) (Frame, error)
	Close() error
}

// Preprocessor normalizes a raw frame for plate localization. Deterministic
// given identical input and configuration, with no failure path.
type Preprocessor interface {
	Process(frame Frame) Frame
}

// Locator finds candidate plate regions in a processed frame, ordered by
// area descending so the most plate-like region is tried first. The slice is
// regenerated per frame and may be empty; no errors escape.
type Locator interface {
	Locate(processed Frame) []PlateCandidate
}

// Recognizer runs OCR over one candidate region. Engine failure yields a
// zero-confidence result rather than an error so one bad candidate cannot
// abort the rest of the frame.
type Recognizer interface {
	Recognize(candidate PlateCandidate) RecognitionResult
	Close() error
}

// Registry answers whether a normalized plate is authorized. Callers bound
// the context; implementations must respect cancellation. Lookup failure is
// treated as unauthorized by the loop (fail closed).
type Registry interface {
	IsAuthorized(ctx context.Context, plate string) (bool, error)
}

// Emitter durably records a detection event. Failure to record is logged by
// the caller and never blocks or aborts the capture cycle.
type Emitter interface {
	Record(ctx context.Context, event DetectionEvent) error
}
