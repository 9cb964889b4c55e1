// Package vision implements the image stages of the detection pipeline on
// top of OpenCV: frame preprocessing and plate-candidate localization.
// Frames cross the package boundary as plain anpr.Frame values; Mats live
// only inside a single call so no OpenCV memory escapes to other goroutines.
package vision

import (
	"image"
	"log"
	"sort"

	"gocv.io/x/gocv"

	"github.com/plategate/plategate/internal/anpr"
)

// matFromFrame copies frame pixels into a Mat. The caller owns the Mat.
func matFromFrame(f anpr.Frame) (gocv.Mat, bool) {
	var mt gocv.MatType
	switch f.Channels {
	case 1:
		mt = gocv.MatTypeCV8UC1
	case 3:
		mt = gocv.MatTypeCV8UC3
	default:
		return gocv.Mat{}, false
	}
	if f.Empty() || len(f.Pix) != f.Width*f.Height*f.Channels {
		return gocv.Mat{}, false
	}
	m, err := gocv.NewMatFromBytes(f.Height, f.Width, mt, f.Pix)
	if err != nil {
		log.Printf("failed to build mat from %dx%dx%d frame: %v", f.Width, f.Height, f.Channels, err)
		return gocv.Mat{}, false
	}
	return m, true
}

// frameFromMat copies a single-channel Mat back into an anpr.Frame,
// preserving the original frame's timestamp.
func frameFromMat(m gocv.Mat, src anpr.Frame) anpr.Frame {
	data, err := m.DataPtrUint8()
	if err != nil {
		log.Printf("failed to read mat data: %v", err)
		return anpr.Frame{Timestamp: src.Timestamp}
	}
	pix := make([]byte, len(data))
	copy(pix, data)
	return anpr.Frame{
		Timestamp: src.Timestamp,
		Width:     m.Cols(),
		Height:    m.Rows(),
		Channels:  m.Channels(),
		Pix:       pix,
	}
}

// PreprocessConfig holds the fixed preprocessing parameters. The adaptive
// threshold block and constant default to the values the detector was tuned
// with (11 and 2).
type PreprocessConfig struct {
	BlurKernel    int // Gaussian kernel size, forced odd, default 5
	AdaptiveBlock int // adaptive threshold neighbourhood, forced odd, default 11
	AdaptiveC     float32
}

// Preprocessor converts a raw frame into the thresholded form the locator
// works on: grayscale, Gaussian smoothing, adaptive Gaussian threshold.
// Deterministic for identical input and configuration.
type Preprocessor struct {
	cfg PreprocessConfig
}

// NewPreprocessor clamps the configuration into a well-formed state and
// returns the stage.
func NewPreprocessor(cfg PreprocessConfig) *Preprocessor {
	if cfg.BlurKernel < 1 {
		cfg.BlurKernel = 5
	}
	if cfg.BlurKernel%2 == 0 {
		cfg.BlurKernel++
	}
	if cfg.AdaptiveBlock < 3 {
		cfg.AdaptiveBlock = 11
	}
	if cfg.AdaptiveBlock%2 == 0 {
		cfg.AdaptiveBlock++
	}
	if cfg.AdaptiveC == 0 {
		cfg.AdaptiveC = 2
	}
	return &Preprocessor{cfg: cfg}
}

// Process normalizes a frame for localization. It never fails: malformed
// input yields an empty frame, which the locator treats as candidate-free.
func (p *Preprocessor) Process(frame anpr.Frame) anpr.Frame {
	src, ok := matFromFrame(frame)
	if !ok {
		return anpr.Frame{Timestamp: frame.Timestamp}
	}
	defer src.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	if frame.Channels == 3 {
		gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)
	} else {
		src.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	k := p.cfg.BlurKernel
	gocv.GaussianBlur(gray, &blurred, image.Pt(k, k), 0, 0, gocv.BorderDefault)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.AdaptiveThreshold(blurred, &thresh, 255,
		gocv.AdaptiveThresholdGaussian, gocv.ThresholdBinary,
		p.cfg.AdaptiveBlock, p.cfg.AdaptiveC)

	return frameFromMat(thresh, frame)
}

// LocatorConfig bounds the geometry a contour must have to count as a plate
// candidate.
type LocatorConfig struct {
	AspectMin float64 // width/height lower bound, default 2.0
	AspectMax float64 // width/height upper bound, default 6.5
	MinArea   float64 // bounding-box area lower bound in px², default 1000
	MaxArea   float64 // bounding-box area upper bound in px², default 60000
}

// Locator finds rectangular plate-like regions in a thresholded frame by
// contour extraction and aspect-ratio/area filtering.
type Locator struct {
	cfg LocatorConfig
}

// NewLocator applies defaults for unset bounds and returns the stage.
func NewLocator(cfg LocatorConfig) *Locator {
	if cfg.AspectMin == 0 {
		cfg.AspectMin = 2.0
	}
	if cfg.AspectMax == 0 {
		cfg.AspectMax = 6.5
	}
	if cfg.MinArea == 0 {
		cfg.MinArea = 1000
	}
	if cfg.MaxArea == 0 {
		cfg.MaxArea = 60000
	}
	return &Locator{cfg: cfg}
}

// Locate returns plate candidates ordered by area descending. Malformed
// geometry (zero-height boxes, regions outside the frame) is silently
// filtered; a frame with no plate-shaped region yields an empty slice.
func (l *Locator) Locate(processed anpr.Frame) []anpr.PlateCandidate {
	if processed.Channels != 1 || processed.Empty() {
		return nil
	}
	src, ok := matFromFrame(processed)
	if !ok {
		return nil
	}
	defer src.Close()

	contours := gocv.FindContours(src, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	bounds := image.Rect(0, 0, processed.Width, processed.Height)
	var candidates []anpr.PlateCandidate
	for i := 0; i < contours.Size(); i++ {
		rect := gocv.BoundingRect(contours.At(i)).Intersect(bounds)
		if rect.Dx() <= 0 || rect.Dy() <= 0 {
			continue
		}
		aspect := float64(rect.Dx()) / float64(rect.Dy())
		area := float64(rect.Dx() * rect.Dy())
		if aspect < l.cfg.AspectMin || aspect > l.cfg.AspectMax {
			continue
		}
		if area < l.cfg.MinArea || area > l.cfg.MaxArea {
			continue
		}
		candidates = append(candidates, anpr.PlateCandidate{
			Bounds:      rect,
			AspectRatio: aspect,
			Area:        area,
			Crop:        processed.Crop(rect),
		})
	}

	// Largest first so recognition tries the most plate-like region before
	// smaller noise and the loop can short-circuit.
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Area > candidates[j].Area
	})
	return candidates
}
