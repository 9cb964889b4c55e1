package camera

import (
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/plategate/plategate/internal/anpr"
)

// ReplaySource loops over a fixed set of frames, standing in for a camera in
// dev mode and tests. It implements anpr.FrameSource.
type ReplaySource struct {
	frames   []anpr.Frame
	interval time.Duration
	next     int
	last     time.Time
}

// NewReplaySource builds a source that cycles through frames at the given
// interval. Frames are returned as copies so the pipeline's ownership rule
// holds even when the set loops.
func NewReplaySource(frames []anpr.Frame, interval time.Duration) (*ReplaySource, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("replay source needs at least one frame")
	}
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &ReplaySource{frames: frames, interval: interval}, nil
}

// LoadReplayDir reads every .png/.jpg in dir (sorted by name) into frames
// normalized to width x height grayscale.
func LoadReplayDir(dir string, width, height int) ([]anpr.Frame, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read replay directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		switch filepath.Ext(e.Name()) {
		case ".png", ".jpg", ".jpeg":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var frames []anpr.Frame
	for _, name := range names {
		f, err := os.Open(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to open replay frame %s: %w", name, err)
		}
		img, _, err := image.Decode(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to decode replay frame %s: %w", name, err)
		}
		frames = append(frames, grayFrameFromImage(img, width, height))
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no replay frames found in %s", dir)
	}
	return frames, nil
}

// grayFrameFromImage samples img into a width x height grayscale frame using
// nearest-neighbour scaling. Replay input is test fixture material, so
// fidelity matters less than having a stable shape.
func grayFrameFromImage(img image.Image, width, height int) anpr.Frame {
	b := img.Bounds()
	pix := make([]byte, width*height)
	for y := 0; y < height; y++ {
		srcY := b.Min.Y + y*b.Dy()/height
		for x := 0; x < width; x++ {
			srcX := b.Min.X + x*b.Dx()/width
			g := color.GrayModel.Convert(img.At(srcX, srcY)).(color.Gray)
			pix[y*width+x] = g.Y
		}
	}
	return anpr.Frame{Width: width, Height: height, Channels: 1, Pix: pix}
}

// NextFrame returns the next frame in the cycle, pacing to the configured
// interval.
func (r *ReplaySource) NextFrame(ctx context.Context) (anpr.Frame, error) {
	if !r.last.IsZero() {
		if wait := r.interval - time.Since(r.last); wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return anpr.Frame{}, ctx.Err()
			}
		}
	}
	r.last = time.Now()

	frame := r.frames[r.next].Clone()
	frame.Timestamp = time.Now()
	r.next = (r.next + 1) % len(r.frames)
	return frame, nil
}

// Close is a no-op; replay frames live in memory.
func (r *ReplaySource) Close() error { return nil }
