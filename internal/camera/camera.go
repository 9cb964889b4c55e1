// Package camera provides frame sources for the detection pipeline: a real
// OpenCV-backed device source and a replay source for dev mode and tests.
package camera

import (
	"context"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/plategate/plategate/internal/anpr"
)

// Config describes the device and the shape frames are normalized to.
type Config struct {
	// Device is a camera index ("0") or a stream URL/file path, passed to
	// OpenCV as-is.
	Device string
	// Width and Height are the target resolution every frame is resized to
	// so downstream stages see a stable input shape.
	Width  int
	Height int
	// FPS is requested from the device; not all devices honour it.
	FPS float64
	// ReadTimeout bounds each NextFrame call. A read that does not complete
	// in time fails with a Timeout capture error.
	ReadTimeout time.Duration
}

// Source reads frames from a video device. A dedicated reader goroutine owns
// the VideoCapture handle; NextFrame waits on its output under the bounded
// read timeout, so a wedged device can never block the capture loop past the
// deadline.
type Source struct {
	cfg     Config
	frames  chan anpr.Frame
	errs    chan error
	capture *gocv.VideoCapture
	done    chan struct{}
	reader  sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// Open connects to the device and starts the reader goroutine.
func Open(cfg Config) (*Source, error) {
	if cfg.Width == 0 {
		cfg.Width = 640
	}
	if cfg.Height == 0 {
		cfg.Height = 480
	}
	if cfg.FPS == 0 {
		cfg.FPS = 30
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = time.Second
	}

	capture, err := gocv.OpenVideoCapture(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("failed to open video capture %q: %w", cfg.Device, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("video capture %q is not opened", cfg.Device)
	}

	capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	capture.Set(gocv.VideoCaptureFPS, cfg.FPS)

	s := &Source{
		cfg:     cfg,
		frames:  make(chan anpr.Frame),
		errs:    make(chan error),
		capture: capture,
		done:    make(chan struct{}),
	}
	s.reader.Add(1)
	go s.readLoop()
	log.Printf("camera %q opened at %dx%d", cfg.Device, cfg.Width, cfg.Height)
	return s, nil
}

// readLoop owns the VideoCapture. Blocking device reads happen here so the
// capture loop can enforce its own timeout on the channel receive.
func (s *Source) readLoop() {
	defer s.reader.Done()

	img := gocv.NewMat()
	defer img.Close()
	resized := gocv.NewMat()
	defer resized.Close()

	for {
		select {
		case <-s.done:
			return
		default:
		}

		if !s.capture.Read(&img) {
			s.deliverErr(anpr.NewCaptureError(anpr.DeviceUnavailable,
				fmt.Errorf("read from %q failed", s.cfg.Device)))
			continue
		}
		if img.Empty() {
			s.deliverErr(anpr.NewCaptureError(anpr.DecodeFailure,
				fmt.Errorf("empty frame from %q", s.cfg.Device)))
			continue
		}

		src := img
		if img.Cols() != s.cfg.Width || img.Rows() != s.cfg.Height {
			gocv.Resize(img, &resized, image.Pt(s.cfg.Width, s.cfg.Height), 0, 0, gocv.InterpolationLinear)
			src = resized
		}

		frame, err := frameFromBGRMat(src)
		if err != nil {
			s.deliverErr(anpr.NewCaptureError(anpr.DecodeFailure, err))
			continue
		}

		select {
		case s.frames <- frame:
		case <-s.done:
			return
		}
	}
}

func (s *Source) deliverErr(err error) {
	select {
	case s.errs <- err:
	case <-s.done:
	}
}

// frameFromBGRMat copies a BGR Mat into an anpr.Frame stamped with the read
// time.
func frameFromBGRMat(m gocv.Mat) (anpr.Frame, error) {
	data, err := m.DataPtrUint8()
	if err != nil {
		return anpr.Frame{}, fmt.Errorf("failed to read frame data: %w", err)
	}
	pix := make([]byte, len(data))
	copy(pix, data)
	return anpr.Frame{
		Timestamp: time.Now(),
		Width:     m.Cols(),
		Height:    m.Rows(),
		Channels:  m.Channels(),
		Pix:       pix,
	}, nil
}

// NextFrame returns the next frame from the reader goroutine, bounded by the
// configured read timeout and the caller's context.
func (s *Source) NextFrame(ctx context.Context) (anpr.Frame, error) {
	timer := time.NewTimer(s.cfg.ReadTimeout)
	defer timer.Stop()

	select {
	case frame := <-s.frames:
		return frame, nil
	case err := <-s.errs:
		return anpr.Frame{}, err
	case <-timer.C:
		return anpr.Frame{}, anpr.NewCaptureError(anpr.Timeout,
			fmt.Errorf("no frame from %q within %v", s.cfg.Device, s.cfg.ReadTimeout))
	case <-ctx.Done():
		return anpr.Frame{}, ctx.Err()
	}
}

// Close stops the reader goroutine, waits for it to exit, and releases the
// device. Safe to call more than once.
func (s *Source) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)
	s.reader.Wait()
	return s.capture.Close()
}
