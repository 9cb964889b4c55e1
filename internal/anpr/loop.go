package anpr

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
)

// LoopConfig holds the capture loop's retry and timeout parameters. Zero
// values are replaced with defaults by NewCaptureLoop.
type LoopConfig struct {
	// FrameInterval paces cycles for sources that do not block between
	// frames (replay sources). Zero means the source's own read cadence
	// paces the loop.
	FrameInterval time.Duration
	// BackoffBase is the first retry delay after a capture error; it doubles
	// per consecutive failure up to BackoffMax.
	BackoffBase time.Duration
	BackoffMax  time.Duration
	// MaxConsecutiveFailures is the failure count at which the published
	// snapshot switches to SourceUnavailable. The loop keeps retrying; an
	// operator is expected to restore the device.
	MaxConsecutiveFailures int
	// RegistryTimeout bounds each authorization lookup; on expiry the
	// decision fails closed to unauthorized.
	RegistryTimeout time.Duration
	// EmitTimeout bounds each event delivery; on expiry the failure is
	// logged and the cycle continues.
	EmitTimeout time.Duration
}

// CaptureLoop owns a dedicated goroutine that pulls frames and drives them
// through preprocess, locate, recognize, validate, debounce, lookup and emit,
// publishing the latest decision to the snapshot slot after every cycle.
type CaptureLoop struct {
	source     FrameSource
	pre        Preprocessor
	locator    Locator
	recognizer Recognizer
	validator  *Validator
	gate       *DebounceGate
	registry   Registry
	emitter    Emitter
	slot       *SnapshotSlot
	cfg        LoopConfig

	frameCount   int64
	consecFails  int
	lastPlate    string // plate text of the most recent registry decision
	lastDecision bool   // the decision itself, redisplayed while the plate stays in frame
	hasDecision  bool
}

// NewCaptureLoop wires the pipeline stages together. The returned loop is
// not started; call Run on its own goroutine.
func NewCaptureLoop(
	source FrameSource,
	pre Preprocessor,
	locator Locator,
	recognizer Recognizer,
	validator *Validator,
	gate *DebounceGate,
	registry Registry,
	emitter Emitter,
	slot *SnapshotSlot,
	cfg LoopConfig,
) *CaptureLoop {
	if cfg.BackoffBase == 0 {
		cfg.BackoffBase = 100 * time.Millisecond
	}
	if cfg.BackoffMax == 0 {
		cfg.BackoffMax = 5 * time.Second
	}
	if cfg.MaxConsecutiveFailures == 0 {
		cfg.MaxConsecutiveFailures = 10
	}
	if cfg.RegistryTimeout == 0 {
		cfg.RegistryTimeout = 500 * time.Millisecond
	}
	if cfg.EmitTimeout == 0 {
		cfg.EmitTimeout = time.Second
	}
	return &CaptureLoop{
		source:     source,
		pre:        pre,
		locator:    locator,
		recognizer: recognizer,
		validator:  validator,
		gate:       gate,
		registry:   registry,
		emitter:    emitter,
		slot:       slot,
		cfg:        cfg,
	}
}

// Snapshots returns the observer-facing view of the loop state.
func (l *CaptureLoop) Snapshots() SnapshotReader { return l.slot }

// Run drives capture cycles until ctx is cancelled. The stop signal is
// checked once per cycle boundary; a cycle that has already debounced a
// plate completes its lookup, emit and publish steps before the next check,
// so shutdown never drops an in-flight event. Run returns nil on cancel;
// capture errors are retried with backoff, never returned.
func (l *CaptureLoop) Run(ctx context.Context) error {
	log.Printf("capture loop started")
	for {
		select {
		case <-ctx.Done():
			log.Printf("capture loop stopped after %d frames", l.frameCount)
			return nil
		default:
		}

		start := time.Now()
		if err := l.cycle(ctx); err != nil {
			l.handleCaptureError(ctx, err)
			continue
		}

		if l.cfg.FrameInterval > 0 {
			if remaining := l.cfg.FrameInterval - time.Since(start); remaining > 0 {
				select {
				case <-time.After(remaining):
				case <-ctx.Done():
				}
			}
		}
	}
}

// cycle processes a single frame end to end. Only frame acquisition can
// fail; every later stage degrades instead of erroring.
func (l *CaptureLoop) cycle(ctx context.Context) error {
	frame, err := l.source.NextFrame(ctx)
	if err != nil {
		return err
	}
	l.consecFails = 0
	l.frameCount++

	processed := l.pre.Process(frame)
	candidates := l.locator.Locate(processed)

	// First validated candidate wins. Candidates arrive largest first, so
	// the most plate-like region is tried before smaller noise regions and
	// the rest of the frame is short-circuited.
	var plate *ValidatedPlate
	for _, cand := range candidates {
		result := l.recognizer.Recognize(cand)
		if v, ok := l.validator.Validate(result); ok {
			plate = &v
			break
		}
	}

	var authorized *bool
	if plate != nil {
		if l.gate.Observe(*plate) {
			decision := l.decide(ctx, *plate, frame.Timestamp)
			authorized = &decision
		} else if l.hasDecision && l.lastPlate == plate.NormalizedText {
			// Suppressed repeat of the plate still in frame: redisplay the
			// decision already made for it.
			decision := l.lastDecision
			authorized = &decision
		}
	}

	l.slot.Publish(PipelineSnapshot{
		State:      SourceRunning,
		Frame:      frame,
		Plate:      plate,
		Authorized: authorized,
		Timestamp:  time.Now(),
		FrameCount: l.frameCount,
	})
	return nil
}

// decide performs the registry lookup and event emission for one debounced
// plate occurrence and returns the access decision.
func (l *CaptureLoop) decide(ctx context.Context, plate ValidatedPlate, captured time.Time) bool {
	// A debounced occurrence that reached this point is committed: the
	// lookup and emit run to completion even if the loop is stopping, so a
	// shutdown signal can never drop an in-flight event. Only the stage
	// timeouts bound the calls.
	base := context.WithoutCancel(ctx)

	lookupCtx, cancel := context.WithTimeout(base, l.cfg.RegistryTimeout)
	authorized, err := l.registry.IsAuthorized(lookupCtx, plate.NormalizedText)
	cancel()
	if err != nil {
		// Fail closed: a slow or broken registry must not admit a vehicle.
		authorized = false
		log.Printf("warning: registry lookup for %s failed, treating as unauthorized: %v",
			plate.NormalizedText, err)
	}

	event := DetectionEvent{
		ID:                uuid.NewString(),
		Plate:             plate,
		Authorized:        authorized,
		Timestamp:         time.Now(),
		DecisionLatencyMs: time.Since(captured).Milliseconds(),
	}

	emitCtx, cancel := context.WithTimeout(base, l.cfg.EmitTimeout)
	if err := l.emitter.Record(emitCtx, event); err != nil {
		log.Printf("failed to record detection event %s: %v", event.ID, err)
	}
	cancel()

	log.Printf("detection: %s", event)
	l.lastPlate = plate.NormalizedText
	l.lastDecision = authorized
	l.hasDecision = true
	return authorized
}

// handleCaptureError applies exponential backoff after a frame-source
// failure and flips the published snapshot to SourceUnavailable once the
// consecutive-failure limit is reached. The wait honours ctx so the
// cooperative stop is never delayed by backoff.
func (l *CaptureLoop) handleCaptureError(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	l.consecFails++

	delay := l.cfg.BackoffBase << (l.consecFails - 1)
	if delay > l.cfg.BackoffMax || delay <= 0 {
		delay = l.cfg.BackoffMax
	}

	if ce, ok := AsCaptureError(err); ok {
		log.Printf("capture failure %d (%s), retrying in %v: %v",
			l.consecFails, ce.Kind, delay, err)
	} else {
		log.Printf("capture failure %d, retrying in %v: %v", l.consecFails, delay, err)
	}

	if l.consecFails >= l.cfg.MaxConsecutiveFailures {
		l.slot.Publish(PipelineSnapshot{
			State:               SourceUnavailable,
			Timestamp:           time.Now(),
			FrameCount:          l.frameCount,
			ConsecutiveFailures: l.consecFails,
		})
	}

	select {
	case <-time.After(delay):
	case <-ctx.Done():
	}
}
