package anpr

import (
	"sync"
	"time"
)

// SnapshotReader is the observer-facing view of the pipeline state.
type SnapshotReader interface {
	// Current returns the latest published snapshot without blocking. Before
	// the loop publishes anything it returns a snapshot in SourceStarting
	// state.
	Current() PipelineSnapshot
}

// SnapshotSlot is a guarded single slot holding the latest PipelineSnapshot.
// The capture loop overwrites it wholesale every cycle; observers on other
// goroutines read whichever complete snapshot was published last. Readers are
// not guaranteed to see every intermediate frame, only the most recent.
type SnapshotSlot struct {
	mu      sync.RWMutex
	current PipelineSnapshot
}

// NewSnapshotSlot returns a slot primed with the starting sentinel.
func NewSnapshotSlot() *SnapshotSlot {
	return &SnapshotSlot{current: PipelineSnapshot{
		State:     SourceStarting,
		Timestamp: time.Now(),
	}}
}

// Publish replaces the stored snapshot.
func (s *SnapshotSlot) Publish(snap PipelineSnapshot) {
	s.mu.Lock()
	s.current = snap
	s.mu.Unlock()
}

// Current returns the latest published snapshot.
func (s *SnapshotSlot) Current() PipelineSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}
