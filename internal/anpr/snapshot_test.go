package anpr

import (
	"sync"
	"testing"
	"time"
)

func TestSnapshotSlotStartsWithSentinel(t *testing.T) {
	slot := NewSnapshotSlot()

	snap := slot.Current()
	if snap.State != SourceStarting {
		t.Errorf("initial state = %q, want %q", snap.State, SourceStarting)
	}
	if snap.Plate != nil {
		t.Error("initial snapshot should carry no plate")
	}
	if snap.Timestamp.IsZero() {
		t.Error("initial snapshot should be timestamped")
	}
}

func TestSnapshotSlotReplacesWholesale(t *testing.T) {
	slot := NewSnapshotSlot()

	authorized := true
	slot.Publish(PipelineSnapshot{
		State:      SourceRunning,
		Plate:      &ValidatedPlate{NormalizedText: "AB1234", Confidence: 0.9},
		Authorized: &authorized,
		Timestamp:  time.Now(),
		FrameCount: 1,
	})
	slot.Publish(PipelineSnapshot{
		State:      SourceRunning,
		Timestamp:  time.Now(),
		FrameCount: 2,
	})

	snap := slot.Current()
	if snap.FrameCount != 2 {
		t.Errorf("frame count = %d, want 2", snap.FrameCount)
	}
	if snap.Plate != nil || snap.Authorized != nil {
		t.Error("stale plate or decision leaked into the replacement snapshot")
	}
}

func TestSnapshotSlotConcurrentReaders(t *testing.T) {
	slot := NewSnapshotSlot()

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := slot.Current()
				// A reader must never see a plate without a decision from
				// the same publish.
				if snap.Plate != nil && snap.Authorized == nil {
					t.Error("torn snapshot observed")
					return
				}
			}
		}()
	}

	authorized := false
	for i := 0; i < 1000; i++ {
		if i%2 == 0 {
			slot.Publish(PipelineSnapshot{State: SourceRunning, FrameCount: int64(i)})
		} else {
			slot.Publish(PipelineSnapshot{
				State:      SourceRunning,
				Plate:      &ValidatedPlate{NormalizedText: "AB1234"},
				Authorized: &authorized,
				FrameCount: int64(i),
			})
		}
	}
	close(stop)
	wg.Wait()
}
