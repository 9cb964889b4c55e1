package db

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/plategate/plategate/internal/anpr"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testEvent(plate string, authorized bool) anpr.DetectionEvent {
	return anpr.DetectionEvent{
		ID: uuid.NewString(),
		Plate: anpr.ValidatedPlate{
			NormalizedText: plate,
			Confidence:     0.8,
			Timestamp:      time.Now(),
		},
		Authorized:        authorized,
		Timestamp:         time.Now(),
		DecisionLatencyMs: 12,
	}
}

func TestAddAndListVehicles(t *testing.T) {
	db := setupTestDB(t)

	if err := db.AddVehicle("ab-1234", "Dana Ng", "sedan"); err != nil {
		t.Fatalf("AddVehicle failed: %v", err)
	}

	vehicles, err := db.ListVehicles()
	if err != nil {
		t.Fatalf("ListVehicles failed: %v", err)
	}
	if len(vehicles) != 1 {
		t.Fatalf("got %d vehicles, want 1", len(vehicles))
	}
	v := vehicles[0]
	if v.PlateNumber != "AB1234" {
		t.Errorf("plate = %q, want normalized AB1234", v.PlateNumber)
	}
	if v.OwnerName != "Dana Ng" || v.VehicleType != "sedan" {
		t.Errorf("owner/type = %q/%q", v.OwnerName, v.VehicleType)
	}
	if v.Status != "active" {
		t.Errorf("status = %q, want active", v.Status)
	}
}

func TestAddVehicleDuplicate(t *testing.T) {
	db := setupTestDB(t)

	if err := db.AddVehicle("AB1234", "", ""); err != nil {
		t.Fatalf("AddVehicle failed: %v", err)
	}
	// Same plate after normalization.
	err := db.AddVehicle("ab 12-34", "", "")
	if !errors.Is(err, ErrDuplicateVehicle) {
		t.Fatalf("duplicate AddVehicle error = %v, want ErrDuplicateVehicle", err)
	}
}

func TestRemoveVehicle(t *testing.T) {
	db := setupTestDB(t)

	if err := db.AddVehicle("AB1234", "", ""); err != nil {
		t.Fatalf("AddVehicle failed: %v", err)
	}

	removed, err := db.RemoveVehicle("ab1234")
	if err != nil {
		t.Fatalf("RemoveVehicle failed: %v", err)
	}
	if !removed {
		t.Error("RemoveVehicle should report a removal")
	}

	removed, err = db.RemoveVehicle("AB1234")
	if err != nil {
		t.Fatalf("second RemoveVehicle failed: %v", err)
	}
	if removed {
		t.Error("removing an absent plate should report false")
	}
}

func TestIsAuthorized(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.AddVehicle("AB1234", "", ""); err != nil {
		t.Fatalf("AddVehicle failed: %v", err)
	}

	ok, err := db.IsAuthorized(ctx, "AB1234")
	if err != nil {
		t.Fatalf("IsAuthorized failed: %v", err)
	}
	if !ok {
		t.Error("registered plate should be authorized")
	}

	ok, err = db.IsAuthorized(ctx, "ZZ9999")
	if err != nil {
		t.Fatalf("IsAuthorized for unknown plate failed: %v", err)
	}
	if ok {
		t.Error("unknown plate should not be authorized")
	}
}

func TestIsAuthorizedIgnoresInactive(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.AddVehicle("AB1234", "", ""); err != nil {
		t.Fatalf("AddVehicle failed: %v", err)
	}
	if _, err := db.Exec(`UPDATE vehicles SET status = 'revoked' WHERE plate_number = 'AB1234'`); err != nil {
		t.Fatalf("Failed to revoke vehicle: %v", err)
	}

	ok, err := db.IsAuthorized(ctx, "AB1234")
	if err != nil {
		t.Fatalf("IsAuthorized failed: %v", err)
	}
	if ok {
		t.Error("revoked plate should not be authorized")
	}
}

func TestRecordAndRecentDetections(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		event := testEvent(fmt.Sprintf("AB%04d", i), i%2 == 0)
		event.Timestamp = time.Now().Add(time.Duration(i) * time.Second)
		if err := db.Record(ctx, event); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	detections, err := db.RecentDetections(2)
	if err != nil {
		t.Fatalf("RecentDetections failed: %v", err)
	}
	if len(detections) != 2 {
		t.Fatalf("got %d detections, want 2", len(detections))
	}
	// Newest first.
	if detections[0].PlateNumber != "AB0002" {
		t.Errorf("newest detection = %q, want AB0002", detections[0].PlateNumber)
	}
	if detections[0].LatencyMs != 12 {
		t.Errorf("latency = %d, want 12", detections[0].LatencyMs)
	}
}

func TestStats(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	// Two authorized sightings of one plate, one unauthorized of another.
	for _, e := range []anpr.DetectionEvent{
		testEvent("AB1234", true),
		testEvent("AB1234", true),
		testEvent("XY9999", false),
	} {
		if err := db.Record(ctx, e); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	stats, err := db.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalDetections != 3 {
		t.Errorf("total = %d, want 3", stats.TotalDetections)
	}
	if stats.AuthorizedCount != 2 || stats.UnauthorizedCount != 1 {
		t.Errorf("authorized/unauthorized = %d/%d, want 2/1",
			stats.AuthorizedCount, stats.UnauthorizedCount)
	}
	if stats.UniquePlates != 2 {
		t.Errorf("unique plates = %d, want 2", stats.UniquePlates)
	}
	if stats.MeanConfidence != 0.8 {
		t.Errorf("mean confidence = %f, want 0.8", stats.MeanConfidence)
	}
}

func TestStatsEmpty(t *testing.T) {
	db := setupTestDB(t)

	stats, err := db.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalDetections != 0 {
		t.Errorf("total = %d, want 0", stats.TotalDetections)
	}
}

func TestDetectionsPerHour(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := db.Record(ctx, testEvent("AB1234", true)); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	labels, counts, err := db.DetectionsPerHour(24)
	if err != nil {
		t.Fatalf("DetectionsPerHour failed: %v", err)
	}
	if len(labels) != len(counts) {
		t.Fatalf("labels/counts length mismatch: %d vs %d", len(labels), len(counts))
	}
	total := 0
	for _, c := range counts {
		total += c
	}
	if total != 4 {
		t.Errorf("summed counts = %d, want 4", total)
	}
}

func TestRecordDuplicateEventID(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	event := testEvent("AB1234", true)
	if err := db.Record(ctx, event); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := db.Record(ctx, event); err == nil {
		t.Error("recording the same event ID twice should fail")
	}
}
