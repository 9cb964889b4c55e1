// Package db persists the vehicle registry and detection history in SQLite.
// It backs two of the pipeline's external interfaces: registry lookups
// (anpr.Registry) and durable event records (anpr.Emitter).
package db

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"
	_ "modernc.org/sqlite"

	"github.com/plategate/plategate/internal/anpr"
)

type DB struct {
	*sql.DB
}

// NewDB opens (or creates) the database at path and ensures the schema
// exists.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS vehicles (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			plate_number      TEXT UNIQUE NOT NULL,
			owner_name        TEXT,
			vehicle_type      TEXT,
			registration_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			status            TEXT DEFAULT 'active'
		);
		CREATE TABLE IF NOT EXISTS detections (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id       TEXT UNIQUE NOT NULL,
			plate_number   TEXT NOT NULL,
			authorized     BOOLEAN NOT NULL,
			confidence     REAL,
			latency_ms     BIGINT,
			detection_time TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_detections_time ON detections (detection_time);
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{db}, nil
}

// Vehicle is one registry row.
type Vehicle struct {
	PlateNumber      string    `json:"plate_number"`
	OwnerName        string    `json:"owner_name,omitempty"`
	VehicleType      string    `json:"vehicle_type,omitempty"`
	RegistrationDate time.Time `json:"registration_date"`
	Status           string    `json:"status"`
}

// ErrDuplicateVehicle is returned when a plate is already registered.
var ErrDuplicateVehicle = fmt.Errorf("vehicle already registered")

// AddVehicle registers a plate. The plate is normalized before storage so
// lookups from the pipeline always match.
func (db *DB) AddVehicle(plate, owner, vehicleType string) error {
	plate = anpr.NormalizePlate(plate)
	if plate == "" {
		return fmt.Errorf("empty plate number")
	}
	_, err := db.Exec(
		`INSERT INTO vehicles (plate_number, owner_name, vehicle_type) VALUES (?, ?, ?)`,
		plate, owner, vehicleType,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return ErrDuplicateVehicle
		}
		return fmt.Errorf("failed to add vehicle %s: %w", plate, err)
	}
	return nil
}

// RemoveVehicle deletes a plate from the registry. The bool reports whether
// a row was actually removed.
func (db *DB) RemoveVehicle(plate string) (bool, error) {
	res, err := db.Exec(`DELETE FROM vehicles WHERE plate_number = ?`, anpr.NormalizePlate(plate))
	if err != nil {
		return false, fmt.Errorf("failed to remove vehicle %s: %w", plate, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListVehicles returns all registered vehicles, newest first.
func (db *DB) ListVehicles() ([]Vehicle, error) {
	rows, err := db.Query(`
		SELECT plate_number, owner_name, vehicle_type, registration_date, status
		FROM vehicles ORDER BY registration_date DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list vehicles: %w", err)
	}
	defer rows.Close()

	var vehicles []Vehicle
	for rows.Next() {
		var v Vehicle
		var owner, vtype sql.NullString
		if err := rows.Scan(&v.PlateNumber, &owner, &vtype, &v.RegistrationDate, &v.Status); err != nil {
			return nil, err
		}
		v.OwnerName = owner.String
		v.VehicleType = vtype.String
		vehicles = append(vehicles, v)
	}
	return vehicles, rows.Err()
}

// IsAuthorized reports whether the plate has an active registration. It
// implements anpr.Registry; the capture loop bounds ctx and fails closed on
// error.
func (db *DB) IsAuthorized(ctx context.Context, plate string) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx,
		`SELECT 1 FROM vehicles WHERE plate_number = ? AND status = 'active'`,
		plate,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("registry lookup for %s failed: %w", plate, err)
	}
	return true, nil
}

// Record persists one detection event. It implements anpr.Emitter.
func (db *DB) Record(ctx context.Context, event anpr.DetectionEvent) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO detections (event_id, plate_number, authorized, confidence, latency_ms, detection_time)
		VALUES (?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.Plate.NormalizedText,
		event.Authorized,
		event.Plate.Confidence,
		event.DecisionLatencyMs,
		event.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record detection %s: %w", event.ID, err)
	}
	return nil
}

// Detection is one row of stored history.
type Detection struct {
	EventID       string    `json:"event_id"`
	PlateNumber   string    `json:"plate_number"`
	Authorized    bool      `json:"authorized"`
	Confidence    float64   `json:"confidence"`
	LatencyMs     int64     `json:"latency_ms"`
	DetectionTime time.Time `json:"detection_time"`
}

// RecentDetections returns up to limit detections, newest first.
func (db *DB) RecentDetections(limit int) ([]Detection, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT event_id, plate_number, authorized, confidence, latency_ms, detection_time
		FROM detections ORDER BY detection_time DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query detections: %w", err)
	}
	defer rows.Close()

	var detections []Detection
	for rows.Next() {
		var d Detection
		if err := rows.Scan(&d.EventID, &d.PlateNumber, &d.Authorized, &d.Confidence,
			&d.LatencyMs, &d.DetectionTime); err != nil {
			return nil, err
		}
		detections = append(detections, d)
	}
	return detections, rows.Err()
}

// DetectionStats summarizes the stored history.
type DetectionStats struct {
	TotalDetections   int     `json:"total_detections"`
	AuthorizedCount   int     `json:"authorized_count"`
	UnauthorizedCount int     `json:"unauthorized_count"`
	UniquePlates      int     `json:"unique_plates"`
	MeanConfidence    float64 `json:"mean_confidence"`
	MedianConfidence  float64 `json:"median_confidence"`
	P90Confidence     float64 `json:"p90_confidence"`
}

// Stats computes summary statistics over the most recent detections (up to
// 1000 rows, the same retention the file log applies).
func (db *DB) Stats() (DetectionStats, error) {
	detections, err := db.RecentDetections(1000)
	if err != nil {
		return DetectionStats{}, err
	}

	stats := DetectionStats{TotalDetections: len(detections)}
	if len(detections) == 0 {
		return stats, nil
	}

	plates := make(map[string]bool)
	confidences := make([]float64, 0, len(detections))
	for _, d := range detections {
		if d.Authorized {
			stats.AuthorizedCount++
		} else {
			stats.UnauthorizedCount++
		}
		plates[d.PlateNumber] = true
		confidences = append(confidences, d.Confidence)
	}
	stats.UniquePlates = len(plates)

	sort.Float64s(confidences)
	stats.MeanConfidence = stat.Mean(confidences, nil)
	stats.MedianConfidence = stat.Quantile(0.5, stat.Empirical, confidences, nil)
	stats.P90Confidence = stat.Quantile(0.9, stat.Empirical, confidences, nil)
	return stats, nil
}

// DetectionsPerHour returns hourly detection counts for the chart endpoint,
// oldest hour first.
func (db *DB) DetectionsPerHour(hours int) (labels []string, counts []int, err error) {
	if hours <= 0 {
		hours = 24
	}
	rows, err := db.Query(`
		SELECT strftime('%Y-%m-%d %H:00', detection_time) AS hour, COUNT(*)
		FROM detections
		WHERE detection_time >= datetime('now', ?)
		GROUP BY hour ORDER BY hour`,
		fmt.Sprintf("-%d hours", hours))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query hourly counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var hour string
		var count int
		if err := rows.Scan(&hour, &count); err != nil {
			return nil, nil, err
		}
		labels = append(labels, hour)
		counts = append(counts, count)
	}
	return labels, counts, rows.Err()
}
