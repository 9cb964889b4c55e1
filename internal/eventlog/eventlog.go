// Package eventlog appends detection events to flat files: a CSV log for
// spreadsheet import and a JSON log capped at a fixed number of entries.
// Both implement anpr.Emitter and are owned by the capture loop goroutine.
package eventlog

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/plategate/plategate/internal/anpr"
)

var csvHeader = []string{"timestamp", "plate", "status", "confidence", "latency_ms"}

// CSVLog appends one row per detection to a CSV file, writing the header
// when the file is created.
type CSVLog struct {
	path string
}

// NewCSVLog ensures the file exists with its header row.
func NewCSVLog(path string) (*CSVLog, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create CSV log: %w", err)
		}
		w := csv.NewWriter(f)
		if err := w.Write(csvHeader); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write CSV header: %w", err)
		}
		w.Flush()
		if err := f.Close(); err != nil {
			return nil, err
		}
	}
	return &CSVLog{path: path}, nil
}

// Record appends the event. The file is opened per call; detections arrive
// at most once per cool-down window, so there is nothing worth holding open.
func (l *CSVLog) Record(_ context.Context, event anpr.DetectionEvent) error {
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open CSV log: %w", err)
	}
	defer f.Close()

	status := "unauthorized"
	if event.Authorized {
		status = "authorized"
	}
	w := csv.NewWriter(f)
	if err := w.Write([]string{
		event.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
		event.Plate.NormalizedText,
		status,
		strconv.FormatFloat(event.Plate.Confidence, 'f', 4, 64),
		strconv.FormatInt(event.DecisionLatencyMs, 10),
	}); err != nil {
		return fmt.Errorf("failed to write CSV row: %w", err)
	}
	w.Flush()
	return w.Error()
}

// JSONLog keeps a rolling JSON array of the most recent events.
type JSONLog struct {
	path string
	// maxEntries bounds the array so the file cannot grow without limit.
	maxEntries int
}

// NewJSONLog creates a log capped at maxEntries (default 1000).
func NewJSONLog(path string, maxEntries int) *JSONLog {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &JSONLog{path: path, maxEntries: maxEntries}
}

// Record reads the existing array, appends the event, trims to the cap and
// rewrites the file. A corrupt file is replaced rather than failing the
// cycle forever.
func (l *JSONLog) Record(_ context.Context, event anpr.DetectionEvent) error {
	var events []anpr.DetectionEvent
	if data, err := os.ReadFile(l.path); err == nil {
		// Ignore unmarshal errors: a truncated file from a crash is
		// replaced by the rewrite below.
		_ = json.Unmarshal(data, &events)
	}

	events = append(events, event)
	if len(events) > l.maxEntries {
		events = events[len(events)-l.maxEntries:]
	}

	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal event log: %w", err)
	}
	if err := os.WriteFile(l.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write JSON log: %w", err)
	}
	return nil
}

// Recent returns up to limit events from the JSON log, newest last.
func (l *JSONLog) Recent(limit int) ([]anpr.DetectionEvent, error) {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read JSON log: %w", err)
	}
	var events []anpr.DetectionEvent
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("failed to parse JSON log: %w", err)
	}
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}
