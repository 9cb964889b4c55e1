package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image/jpeg"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/plategate/plategate/internal/anpr"
	"github.com/plategate/plategate/internal/db"
	"github.com/plategate/plategate/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// maxDetectionLimit matches the row retention used by the stats endpoint.
const maxDetectionLimit = 1000

type Server struct {
	db       *db.DB
	snapshot anpr.SnapshotReader
}

func NewServer(database *db.DB, snapshot anpr.SnapshotReader) *Server {
	return &Server{
		db:       database,
		snapshot: snapshot,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/snapshot", s.showSnapshot)
	mux.HandleFunc("/api/snapshot/frame", s.showSnapshotFrame)
	mux.HandleFunc("/api/vehicles", s.handleVehicles)
	mux.HandleFunc("/api/detections", s.listDetections)
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/charts/detections", s.detectionChart)
	mux.HandleFunc("/api/version", s.showVersion)
	mux.HandleFunc("/", s.homeHandler)
	return mux
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	info := map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	}
	if err := json.NewEncoder(w).Encode(info); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write version")
		return
	}
}

func (s *Server) homeHandler(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("Welcome to the PlateGate Server!"))
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// showSnapshot reports the latest pipeline state. The frame itself is not
// included; clients fetch it separately from /api/snapshot/frame.
func (s *Server) showSnapshot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	snap := s.snapshot.Current()
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write snapshot")
		return
	}
}

func (s *Server) showSnapshotFrame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	snap := s.snapshot.Current()
	if snap.Frame.Empty() {
		s.writeJSONError(w, http.StatusNotFound, "No frame published yet")
		return
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, snap.Frame.ToImage(), &jpeg.Options{Quality: 85}); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to encode frame: %v", err))
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	_, _ = w.Write(buf.Bytes())
}

type vehicleRequest struct {
	PlateNumber string `json:"plate_number"`
	OwnerName   string `json:"owner_name"`
	VehicleType string `json:"vehicle_type"`
}

func (s *Server) handleVehicles(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodGet:
		s.listVehicles(w, r)
	case http.MethodPost:
		s.addVehicle(w, r)
	case http.MethodDelete:
		s.removeVehicle(w, r)
	default:
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) listVehicles(w http.ResponseWriter, r *http.Request) {
	vehicles, err := s.db.ListVehicles()
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve vehicles: %v", err))
		return
	}
	if vehicles == nil {
		vehicles = []db.Vehicle{}
	}
	if err := json.NewEncoder(w).Encode(vehicles); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write vehicles")
		return
	}
}

func (s *Server) addVehicle(w http.ResponseWriter, r *http.Request) {
	var req vehicleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.PlateNumber) == "" {
		s.writeJSONError(w, http.StatusBadRequest, "Missing 'plate_number'")
		return
	}

	if err := s.db.AddVehicle(req.PlateNumber, req.OwnerName, req.VehicleType); err != nil {
		if errors.Is(err, db.ErrDuplicateVehicle) {
			s.writeJSONError(w, http.StatusConflict, "Vehicle already registered")
			return
		}
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to add vehicle: %v", err))
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"status": "registered"})
}

func (s *Server) removeVehicle(w http.ResponseWriter, r *http.Request) {
	plate := r.URL.Query().Get("plate")
	if plate == "" {
		s.writeJSONError(w, http.StatusBadRequest, "Missing 'plate' parameter")
		return
	}

	removed, err := s.db.RemoveVehicle(plate)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to remove vehicle: %v", err))
		return
	}
	if !removed {
		s.writeJSONError(w, http.StatusNotFound, "Vehicle not found")
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "removed"})
}

func (s *Server) listDetections(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit := 50 // default value
	if l := r.URL.Query().Get("limit"); l != "" {
		parsedLimit, err := strconv.Atoi(l)
		if err != nil || parsedLimit < 1 || parsedLimit > maxDetectionLimit {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = parsedLimit
	}

	detections, err := s.db.RecentDetections(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve detections: %v", err))
		return
	}
	if detections == nil {
		detections = []db.Detection{}
	}
	if err := json.NewEncoder(w).Encode(detections); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write detections")
		return
	}
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	stats, err := s.db.Stats()
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to compute stats: %v", err))
		return
	}
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write stats")
		return
	}
}

// detectionChart renders a bar chart (HTML) of detections per hour using
// go-echarts. Query params:
//   - hours (optional; default 24, max 168)
func (s *Server) detectionChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	hours := 24
	if h := r.URL.Query().Get("hours"); h != "" {
		if parsed, err := strconv.Atoi(h); err == nil && parsed >= 1 && parsed <= 168 {
			hours = parsed
		}
	}

	labels, counts, err := s.db.DetectionsPerHour(hours)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve detection counts: %v", err))
		return
	}

	y := make([]opts.BarData, len(counts))
	for i, c := range counts {
		y[i] = opts.BarData{Value: c}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Detections Per Hour",
			Subtitle: fmt.Sprintf("last %d hours", hours),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(labels).
		AddSeries("detections", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	page := components.NewPage()
	page.AddCharts(bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("render error: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
