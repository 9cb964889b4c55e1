package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/plategate/plategate/internal/anpr"
	"github.com/plategate/plategate/internal/api"
	"github.com/plategate/plategate/internal/camera"
	"github.com/plategate/plategate/internal/config"
	"github.com/plategate/plategate/internal/db"
	"github.com/plategate/plategate/internal/eventlog"
	"github.com/plategate/plategate/internal/ocr"
	"github.com/plategate/plategate/internal/vision"
)

var (
	devMode    = flag.Bool("dev", false, "Replay frames from -replay-dir instead of opening a camera")
	replayDir  = flag.String("replay-dir", "fixtures", "Directory of PNG/JPEG frames for -dev mode")
	listen     = flag.String("listen", ":8080", "Listen address")
	configPath = flag.String("config", "", "Path to JSON config file")
	device     = flag.String("device", "", "Camera device index or stream URL (overrides config)")
)

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Frame source: a live camera, or a replay directory in dev mode.
	var source anpr.FrameSource
	if *devMode {
		frames, err := camera.LoadReplayDir(*replayDir, cfg.GetFrameWidth(), cfg.GetFrameHeight())
		if err != nil {
			log.Fatalf("Failed to load replay frames: %v", err)
		}
		source, err = camera.NewReplaySource(frames, cfg.GetFrameInterval())
		if err != nil {
			log.Fatalf("Failed to create replay source: %v", err)
		}
		log.Printf("replaying %d frames from %s", len(frames), *replayDir)
	} else {
		dev := cfg.GetDevice()
		if *device != "" {
			dev = *device
		}
		source, err = camera.Open(camera.Config{
			Device:      dev,
			Width:       cfg.GetFrameWidth(),
			Height:      cfg.GetFrameHeight(),
			FPS:         cfg.GetFPS(),
			ReadTimeout: cfg.GetReadTimeout(),
		})
		if err != nil {
			log.Fatalf("Failed to open camera: %v", err)
		}
	}
	defer source.Close()

	recognizer, err := ocr.New(cfg.GetOCRLanguage())
	if err != nil {
		log.Fatalf("Failed to initialize OCR: %v", err)
	}
	defer recognizer.Close()

	validator, err := anpr.NewValidator(anpr.ValidatorConfig{
		MinConfidence: cfg.GetMinConfidence(),
		MinLength:     cfg.GetPlateMinLength(),
		MaxLength:     cfg.GetPlateMaxLength(),
		Patterns:      cfg.PlatePatterns,
	})
	if err != nil {
		log.Fatalf("Invalid plate policy: %v", err)
	}

	database, err := db.NewDB(cfg.GetDatabasePath())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	csvLog, err := eventlog.NewCSVLog(cfg.GetCSVLogPath())
	if err != nil {
		log.Fatalf("Failed to open CSV log: %v", err)
	}
	jsonLog := eventlog.NewJSONLog(cfg.GetJSONLogPath(), 0)

	slot := anpr.NewSnapshotSlot()
	loop := anpr.NewCaptureLoop(
		source,
		vision.NewPreprocessor(vision.PreprocessConfig{
			BlurKernel:    cfg.GetBlurKernel(),
			AdaptiveBlock: cfg.GetAdaptiveBlock(),
			AdaptiveC:     float32(cfg.GetAdaptiveC()),
		}),
		vision.NewLocator(vision.LocatorConfig{
			AspectMin: cfg.GetAspectMin(),
			AspectMax: cfg.GetAspectMax(),
			MinArea:   cfg.GetMinArea(),
			MaxArea:   cfg.GetMaxArea(),
		}),
		recognizer,
		validator,
		anpr.NewDebounceGate(cfg.GetCooldown()),
		database,
		anpr.MultiEmitter{database, csvLog, jsonLog},
		slot,
		anpr.LoopConfig{
			FrameInterval:          cfg.GetFrameInterval(),
			BackoffBase:            cfg.GetBackoffBase(),
			BackoffMax:             cfg.GetBackoffMax(),
			MaxConsecutiveFailures: cfg.GetMaxConsecutiveFailures(),
			RegistryTimeout:        cfg.GetRegistryTimeout(),
			EmitTimeout:            cfg.GetEmitTimeout(),
		},
	)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the capture loop routine driving the recognition pipeline
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := loop.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("capture loop failed: %v", err)
		}
		log.Print("capture loop terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(database, slot).ServeMux()

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
