package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quillhq/quill/internal/config"
	"github.com/quillhq/quill/internal/engine"
	"github.com/quillhq/quill/internal/logger"
	"github.com/quillhq/quill/internal/metrics"
	"github.com/quillhq/quill/internal/render"
	"github.com/quillhq/quill/internal/schedule"
	"github.com/quillhq/quill/internal/store"
)

// connectWithRetry attempts to connect to Redis with exponential backoff
func connectWithRetry(redisURL string, maxRetries int, log logger.Logger) (*store.RedisStore, error) {
	var st *store.RedisStore
	var err error

	for attempt := 0; attempt < maxRetries; attempt++ {
		st, err = store.NewRedisStore(redisURL)
		if err == nil {
			return st, nil
		}

		// Exponential backoff delay: 2^attempt seconds (max 30 seconds)
		delay := time.Duration(1<<uint(attempt)) * time.Second
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}

		log.Warn("Failed to connect to Redis, retrying",
			"attempt", attempt+1,
			"max_attempts", maxRetries,
			"error", err,
			"retry_in", delay)

		time.Sleep(delay)
	}

	return nil, fmt.Errorf("failed to connect to Redis after %d attempts: %w", maxRetries, err)
}

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	// Set as default logger
	logger.SetDefault(log)

	schedulerLog := log.WithComponent(logger.ComponentEngine)

	schedulerLog.Info("Scheduler starting",
		"redis_url", cfg.RedisURL,
		"tick_interval", cfg.TickInterval)

	if !cfg.SchedulerEnabled {
		schedulerLog.Warn("Scheduler is disabled via SCHEDULER_ENABLED, exiting")
		return
	}

	// Diagnostics server on a separate port: pprof plus a metrics snapshot
	// of this process's engine collector.
	pprofPort := os.Getenv("PPROF_PORT")
	if pprofPort == "" {
		pprofPort = "6062"
	}
	http.HandleFunc("GET /metrics", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(metrics.Default().Snapshot()); err != nil {
			schedulerLog.Error("Failed to encode metrics snapshot", "error", err)
		}
	})
	go func() {
		schedulerLog.Info("Starting diagnostics server", "port", pprofPort, "url", fmt.Sprintf("http://localhost:%s/debug/pprof/", pprofPort))
		if err := http.ListenAndServe(":"+pprofPort, nil); err != nil {
			schedulerLog.Error("Diagnostics server failed", "error", err)
		}
	}()

	// Connect to Redis with retry logic
	st, err := connectWithRetry(cfg.RedisURL, 5, schedulerLog)
	if err != nil {
		schedulerLog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	schedulerLog.Info("Successfully connected to Redis")

	// The renderer is the integration point for report generation. This
	// binary ships with a placeholder that logs the request; deployments
	// wire their own render.Renderer here.
	renderer := render.Func(func(ctx context.Context, s *schedule.Schedule) (render.Outcome, error) {
		schedulerLog.WithComponent(logger.ComponentRenderer).Info("Rendering report",
			"schedule_id", s.ID,
			"report_id", s.ReportID,
			"formats", s.OutputFormats,
			"recipients", len(s.Recipients))
		return render.Outcome{ArtifactRef: fmt.Sprintf("reports/%s/%d", s.ReportID, time.Now().Unix())}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng := engine.New(st, renderer, engine.Options{
		TickInterval: cfg.TickInterval,
		DrainTimeout: cfg.DrainTimeout,
		Logger:       log,
	})
	eng.Start(ctx)

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	schedulerLog.Info("Received shutdown signal, initiating graceful shutdown", "signal", sig)

	cancel()
	eng.Stop()

	schedulerLog.Info("Scheduler stopped gracefully")
}
