// Package main provides the Quill management API server.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof" // #nosec G108 - pprof is intentionally exposed for debugging, isolated to separate port
	"os"
	"time"

	"github.com/quillhq/quill/internal/config"
	"github.com/quillhq/quill/internal/logger"
	"github.com/quillhq/quill/internal/store"
	"github.com/quillhq/quill/pkg/client"
)

type apiServer struct {
	client *client.Client
	log    logger.Logger
}

func (a *apiServer) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.log.Error("Failed to encode response", "error", err)
	}
}

func (a *apiServer) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrAlreadyExists):
		status = http.StatusConflict
	}
	a.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (a *apiServer) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req client.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	s, err := a.client.CreateSchedule(r.Context(), req)
	if err != nil {
		a.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	a.log.Info("Schedule created", "schedule_id", s.ID, "name", s.Name)
	a.writeJSON(w, http.StatusCreated, s)
}

func (a *apiServer) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	all, err := a.client.ListSchedules(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, all)
}

func (a *apiServer) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	s, err := a.client.GetSchedule(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, s)
}

func (a *apiServer) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := a.client.DeleteSchedule(r.Context(), id); err != nil {
		a.writeError(w, err)
		return
	}
	a.log.Info("Schedule deleted", "schedule_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (a *apiServer) handleEnableSchedule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := a.client.EnableSchedule(r.Context(), id); err != nil {
		a.writeError(w, err)
		return
	}
	a.log.Info("Schedule enabled", "schedule_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (a *apiServer) handleDisableSchedule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := a.client.DisableSchedule(r.Context(), id); err != nil {
		a.writeError(w, err)
		return
	}
	a.log.Info("Schedule disabled", "schedule_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (a *apiServer) handleClearError(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := a.client.ClearError(r.Context(), id); err != nil {
		a.writeError(w, err)
		return
	}
	a.log.Info("Schedule error state cleared", "schedule_id", id)
	w.WriteHeader(http.StatusNoContent)
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
	defer func() {
		if err := log.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to close logger: %v\n", err)
		}
	}()

	// Set as default logger
	logger.SetDefault(log)

	apiLog := log.WithComponent(logger.ComponentAPI)

	apiLog.Info("API server starting",
		"redis_url", cfg.RedisURL,
		"api_port", cfg.APIPort)

	// Start pprof server on separate port for profiling
	pprofPort := os.Getenv("PPROF_PORT")
	if pprofPort == "" {
		pprofPort = "6060"
	}
	go func() {
		apiLog.Info("Starting pprof server", "port", pprofPort, "url", fmt.Sprintf("http://localhost:%s/debug/pprof/", pprofPort))
		pprofServer := &http.Server{
			Addr:              ":" + pprofPort,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		if err := pprofServer.ListenAndServe(); err != nil {
			apiLog.Error("pprof server failed", "error", err)
		}
	}()

	c, err := client.NewClient(cfg.RedisURL)
	if err != nil {
		apiLog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer c.Close()

	api := &apiServer{client: c, log: apiLog}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprintf(w, "ok")
	})
	mux.HandleFunc("POST /schedules", api.handleCreateSchedule)
	mux.HandleFunc("GET /schedules", api.handleListSchedules)
	mux.HandleFunc("GET /schedules/{id}", api.handleGetSchedule)
	mux.HandleFunc("DELETE /schedules/{id}", api.handleDeleteSchedule)
	mux.HandleFunc("POST /schedules/{id}/enable", api.handleEnableSchedule)
	mux.HandleFunc("POST /schedules/{id}/disable", api.handleDisableSchedule)
	mux.HandleFunc("POST /schedules/{id}/clear-error", api.handleClearError)

	addr := ":" + cfg.APIPort
	apiLog.Info("API server listening", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	if err := server.ListenAndServe(); err != nil {
		apiLog.Error("API server failed", "error", err)
		os.Exit(1)
	}
}
