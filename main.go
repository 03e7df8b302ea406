package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"augurbot/internal/db"
	"augurbot/internal/llm"
	"augurbot/internal/logger"
	"augurbot/internal/notifier"
	"augurbot/internal/orchestrator"
	"augurbot/internal/reconciler"
	"augurbot/internal/scheduler"
	"augurbot/internal/venue"
)

var version = "dev"

// loadDotEnv loads environment variables from a local .env file so a
// double-clicked binary (without a shell) can still pick up ANTHROPIC_API_KEY
// and the Kalshi credentials. Order of lookup:
//  1. ./.env (current working directory)
//  2. <binary-dir>/.env
//
// Existing OS env vars are NOT overridden.
func loadDotEnv() {
	paths := []string{".env"}

	if exePath, err := os.Executable(); err == nil {
		if exeDir := filepath.Dir(exePath); exeDir != "" {
			paths = append(paths, filepath.Join(exeDir, ".env"))
		}
	}

	seen := make(map[string]bool)

	for _, p := range paths {
		if seen[p] {
			continue
		}
		seen[p] = true

		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		lines := strings.Split(string(data), "\n")
		for _, line := range lines {
			l := strings.TrimSpace(line)
			if l == "" || strings.HasPrefix(l, "#") {
				continue
			}
			parts := strings.SplitN(l, "=", 2)
			if len(parts) != 2 {
				continue
			}
			key := strings.TrimSpace(parts[0])
			val := strings.TrimSpace(parts[1])
			if key == "" {
				continue
			}
			if os.Getenv(key) == "" {
				os.Setenv(key, val)
			}
		}
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func main() {
	loadDotEnv()

	healthPort := flag.Int("health-port", 13371, "port for the local liveness endpoint (0 disables it)")
	flag.Parse()

	logger.Banner(version)

	database, err := db.Open()
	if err != nil {
		logger.Error("DB", fmt.Sprintf("failed to open database: %v", err))
		os.Exit(1)
	}
	defer database.Close()

	cfg := database.LoadConfig()

	anthropicKey := os.Getenv("ANTHROPIC_API_KEY")
	if anthropicKey == "" {
		logger.Error("Config", "ANTHROPIC_API_KEY not set, the pipeline cannot estimate any market")
		os.Exit(1)
	}

	venueClient, err := venue.NewClient(venue.Config{
		Email:         os.Getenv("KALSHI_EMAIL"),
		Password:      os.Getenv("KALSHI_PASSWORD"),
		KeyID:         os.Getenv("KALSHI_KEY_ID"),
		PrivateKeyPEM: os.Getenv("KALSHI_PRIVATE_KEY"),
	})
	if err != nil {
		logger.Error("Venue", fmt.Sprintf("failed to build Kalshi client: %v", err))
		os.Exit(1)
	}

	researcher := llm.NewResearcher(anthropicKey, cfg)
	orch := orchestrator.New(database, venueClient, researcher, cfg)
	recon := reconciler.New(database, venueClient)
	notif := notifier.New(cfg, os.Getenv("RESEND_API_KEY"))

	sched := scheduler.New(database, orch, recon, notif)

	if orch.Progress.ResetStaleScan() {
		logger.Warn("Scan", "cleared a stale in-progress scan left over from a previous run")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched.Start(ctx)

	if *healthPort > 0 {
		startHealthServer(ctx, *healthPort, orch)
	}

	logger.Success("AugurBot", "running — scheduler started, awaiting shutdown signal")
	<-ctx.Done()
	logger.Info("AugurBot", "shutting down")

	// Give any in-flight job a moment to reach a log line before exit; the
	// scheduler itself does not wait for in-flight jobs to finish.
	time.Sleep(200 * time.Millisecond)
}

// startHealthServer exposes a minimal liveness endpoint for the
// scheduler's own health needs — not a public API surface, just enough for
// a process supervisor to know the binary is alive and scanning.
func startHealthServer(ctx context.Context, port int, orch *orchestrator.Orchestrator) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status": "ok",
			"scan":   orch.Progress.Progress(),
		})
	})

	srv := &http.Server{Addr: fmt.Sprintf("127.0.0.1:%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("Health", fmt.Sprintf("health server stopped: %v", err))
		}
	}()

	logger.Info("Health", fmt.Sprintf("liveness endpoint on 127.0.0.1:%d/healthz", port))
}
