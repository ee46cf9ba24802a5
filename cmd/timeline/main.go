package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scribeflow/timeline-gateway/internal/archive"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg := loadConfig()

	var archiveStore *archive.Store
	var recorder *archive.Recorder
	if cfg.archiveDatabaseURL != "" {
		store, err := archive.Open(cfg.archiveDatabaseURL)
		if err != nil {
			slog.Warn("archive disabled", "error", err)
		} else {
			archiveStore = store
			recorder = archive.NewRecorder(store)
			slog.Info("archive enabled")
		}
	}

	reg := newRegistry(cfg.orchestratorURL, cfg.maxConcurrent, recorder)

	mux := http.NewServeMux()
	registerRoutes(mux, deps{
		cfg:          cfg,
		registry:     reg,
		archiveStore: archiveStore,
	})

	addr := ":" + cfg.port
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)

		reg.shutdown()
		recorder.Close()
		if archiveStore != nil {
			archiveStore.Close()
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	slog.Info("timeline gateway starting", "addr", addr, "orchestrator", cfg.orchestratorURL, "max_concurrent", cfg.maxConcurrent)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}

	slog.Info("timeline gateway stopped")
}
