package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/go-hclog"
	"github.com/joho/godotenv"

	"github.com/tapgate/plugins-sdk-go/internal/config"
	"github.com/tapgate/plugins-sdk-go/internal/host"
	"github.com/tapgate/plugins-sdk-go/internal/host/pipeline"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func pluginBinaries(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", dir, err)
	}

	var results []string
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}

		if info.Mode()&0o111 != 0 {
			results = append(results, path)
		}
	}

	return results, nil
}

// categoryFor assigns a pipeline category from the plugin binary name.
func categoryFor(binary string) pipeline.Category {
	name := filepath.Base(binary)
	switch {
	case strings.Contains(name, "auth"):
		return pipeline.CategoryAuthN
	case strings.Contains(name, "header"), strings.Contains(name, "transform"):
		return pipeline.CategoryContent
	case strings.Contains(name, "logging"):
		return pipeline.CategoryObservability
	default:
		return pipeline.CategoryValidation
	}
}

func run() error {
	// Optional .env for local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "tapgate-demo",
		Level: hclog.Debug,
	})

	logger.Info("starting tapgate demo host")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	binaries, err := pluginBinaries(cfg.Plugins.Dir)
	if err != nil {
		return fmt.Errorf("gathering plugin binaries: %w", err)
	}

	logger.Info("found plugin binaries", "count", len(binaries))

	manager := host.NewManager(logger)
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		if err := manager.StopAll(shutdownCtx); err != nil {
			logger.Error("failed to stop plugins", "error", err)
		}
	}()

	p := pipeline.NewPipeline(logger)

	for _, binary := range binaries {
		instance, err := manager.Start(ctx, binary)
		if err != nil {
			logger.Error("failed to start plugin", "path", binary, "error", err)
			continue
		}

		category := categoryFor(binary)
		p.Register(category, instance)
		logger.Info("registered plugin", "id", instance.ID(), "category", category)
	}

	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.RequestID)

	router.Use(p.Middleware())

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})

	router.Get("/api/v1/example", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"message":"Hello from tapgate","time":"%s"}`, time.Now().Format(time.RFC3339))
	})

	router.Post("/api/v1/echo", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"echo":"received","time":"%s"}`, time.Now().Format(time.RFC3339))
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	logger.Info("server starting", "addr", srv.Addr)

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}
