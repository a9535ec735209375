package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mbianchi/photarc/internal/logger"
	"github.com/mbianchi/photarc/pkg/api"
	"github.com/mbianchi/photarc/pkg/artifacts"
	"github.com/mbianchi/photarc/pkg/catalog"
	"github.com/mbianchi/photarc/pkg/config"
	"github.com/mbianchi/photarc/pkg/discovery"
	"github.com/mbianchi/photarc/pkg/geo"
	"github.com/mbianchi/photarc/pkg/metrics"
	"github.com/mbianchi/photarc/pkg/pipeline"
	"github.com/mbianchi/photarc/pkg/vision"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the photarc server",
	Long: `Start the photarc indexing server.

The server watches the photo library for changes and serves the catalog over
HTTP. No scan runs at startup; trigger one with "photarc scan", the POST
/api/scan endpoint, or by touching the library while the watcher is active.

Examples:
  # Start with default config location
  photarc start

  # Start with custom config file
  photarc start --config /etc/photarc/config.yaml

  # Start with environment variable overrides
  PHOTOS_PATH=/mnt/photos DATA_DIR=/var/lib/photarc photarc start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return err
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("photarc starting",
		"version", Version,
		"photos", cfg.Library.PhotosPath,
		"data", cfg.Library.DataDir)

	store, err := catalog.Open(cfg.Library.DatabasePath())
	if err != nil {
		return fmt.Errorf("failed to open catalog: %w", err)
	}
	defer func() { _ = store.Close() }()

	art, err := artifacts.NewStore(cfg.Library.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open artifact store: %w", err)
	}

	resolver, err := geo.Default()
	if err != nil {
		logger.Warn("geocoder unavailable, geocode stage will skip", "error", err)
		resolver = nil
	}

	visionClient := vision.New(vision.Config{
		URL:               cfg.Vision.OllamaURL,
		Model:             cfg.Vision.Model,
		RequestsPerMinute: cfg.Vision.RequestsPerMinute,
	})
	if visionClient.Enabled() {
		logger.Info("vision endpoint configured", "url", cfg.Vision.OllamaURL, "model", cfg.Vision.Model)
	} else {
		logger.Info("vision endpoint not configured, tags and caption stages will skip")
	}

	m := metrics.New()
	hub := api.NewHub(m)

	p := pipeline.New(pipeline.Config{
		PhotosRoot:     cfg.Library.PhotosPath,
		QueueSize:      cfg.Pipeline.QueueSize,
		MaxAttempts:    cfg.Pipeline.MaxAttempts,
		ThumbnailSizes: cfg.Pipeline.ThumbnailSizes,
	}, store, art, resolver, visionClient, nil, m, hub)

	sup := pipeline.NewSupervisor(p)
	if err := sup.Startup(); err != nil {
		return fmt.Errorf("startup reconciliation failed: %w", err)
	}

	go func() {
		if err := p.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("pipeline stopped unexpectedly", "error", err)
		}
	}()

	// Watch the library and debounce changes into scan triggers.
	watcher, err := discovery.NewWatcher(cfg.Library.PhotosPath,
		time.Duration(cfg.Library.WatchInterval)*time.Second)
	if err != nil {
		logger.Warn("filesystem watcher unavailable", "error", err)
	} else {
		go func() {
			if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("watcher stopped unexpectedly", "error", err)
			}
		}()
		go sup.WatchTriggers(ctx, watcher.Triggers())
	}

	server := api.NewServer(api.ServerConfig{
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, api.Deps{
		Store:      store,
		Artifacts:  art,
		Supervisor: sup,
		Metrics:    m,
		PhotosRoot: cfg.Library.PhotosPath,
	}, hub)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- server.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("server is running, press Ctrl+C to stop", "port", cfg.Server.Port)

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received, initiating graceful shutdown")
		sup.StopScan()
		cancel()

		if err := server.Shutdown(context.Background()); err != nil {
			logger.Error("server shutdown error", "error", err)
			return err
		}
		<-serverDone
		logger.Info("server stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("server error", "error", err)
			return err
		}
		logger.Info("server stopped")
	}

	return nil
}
