package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/menta2k/read-segments/internal/config"
	"github.com/menta2k/read-segments/internal/logging"
	"github.com/menta2k/read-segments/internal/utils"
	"github.com/menta2k/read-segments/pkg/crop"
)

func main() {
	var configPath, listen, root, format string

	flag.StringVar(&configPath, "config", config.GetConfigPath(), "configuration file (defaults apply when missing)")
	flag.StringVar(&listen, "listen", "", "listen address, overrides crop.listen")
	flag.StringVar(&root, "root", "", "directory served for relative image paths, overrides crop.image_root")
	flag.StringVar(&format, "format", "", "output format jpg|png|webp, overrides crop.format")
	flag.Parse()

	cfg := config.Default()
	if utils.FileExists(configPath) {
		loaded, err := config.LoadFromFile(configPath)
		if err != nil {
			log.Fatal(err)
		}
		cfg = loaded
	}
	if listen != "" {
		cfg.Crop.Listen = listen
	}
	if root != "" {
		cfg.Crop.ImageRoot = root
	}
	if format != "" {
		cfg.Crop.Format = format
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	cleanup, err := logging.Init(cfg.Log)
	if err != nil {
		log.Fatalf("failed to initialize logging: %v", err)
	}
	defer cleanup()

	outFmt, err := crop.ParseFormat(cfg.Crop.Format)
	if err != nil {
		log.Fatal(err)
	}

	handler := &crop.Handler{
		Loader: crop.NewLoader(crop.LoaderOptions{
			Root:      cfg.Crop.ImageRoot,
			Timeout:   time.Duration(cfg.Service.Timeout),
			UserAgent: cfg.Service.UserAgent,
		}),
		Format:     outFmt,
		Encode:     crop.EncodeOptions{Quality: cfg.Crop.Quality, Lossless: cfg.Crop.Lossless},
		ThumbWidth: cfg.Crop.ThumbWidth,
		Logger:     slog.Default().With("component", "crop"),
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Crop.ServicePath, handler)
	srv := &http.Server{
		Addr:              cfg.Crop.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown failed", "error", err)
		}
	}()

	slog.Info("crop service listening", "addr", cfg.Crop.Listen, "path", cfg.Crop.ServicePath, "format", outFmt)
	log.Printf("crop service on %s%s", cfg.Crop.Listen, cfg.Crop.ServicePath)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "error", err)
		cleanup()
		os.Exit(1)
	}
}
