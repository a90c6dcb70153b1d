package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	readsegments "github.com/menta2k/read-segments"
	"github.com/menta2k/read-segments/internal/config"
	"github.com/menta2k/read-segments/internal/logging"
	"github.com/menta2k/read-segments/internal/utils"
	"github.com/menta2k/read-segments/pkg/client"
	"github.com/menta2k/read-segments/pkg/crop"
	"github.com/menta2k/read-segments/pkg/detection"
	"github.com/menta2k/read-segments/pkg/geometry"
	"github.com/menta2k/read-segments/pkg/llamacpp"
	"github.com/menta2k/read-segments/pkg/ollama"
	"github.com/menta2k/read-segments/pkg/render"
	"github.com/menta2k/read-segments/pkg/vision"
)

// proposalFile is the JSON written next to each processed image.
type proposalFile struct {
	Source   string             `json:"source"`
	Width    int                `json:"width"`
	Height   int                `json:"height"`
	Polygons []geometry.Polygon `json:"polygons"`
	ImagePos []string           `json:"imagePos"`
	CropURLs []string           `json:"cropURLs,omitempty"`
}

func main() {
	var configPath, in, outDir, backend, model, url, dbgext string
	var sendSize, sendQ int
	var debug bool

	flag.StringVar(&configPath, "config", config.GetConfigPath(), "configuration file (defaults apply when missing)")
	flag.StringVar(&in, "in", "", "baseline image path, directory or URL (jpg/png/webp)")
	flag.StringVar(&outDir, "out", "out", "output directory")
	flag.StringVar(&backend, "backend", "", "backend to use: ollama, llamacpp or local, overrides vision.backend")
	flag.StringVar(&model, "model", "", "model name, overrides vision.model")
	flag.StringVar(&url, "url", "", "server URL, overrides vision.url")
	flag.IntVar(&sendSize, "sendsize", 0, "max long side sent to the model (px), overrides vision.max_dim")
	flag.IntVar(&sendQ, "sendq", 0, "JPEG quality of the image sent to the model, overrides vision.quality")
	flag.BoolVar(&debug, "debug", false, "write a debug overlay per image")
	flag.StringVar(&dbgext, "dbgext", "png", "debug overlay format: png|jpg|webp")
	flag.Parse()

	if in == "" {
		log.Fatalf("usage: %s -in page.jpg|dir|URL [-backend ollama|llamacpp|local] [-model name] [-url server_url] [-out outdir] [-debug]", filepath.Base(os.Args[0]))
	}

	cfg := config.Default()
	if utils.FileExists(configPath) {
		loaded, err := config.LoadFromFile(configPath)
		if err != nil {
			log.Fatal(err)
		}
		cfg = loaded
	}
	if backend != "" {
		cfg.Vision.Backend = backend
	}
	if model != "" {
		cfg.Vision.Model = model
	}
	if url != "" {
		cfg.Vision.URL = url
	}
	if sendSize > 0 {
		cfg.Vision.MaxDim = sendSize
	}
	if sendQ > 0 {
		cfg.Vision.Quality = sendQ
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	cleanup, err := logging.Init(cfg.Log)
	if err != nil {
		log.Fatalf("failed to initialize logging: %v", err)
	}
	defer cleanup()

	dbgFmt, err := crop.ParseFormat(dbgext)
	if err != nil {
		log.Fatal(err)
	}
	if err := utils.EnsureDir(outDir); err != nil {
		log.Fatal(err)
	}

	// Create appropriate proposer based on backend
	var proposer readsegments.Proposer
	var visionClient client.VisionClient
	switch cfg.Vision.Backend {
	case "local":
		proposer = vision.New()
	case "llamacpp":
		visionClient, err = llamacpp.NewClient(cfg.Vision.URL, nil)
		if err != nil {
			log.Fatalf("Failed to create llama.cpp client: %v", err)
		}
	default:
		visionClient, err = ollama.NewClient(cfg.Vision.URL, nil)
		if err != nil {
			log.Fatalf("Failed to create Ollama client: %v", err)
		}
	}
	if visionClient != nil {
		proposer = detection.NewDetector(visionClient, detection.Options{
			Model:         cfg.Vision.Model,
			MaxDim:        cfg.Vision.MaxDim,
			Quality:       cfg.Vision.Quality,
			MinConfidence: cfg.Vision.MinConfidence,
		})
	}
	loader := crop.NewLoader(crop.LoaderOptions{
		Timeout:   time.Duration(cfg.Service.Timeout),
		UserAgent: cfg.Service.UserAgent,
	})

	sources := []string{in}
	if utils.DirExists(in) {
		sources, err = utils.ListImageFiles(in)
		if err != nil {
			log.Fatal(err)
		}
	}

	ctx := context.Background()
	failed := 0
	for _, src := range sources {
		if err := process(ctx, src, outDir, cfg, loader, proposer, debug, dbgFmt); err != nil {
			log.Printf("%s: %v", src, err)
			failed++
		}
	}
	if failed > 0 {
		cleanup()
		os.Exit(1)
	}
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func process(ctx context.Context, src, outDir string, cfg *config.Config, loader *crop.Loader, proposer readsegments.Proposer, debug bool, dbgFmt crop.Format) error {
	var img image.Image
	var err error
	if isURL(src) {
		img, err = loader.LoadURL(ctx, src)
	} else {
		img, err = crop.LoadFile(src)
	}
	if err != nil {
		return err
	}

	polys, err := proposer.Propose(ctx, img)
	if err != nil {
		return err
	}

	b := img.Bounds()
	out := proposalFile{Source: src, Width: b.Dx(), Height: b.Dy(), Polygons: polys}
	for i, p := range polys {
		out.ImagePos = append(out.ImagePos, p.PGLiteral())
		if isURL(src) {
			out.CropURLs = append(out.CropURLs, crop.CroppedImageURL(cfg.Crop.ServicePath, src, p))
		}
		fmt.Printf("%s\t%d\t%s\n", src, i+1, p.PGLiteral())
	}
	log.Printf("%s: %d proposals", src, len(polys))

	name := src
	if isURL(src) {
		name = filepath.Base(strings.SplitN(src, "?", 2)[0])
	}
	js, _ := json.MarshalIndent(out, "", "  ")
	jsonPath := utils.GenerateOutputFilename(name, outDir, "", "_segments", "json")
	if err := os.WriteFile(jsonPath, js, 0o644); err != nil {
		return err
	}
	log.Printf("wrote %s", jsonPath)

	if debug {
		dbgPath := utils.GenerateOutputFilename(name, outDir, "", "_debug", string(dbgFmt))
		f, err := os.Create(dbgPath)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := crop.Encode(f, render.DebugOverlay(img, polys), dbgFmt, crop.EncodeOptions{Quality: 92}); err != nil {
			return fmt.Errorf("debug overlay save failed: %w", err)
		}
		log.Printf("wrote %s", dbgPath)
	}
	return nil
}
