// Wayfinder - spoken guidance for visually impaired metro riders.
// Fuses object detection, sign reading and a voice dialogue into short
// spoken instructions.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/teslashibe/go-wayfinder/internal/app"
	"github.com/teslashibe/go-wayfinder/internal/config"
	"github.com/teslashibe/go-wayfinder/internal/log"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}

	log.InitWithOTel(cfg.LogLevel, "github.com/teslashibe/go-wayfinder")
	logger := log.L()

	a, err := app.New(cfg, app.WithLogger(logger))
	if err != nil {
		logger.Error("configuration error", "error", err)
		os.Exit(2)
	}
	if err := a.Init(); err != nil {
		logger.Error("initialization failed", "error", err)
		os.Exit(1)
	}
	defer a.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := a.Run(ctx); err != nil {
		logger.Error("runtime error", "error", err)
		os.Exit(1)
	}
	logger.Info("goodbye")
}

// parseFlags loads the config file and applies command line overrides.
func parseFlags() (*config.Config, error) {
	configPath := flag.String("config", os.Getenv("WAYFINDER_CONFIG"), "YAML config file")
	port := flag.String("port", "", "HTTP port (overrides config and WAYFINDER_PORT)")
	device := flag.String("camera", "", "Camera device index, path or URL")
	noCamera := flag.Bool("no-camera", false, "Disable local capture; frames arrive over the API")
	model := flag.String("model", "", "YOLO ONNX model path")
	labels := flag.String("labels", "", "Class label file, one name per line")
	catalog := flag.String("catalog", "", "Voice command catalog YAML")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}

	if *port != "" {
		cfg.Port = *port
	}
	if *device != "" {
		cfg.Camera.Device = *device
	}
	if *noCamera {
		cfg.Model.DisableCamera = true
	}
	if *model != "" {
		cfg.Model.Path = *model
	}
	if *labels != "" {
		cfg.Model.Labels = *labels
	}
	if *catalog != "" {
		cfg.Catalog = *catalog
	}
	if *debug {
		cfg.LogLevel = "debug"
	}
	return cfg, cfg.Validate()
}
