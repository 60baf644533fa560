// Command nvs-tui is a terminal inspector for the NVS partitions of a flash
// image: partition usage, keys and values, live edits and engine metrics.
package main

import (
	"context"
	"flag"
	"io"
	"log"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dd0wney/cluso-nvs/pkg/config"
	"github.com/dd0wney/cluso-nvs/pkg/flash"
	"github.com/dd0wney/cluso-nvs/pkg/metrics"
	"github.com/dd0wney/cluso-nvs/pkg/storage"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file (firmware layout when empty)")
	imagePath := flag.String("image", "", "Flash image file, overrides the configuration")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	if *imagePath != "" {
		cfg.Flash.Image = *imagePath
	}

	dev, err := flash.OpenFile(cfg.Flash.Image, cfg.Geometry())
	if err != nil {
		log.Fatalf("Failed to open flash image: %v", err)
	}
	defer dev.Close()

	// The screen belongs to the TUI; engine logs are dropped.
	reg := metrics.NewRegistry()
	opts := cfg.StorageOptions()
	opts.Logger = cfg.Logger(io.Discard)
	opts.Metrics = reg
	mgr, err := storage.Open(dev, opts)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mgr.Run(ctx) }()

	p := tea.NewProgram(initialModel(mgr, reg), tea.WithAltScreen())
	_, runErr := p.Run()

	cancel()
	if err := <-done; err != nil {
		log.Printf("Final sync failed: %v", err)
	}
	if err := mgr.Close(); err != nil {
		log.Printf("Failed to close storage: %v", err)
	}
	if err := dev.Sync(); err != nil {
		log.Printf("Failed to sync image: %v", err)
	}
	if runErr != nil {
		log.Fatalf("Error running program: %v", runErr)
	}
}
