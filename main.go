package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/NamanBalaji/tds/internal/buffer"
	"github.com/NamanBalaji/tds/internal/config"
	"github.com/NamanBalaji/tds/internal/disk"
	"github.com/NamanBalaji/tds/internal/logger"
	"github.com/NamanBalaji/tds/internal/repository"
)

func main() {
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.GetConfig()
	if err != nil {
		log.Fatalf("Error loading configuration: %v\n", err)
	}

	if err := os.MkdirAll(cfg.Disk.StagingDir, 0o755); err != nil {
		log.Fatalf("Error creating staging directory: %v\n", err)
	}

	err = logger.InitLogging(*debug, filepath.Join(cfg.Disk.StagingDir, "tds.log"))
	if err != nil {
		log.Fatalf("Warning: Failed to initialize logging: %v\n", err)
	}
	defer logger.Close()

	repo, err := repository.NewBboltRepository(cfg.Disk.DBPath)
	if err != nil {
		log.Fatalf("Error creating repository: %v\n", err)
	}
	defer repo.Close()

	pool := buffer.NewPool(cfg.Buffer.BlockSize, cfg.Buffer.MaxBuffers)
	manager := disk.NewManager(cfg, pool, repo)

	recs, err := repo.ListPartFiles()
	if err != nil {
		log.Fatalf("Error listing part files: %v\n", err)
	}

	logger.Infof("disk staging subsystem up: %d workers max, %d part files registered",
		cfg.Disk.MaxThreads, len(recs))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Infof("shutting down disk staging subsystem")

	if err := manager.Close(); err != nil {
		log.Fatalf("Error during shutdown: %v", err)
	}

	logger.Infof("shutdown complete")
}
