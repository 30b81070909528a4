// A small stress harness for the disk staging pipeline: registers a torrent,
// pumps random blocks through the overlay cache and worker pool, and prints
// throughput until interrupted.
package main

import (
	"crypto/rand"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/NamanBalaji/tds/internal/buffer"
	"github.com/NamanBalaji/tds/internal/config"
	"github.com/NamanBalaji/tds/internal/disk"
	"github.com/NamanBalaji/tds/internal/errors"
	"github.com/NamanBalaji/tds/internal/overlay"
	"github.com/NamanBalaji/tds/internal/storage"
)

const (
	demoPieceSize = 256 * 1024
	demoPieces    = 64
)

func main() {
	cfg := config.DefaultConfig()
	cfg.Disk.StagingDir, _ = os.MkdirTemp("", "tds-demo")

	pool := buffer.NewPool(cfg.Buffer.BlockSize, cfg.Buffer.MaxBuffers)
	manager := disk.NewManager(&cfg, pool, nil)

	dir, err := os.MkdirTemp("", "tds-demo-out")
	if err != nil {
		fmt.Printf("Error creating output directory: %v\n", err)
		os.Exit(1)
	}

	id := uuid.New()

	handle, err := manager.AddTorrent(id, dir, []storage.FileSpec{
		{Path: "demo.bin", Length: demoPieces * demoPieceSize},
	}, demoPieces, demoPieceSize)
	if err != nil {
		fmt.Printf("Error registering torrent: %v\n", err)
		os.Exit(1)
	}
	defer handle.Close()

	var flushed atomic.Int64

	stop := make(chan struct{})
	go produce(manager, id, pool, &flushed, stop)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	fmt.Println("Staging blocks... Press Ctrl+C to stop")

	for {
		select {
		case <-ticker.C:
			fmt.Printf("workers: %d, staged entries: %d, flushed blocks: %d\n",
				manager.NumThreads(), manager.Cache().Size(), flushed.Load())
		case <-sigChan:
			close(stop)

			if err := manager.Close(); err != nil {
				fmt.Printf("Error during shutdown: %v\n", err)
			}

			fmt.Printf("done: %d blocks flushed\n", flushed.Load())

			return
		}
	}
}

// produce plays the network layer: fill pooled buffers with random bytes and
// queue them for flushing, backing off when the pool or queue pushes back.
func produce(manager *disk.Manager, id uuid.UUID, pool *buffer.Pool, flushed *atomic.Int64, stop <-chan struct{}) {
	blockSize := pool.BlockSize()
	piece, offset := 0, 0

	for {
		select {
		case <-stop:
			return
		default:
		}

		h, err := buffer.NewHandle(pool)
		if err != nil {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		rand.Read(h.Data())

		loc := overlay.Location{Torrent: id, Piece: piece, Offset: offset}

		err = manager.QueueWrite(loc, h.Move(), blockSize, func(err error) {
			if err == nil {
				flushed.Add(1)
			}
		})
		if err != nil {
			if errors.IsRetryable(err) {
				time.Sleep(10 * time.Millisecond)
				continue
			}

			return
		}

		offset += blockSize
		if offset >= demoPieceSize {
			offset = 0
			piece = (piece + 1) % demoPieces
		}
	}
}
