package config

import (
	"os"
	"path/filepath"
	"time"
)

const (
	maxDiskThreads  = 4
	diskQueueDepth  = 256
	idlePollEvery   = 500 * time.Millisecond
	bufferBlockSize = 16 * 1024 // one protocol block
	maxBuffers      = 512
)

var (
	stagingDir = filepath.Join(os.TempDir(), configFileName)
	dbPath     = filepath.Join(os.TempDir(), configFileName, configFileName+".db")
)
