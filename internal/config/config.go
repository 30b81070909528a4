package config

import (
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

const configFileName = "tds"

// Config holds the configuration options for the disk staging subsystem.
type Config struct {
	Disk   *DiskConfig   `yaml:"disk,omitempty"`
	Buffer *BufferConfig `yaml:"buffer,omitempty"`
}

// DiskConfig holds options for the disk worker pool and on-disk staging state.
type DiskConfig struct {
	StagingDir    string        `yaml:"stagingDir,omitempty"`
	DBPath        string        `yaml:"dbPath,omitempty"`
	MaxThreads    int           `yaml:"maxThreads,omitempty"`
	QueueDepth    int           `yaml:"queueDepth,omitempty"`
	IdlePollEvery time.Duration `yaml:"idlePollEvery,omitempty"`
}

// BufferConfig holds options for the piece buffer pool.
type BufferConfig struct {
	BlockSize  int `yaml:"blockSize,omitempty"`
	MaxBuffers int `yaml:"maxBuffers,omitempty"`
}

// GetConfig reads the configuration file and returns a Config struct.
// If the configuration file does not exist, it returns the default configuration.
func GetConfig() (*Config, error) {
	configFilePath := filepath.Join(xdg.ConfigHome, configFileName)
	defaults := DefaultConfig()

	b, err := os.ReadFile(configFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &defaults, nil
		}

		return nil, err
	}

	if len(b) == 0 {
		return &defaults, nil
	}

	var cfg Config

	err = yaml.Unmarshal(b, &cfg)
	if err != nil {
		return nil, err
	}

	diskCfg := zeroOr(cfg.Disk, defaults.Disk)
	bufferCfg := zeroOr(cfg.Buffer, defaults.Buffer)

	return &Config{
		Disk: &DiskConfig{
			StagingDir:    zeroOr(diskCfg.StagingDir, defaults.Disk.StagingDir),
			DBPath:        zeroOr(diskCfg.DBPath, defaults.Disk.DBPath),
			MaxThreads:    zeroOr(diskCfg.MaxThreads, defaults.Disk.MaxThreads),
			QueueDepth:    zeroOr(diskCfg.QueueDepth, defaults.Disk.QueueDepth),
			IdlePollEvery: zeroOr(diskCfg.IdlePollEvery, defaults.Disk.IdlePollEvery),
		},
		Buffer: &BufferConfig{
			BlockSize:  zeroOr(bufferCfg.BlockSize, defaults.Buffer.BlockSize),
			MaxBuffers: zeroOr(bufferCfg.MaxBuffers, defaults.Buffer.MaxBuffers),
		},
	}, nil
}

func DefaultConfig() Config {
	return Config{
		Disk: &DiskConfig{
			StagingDir:    stagingDir,
			DBPath:        dbPath,
			MaxThreads:    maxDiskThreads,
			QueueDepth:    diskQueueDepth,
			IdlePollEvery: idlePollEvery,
		},
		Buffer: &BufferConfig{
			BlockSize:  bufferBlockSize,
			MaxBuffers: maxBuffers,
		},
	}
}

// zeroOr returns def if v is the zero value for its type.
func zeroOr[T any](v, def T) T {
	if reflect.ValueOf(v).IsZero() {
		return def
	}

	return v
}
