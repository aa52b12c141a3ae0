package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/tailscale/hujson"
)

// fileConfig is the optional on-disk config bucketstored will read
// before applying command-line flag overrides, the same layering
// calvinalkan-agent-task's config.go uses (defaults, then file, then
// CLI). hujson tolerates comments and trailing commas, which is the
// whole reason that repo reaches for it over encoding/json directly.
type fileConfig struct {
	SocketPath           string `json:"socket_path,omitempty"`
	Root                 string `json:"root,omitempty"`
	MergeIntervalMS      int    `json:"merge_interval_ms,omitempty"`
	CheckpointIntervalMS int    `json:"checkpoint_interval_ms,omitempty"`
	RawfileBufferBytes   int    `json:"rawfile_buffer_bytes,omitempty"`
	DataFileBufferBytes  int    `json:"data_file_buffer_bytes,omitempty"`
	MaxConcurrency       int    `json:"max_concurrency,omitempty"`
	Verbose              bool   `json:"verbose,omitempty"`
}

// loadFileConfig reads and hujson-standardizes an optional config file.
// A missing path is not an error: bucketstored runs fine on flags alone.
func loadFileConfig(path string) (fileConfig, error) {
	if path == "" {
		return fileConfig{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fileConfig{}, nil
		}
		return fileConfig{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return fileConfig{}, fmt.Errorf("invalid config %s: %w", path, err)
	}

	var cfg fileConfig
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return fileConfig{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

func (c fileConfig) mergeIntervalOr(d time.Duration) time.Duration {
	if c.MergeIntervalMS > 0 {
		return time.Duration(c.MergeIntervalMS) * time.Millisecond
	}
	return d
}

func (c fileConfig) checkpointIntervalOr(d time.Duration) time.Duration {
	if c.CheckpointIntervalMS > 0 {
		return time.Duration(c.CheckpointIntervalMS) * time.Millisecond
	}
	return d
}
