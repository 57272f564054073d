// SPDX-License-Identifier: MIT

// Package config loads daemon settings from the environment.
package config

import (
	"fmt"
	"os"
	"time"
)

// Config holds all daemon settings. Values are read once at startup.
type Config struct {
	// RecordingsDir is the root directory capture artifacts are written to.
	RecordingsDir string

	// RecorderBinary is the external capture engine executable.
	RecorderBinary string

	// Redis backs the job queues, result store and watcher registry.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Queue names and worker pool size.
	DefaultQueue   string
	RecordingQueue string
	WorkerCount    int

	// Process supervision.
	DefaultTimeout time.Duration // wall-clock ceiling for one capture process
	CaptureBuffer  time.Duration // added to bounded-duration captures

	// Watcher polling bounds.
	MinPollInterval time.Duration
	MaxPollInterval time.Duration

	// S3/MinIO upload target. Uploads are disabled when Bucket is empty.
	S3Bucket        string
	S3EndpointURL   string
	AWSRegion       string
	AWSAccessKeyID  string
	AWSSecretKey    string
}

// Load reads the configuration from the environment and ensures the
// recordings directory exists.
func Load() (*Config, error) {
	cfg := &Config{
		RecordingsDir:   ParseString("RECORDINGS_DIR", "/var/lib/recwatch/recordings"),
		RecorderBinary:  ParseString("RECORDER_BINARY", "recorder"),
		RedisAddr:       ParseString("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   ParseString("REDIS_PASSWORD", ""),
		RedisDB:         ParseInt("REDIS_DB", 0),
		DefaultQueue:    ParseString("QUEUE_DEFAULT", "default"),
		RecordingQueue:  ParseString("QUEUE_RECORDING", "recording"),
		WorkerCount:     ParseInt("WORKER_COUNT", 4),
		DefaultTimeout:  ParseDuration("PROCESS_TIMEOUT_SECONDS", 3600*time.Second),
		CaptureBuffer:   ParseDuration("CAPTURE_BUFFER_SECONDS", 300*time.Second),
		MinPollInterval: ParseDuration("MIN_POLL_INTERVAL_SECONDS", 10*time.Second),
		MaxPollInterval: ParseDuration("MAX_POLL_INTERVAL_SECONDS", 3600*time.Second),
		S3Bucket:        ParseString("S3_BUCKET", ""),
		S3EndpointURL:   ParseString("S3_ENDPOINT_URL", ""),
		AWSRegion:       ParseString("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:  ParseString("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:    ParseString("AWS_SECRET_ACCESS_KEY", ""),
	}

	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}

	if err := os.MkdirAll(cfg.RecordingsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create recordings dir %q: %w", cfg.RecordingsDir, err)
	}
	return cfg, nil
}
