// SPDX-License-Identifier: MIT

// recwatchd is the capture supervision daemon: it drains the redis job
// queues, runs recorder processes under supervision, and keeps the watcher
// registry consistent.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/recwatch/recwatch/internal/capture"
	"github.com/recwatch/recwatch/internal/config"
	"github.com/recwatch/recwatch/internal/dispatch"
	rwlog "github.com/recwatch/recwatch/internal/log"
	"github.com/recwatch/recwatch/internal/supervisor"
	"github.com/recwatch/recwatch/internal/uploader"
	"github.com/recwatch/recwatch/internal/watcher"
)

var (
	version   = "v0.1.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	rwlog.Configure(rwlog.Config{Service: "recwatch"})
	logger := rwlog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("configuration invalid")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer client.Close() //nolint:errcheck

	pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
	if err := client.Ping(pingCtx).Err(); err != nil {
		cancelPing()
		logger.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable")
	}
	cancelPing()

	processes := supervisor.NewRegistry()

	store := uploader.NewS3Store(ctx, uploader.S3Config{
		Bucket:      cfg.S3Bucket,
		EndpointURL: cfg.S3EndpointURL,
		Region:      cfg.AWSRegion,
		AccessKeyID: cfg.AWSAccessKeyID,
		SecretKey:   cfg.AWSSecretKey,
	})
	sidecar := uploader.NewSidecar(store)

	runner := &capture.ProcessRunner{Binary: cfg.RecorderBinary, Registry: processes}
	executor := capture.NewExecutor(runner)
	executor.DefaultTimeout = cfg.DefaultTimeout
	executor.Buffer = cfg.CaptureBuffer

	resolver := &capture.ProcessResolver{Binary: cfg.RecorderBinary}

	worker := dispatch.NewWorker(client, []string{cfg.DefaultQueue, cfg.RecordingQueue}, cfg.WorkerCount, processes)
	dispatch.RegisterHandlers(worker, dispatch.JobDeps{
		Executor:      executor,
		Resolver:      resolver,
		Sidecar:       sidecar,
		Watchers:      watcher.NewRegistry(client),
		Processes:     processes,
		RecordingsDir: cfg.RecordingsDir,

		MinPollInterval: cfg.MinPollInterval,
		MaxPollInterval: cfg.MaxPollInterval,
	})

	logger.Info().
		Str("version", version).
		Str("redis", cfg.RedisAddr).
		Str("recordings_dir", cfg.RecordingsDir).
		Int("workers", cfg.WorkerCount).
		Msg("recwatchd started")

	if err := worker.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("worker pool failed")
	}

	// Reap any recorder process trees still alive after the drain.
	processes.CleanupAll()
	logger.Info().Msg("recwatchd stopped")
}
