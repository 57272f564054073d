// SPDX-License-Identifier: MIT

// Package uploader pushes capture artifacts to object storage as a
// best-effort sidecar: per-file outcomes are recorded and logged, but an
// upload failure never fails the capture job that produced the files.
package uploader

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/recwatch/recwatch/internal/log"
	"github.com/recwatch/recwatch/internal/metrics"
)

// Outcome describes the result of uploading one artifact.
type Outcome struct {
	Path       string `json:"file_path,omitempty"`
	Bucket     string `json:"bucket,omitempty"`
	Key        string `json:"key,omitempty"`
	URL        string `json:"url,omitempty"`
	Size       int64  `json:"size,omitempty"`
	UploadedAt string `json:"uploaded_at,omitempty"`
	Uploaded   bool   `json:"uploaded"`
	Error      string `json:"error,omitempty"`
}

// ObjectStore is the object-storage collaborator. Upload stores one local
// file under the destination key and reports what was written.
type ObjectStore interface {
	Enabled() bool
	Upload(ctx context.Context, filePath, key string) (Outcome, error)
}

// Sidecar uploads produced artifacts after a successful capture.
type Sidecar struct {
	store  ObjectStore
	clock  func() time.Time
	logger zerolog.Logger
}

// NewSidecar creates a sidecar over the given store.
func NewSidecar(store ObjectStore) *Sidecar {
	return &Sidecar{
		store:  store,
		clock:  time.Now,
		logger: log.WithComponent("uploader"),
	}
}

// UploadAll uploads every file, continuing past individual failures, and
// returns one outcome per file. With a disabled store it returns nil.
func (s *Sidecar) UploadAll(ctx context.Context, prefix string, files []string) []Outcome {
	if s.store == nil || !s.store.Enabled() {
		s.logger.Info().Msg("object storage not enabled, skipping upload")
		return nil
	}

	outcomes := make([]Outcome, 0, len(files))
	for _, file := range files {
		key := ""
		if prefix != "" {
			key = strings.TrimSuffix(prefix, "/") + "/" + filepath.Base(file)
		} else {
			key = s.KeyFor(file, "")
		}

		out, err := s.store.Upload(ctx, file, key)
		if err != nil {
			s.logger.Error().Err(err).
				Str(log.FieldPath, file).
				Str(log.FieldS3Key, key).
				Msg("failed to upload file")
			outcomes = append(outcomes, Outcome{Path: file, Error: err.Error(), Uploaded: false})
			metrics.IncUpload(false)
			continue
		}
		out.Uploaded = true
		outcomes = append(outcomes, out)
		metrics.IncUpload(true)
	}
	return outcomes
}

// Start launches UploadAll in the background. Fire-and-forget relative to
// the job result; the returned channel delivers the outcomes for callers
// that do want them (the record_once handler waits, watchers do not).
func (s *Sidecar) Start(ctx context.Context, prefix string, files []string) <-chan []Outcome {
	ch := make(chan []Outcome, 1)
	go func() {
		defer close(ch)
		outcomes := s.UploadAll(ctx, prefix, files)
		ok := 0
		for _, o := range outcomes {
			if o.Uploaded {
				ok++
			}
		}
		s.logger.Info().
			Int("total_files", len(files)).
			Int("successful", ok).
			Int("failed", len(outcomes)-ok).
			Msg("artifact upload finished")
		ch <- outcomes
	}()
	return ch
}

// KeyFor builds the deterministic destination key for one artifact:
// recordings/<roomID|unknown>/<YYYY>/<MM>/<DD>/<name>.
func (s *Sidecar) KeyFor(filePath, roomID string) string {
	if roomID == "" {
		roomID = "unknown"
	}
	now := s.clock().UTC()
	return fmt.Sprintf("recordings/%s/%04d/%02d/%02d/%s",
		roomID, now.Year(), now.Month(), now.Day(), filepath.Base(filePath))
}

// Prefix builds the per-job key prefix used for a batch of artifacts:
// <roomID|unknown>/<YYYY>/<MM>/<DD>.
func (s *Sidecar) Prefix(roomID string) string {
	if roomID == "" {
		roomID = "unknown"
	}
	now := s.clock().UTC()
	return fmt.Sprintf("%s/%04d/%02d/%02d", roomID, now.Year(), now.Month(), now.Day())
}
