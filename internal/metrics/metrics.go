// SPDX-License-Identifier: MIT

// Package metrics holds the prometheus instruments for job supervision.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProcTerminateTotal tracks termination signals sent to recorder
	// process groups, by signal and outcome.
	ProcTerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recwatch_proc_terminate_total",
		Help: "Termination signals sent to recorder process groups",
	}, []string{"signal", "outcome"})

	// ProcWaitTotal tracks how supervised processes ended.
	ProcWaitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recwatch_proc_wait_total",
		Help: "Supervised process wait outcomes",
	}, []string{"outcome"})

	// CaptureTotal tracks capture attempts by result.
	CaptureTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recwatch_capture_total",
		Help: "Capture attempts by result",
	}, []string{"result"})

	// CaptureDuration tracks wall-clock capture attempt duration.
	CaptureDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "recwatch_capture_duration_seconds",
		Help:    "Wall-clock duration of capture attempts",
		Buckets: []float64{1, 5, 15, 60, 300, 900, 1800, 3600, 7200},
	})

	// WatcherCyclesTotal tracks watcher poll cycles by outcome.
	WatcherCyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recwatch_watcher_cycles_total",
		Help: "Watcher poll cycles by outcome",
	}, []string{"outcome"})

	// WatcherBackoffSeconds tracks backoff sleeps applied after cycle errors.
	WatcherBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "recwatch_watcher_backoff_seconds",
		Help:    "Backoff sleeps applied after watcher cycle errors",
		Buckets: []float64{10, 30, 60, 120, 240, 300},
	})

	// UploadTotal tracks artifact upload outcomes.
	UploadTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recwatch_upload_total",
		Help: "Artifact upload outcomes",
	}, []string{"outcome"})
)

// IncProcTerminate records a termination signal attempt.
func IncProcTerminate(signal, outcome string) {
	ProcTerminateTotal.WithLabelValues(signal, outcome).Inc()
}

// IncProcWait records how a supervised process ended.
func IncProcWait(outcome string) {
	ProcWaitTotal.WithLabelValues(outcome).Inc()
}

// ObserveCapture records one capture attempt.
func ObserveCapture(exitCode int, duration time.Duration) {
	result := "failure"
	if exitCode == 0 {
		result = "success"
	}
	CaptureTotal.WithLabelValues(result).Inc()
	CaptureDuration.Observe(duration.Seconds())
}

// IncWatcherCycle records a watcher poll cycle outcome.
func IncWatcherCycle(outcome string) {
	WatcherCyclesTotal.WithLabelValues(outcome).Inc()
}

// ObserveWatcherBackoff records a backoff sleep.
func ObserveWatcherBackoff(d time.Duration) {
	WatcherBackoffSeconds.Observe(d.Seconds())
}

// IncUpload records an artifact upload outcome.
func IncUpload(ok bool) {
	outcome := "failure"
	if ok {
		outcome = "success"
	}
	UploadTotal.WithLabelValues(outcome).Inc()
}
