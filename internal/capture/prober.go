// SPDX-License-Identifier: MIT

package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/recwatch/recwatch/internal/errcode"
	"github.com/recwatch/recwatch/internal/supervisor"
)

// probeTimeout bounds one resolution/liveness probe.
const probeTimeout = 30 * time.Second

// ProcessResolver answers resolution and liveness questions by invoking the
// recorder binary's probe mode. The probe writes a single JSON object to
// stdout: {"room_id": "...", "is_live": bool}.
type ProcessResolver struct {
	// Binary is the recorder executable, shared with ProcessRunner.
	Binary string
	// Proxy is forwarded to probes when set.
	Proxy string
}

type probeReport struct {
	RoomID string `json:"room_id"`
	IsLive bool   `json:"is_live"`
}

// ResolveRoom resolves a live URL to its room ID. An empty ID with a nil
// error means the target could not be resolved right now; callers retry.
func (r *ProcessResolver) ResolveRoom(ctx context.Context, url string) (string, error) {
	report, err := r.probe(ctx, "--url", url)
	if err != nil {
		return "", err
	}
	return report.RoomID, nil
}

// IsLive reports whether the room is currently broadcasting. An offline exit
// from the probe is a negative answer, not an error.
func (r *ProcessResolver) IsLive(ctx context.Context, roomID string) (bool, error) {
	report, err := r.probe(ctx, "--room-id", roomID)
	if err != nil {
		if errcode.KindOf(err) == errcode.LiveOffline {
			return false, nil
		}
		return false, err
	}
	return report.IsLive, nil
}

func (r *ProcessResolver) probe(ctx context.Context, args ...string) (probeReport, error) {
	argv := append([]string{"probe"}, args...)
	if r.Proxy != "" {
		argv = append(argv, "--proxy", r.Proxy)
	}

	sup := supervisor.New(probeTimeout)
	code, stdout, stderr, err := sup.Run(ctx, supervisor.Command{Name: r.Binary, Args: argv})
	if err != nil {
		return probeReport{}, err
	}
	if code != 0 {
		return probeReport{}, errcode.Newf(errcode.FromExitCode(code), "probe exited %d: %s", code, stderr)
	}

	var report probeReport
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		return probeReport{}, fmt.Errorf("parse probe report: %w", err)
	}
	return report, nil
}
