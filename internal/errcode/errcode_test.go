// SPDX-License-Identifier: MIT

package errcode

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromExitCodeTable(t *testing.T) {
	cases := map[int]Kind{
		1:   RecorderExitNonZero,
		2:   InvalidURL,
		3:   InvalidRoomID,
		4:   NetworkTimeout,
		5:   LiveOffline,
		127: FfmpegMissing,
	}
	for code, want := range cases {
		assert.Equal(t, want, FromExitCode(code), "code %d", code)
	}
}

func TestFromExitCodeZero(t *testing.T) {
	assert.Equal(t, Kind(""), FromExitCode(0))
}

func TestFromExitCodeUnmappedNeverEmpty(t *testing.T) {
	// Any non-zero code outside the table must fall back, never be empty.
	for _, code := range []int{6, 42, 126, 128, 137, 255, -1} {
		got := FromExitCode(code)
		require.NotEmpty(t, got, "code %d", code)
		assert.Equal(t, RecorderExitNonZero, got, "code %d", code)
	}
}

func TestErrorWrapping(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(ProxyError, "proxy unreachable", cause).WithDetail("proxy", "socks5://x")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ProxyError, KindOf(err))
	assert.Equal(t, "socks5://x", err.Details["proxy"])

	// Kind survives further wrapping with %w.
	outer := fmt.Errorf("cycle failed: %w", err)
	assert.Equal(t, ProxyError, KindOf(outer))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, InternalError, KindOf(errors.New("plain")))
	assert.Equal(t, CookiesInvalid, KindOf(New(CookiesInvalid, "bad json")))
}

func TestErrorIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(WatcherNotFound, "no entry"))
	assert.True(t, errors.Is(err, New(WatcherNotFound, "")))
	assert.False(t, errors.Is(err, New(WatcherStopFailed, "")))
}
