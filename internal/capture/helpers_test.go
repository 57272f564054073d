// SPDX-License-Identifier: MIT

package capture

import (
	"context"
	"testing"

	"github.com/recwatch/recwatch/internal/log"
)

func contextWithJob(t *testing.T, jobID string) context.Context {
	t.Helper()
	return log.ContextWithJobID(context.Background(), jobID)
}
