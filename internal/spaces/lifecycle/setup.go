package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/bdobrica/spaces/common/retry"
	"github.com/bdobrica/spaces/internal/spaces/store"
)

// setupCodeServer prepares a freshly started code-server container: a
// workspace directory and, when the user has a Hackatime key, the wakatime
// config so editor activity is tracked. The container needs a moment to
// come up, so the exec is retried.
func (m *Manager) setupCodeServer(ctx context.Context, containerRef string, user *store.User) error {
	script := "mkdir -p /config/workspace"
	if user.HackatimeAPIKey.Valid && user.HackatimeAPIKey.String != "" {
		script += fmt.Sprintf(
			" && printf '[settings]\\napi_url = https://hackatime.hackclub.com/api/hackatime/v1\\napi_key = %s\\n' > /config/.wakatime.cfg",
			user.HackatimeAPIKey.String)
	}

	return retry.Do(ctx, retry.Config{
		MaxAttempts:  4,
		InitialDelay: 2 * time.Second,
		MaxDelay:     10 * time.Second,
	}, func() error {
		execCtx, cancel := context.WithTimeout(ctx, m.opTimeout)
		defer cancel()
		return m.rt.Exec(execCtx, containerRef, []string{"sh", "-c", script})
	})
}
