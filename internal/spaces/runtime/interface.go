// Package runtime defines the Runtime interface for space container lifecycle management.
package runtime

import "context"

// Runtime abstracts the container engine (Docker on a single host).
// It is the source of truth for live runtime state; durable metadata lives
// in the store.
type Runtime interface {
	// Create creates a container from the given spec without starting it.
	// Returns the engine's opaque container ref.
	Create(ctx context.Context, spec ContainerSpec) (string, error)

	// Start starts a created or stopped container.
	// Returns ErrAlreadyRunning when the engine reports "not modified".
	Start(ctx context.Context, ref string) error

	// Stop gracefully stops a running container.
	// Returns ErrAlreadyStopped when the engine reports "not modified".
	Stop(ctx context.Context, ref string) error

	// Remove force-removes the container. Removing a container that is
	// already gone is not an error.
	Remove(ctx context.Context, ref string) error

	// Inspect returns the live status of a container.
	Inspect(ctx context.Context, ref string) (LiveStatus, error)

	// Exec runs a command inside a running container and waits for it to
	// finish. Used for best-effort in-container setup; callers must treat
	// failures as non-fatal.
	Exec(ctx context.Context, ref string, cmd []string) error
}
