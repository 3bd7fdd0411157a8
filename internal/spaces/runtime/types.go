// Package runtime defines shared types for the container runtime abstraction.
package runtime

import (
	"errors"
	"time"
)

// ContainerSpec describes how a space container should be created.
type ContainerSpec struct {
	// Name is the container name (derived from the space ID).
	Name string
	// Image is the Docker image to use (e.g. "linuxserver/code-server").
	Image string
	// Env holds environment variables to inject into the container.
	Env map[string]string
	// Labels are extra Docker labels to attach to the container.
	Labels map[string]string
	// InternalPort is the TCP port the workload listens on inside the container.
	InternalPort int
	// HostPort is the host port bound to InternalPort.
	HostPort int
}

// ContainerState mirrors docker container states.
type ContainerState string

const (
	StateRunning  ContainerState = "running"
	StateStopped  ContainerState = "stopped"
	StateExited   ContainerState = "exited"
	StateCreated  ContainerState = "created"
	StatePaused   ContainerState = "paused"
	StateRemoving ContainerState = "removing"
	StateUnknown  ContainerState = "unknown"
)

// LiveStatus holds live container status information from the engine.
// The engine view is authoritative for current run state; database flags
// are only a mirror of the last observed transition.
type LiveStatus struct {
	ContainerRef string
	State        ContainerState
	Running      bool
	StartedAt    time.Time
	FinishedAt   time.Time
	ExitCode     int
	Error        string
}

// Sentinel errors returned by Runtime implementations. Callers use these to
// distinguish expected engine conditions from transient faults.
var (
	// ErrNotFound means the container ref does not resolve to an instance.
	ErrNotFound = errors.New("runtime: container not found")
	// ErrAlreadyRunning is the engine-level "not modified" condition on start.
	ErrAlreadyRunning = errors.New("runtime: container already running")
	// ErrAlreadyStopped is the engine-level "not modified" condition on stop.
	ErrAlreadyStopped = errors.New("runtime: container already stopped")
)

// ContainerNameFor returns the Docker container name for a space ID.
func ContainerNameFor(spaceID string) string {
	return "space-" + spaceID
}
