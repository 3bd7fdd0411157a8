// Package docker provides a Docker Engine runtime adapter for space containers.
package docker

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/strslice"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/go-connections/nat"

	"github.com/bdobrica/spaces/internal/spaces/runtime"
)

const (
	labelManagedBy = "spaces.managed-by"
	labelSpaceID   = "spaces.space-id"
	managedByValue = "spaces"

	// stopTimeout is how long to wait for graceful container stop before SIGKILL.
	stopTimeout = 10 * time.Second

	// execPollInterval is the sleep between exec completion checks.
	execPollInterval = 500 * time.Millisecond
)

// Resource ceiling applied to every space container. Workloads are untrusted
// user sessions on a shared host, so CPU, memory, and process count are all
// bounded.
const (
	limitNanoCPUs = 1_000_000_000         // 1 CPU
	limitMemory   = 2 * 1024 * 1024 * 1024 // 2 GiB
	limitPids     = int64(256)
)

// capAdd is the minimal capability set the linuxserver.io images need to run
// their init and drop privileges. Everything else is dropped.
var capAdd = strslice.StrSlice{"CHOWN", "SETUID", "SETGID", "FOWNER", "DAC_OVERRIDE", "KILL"}

// Adapter implements runtime.Runtime using the Docker Engine API.
type Adapter struct {
	client *dockerclient.Client
}

// New creates a new Docker runtime adapter.
// Uses the DOCKER_HOST env var or the default socket path.
func New() (*Adapter, error) {
	cli, err := dockerclient.NewClientWithOpts(
		dockerclient.FromEnv,
		dockerclient.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return &Adapter{client: cli}, nil
}

// Create creates a space container from the given spec without starting it.
func (a *Adapter) Create(ctx context.Context, spec runtime.ContainerSpec) (string, error) {
	if spec.Image == "" {
		return "", fmt.Errorf("spec.Image is required")
	}
	if spec.InternalPort == 0 || spec.HostPort == 0 {
		return "", fmt.Errorf("spec.InternalPort and spec.HostPort are required")
	}

	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	labels := map[string]string{labelManagedBy: managedByValue}
	for k, v := range spec.Labels {
		labels[k] = v
	}

	internal, err := nat.NewPort("tcp", strconv.Itoa(spec.InternalPort))
	if err != nil {
		return "", fmt.Errorf("internal port %d: %w", spec.InternalPort, err)
	}

	containerCfg := &container.Config{
		Image:        spec.Image,
		Env:          env,
		Labels:       labels,
		ExposedPorts: nat.PortSet{internal: struct{}{}},
	}

	pidsLimit := limitPids
	hostCfg := &container.HostConfig{
		PortBindings: nat.PortMap{
			internal: []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: strconv.Itoa(spec.HostPort)}},
		},
		Resources: container.Resources{
			NanoCPUs:  limitNanoCPUs,
			Memory:    limitMemory,
			PidsLimit: &pidsLimit,
		},
		CapDrop:       strslice.StrSlice{"ALL"},
		CapAdd:        capAdd,
		SecurityOpt:   []string{"no-new-privileges"},
		RestartPolicy: container.RestartPolicy{Name: "no"},
	}

	resp, err := a.client.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, spec.Name)
	if err != nil {
		return "", fmt.Errorf("create container: %w", err)
	}
	return resp.ID, nil
}

// Start starts a created or stopped container.
func (a *Adapter) Start(ctx context.Context, ref string) error {
	// Inspect first so the "not modified" condition is reported
	// deterministically instead of depending on engine/API behaviour.
	inspect, err := a.client.ContainerInspect(ctx, ref)
	if err != nil {
		return mapEngineErr("inspect container", ref, err)
	}
	if inspect.State != nil && inspect.State.Running {
		return runtime.ErrAlreadyRunning
	}

	if err := a.client.ContainerStart(ctx, ref, container.StartOptions{}); err != nil {
		if errdefs.IsNotModified(err) {
			return runtime.ErrAlreadyRunning
		}
		return mapEngineErr("start container", ref, err)
	}
	return nil
}

// Stop gracefully stops the container.
func (a *Adapter) Stop(ctx context.Context, ref string) error {
	inspect, err := a.client.ContainerInspect(ctx, ref)
	if err != nil {
		return mapEngineErr("inspect container", ref, err)
	}
	if inspect.State != nil && !inspect.State.Running {
		return runtime.ErrAlreadyStopped
	}

	timeout := int(stopTimeout.Seconds())
	if err := a.client.ContainerStop(ctx, ref, container.StopOptions{Timeout: &timeout}); err != nil {
		if errdefs.IsNotModified(err) {
			return runtime.ErrAlreadyStopped
		}
		return mapEngineErr("stop container", ref, err)
	}
	return nil
}

// Remove force-removes the container. A missing container is not an error.
func (a *Adapter) Remove(ctx context.Context, ref string) error {
	err := a.client.ContainerRemove(ctx, ref, container.RemoveOptions{
		Force:         true,
		RemoveVolumes: true,
	})
	if err != nil && !dockerclient.IsErrNotFound(err) {
		return fmt.Errorf("remove container %s: %w", ref, err)
	}
	return nil
}

// Inspect returns the live status of the container.
func (a *Adapter) Inspect(ctx context.Context, ref string) (runtime.LiveStatus, error) {
	inspect, err := a.client.ContainerInspect(ctx, ref)
	if err != nil {
		return runtime.LiveStatus{}, mapEngineErr("inspect container", ref, err)
	}

	status := runtime.LiveStatus{ContainerRef: inspect.ID, State: runtime.StateUnknown}
	if inspect.State != nil {
		status.State = parseContainerState(inspect.State.Status)
		status.Running = inspect.State.Running
		status.ExitCode = inspect.State.ExitCode
		status.Error = inspect.State.Error
		status.StartedAt, _ = time.Parse(time.RFC3339Nano, inspect.State.StartedAt)
		status.FinishedAt, _ = time.Parse(time.RFC3339Nano, inspect.State.FinishedAt)
	}
	return status, nil
}

// Exec runs cmd inside the container and waits for it to finish.
func (a *Adapter) Exec(ctx context.Context, ref string, cmd []string) error {
	exec, err := a.client.ContainerExecCreate(ctx, ref, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: false,
		AttachStderr: false,
	})
	if err != nil {
		return mapEngineErr("exec create", ref, err)
	}

	if err := a.client.ContainerExecStart(ctx, exec.ID, container.ExecStartOptions{Detach: true}); err != nil {
		return fmt.Errorf("exec start in %s: %w", ref, err)
	}

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("exec in %s: %w", ref, ctx.Err())
		case <-time.After(execPollInterval):
		}

		info, err := a.client.ContainerExecInspect(ctx, exec.ID)
		if err != nil {
			return fmt.Errorf("exec inspect in %s: %w", ref, err)
		}
		if !info.Running {
			if info.ExitCode != 0 {
				return fmt.Errorf("exec in %s: exit code %d", ref, info.ExitCode)
			}
			return nil
		}
	}
}

// --- helpers ---

func mapEngineErr(op, ref string, err error) error {
	if dockerclient.IsErrNotFound(err) {
		return fmt.Errorf("%s %s: %w", op, ref, runtime.ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w", op, ref, err)
}

func parseContainerState(s string) runtime.ContainerState {
	switch strings.ToLower(s) {
	case "running":
		return runtime.StateRunning
	case "stopped":
		return runtime.StateStopped
	case "exited":
		return runtime.StateExited
	case "created":
		return runtime.StateCreated
	case "paused":
		return runtime.StatePaused
	case "removing":
		return runtime.StateRemoving
	default:
		return runtime.StateUnknown
	}
}
