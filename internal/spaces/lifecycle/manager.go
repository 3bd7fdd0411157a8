package lifecycle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bdobrica/spaces/internal/spaces/runtime"
	"github.com/bdobrica/spaces/internal/spaces/store"
)

// newSpaceID is assigned before the container is named, since the container
// name embeds the space ID.
func newSpaceID() string { return uuid.NewString() }

const defaultOpTimeout = 30 * time.Second

// Manager owns the space lifecycle: provisioning, start/stop, status, and
// teardown. Every user-facing operation is ownership-scoped; rows the caller
// does not own surface as not found.
type Manager struct {
	store     *store.Store
	rt        runtime.Runtime
	urls      URLComposer
	log       *slog.Logger
	opTimeout time.Duration
}

// NewManager wires a Manager. opTimeout bounds each engine interaction;
// zero picks the default.
func NewManager(st *store.Store, rt runtime.Runtime, urls URLComposer, log *slog.Logger, opTimeout time.Duration) *Manager {
	if opTimeout <= 0 {
		opTimeout = defaultOpTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{store: st, rt: rt, urls: urls, log: log, opTimeout: opTimeout}
}

// CreateRequest carries the caller's input for a new space.
type CreateRequest struct {
	Type        string
	Description string
	// Password is required for code-server and rejected below 8 characters.
	// GUI types ignore it and get a generated credential instead.
	Password string
}

// Create provisions a new space for the user and starts it. The container is
// created and running before the row is written; if the row write fails the
// container is torn down so no orphan survives.
func (m *Manager) Create(ctx context.Context, user *store.User, req CreateRequest) (*store.Space, error) {
	spaceType, spec, ok := specFor(req.Type)
	if !ok {
		return nil, errUnsupportedType(req.Type)
	}

	var credential string
	var storedPassword sql.NullString
	if spec.GUI {
		generated, err := generatePassword()
		if err != nil {
			return nil, internalErr("failed to provision credentials", err)
		}
		credential = generated
	} else {
		if len(req.Password) < 8 {
			return nil, errInvalidPassword()
		}
		credential = req.Password
		storedPassword = sql.NullString{String: req.Password, Valid: true}
	}

	count, err := m.store.CountSpacesByUser(ctx, user.ID)
	if err != nil {
		return nil, internalErr("failed to check quota", err)
	}
	if count >= user.MaxSpaces {
		return nil, errQuotaExceeded(user.MaxSpaces)
	}

	if running, err := m.store.GetRunningSpace(ctx, user.ID); err == nil {
		return nil, errConflictingSession(running.ID)
	} else if err != store.ErrNotFound {
		return nil, internalErr("failed to check running spaces", err)
	}

	port, releasePort, err := allocatePort()
	if err != nil {
		return nil, internalErr("failed to allocate port", err)
	}
	defer releasePort()

	sp := &store.Space{
		UserID:      user.ID,
		Type:        string(spaceType),
		Description: req.Description,
		Image:       spec.Image,
		Port:        port,
		Password:    storedPassword,
	}
	sp.ID = newSpaceID()

	env := map[string]string{"PASSWORD": credential, "TZ": "Etc/UTC"}
	if spec.GUI {
		env["CUSTOM_USER"] = "abc"
	}

	opCtx, cancel := context.WithTimeout(ctx, m.opTimeout)
	defer cancel()

	releasePort()
	containerRef, err := m.rt.Create(opCtx, runtime.ContainerSpec{
		Name:         runtime.ContainerNameFor(sp.ID),
		Image:        spec.Image,
		Env:          env,
		Labels:       map[string]string{"spaces.space-id": sp.ID, "spaces.type": string(spaceType)},
		InternalPort: spec.InternalPort,
		HostPort:     port,
	})
	if err != nil {
		return nil, internalErr("failed to create container", err)
	}
	sp.ContainerID = containerRef

	if err := m.rt.Start(opCtx, containerRef); err != nil {
		m.teardown(containerRef)
		return nil, internalErr("failed to start container", err)
	}

	if spaceType == TypeCodeServer {
		// Best effort: the space is usable even if setup fails.
		if err := m.setupCodeServer(ctx, containerRef, user); err != nil {
			m.log.Warn("code-server setup failed", "space_id", sp.ID, "err", err)
		}
	}

	accessURL, err := m.urls.Compose(sp.ID, port, spec.GUI, credential)
	if err != nil {
		m.teardown(containerRef)
		return nil, internalErr("failed to compose access url", err)
	}
	sp.AccessURL = accessURL
	sp.Running = true
	sp.StartedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}

	if err := m.store.CreateSpace(ctx, sp); err != nil {
		m.teardown(containerRef)
		return nil, internalErr("failed to persist space", err)
	}

	m.log.Info("space created",
		"space_id", sp.ID, "user_id", user.ID, "type", spaceType, "port", port)
	return sp, nil
}

// Start brings an existing stopped space back up. A container that vanished
// out from under the row is recreated on a fresh port.
func (m *Manager) Start(ctx context.Context, user *store.User, spaceID string) (*store.Space, error) {
	sp, err := m.getOwned(ctx, user, spaceID)
	if err != nil {
		return nil, err
	}

	if running, err := m.store.GetRunningSpace(ctx, user.ID); err == nil {
		if running.ID == sp.ID {
			return nil, errAlreadyRunning()
		}
		return nil, errConflictingSession(running.ID)
	} else if err != store.ErrNotFound {
		return nil, internalErr("failed to check running spaces", err)
	}

	opCtx, cancel := context.WithTimeout(ctx, m.opTimeout)
	defer cancel()

	err = m.rt.Start(opCtx, sp.ContainerID)
	switch {
	case err == nil:
	case errors.Is(err, runtime.ErrAlreadyRunning):
		// The engine is ground truth; the row just lagged behind.
		if uerr := m.store.MarkSpaceRunning(ctx, sp.ID, time.Now().UTC()); uerr != nil {
			m.log.Warn("failed to reconcile running flag", "space_id", sp.ID, "err", uerr)
		}
		return nil, errAlreadyRunning()
	case errors.Is(err, runtime.ErrNotFound):
		if sp, err = m.recreate(opCtx, sp, user); err != nil {
			return nil, err
		}
	default:
		return nil, internalErr("failed to start container", err)
	}

	if sp.Type == string(TypeCodeServer) {
		if err := m.setupCodeServer(ctx, sp.ContainerID, user); err != nil {
			m.log.Warn("code-server setup failed", "space_id", sp.ID, "err", err)
		}
	}

	now := time.Now().UTC()
	if err := m.store.MarkSpaceRunning(ctx, sp.ID, now); err != nil {
		return nil, internalErr("failed to persist running state", err)
	}
	sp.Running = true
	sp.StartedAt = sql.NullTime{Time: now, Valid: true}

	m.log.Info("space started", "space_id", sp.ID, "user_id", user.ID)
	return sp, nil
}

// Stop shuts a running space down.
func (m *Manager) Stop(ctx context.Context, user *store.User, spaceID string) (*store.Space, error) {
	sp, err := m.getOwned(ctx, user, spaceID)
	if err != nil {
		return nil, err
	}

	opCtx, cancel := context.WithTimeout(ctx, m.opTimeout)
	defer cancel()

	err = m.rt.Stop(opCtx, sp.ContainerID)
	switch {
	case err == nil:
	case errors.Is(err, runtime.ErrAlreadyStopped):
		if uerr := m.store.MarkSpaceStopped(ctx, sp.ID); uerr != nil {
			m.log.Warn("failed to reconcile running flag", "space_id", sp.ID, "err", uerr)
		}
		return nil, errAlreadyStopped()
	case errors.Is(err, runtime.ErrNotFound):
		if uerr := m.store.MarkSpaceStopped(ctx, sp.ID); uerr != nil {
			m.log.Warn("failed to reconcile running flag", "space_id", sp.ID, "err", uerr)
		}
		return nil, errSpaceNotFound()
	default:
		return nil, internalErr("failed to stop container", err)
	}

	if err := m.store.MarkSpaceStopped(ctx, sp.ID); err != nil {
		return nil, internalErr("failed to persist stopped state", err)
	}
	sp.Running = false
	sp.StartedAt = sql.NullTime{}

	m.log.Info("space stopped", "space_id", sp.ID, "user_id", user.ID)
	return sp, nil
}

// Status combines the stored row with the live container state.
type Status struct {
	Space *store.Space
	Live  runtime.LiveStatus
}

// Status reports the space's row and live engine state. Drift between the
// two is repaired in the row before returning.
func (m *Manager) Status(ctx context.Context, user *store.User, spaceID string) (*Status, error) {
	sp, err := m.getOwned(ctx, user, spaceID)
	if err != nil {
		return nil, err
	}

	opCtx, cancel := context.WithTimeout(ctx, m.opTimeout)
	defer cancel()

	live, err := m.rt.Inspect(opCtx, sp.ContainerID)
	switch {
	case errors.Is(err, runtime.ErrNotFound):
		// The container vanished; correct the row and tell the caller.
		if sp.Running {
			if uerr := m.store.MarkSpaceStopped(ctx, sp.ID); uerr != nil {
				m.log.Warn("failed to reconcile running flag", "space_id", sp.ID, "err", uerr)
			}
		}
		return nil, errContainerGone()
	case err != nil:
		return nil, internalErr("failed to inspect container", err)
	}

	if sp.Running != live.Running {
		if live.Running {
			started := time.Now().UTC()
			if !live.StartedAt.IsZero() {
				started = live.StartedAt
			}
			err = m.store.MarkSpaceRunning(ctx, sp.ID, started)
		} else {
			err = m.store.MarkSpaceStopped(ctx, sp.ID)
		}
		if err != nil {
			m.log.Warn("failed to repair state drift", "space_id", sp.ID, "err", err)
		} else {
			sp, err = m.store.GetSpace(ctx, sp.ID)
			if err != nil {
				return nil, internalErr("failed to reload space", err)
			}
		}
	}

	return &Status{Space: sp, Live: live}, nil
}

// Delete tears a space down: container removed, then the row. Runtime
// failures during teardown are logged and swallowed so a stuck or missing
// container never blocks the user from removing the record.
func (m *Manager) Delete(ctx context.Context, user *store.User, spaceID string) error {
	sp, err := m.getOwned(ctx, user, spaceID)
	if err != nil {
		return err
	}
	return m.remove(ctx, sp)
}

// AdminDelete removes any space regardless of owner.
func (m *Manager) AdminDelete(ctx context.Context, spaceID string) error {
	sp, err := m.store.GetSpace(ctx, spaceID)
	if err == store.ErrNotFound {
		return errSpaceNotFound()
	}
	if err != nil {
		return internalErr("failed to load space", err)
	}
	return m.remove(ctx, sp)
}

func (m *Manager) remove(ctx context.Context, sp *store.Space) error {
	opCtx, cancel := context.WithTimeout(ctx, m.opTimeout)
	defer cancel()

	if err := m.rt.Remove(opCtx, sp.ContainerID); err != nil && !errors.Is(err, runtime.ErrNotFound) {
		// Lossy cleanup: the row goes regardless, the engine may keep a
		// stray container behind.
		m.log.Warn("container removal failed, deleting row anyway",
			"space_id", sp.ID, "container_id", sp.ContainerID, "err", err)
	}
	if err := m.store.DeleteSpace(ctx, sp.ID); err != nil && err != store.ErrNotFound {
		return internalErr("failed to delete space row", err)
	}
	m.log.Info("space deleted", "space_id", sp.ID, "user_id", sp.UserID)
	return nil
}

// List returns the user's spaces from the store. Live state is not
// consulted here; Status exists for that.
func (m *Manager) List(ctx context.Context, user *store.User) ([]*store.Space, error) {
	spaces, err := m.store.ListSpacesByUser(ctx, user.ID)
	if err != nil {
		return nil, internalErr("failed to list spaces", err)
	}
	return spaces, nil
}

// Quota reports the user's space usage against their limit.
type Quota struct {
	Used  int
	Limit int
}

// GetQuota returns the user's current quota consumption.
func (m *Manager) GetQuota(ctx context.Context, user *store.User) (Quota, error) {
	count, err := m.store.CountSpacesByUser(ctx, user.ID)
	if err != nil {
		return Quota{}, internalErr("failed to count spaces", err)
	}
	return Quota{Used: count, Limit: user.MaxSpaces}, nil
}

func (m *Manager) getOwned(ctx context.Context, user *store.User, spaceID string) (*store.Space, error) {
	sp, err := m.store.GetSpaceOwned(ctx, spaceID, user.ID)
	if err == store.ErrNotFound {
		return nil, errSpaceNotFound()
	}
	if err != nil {
		return nil, internalErr("failed to load space", err)
	}
	return sp, nil
}

// recreate rebuilds a space's container after the engine lost it, on a fresh
// port, and records the new binding.
func (m *Manager) recreate(ctx context.Context, sp *store.Space, user *store.User) (*store.Space, error) {
	_, spec, ok := specFor(sp.Type)
	if !ok {
		return nil, internalErr("stored space has unknown type", fmt.Errorf("type %q", sp.Type))
	}

	port, releasePort, err := allocatePort()
	if err != nil {
		return nil, internalErr("failed to allocate port", err)
	}
	defer releasePort()

	credential := ""
	if sp.Password.Valid {
		credential = sp.Password.String
	} else if spec.GUI {
		credential, err = generatePassword()
		if err != nil {
			return nil, internalErr("failed to provision credentials", err)
		}
	}

	env := map[string]string{"PASSWORD": credential, "TZ": "Etc/UTC"}
	if spec.GUI {
		env["CUSTOM_USER"] = "abc"
	}

	releasePort()
	containerRef, err := m.rt.Create(ctx, runtime.ContainerSpec{
		Name:         runtime.ContainerNameFor(sp.ID),
		Image:        sp.Image,
		Env:          env,
		Labels:       map[string]string{"spaces.space-id": sp.ID, "spaces.type": sp.Type},
		InternalPort: spec.InternalPort,
		HostPort:     port,
	})
	if err != nil {
		return nil, internalErr("failed to recreate container", err)
	}
	if err := m.rt.Start(ctx, containerRef); err != nil {
		m.teardown(containerRef)
		return nil, internalErr("failed to start recreated container", err)
	}

	accessURL, err := m.urls.Compose(sp.ID, port, spec.GUI, credential)
	if err != nil {
		m.teardown(containerRef)
		return nil, internalErr("failed to compose access url", err)
	}

	if err := m.store.UpdateSpaceAccess(ctx, sp.ID, containerRef, port, accessURL); err != nil {
		m.teardown(containerRef)
		return nil, internalErr("failed to record new binding", err)
	}

	sp.ContainerID = containerRef
	sp.Port = port
	sp.AccessURL = accessURL

	// The old reference is gone from the engine; only the row knew it.
	m.log.Info("container recreated", "space_id", sp.ID, "port", port)
	return sp, nil
}

// teardown removes a container during failure cleanup. It runs on a fresh
// context because the caller's may already be dead.
func (m *Manager) teardown(containerRef string) {
	ctx, cancel := context.WithTimeout(context.Background(), m.opTimeout)
	defer cancel()
	if err := m.rt.Remove(ctx, containerRef); err != nil && !errors.Is(err, runtime.ErrNotFound) {
		m.log.Error("cleanup failed, container may be orphaned",
			"container_ref", containerRef, "err", err)
	}
}
