package lifecycle_test

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/bdobrica/spaces/internal/spaces/runtime"
	"github.com/bdobrica/spaces/internal/spaces/store"
)

// mockRuntime satisfies runtime.Runtime for testing.
type mockRuntime struct {
	containers map[string]*mockContainer
	nextRef    int

	// failures injected per operation name ("create", "start", ...).
	failures map[string]error

	execCalls [][]string
}

type mockContainer struct {
	spec    runtime.ContainerSpec
	running bool
}

func newMockRuntime() *mockRuntime {
	return &mockRuntime{
		containers: make(map[string]*mockContainer),
		failures:   make(map[string]error),
	}
}

func (m *mockRuntime) Create(_ context.Context, spec runtime.ContainerSpec) (string, error) {
	if err := m.failures["create"]; err != nil {
		return "", err
	}
	m.nextRef++
	ref := fmt.Sprintf("mock-%d", m.nextRef)
	m.containers[ref] = &mockContainer{spec: spec}
	return ref, nil
}

func (m *mockRuntime) Start(_ context.Context, ref string) error {
	if err := m.failures["start"]; err != nil {
		return err
	}
	c, ok := m.containers[ref]
	if !ok {
		return runtime.ErrNotFound
	}
	if c.running {
		return runtime.ErrAlreadyRunning
	}
	c.running = true
	return nil
}

func (m *mockRuntime) Stop(_ context.Context, ref string) error {
	if err := m.failures["stop"]; err != nil {
		return err
	}
	c, ok := m.containers[ref]
	if !ok {
		return runtime.ErrNotFound
	}
	if !c.running {
		return runtime.ErrAlreadyStopped
	}
	c.running = false
	return nil
}

func (m *mockRuntime) Remove(_ context.Context, ref string) error {
	if err := m.failures["remove"]; err != nil {
		return err
	}
	if _, ok := m.containers[ref]; !ok {
		return runtime.ErrNotFound
	}
	delete(m.containers, ref)
	return nil
}

func (m *mockRuntime) Inspect(_ context.Context, ref string) (runtime.LiveStatus, error) {
	if err := m.failures["inspect"]; err != nil {
		return runtime.LiveStatus{}, err
	}
	c, ok := m.containers[ref]
	if !ok {
		return runtime.LiveStatus{}, runtime.ErrNotFound
	}
	state := runtime.StateStopped
	if c.running {
		state = runtime.StateRunning
	}
	return runtime.LiveStatus{ContainerRef: ref, State: state, Running: c.running}, nil
}

func (m *mockRuntime) Exec(_ context.Context, ref string, cmd []string) error {
	if err := m.failures["exec"]; err != nil {
		return err
	}
	if _, ok := m.containers[ref]; !ok {
		return runtime.ErrNotFound
	}
	m.execCalls = append(m.execCalls, cmd)
	return nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "lifecycle-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	s, err := store.New(store.Config{Driver: store.DriverSQLite, DSN: f.Name()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestUser(t *testing.T, s *store.Store, username string) *store.User {
	t.Helper()
	u := &store.User{
		Email:    username + "@example.com",
		Username: username,
		Token:    "tok-" + username,
	}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}
