package lifecycle_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bdobrica/spaces/internal/spaces/lifecycle"
	"github.com/bdobrica/spaces/internal/spaces/store"
)

func newTestManager(t *testing.T) (*lifecycle.Manager, *store.Store, *mockRuntime) {
	t.Helper()
	s := newTestStore(t)
	rt := newMockRuntime()
	m := lifecycle.NewManager(s, rt,
		lifecycle.URLComposer{BaseURL: "http://spaces.test"}, nil, 5*time.Second)
	return m, s, rt
}

func wantKind(t *testing.T, err error, kind lifecycle.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("want error of kind %v, got nil", kind)
	}
	if got := lifecycle.KindOf(err); got != kind {
		t.Fatalf("error kind: got %v, want %v (err: %v)", got, kind, err)
	}
}

func TestCreateCodeServer(t *testing.T) {
	m, s, rt := newTestManager(t)
	ctx := context.Background()
	user := newTestUser(t, s, "ada")

	sp, err := m.Create(ctx, user, lifecycle.CreateRequest{
		Type:        "code-server",
		Description: "go hacking",
		Password:    "hunter22hunter22",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !sp.Running {
		t.Error("new space should be running")
	}
	if sp.Port == 0 {
		t.Error("port not assigned")
	}
	if strings.Contains(sp.AccessURL, "hunter22") {
		t.Error("code-server password must not appear in the access URL")
	}
	if !sp.Password.Valid || sp.Password.String != "hunter22hunter22" {
		t.Error("code-server password should be stored for restarts")
	}

	c, ok := rt.containers[sp.ContainerID]
	if !ok {
		t.Fatal("container not created")
	}
	if !c.running {
		t.Error("container not started")
	}
	if c.spec.Env["PASSWORD"] != "hunter22hunter22" {
		t.Errorf("PASSWORD env: got %q", c.spec.Env["PASSWORD"])
	}
	if len(rt.execCalls) == 0 {
		t.Error("code-server setup exec did not run")
	}
}

func TestCreateGUITypeGeneratesCredential(t *testing.T) {
	m, s, rt := newTestManager(t)
	ctx := context.Background()
	user := newTestUser(t, s, "ada")

	sp, err := m.Create(ctx, user, lifecycle.CreateRequest{Type: "blender"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sp.Password.Valid {
		t.Error("GUI credential must not land in the password column")
	}
	if !strings.Contains(sp.AccessURL, "abc:") {
		t.Errorf("access URL should embed the generated credential: %q", sp.AccessURL)
	}

	c := rt.containers[sp.ContainerID]
	if c.spec.Env["PASSWORD"] == "" {
		t.Error("PASSWORD env missing")
	}
	if c.spec.Env["CUSTOM_USER"] != "abc" {
		t.Errorf("CUSTOM_USER env: got %q", c.spec.Env["CUSTOM_USER"])
	}
	if !strings.Contains(sp.AccessURL, c.spec.Env["PASSWORD"]) {
		t.Error("access URL credential does not match container credential")
	}
}

func TestCreateUnsupportedType(t *testing.T) {
	m, s, _ := newTestManager(t)
	user := newTestUser(t, s, "ada")

	_, err := m.Create(context.Background(), user, lifecycle.CreateRequest{Type: "fortran-ide"})
	wantKind(t, err, lifecycle.KindUnsupportedType)
	for _, valid := range lifecycle.ValidTypes() {
		if !strings.Contains(err.Error(), valid) {
			t.Errorf("error message should list valid type %q: %v", valid, err)
		}
	}
}

func TestCreateShortPassword(t *testing.T) {
	m, s, rt := newTestManager(t)
	user := newTestUser(t, s, "ada")

	_, err := m.Create(context.Background(), user, lifecycle.CreateRequest{
		Type: "code-server", Password: "short",
	})
	wantKind(t, err, lifecycle.KindInvalidPassword)
	if len(rt.containers) != 0 {
		t.Error("no container should exist after validation failure")
	}
}

func TestCreateQuotaExceeded(t *testing.T) {
	m, s, _ := newTestManager(t)
	ctx := context.Background()
	user := newTestUser(t, s, "ada")

	for i := 0; i < user.MaxSpaces; i++ {
		sp, err := m.Create(ctx, user, lifecycle.CreateRequest{Type: "blender"})
		if err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
		if _, err := m.Stop(ctx, user, sp.ID); err != nil {
			t.Fatalf("Stop %d: %v", i, err)
		}
	}

	_, err := m.Create(ctx, user, lifecycle.CreateRequest{Type: "blender"})
	wantKind(t, err, lifecycle.KindQuotaExceeded)
}

func TestCreateConflictingSession(t *testing.T) {
	m, s, _ := newTestManager(t)
	ctx := context.Background()
	user := newTestUser(t, s, "ada")

	if _, err := m.Create(ctx, user, lifecycle.CreateRequest{Type: "blender"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err := m.Create(ctx, user, lifecycle.CreateRequest{Type: "kicad"})
	wantKind(t, err, lifecycle.KindConflictingSession)
}

func TestCreateQuotaIsPerUser(t *testing.T) {
	m, s, _ := newTestManager(t)
	ctx := context.Background()
	ada := newTestUser(t, s, "ada")
	bob := newTestUser(t, s, "bob")

	if _, err := m.Create(ctx, ada, lifecycle.CreateRequest{Type: "blender"}); err != nil {
		t.Fatalf("Create ada: %v", err)
	}
	// bob's quota and running-session state are independent of ada's.
	if _, err := m.Create(ctx, bob, lifecycle.CreateRequest{Type: "blender"}); err != nil {
		t.Fatalf("Create bob: %v", err)
	}
}

func TestCreateCleansUpOnStartFailure(t *testing.T) {
	m, s, rt := newTestManager(t)
	user := newTestUser(t, s, "ada")

	rt.failures["start"] = errors.New("engine exploded")
	_, err := m.Create(context.Background(), user, lifecycle.CreateRequest{Type: "blender"})
	wantKind(t, err, lifecycle.KindInternal)
	if len(rt.containers) != 0 {
		t.Error("failed create left a container behind")
	}

	count, err := s.CountSpacesByUser(context.Background(), user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Error("failed create left a row behind")
	}
}

func TestStartStopRoundTrip(t *testing.T) {
	m, s, rt := newTestManager(t)
	ctx := context.Background()
	user := newTestUser(t, s, "ada")

	sp, err := m.Create(ctx, user, lifecycle.CreateRequest{Type: "blender"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	stopped, err := m.Stop(ctx, user, sp.ID)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if stopped.Running || stopped.StartedAt.Valid {
		t.Error("stop did not clear the running window")
	}
	if rt.containers[sp.ContainerID].running {
		t.Error("container still running after stop")
	}

	started, err := m.Start(ctx, user, sp.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !started.Running || !started.StartedAt.Valid {
		t.Error("start did not set the running window")
	}
}

func TestStartAlreadyRunning(t *testing.T) {
	m, s, _ := newTestManager(t)
	ctx := context.Background()
	user := newTestUser(t, s, "ada")

	sp, err := m.Create(ctx, user, lifecycle.CreateRequest{Type: "blender"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err = m.Start(ctx, user, sp.ID)
	wantKind(t, err, lifecycle.KindAlreadyRunning)
}

func TestStopAlreadyStopped(t *testing.T) {
	m, s, _ := newTestManager(t)
	ctx := context.Background()
	user := newTestUser(t, s, "ada")

	sp, err := m.Create(ctx, user, lifecycle.CreateRequest{Type: "blender"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := m.Stop(ctx, user, sp.ID); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	_, err = m.Stop(ctx, user, sp.ID)
	wantKind(t, err, lifecycle.KindAlreadyStopped)
}

func TestStartSecondSpaceConflicts(t *testing.T) {
	m, s, _ := newTestManager(t)
	ctx := context.Background()
	user := newTestUser(t, s, "ada")

	first, err := m.Create(ctx, user, lifecycle.CreateRequest{Type: "blender"})
	if err != nil {
		t.Fatalf("Create first: %v", err)
	}
	if _, err := m.Stop(ctx, user, first.ID); err != nil {
		t.Fatalf("Stop first: %v", err)
	}
	second, err := m.Create(ctx, user, lifecycle.CreateRequest{Type: "kicad"})
	if err != nil {
		t.Fatalf("Create second: %v", err)
	}

	_, err = m.Start(ctx, user, first.ID)
	wantKind(t, err, lifecycle.KindConflictingSession)
	if !strings.Contains(err.Error(), second.ID) {
		t.Errorf("conflict error should name the running space: %v", err)
	}
}

func TestStartRecreatesVanishedContainer(t *testing.T) {
	m, s, rt := newTestManager(t)
	ctx := context.Background()
	user := newTestUser(t, s, "ada")

	sp, err := m.Create(ctx, user, lifecycle.CreateRequest{Type: "code-server", Password: "longenough"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := m.Stop(ctx, user, sp.ID); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	// Simulate the engine losing the container out of band.
	delete(rt.containers, sp.ContainerID)

	started, err := m.Start(ctx, user, sp.ID)
	if err != nil {
		t.Fatalf("Start after vanish: %v", err)
	}
	if started.ContainerID == sp.ContainerID {
		t.Error("container was not recreated")
	}
	if !started.Running {
		t.Error("recreated space not running")
	}
	c, ok := rt.containers[started.ContainerID]
	if !ok {
		t.Fatal("recreated container missing from engine")
	}
	if c.spec.Env["PASSWORD"] != "longenough" {
		t.Error("recreated container lost the stored password")
	}
}

func TestOwnershipIsNotLeaked(t *testing.T) {
	m, s, _ := newTestManager(t)
	ctx := context.Background()
	ada := newTestUser(t, s, "ada")
	bob := newTestUser(t, s, "bob")

	sp, err := m.Create(ctx, ada, lifecycle.CreateRequest{Type: "blender"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Every op on someone else's space reads as not found, never forbidden.
	if _, err := m.Status(ctx, bob, sp.ID); lifecycle.KindOf(err) != lifecycle.KindNotFound {
		t.Errorf("Status: got %v", err)
	}
	if _, err := m.Start(ctx, bob, sp.ID); lifecycle.KindOf(err) != lifecycle.KindNotFound {
		t.Errorf("Start: got %v", err)
	}
	if _, err := m.Stop(ctx, bob, sp.ID); lifecycle.KindOf(err) != lifecycle.KindNotFound {
		t.Errorf("Stop: got %v", err)
	}
	if err := m.Delete(ctx, bob, sp.ID); lifecycle.KindOf(err) != lifecycle.KindNotFound {
		t.Errorf("Delete: got %v", err)
	}
}

func TestStatusRepairsDrift(t *testing.T) {
	m, s, rt := newTestManager(t)
	ctx := context.Background()
	user := newTestUser(t, s, "ada")

	sp, err := m.Create(ctx, user, lifecycle.CreateRequest{Type: "blender"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Container dies out of band; the row still says running.
	rt.containers[sp.ContainerID].running = false

	st, err := m.Status(ctx, user, sp.ID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Live.Running {
		t.Error("live status should report stopped")
	}
	if st.Space.Running {
		t.Error("row should be repaired to stopped")
	}

	got, err := s.GetSpace(ctx, sp.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Running {
		t.Error("drift repair not persisted")
	}
}

func TestDeleteRemovesContainerAndRow(t *testing.T) {
	m, s, rt := newTestManager(t)
	ctx := context.Background()
	user := newTestUser(t, s, "ada")

	sp, err := m.Create(ctx, user, lifecycle.CreateRequest{Type: "blender"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := m.Delete(ctx, user, sp.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(rt.containers) != 0 {
		t.Error("container survived delete")
	}
	if _, err := s.GetSpace(ctx, sp.ID); err != store.ErrNotFound {
		t.Errorf("row survived delete: %v", err)
	}
}

func TestDeleteToleratesMissingContainer(t *testing.T) {
	m, s, rt := newTestManager(t)
	ctx := context.Background()
	user := newTestUser(t, s, "ada")

	sp, err := m.Create(ctx, user, lifecycle.CreateRequest{Type: "blender"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	delete(rt.containers, sp.ContainerID)

	if err := m.Delete(ctx, user, sp.ID); err != nil {
		t.Fatalf("Delete with missing container: %v", err)
	}
}

func TestDeleteSurvivesRuntimeFault(t *testing.T) {
	m, s, rt := newTestManager(t)
	ctx := context.Background()
	user := newTestUser(t, s, "ada")

	sp, err := m.Create(ctx, user, lifecycle.CreateRequest{Type: "blender"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	rt.failures["remove"] = errors.New("engine unreachable")

	// Teardown failures must not block row deletion.
	if err := m.Delete(ctx, user, sp.ID); err != nil {
		t.Fatalf("Delete with unreachable engine: %v", err)
	}
	if _, err := s.GetSpace(ctx, sp.ID); err != store.ErrNotFound {
		t.Errorf("row survived delete: %v", err)
	}
}

func TestStatusVanishedContainer(t *testing.T) {
	m, s, rt := newTestManager(t)
	ctx := context.Background()
	user := newTestUser(t, s, "ada")

	sp, err := m.Create(ctx, user, lifecycle.CreateRequest{Type: "blender"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	delete(rt.containers, sp.ContainerID)

	if _, err := m.Status(ctx, user, sp.ID); lifecycle.KindOf(err) != lifecycle.KindNotFound {
		t.Fatalf("Status: got %v, want a not-found error", err)
	}

	// The row is corrected even though the caller gets an error.
	got, err := s.GetSpace(ctx, sp.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Running {
		t.Error("row should be repaired to stopped")
	}
}

func TestAdminDeleteCrossesOwnership(t *testing.T) {
	m, s, _ := newTestManager(t)
	ctx := context.Background()
	ada := newTestUser(t, s, "ada")

	sp, err := m.Create(ctx, ada, lifecycle.CreateRequest{Type: "blender"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := m.AdminDelete(ctx, sp.ID); err != nil {
		t.Fatalf("AdminDelete: %v", err)
	}
	if _, err := s.GetSpace(ctx, sp.ID); err != store.ErrNotFound {
		t.Errorf("row survived admin delete: %v", err)
	}
}

func TestGetQuota(t *testing.T) {
	m, s, _ := newTestManager(t)
	ctx := context.Background()
	user := newTestUser(t, s, "ada")

	if _, err := m.Create(ctx, user, lifecycle.CreateRequest{Type: "blender"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	q, err := m.GetQuota(ctx, user)
	if err != nil {
		t.Fatalf("GetQuota: %v", err)
	}
	if q.Used != 1 {
		t.Errorf("Used: got %d, want 1", q.Used)
	}
	if q.Limit != store.DefaultMaxSpaces {
		t.Errorf("Limit: got %d, want %d", q.Limit, store.DefaultMaxSpaces)
	}
}
