package store_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/bdobrica/spaces/internal/spaces/store"
)

func newTestClub(t *testing.T, s *store.Store, name string) *store.Club {
	t.Helper()
	club, err := s.UpsertClub(context.Background(), &store.Club{
		ClubName:    name,
		DisplayName: sql.NullString{String: name + " Club", Valid: true},
	})
	if err != nil {
		t.Fatalf("UpsertClub: %v", err)
	}
	return club
}

func TestUpsertClubIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := newTestClub(t, s, "orbit")
	second, err := s.UpsertClub(ctx, &store.Club{
		ClubName: "orbit",
		Country:  sql.NullString{String: "RO", Valid: true},
	})
	if err != nil {
		t.Fatalf("UpsertClub: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("upsert created a new row: %q vs %q", second.ID, first.ID)
	}
	if !second.Country.Valid || second.Country.String != "RO" {
		t.Errorf("Country not refreshed: %+v", second.Country)
	}
	if !second.LastSyncedAt.Valid {
		t.Error("LastSyncedAt: want set after upsert")
	}
}

func TestLinkMembershipTwiceUpdatesRole(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ada := newTestUser(t, s, "ada@example.com", "ada")
	club := newTestClub(t, s, "orbit")

	m := &store.Membership{UserID: ada.ID, ClubID: club.ID, Role: "member", Source: "directory"}
	if err := s.LinkMembership(ctx, m); err != nil {
		t.Fatalf("LinkMembership: %v", err)
	}
	promoted := &store.Membership{UserID: ada.ID, ClubID: club.ID, Role: "leader", Source: "directory", IsPrimary: true}
	if err := s.LinkMembership(ctx, promoted); err != nil {
		t.Fatalf("LinkMembership again: %v", err)
	}

	got, err := s.GetMembership(ctx, ada.ID, club.ID)
	if err != nil {
		t.Fatalf("GetMembership: %v", err)
	}
	if got.Role != "leader" {
		t.Errorf("Role: got %q, want %q", got.Role, "leader")
	}
	if !got.IsPrimary {
		t.Error("IsPrimary: want true")
	}

	memberships, err := s.ListMemberships(ctx, ada.ID)
	if err != nil {
		t.Fatalf("ListMemberships: %v", err)
	}
	if len(memberships) != 1 {
		t.Errorf("got %d memberships, want 1", len(memberships))
	}
}

func TestShareLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ada := newTestUser(t, s, "ada@example.com", "ada")
	club := newTestClub(t, s, "orbit")
	sp := newTestSpace(t, s, ada.ID, "code-server")

	share, err := s.CreateShare(ctx, &store.Share{
		SpaceID: sp.ID, ClubID: club.ID, SharedByUserID: ada.ID,
	})
	if err != nil {
		t.Fatalf("CreateShare: %v", err)
	}
	if share.Permission != "read" {
		t.Errorf("Permission: got %q, want %q", share.Permission, "read")
	}

	// Creating the same share again returns the existing one.
	again, err := s.CreateShare(ctx, &store.Share{
		SpaceID: sp.ID, ClubID: club.ID, SharedByUserID: ada.ID,
	})
	if err != nil {
		t.Fatalf("CreateShare again: %v", err)
	}
	if again.ID != share.ID {
		t.Errorf("duplicate share created: %q vs %q", again.ID, share.ID)
	}

	shared, err := s.ListSharedSpaces(ctx, []string{club.ID})
	if err != nil {
		t.Fatalf("ListSharedSpaces: %v", err)
	}
	if len(shared) != 1 || shared[0].ID != sp.ID {
		t.Fatalf("shared spaces: got %d, want the shared space", len(shared))
	}
	if shared[0].OwnerUsername != "ada" {
		t.Errorf("OwnerUsername: got %q, want %q", shared[0].OwnerUsername, "ada")
	}

	if err := s.RevokeShare(ctx, sp.ID, club.ID); err != nil {
		t.Fatalf("RevokeShare: %v", err)
	}
	if _, err := s.GetActiveShare(ctx, sp.ID, club.ID); err != store.ErrNotFound {
		t.Errorf("after revoke: got %v, want ErrNotFound", err)
	}
	if err := s.RevokeShare(ctx, sp.ID, club.ID); err != store.ErrNotFound {
		t.Errorf("double revoke: got %v, want ErrNotFound", err)
	}
}

func TestUnlinkMembershipRevokesShares(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ada := newTestUser(t, s, "ada@example.com", "ada")
	club := newTestClub(t, s, "orbit")
	sp := newTestSpace(t, s, ada.ID, "code-server")

	if err := s.LinkMembership(ctx, &store.Membership{
		UserID: ada.ID, ClubID: club.ID, Role: "member", Source: "directory",
	}); err != nil {
		t.Fatalf("LinkMembership: %v", err)
	}
	if _, err := s.CreateShare(ctx, &store.Share{
		SpaceID: sp.ID, ClubID: club.ID, SharedByUserID: ada.ID,
	}); err != nil {
		t.Fatalf("CreateShare: %v", err)
	}

	if err := s.UnlinkMembership(ctx, ada.ID, club.ID); err != nil {
		t.Fatalf("UnlinkMembership: %v", err)
	}
	if _, err := s.GetMembership(ctx, ada.ID, club.ID); err != store.ErrNotFound {
		t.Errorf("membership: got %v, want ErrNotFound", err)
	}
	if _, err := s.GetActiveShare(ctx, sp.ID, club.ID); err != store.ErrNotFound {
		t.Errorf("share should be revoked: got %v", err)
	}
}
