package clubs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bdobrica/spaces/internal/spaces/store"
)

const (
	// cacheTTL bounds how long directory answers are reused.
	cacheTTL = 5 * time.Minute
	// staleAfter is how old a locally stored membership may get before a
	// listing triggers a background re-verify against the directory.
	staleAfter = 24 * time.Hour
)

// ErrNotMember is returned when a sharing operation names a club the user
// does not belong to.
var ErrNotMember = errors.New("clubs: user is not a member of this club")

// ErrNotOwner is returned when a user shares a space they do not own.
var ErrNotOwner = errors.New("clubs: space not found")

// Service ties the directory, the local club tables, and space sharing
// together.
type Service struct {
	store *store.Store
	dir   Directory
	cache *recordCache
	log   *slog.Logger
}

// NewService wires a club Service.
func NewService(st *store.Store, dir Directory, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: st, dir: dir, cache: newRecordCache(cacheTTL), log: log}
}

// SyncMembership looks the user up in the directory and mirrors the result
// locally. A user with no directory record simply has no memberships; that
// is not an error.
func (s *Service) SyncMembership(ctx context.Context, user *store.User) (*store.MembershipWithClub, error) {
	record, err := s.lookupByEmail(ctx, user.Email)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, nil
	}

	club, err := s.store.UpsertClub(ctx, &store.Club{
		ClubName:    record.Name,
		DisplayName: nullString(record.DisplayName),
		Country:     nullString(record.Country),
	})
	if err != nil {
		return nil, fmt.Errorf("upsert club: %w", err)
	}

	role := record.Role
	if role == "" {
		role = "member"
	}
	err = s.store.LinkMembership(ctx, &store.Membership{
		UserID:    user.ID,
		ClubID:    club.ID,
		Role:      role,
		Source:    "directory",
		IsPrimary: true,
	})
	if err != nil {
		return nil, fmt.Errorf("link membership: %w", err)
	}

	m, err := s.store.GetMembership(ctx, user.ID, club.ID)
	if err != nil {
		return nil, fmt.Errorf("load membership: %w", err)
	}
	s.log.Info("club membership synced",
		"user_id", user.ID, "club", club.ClubName, "role", role)
	return &store.MembershipWithClub{Membership: *m, Club: *club}, nil
}

// Memberships lists the user's clubs. Memberships that have gone stale are
// re-verified against the directory first; a directory outage degrades to
// the stored data.
func (s *Service) Memberships(ctx context.Context, user *store.User) ([]*store.MembershipWithClub, error) {
	memberships, err := s.store.ListMemberships(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}

	stale := false
	for _, m := range memberships {
		if !m.LastVerifiedAt.Valid || time.Since(m.LastVerifiedAt.Time) > staleAfter {
			stale = true
			break
		}
	}
	if !stale {
		return memberships, nil
	}

	if _, err := s.SyncMembership(ctx, user); err != nil {
		s.log.Warn("stale membership refresh failed, serving stored data",
			"user_id", user.ID, "err", err)
		return memberships, nil
	}
	memberships, err = s.store.ListMemberships(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	return memberships, nil
}

// ClubDetails pairs the locally stored club row with the directory's current
// view of it. Directory is nil when the directory has no record or is down.
type ClubDetails struct {
	Club      *store.Club
	Directory *DirectoryRecord
}

// Details returns a club the user belongs to, decorated with fresh directory
// data. A directory outage degrades to the stored row alone.
func (s *Service) Details(ctx context.Context, user *store.User, clubName string) (*ClubDetails, error) {
	club, err := s.store.GetClubByName(ctx, clubName)
	if err == store.ErrNotFound {
		return nil, ErrNotMember
	}
	if err != nil {
		return nil, fmt.Errorf("load club: %w", err)
	}
	if _, err := s.store.GetMembership(ctx, user.ID, club.ID); err != nil {
		if err == store.ErrNotFound {
			return nil, ErrNotMember
		}
		return nil, fmt.Errorf("check membership: %w", err)
	}

	record, err := s.lookupClub(ctx, club.ClubName)
	if err != nil {
		s.log.Warn("directory club lookup failed, serving stored data",
			"club", club.ClubName, "err", err)
		record = nil
	}
	return &ClubDetails{Club: club, Directory: record}, nil
}

// Leave drops the user's membership in a club and revokes the shares that
// rode on it.
func (s *Service) Leave(ctx context.Context, user *store.User, clubName string) error {
	club, err := s.store.GetClubByName(ctx, clubName)
	if err == store.ErrNotFound {
		return ErrNotMember
	}
	if err != nil {
		return fmt.Errorf("load club: %w", err)
	}
	if err := s.store.UnlinkMembership(ctx, user.ID, club.ID); err != nil {
		if err == store.ErrNotFound {
			return ErrNotMember
		}
		return fmt.Errorf("unlink membership: %w", err)
	}
	return nil
}

// ShareSpace grants one of the user's clubs access to one of their spaces.
func (s *Service) ShareSpace(ctx context.Context, user *store.User, spaceID, clubName string) (*store.Share, error) {
	sp, err := s.store.GetSpaceOwned(ctx, spaceID, user.ID)
	if err == store.ErrNotFound {
		return nil, ErrNotOwner
	}
	if err != nil {
		return nil, fmt.Errorf("load space: %w", err)
	}

	club, err := s.store.GetClubByName(ctx, clubName)
	if err == store.ErrNotFound {
		return nil, ErrNotMember
	}
	if err != nil {
		return nil, fmt.Errorf("load club: %w", err)
	}
	if _, err := s.store.GetMembership(ctx, user.ID, club.ID); err != nil {
		if err == store.ErrNotFound {
			return nil, ErrNotMember
		}
		return nil, fmt.Errorf("check membership: %w", err)
	}

	share, err := s.store.CreateShare(ctx, &store.Share{
		SpaceID:        sp.ID,
		ClubID:         club.ID,
		SharedByUserID: user.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("create share: %w", err)
	}
	return share, nil
}

// UnshareSpace revokes a club's access to the user's space.
func (s *Service) UnshareSpace(ctx context.Context, user *store.User, spaceID, clubName string) error {
	if _, err := s.store.GetSpaceOwned(ctx, spaceID, user.ID); err != nil {
		if err == store.ErrNotFound {
			return ErrNotOwner
		}
		return fmt.Errorf("load space: %w", err)
	}
	club, err := s.store.GetClubByName(ctx, clubName)
	if err == store.ErrNotFound {
		return ErrNotMember
	}
	if err != nil {
		return fmt.Errorf("load club: %w", err)
	}
	if err := s.store.RevokeShare(ctx, spaceID, club.ID); err != nil {
		if err == store.ErrNotFound {
			return ErrNotMember
		}
		return fmt.Errorf("revoke share: %w", err)
	}
	return nil
}

// SharedSpaces lists spaces that club mates shared with any club the user
// belongs to.
func (s *Service) SharedSpaces(ctx context.Context, user *store.User) ([]*store.SharedSpace, error) {
	memberships, err := s.store.ListMemberships(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	clubIDs := make([]string, 0, len(memberships))
	for _, m := range memberships {
		clubIDs = append(clubIDs, m.ClubID)
	}
	spaces, err := s.store.ListSharedSpaces(ctx, clubIDs)
	if err != nil {
		return nil, fmt.Errorf("list shared spaces: %w", err)
	}
	return spaces, nil
}

func (s *Service) lookupByEmail(ctx context.Context, email string) (*DirectoryRecord, error) {
	if record, miss, ok := s.cache.get("email:" + email); ok {
		if miss {
			return nil, nil
		}
		return record, nil
	}

	record, err := s.dir.LookupByEmail(ctx, email)
	if errors.Is(err, ErrNoClub) {
		s.cache.put("email:"+email, nil)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("directory lookup: %w", err)
	}
	s.cache.put("email:"+email, record)
	return record, nil
}

func (s *Service) lookupClub(ctx context.Context, name string) (*DirectoryRecord, error) {
	if record, miss, ok := s.cache.get("club:" + name); ok {
		if miss {
			return nil, nil
		}
		return record, nil
	}

	record, err := s.dir.LookupClub(ctx, name)
	if errors.Is(err, ErrNoClub) {
		s.cache.put("club:"+name, nil)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("directory lookup: %w", err)
	}
	s.cache.put("club:"+name, record)
	return record, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
