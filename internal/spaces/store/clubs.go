package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Club is a locally cached row for a club from the external directory.
type Club struct {
	ID           string
	ClubName     string
	DisplayName  sql.NullString
	Country      sql.NullString
	Metadata     sql.NullString
	LastSyncedAt sql.NullTime
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Membership links a user to a club with a role from the directory.
type Membership struct {
	ID             string
	UserID         string
	ClubID         string
	Role           string
	Source         string
	IsPrimary      bool
	LastVerifiedAt sql.NullTime
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Share grants a club read access to a space.
type Share struct {
	ID             string
	SpaceID        string
	ClubID         string
	SharedByUserID string
	Permission     string
	CreatedAt      time.Time
	RevokedAt      sql.NullTime
}

const clubColumns = `id, club_name, display_name, country, metadata, last_synced_at, created_at, updated_at`

func scanClub(row interface{ Scan(...any) error }) (*Club, error) {
	c := &Club{}
	err := row.Scan(&c.ID, &c.ClubName, &c.DisplayName, &c.Country, &c.Metadata,
		&c.LastSyncedAt, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan club: %w", err)
	}
	return c, nil
}

// UpsertClub inserts or refreshes the cached row for a club, keyed by its
// directory name. Returns the resulting row.
func (s *Store) UpsertClub(ctx context.Context, club *Club) (*Club, error) {
	existing, err := s.GetClubByName(ctx, club.ClubName)
	if err != nil && err != ErrNotFound {
		return nil, err
	}
	now := time.Now().UTC()
	if existing != nil {
		err = s.execOne(ctx, `
			UPDATE clubs SET display_name = $1, country = $2, metadata = $3,
				last_synced_at = $4, updated_at = $5
			WHERE id = $6
		`, club.DisplayName, club.Country, club.Metadata,
			sql.NullTime{Time: now, Valid: true}, now, existing.ID)
		if err != nil {
			return nil, err
		}
		return s.GetClubByName(ctx, club.ClubName)
	}

	club.ID = uuid.NewString()
	club.LastSyncedAt = sql.NullTime{Time: now, Valid: true}
	club.CreatedAt = now
	club.UpdatedAt = now
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO clubs (id, club_name, display_name, country, metadata, last_synced_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, club.ID, club.ClubName, club.DisplayName, club.Country, club.Metadata,
		club.LastSyncedAt, club.CreatedAt, club.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create club: %w", err)
	}
	return club, nil
}

// GetClubByName retrieves a club by its directory name.
func (s *Store) GetClubByName(ctx context.Context, clubName string) (*Club, error) {
	return scanClub(s.db.QueryRowContext(ctx,
		`SELECT `+clubColumns+` FROM clubs WHERE club_name = $1`, clubName))
}

// GetClub retrieves a club by ID.
func (s *Store) GetClub(ctx context.Context, id string) (*Club, error) {
	return scanClub(s.db.QueryRowContext(ctx,
		`SELECT `+clubColumns+` FROM clubs WHERE id = $1`, id))
}

// LinkMembership creates or refreshes a user's membership in a club. A user
// has at most one membership per club.
func (s *Store) LinkMembership(ctx context.Context, m *Membership) error {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE user_club_memberships
		SET role = $1, source = $2, is_primary = $3, last_verified_at = $4, updated_at = $5
		WHERE user_id = $6 AND club_id = $7
	`, m.Role, m.Source, m.IsPrimary, sql.NullTime{Time: now, Valid: true}, now, m.UserID, m.ClubID)
	if err != nil {
		return fmt.Errorf("failed to update membership: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	m.ID = uuid.NewString()
	m.LastVerifiedAt = sql.NullTime{Time: now, Valid: true}
	m.CreatedAt = now
	m.UpdatedAt = now
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_club_memberships (id, user_id, club_id, role, source, is_primary,
			last_verified_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, m.ID, m.UserID, m.ClubID, m.Role, m.Source, m.IsPrimary,
		m.LastVerifiedAt, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create membership: %w", err)
	}
	return nil
}

// MembershipWithClub joins a membership with its club row.
type MembershipWithClub struct {
	Membership
	Club Club
}

// ListMemberships returns all of a user's club memberships with club details.
func (s *Store) ListMemberships(ctx context.Context, userID string) ([]*MembershipWithClub, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.user_id, m.club_id, m.role, m.source, m.is_primary,
			m.last_verified_at, m.created_at, m.updated_at,
			c.id, c.club_name, c.display_name, c.country, c.metadata,
			c.last_synced_at, c.created_at, c.updated_at
		FROM user_club_memberships m
		JOIN clubs c ON c.id = m.club_id
		WHERE m.user_id = $1
		ORDER BY m.is_primary DESC, m.created_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var memberships []*MembershipWithClub
	for rows.Next() {
		m := &MembershipWithClub{}
		err := rows.Scan(
			&m.ID, &m.UserID, &m.ClubID, &m.Role, &m.Source, &m.IsPrimary,
			&m.LastVerifiedAt, &m.CreatedAt, &m.UpdatedAt,
			&m.Club.ID, &m.Club.ClubName, &m.Club.DisplayName, &m.Club.Country,
			&m.Club.Metadata, &m.Club.LastSyncedAt, &m.Club.CreatedAt, &m.Club.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		memberships = append(memberships, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memberships: %w", err)
	}
	return memberships, nil
}

// GetMembership returns the user's membership in a specific club.
func (s *Store) GetMembership(ctx context.Context, userID, clubID string) (*Membership, error) {
	m := &Membership{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, club_id, role, source, is_primary, last_verified_at, created_at, updated_at
		FROM user_club_memberships WHERE user_id = $1 AND club_id = $2
	`, userID, clubID).Scan(&m.ID, &m.UserID, &m.ClubID, &m.Role, &m.Source,
		&m.IsPrimary, &m.LastVerifiedAt, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return m, nil
}

// UnlinkMembership removes a user's membership in a club. Active shares of
// the user's spaces with that club are revoked at the same time.
func (s *Store) UnlinkMembership(ctx context.Context, userID, clubID string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		UPDATE space_club_shares SET revoked_at = $1
		WHERE club_id = $2 AND revoked_at IS NULL
			AND space_id IN (SELECT id FROM spaces WHERE user_id = $3)
	`, now, clubID, userID)
	if err != nil {
		return fmt.Errorf("failed to revoke shares: %w", err)
	}
	return s.execOne(ctx,
		`DELETE FROM user_club_memberships WHERE user_id = $1 AND club_id = $2`,
		userID, clubID)
}

// CreateShare grants a club access to a space. An existing active share for
// the pair is returned unchanged.
func (s *Store) CreateShare(ctx context.Context, share *Share) (*Share, error) {
	existing, err := s.GetActiveShare(ctx, share.SpaceID, share.ClubID)
	if err != nil && err != ErrNotFound {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	share.ID = uuid.NewString()
	if share.Permission == "" {
		share.Permission = "read"
	}
	share.CreatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO space_club_shares (id, space_id, club_id, shared_by_user_id, permission, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, share.ID, share.SpaceID, share.ClubID, share.SharedByUserID, share.Permission, share.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create share: %w", err)
	}
	return share, nil
}

// GetActiveShare returns the unrevoked share for a space and club pair.
func (s *Store) GetActiveShare(ctx context.Context, spaceID, clubID string) (*Share, error) {
	sh := &Share{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, space_id, club_id, shared_by_user_id, permission, created_at, revoked_at
		FROM space_club_shares
		WHERE space_id = $1 AND club_id = $2 AND revoked_at IS NULL
	`, spaceID, clubID).Scan(&sh.ID, &sh.SpaceID, &sh.ClubID, &sh.SharedByUserID,
		&sh.Permission, &sh.CreatedAt, &sh.RevokedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get share: %w", err)
	}
	return sh, nil
}

// RevokeShare ends a club's access to a space.
func (s *Store) RevokeShare(ctx context.Context, spaceID, clubID string) error {
	return s.execOne(ctx, `
		UPDATE space_club_shares SET revoked_at = $1
		WHERE space_id = $2 AND club_id = $3 AND revoked_at IS NULL
	`, time.Now().UTC(), spaceID, clubID)
}

// SharedSpace is a space visible to a club member through a share, joined
// with the owner and sharing club.
type SharedSpace struct {
	Space
	OwnerUsername string
	ClubName      string
}

// ListSharedSpaces returns spaces shared with any of the given clubs.
func (s *Store) ListSharedSpaces(ctx context.Context, clubIDs []string) ([]*SharedSpace, error) {
	var spaces []*SharedSpace
	for _, clubID := range clubIDs {
		rows, err := s.db.QueryContext(ctx, `
			SELECT sp.id, sp.user_id, sp.container_id, sp.type, sp.description, sp.image,
				sp.port, sp.access_url, sp.password, sp.running, sp.started_at,
				sp.created_at, sp.updated_at, u.username, c.club_name
			FROM space_club_shares sh
			JOIN spaces sp ON sp.id = sh.space_id
			JOIN users u ON u.id = sp.user_id
			JOIN clubs c ON c.id = sh.club_id
			WHERE sh.club_id = $1 AND sh.revoked_at IS NULL
			ORDER BY sh.created_at DESC
		`, clubID)
		if err != nil {
			return nil, fmt.Errorf("failed to list shared spaces: %w", err)
		}
		for rows.Next() {
			sp := &SharedSpace{}
			err := rows.Scan(
				&sp.ID, &sp.UserID, &sp.ContainerID, &sp.Type, &sp.Description,
				&sp.Image, &sp.Port, &sp.AccessURL, &sp.Password, &sp.Running,
				&sp.StartedAt, &sp.CreatedAt, &sp.UpdatedAt,
				&sp.OwnerUsername, &sp.ClubName,
			)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan shared space: %w", err)
			}
			spaces = append(spaces, sp)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("error iterating shared spaces: %w", err)
		}
		rows.Close()
	}
	return spaces, nil
}
