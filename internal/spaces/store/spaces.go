package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Space represents a provisioned development container row. The row is the
// source of truth for ownership and metadata; the container runtime is the
// source of truth for live state.
type Space struct {
	ID          string
	UserID      string
	ContainerID string
	Type        string
	Description string
	Image       string
	Port        int
	AccessURL   string
	// Password is only populated for types whose credential travels
	// out-of-band. GUI types embed theirs in AccessURL instead.
	Password  sql.NullString
	Running   bool
	StartedAt sql.NullTime
	CreatedAt time.Time
	UpdatedAt time.Time
}

const spaceColumns = `id, user_id, container_id, type, description, image, port,
	access_url, password, running, started_at, created_at, updated_at`

func scanSpace(row interface{ Scan(...any) error }) (*Space, error) {
	sp := &Space{}
	err := row.Scan(
		&sp.ID, &sp.UserID, &sp.ContainerID, &sp.Type, &sp.Description,
		&sp.Image, &sp.Port, &sp.AccessURL, &sp.Password, &sp.Running,
		&sp.StartedAt, &sp.CreatedAt, &sp.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan space: %w", err)
	}
	return sp, nil
}

// CreateSpace inserts a new space row. ID and timestamps are assigned here.
func (s *Store) CreateSpace(ctx context.Context, sp *Space) error {
	if sp.ID == "" {
		sp.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	sp.CreatedAt = now
	sp.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO spaces (id, user_id, container_id, type, description, image, port,
			access_url, password, running, started_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, sp.ID, sp.UserID, sp.ContainerID, sp.Type, sp.Description, sp.Image, sp.Port,
		sp.AccessURL, sp.Password, sp.Running, sp.StartedAt, sp.CreatedAt, sp.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create space: %w", err)
	}
	return nil
}

// GetSpace retrieves a space by ID regardless of owner. Admin and reconciler
// paths use this; user-facing paths go through GetSpaceOwned.
func (s *Store) GetSpace(ctx context.Context, id string) (*Space, error) {
	return scanSpace(s.db.QueryRowContext(ctx,
		`SELECT `+spaceColumns+` FROM spaces WHERE id = $1`, id))
}

// GetSpaceOwned retrieves a space only if it belongs to userID. A space owned
// by someone else yields ErrNotFound, same as a missing one.
func (s *Store) GetSpaceOwned(ctx context.Context, id, userID string) (*Space, error) {
	return scanSpace(s.db.QueryRowContext(ctx,
		`SELECT `+spaceColumns+` FROM spaces WHERE id = $1 AND user_id = $2`, id, userID))
}

// ListSpacesByUser returns all of a user's spaces, newest first.
func (s *Store) ListSpacesByUser(ctx context.Context, userID string) ([]*Space, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+spaceColumns+` FROM spaces WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list spaces: %w", err)
	}
	return collectSpaces(rows)
}

// SpaceWithOwner is the admin listing projection.
type SpaceWithOwner struct {
	Space
	OwnerEmail    string
	OwnerUsername string
}

// ListAllSpaces returns every space joined with its owner, newest first.
func (s *Store) ListAllSpaces(ctx context.Context) ([]*SpaceWithOwner, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sp.id, sp.user_id, sp.container_id, sp.type, sp.description, sp.image,
			sp.port, sp.access_url, sp.password, sp.running, sp.started_at,
			sp.created_at, sp.updated_at, u.email, u.username
		FROM spaces sp
		JOIN users u ON u.id = sp.user_id
		ORDER BY sp.created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list all spaces: %w", err)
	}
	defer rows.Close()

	var spaces []*SpaceWithOwner
	for rows.Next() {
		sp := &SpaceWithOwner{}
		err := rows.Scan(
			&sp.ID, &sp.UserID, &sp.ContainerID, &sp.Type, &sp.Description,
			&sp.Image, &sp.Port, &sp.AccessURL, &sp.Password, &sp.Running,
			&sp.StartedAt, &sp.CreatedAt, &sp.UpdatedAt,
			&sp.OwnerEmail, &sp.OwnerUsername,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan space: %w", err)
		}
		spaces = append(spaces, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating spaces: %w", err)
	}
	return spaces, nil
}

// CountSpacesByUser returns how many spaces a user owns, for quota checks.
func (s *Store) CountSpacesByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM spaces WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count spaces: %w", err)
	}
	return count, nil
}

// GetRunningSpace returns the user's currently running space, if any.
// At most one can be running at a time.
func (s *Store) GetRunningSpace(ctx context.Context, userID string) (*Space, error) {
	return scanSpace(s.db.QueryRowContext(ctx,
		`SELECT `+spaceColumns+` FROM spaces WHERE user_id = $1 AND running = TRUE LIMIT 1`, userID))
}

// MarkSpaceRunning records a successful start.
func (s *Store) MarkSpaceRunning(ctx context.Context, id string, startedAt time.Time) error {
	return s.execOne(ctx, `
		UPDATE spaces SET running = TRUE, started_at = $1, updated_at = $2 WHERE id = $3
	`, startedAt.UTC(), time.Now().UTC(), id)
}

// MarkSpaceStopped records a stop, clearing the running window.
func (s *Store) MarkSpaceStopped(ctx context.Context, id string) error {
	return s.execOne(ctx, `
		UPDATE spaces SET running = FALSE, started_at = NULL, updated_at = $1 WHERE id = $2
	`, time.Now().UTC(), id)
}

// UpdateSpaceDescription changes the free-form description.
func (s *Store) UpdateSpaceDescription(ctx context.Context, id string, description string) error {
	return s.execOne(ctx, `
		UPDATE spaces SET description = $1, updated_at = $2 WHERE id = $3
	`, description, time.Now().UTC(), id)
}

// UpdateSpaceAccess records a rebuilt container binding: the new container
// reference, host port, and access URL.
func (s *Store) UpdateSpaceAccess(ctx context.Context, id, containerID string, port int, accessURL string) error {
	return s.execOne(ctx, `
		UPDATE spaces SET container_id = $1, port = $2, access_url = $3, updated_at = $4 WHERE id = $5
	`, containerID, port, accessURL, time.Now().UTC(), id)
}

// DeleteSpace removes a space row.
func (s *Store) DeleteSpace(ctx context.Context, id string) error {
	return s.execOne(ctx, `DELETE FROM spaces WHERE id = $1`, id)
}

// ListExpiredRunning returns spaces marked running whose started_at is before
// cutoff. The expiry sweep feeds on this.
func (s *Store) ListExpiredRunning(ctx context.Context, cutoff time.Time) ([]*Space, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+spaceColumns+` FROM spaces
		WHERE running = TRUE AND started_at IS NOT NULL AND started_at < $1
		ORDER BY started_at ASC
	`, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list expired spaces: %w", err)
	}
	return collectSpaces(rows)
}

// SpaceStats is the admin analytics projection.
type SpaceStats struct {
	TotalSpaces   int
	RunningSpaces int
	CountByType   map[string]int
}

// GetSpaceStats aggregates fleet-wide counts for the admin dashboard.
func (s *Store) GetSpaceStats(ctx context.Context) (*SpaceStats, error) {
	stats := &SpaceStats{CountByType: make(map[string]int)}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN running THEN 1 ELSE 0 END), 0) FROM spaces
	`).Scan(&stats.TotalSpaces, &stats.RunningSpaces)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate space counts: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM spaces GROUP BY type`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate space types: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var typ string
		var count int
		if err := rows.Scan(&typ, &count); err != nil {
			return nil, fmt.Errorf("failed to scan type count: %w", err)
		}
		stats.CountByType[typ] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating type counts: %w", err)
	}
	return stats, nil
}

func collectSpaces(rows *sql.Rows) ([]*Space, error) {
	defer rows.Close()
	var spaces []*Space
	for rows.Next() {
		sp, err := scanSpace(rows)
		if err != nil {
			return nil, err
		}
		spaces = append(spaces, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating spaces: %w", err)
	}
	return spaces, nil
}
