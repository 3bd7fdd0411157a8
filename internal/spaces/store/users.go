package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a row lookup matches nothing. Ownership-scoped
// lookups return it for both "does not exist" and "not owned", so callers
// never leak existence of other users' rows.
var ErrNotFound = errors.New("store: not found")

// DefaultMaxSpaces is the per-user quota applied to new accounts.
const DefaultMaxSpaces = 3

// User represents a user account row.
type User struct {
	ID        string
	Email     string
	Username  string
	Token     string
	MaxSpaces int
	IsAdmin   bool
	// HackatimeAPIKey is injected into code-server spaces at start time.
	HackatimeAPIKey            sql.NullString
	HackclubID                 sql.NullString
	HackclubVerificationStatus sql.NullString
	CreatedAt                  time.Time
	UpdatedAt                  time.Time
}

const userColumns = `id, email, username, token, max_spaces, is_admin,
	hackatime_api_key, hackclub_id, hackclub_verification_status, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	u := &User{}
	err := row.Scan(
		&u.ID, &u.Email, &u.Username, &u.Token, &u.MaxSpaces, &u.IsAdmin,
		&u.HackatimeAPIKey, &u.HackclubID, &u.HackclubVerificationStatus,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return u, nil
}

// CreateUser inserts a new user account. ID and timestamps are assigned here.
func (s *Store) CreateUser(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.MaxSpaces == 0 {
		user.MaxSpaces = DefaultMaxSpaces
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, username, token, max_spaces, is_admin,
			hackatime_api_key, hackclub_id, hackclub_verification_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, user.ID, user.Email, user.Username, user.Token, user.MaxSpaces, user.IsAdmin,
		user.HackatimeAPIKey, user.HackclubID, user.HackclubVerificationStatus,
		user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetUserByToken resolves a user from an opaque bearer token. This is the
// identity lookup every authenticated request goes through.
func (s *Store) GetUserByToken(ctx context.Context, token string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE token = $1`, token))
}

// GetUserByEmail retrieves a user by email address.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

// GetUserByUsername retrieves a user by username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`, username))
}

// GetUserByHackclubID retrieves a user by their linked identity-provider ID.
func (s *Store) GetUserByHackclubID(ctx context.Context, hackclubID string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE hackclub_id = $1`, hackclubID))
}

// RotateUserToken replaces the user's bearer token (login and signout paths).
func (s *Store) RotateUserToken(ctx context.Context, id, token string) error {
	return s.execOne(ctx, `
		UPDATE users SET token = $1, updated_at = $2 WHERE id = $3
	`, token, time.Now().UTC(), id)
}

// UpdateUserProfile updates the mutable profile fields. Nil pointers leave
// the corresponding column untouched.
func (s *Store) UpdateUserProfile(ctx context.Context, id string, username *string, hackatimeKey *string) error {
	if username == nil && hackatimeKey == nil {
		return nil
	}
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return err
	}
	newUsername := u.Username
	if username != nil {
		newUsername = *username
	}
	newKey := u.HackatimeAPIKey
	if hackatimeKey != nil {
		newKey = sql.NullString{String: *hackatimeKey, Valid: *hackatimeKey != ""}
	}
	return s.execOne(ctx, `
		UPDATE users SET username = $1, hackatime_api_key = $2, updated_at = $3 WHERE id = $4
	`, newUsername, newKey, time.Now().UTC(), id)
}

// UpdateUserEmail changes the account email (verified-email-change flow).
func (s *Store) UpdateUserEmail(ctx context.Context, id, email string) error {
	return s.execOne(ctx, `
		UPDATE users SET email = $1, updated_at = $2 WHERE id = $3
	`, email, time.Now().UTC(), id)
}

// LinkHackclubIdentity records the external identity-provider linkage.
func (s *Store) LinkHackclubIdentity(ctx context.Context, id, hackclubID, verificationStatus string) error {
	return s.execOne(ctx, `
		UPDATE users SET hackclub_id = $1, hackclub_verification_status = $2, updated_at = $3
		WHERE id = $4
	`, hackclubID, verificationStatus, time.Now().UTC(), id)
}

// AdminUpdateUser sets quota and admin flags. Nil pointers leave fields untouched.
func (s *Store) AdminUpdateUser(ctx context.Context, id string, maxSpaces *int, isAdmin *bool) (*User, error) {
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	newMax := u.MaxSpaces
	if maxSpaces != nil {
		newMax = *maxSpaces
	}
	newAdmin := u.IsAdmin
	if isAdmin != nil {
		newAdmin = *isAdmin
	}
	err = s.execOne(ctx, `
		UPDATE users SET max_spaces = $1, is_admin = $2, updated_at = $3 WHERE id = $4
	`, newMax, newAdmin, time.Now().UTC(), id)
	if err != nil {
		return nil, err
	}
	return s.GetUser(ctx, id)
}

// DeleteUser removes a user account. Owned spaces cascade at the schema level;
// callers are expected to tear down containers first.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	return s.execOne(ctx, `DELETE FROM users WHERE id = $1`, id)
}

// UserSummary is the admin listing projection: account fields plus the
// owned-space count.
type UserSummary struct {
	ID         string
	Email      string
	Username   string
	MaxSpaces  int
	IsAdmin    bool
	SpaceCount int
}

// ListUsers returns all accounts with their owned-space counts, newest first.
func (s *Store) ListUsers(ctx context.Context) ([]*UserSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.email, u.username, u.max_spaces, u.is_admin, COUNT(sp.id)
		FROM users u
		LEFT JOIN spaces sp ON sp.user_id = u.id
		GROUP BY u.id, u.email, u.username, u.max_spaces, u.is_admin, u.created_at
		ORDER BY u.created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*UserSummary
	for rows.Next() {
		u := &UserSummary{}
		if err := rows.Scan(&u.ID, &u.Email, &u.Username, &u.MaxSpaces, &u.IsAdmin, &u.SpaceCount); err != nil {
			return nil, fmt.Errorf("failed to scan user summary: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

// CountUsers returns the total number of accounts.
func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// execOne runs a statement that must affect exactly one row, returning
// ErrNotFound otherwise.
func (s *Store) execOne(ctx context.Context, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
