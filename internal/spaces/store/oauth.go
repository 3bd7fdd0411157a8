package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// OAuthState is a short-lived row anchoring an in-flight OAuth flow. Mode is
// "login" or "link"; UserID is set only for link flows.
type OAuthState struct {
	State     string
	Mode      string
	UserID    sql.NullString
	CreatedAt time.Time
}

// InsertOAuthState records a new flow state.
func (s *Store) InsertOAuthState(ctx context.Context, st *OAuthState) error {
	st.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO oauth_states (state, mode, user_id, created_at)
		VALUES ($1, $2, $3, $4)
	`, st.State, st.Mode, st.UserID, st.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert oauth state: %w", err)
	}
	return nil
}

// ConsumeOAuthState looks up a state and deletes it, so each state is usable
// once. States older than maxAge are treated as missing.
func (s *Store) ConsumeOAuthState(ctx context.Context, state string, maxAge time.Duration) (*OAuthState, error) {
	st := &OAuthState{}
	err := s.db.QueryRowContext(ctx, `
		SELECT state, mode, user_id, created_at FROM oauth_states WHERE state = $1
	`, state).Scan(&st.State, &st.Mode, &st.UserID, &st.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get oauth state: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM oauth_states WHERE state = $1`, state); err != nil {
		return nil, fmt.Errorf("failed to delete oauth state: %w", err)
	}
	if time.Since(st.CreatedAt) > maxAge {
		return nil, ErrNotFound
	}
	return st, nil
}

// PurgeExpiredOAuthStates removes states older than maxAge.
func (s *Store) PurgeExpiredOAuthStates(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM oauth_states WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge oauth states: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return rows, nil
}
