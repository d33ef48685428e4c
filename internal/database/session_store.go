package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jobportal/authweb/internal/authstate"
)

// DefaultSessionTTL is used when the store is created without a TTL
const DefaultSessionTTL = 24 * time.Hour

// SessionStore persists the shared auth state of each browser session in
// the auth_sessions table. It implements authstate.Backend.
type SessionStore struct {
	db  DBTX
	ttl time.Duration
	now func() time.Time
}

var _ authstate.Backend = (*SessionStore)(nil)

// NewSessionStore creates a session store backed by the pool
func NewSessionStore(pool *Pool, ttl time.Duration) *SessionStore {
	return NewSessionStoreWithDB(pool, ttl)
}

// NewSessionStoreWithDB creates a session store with a custom DBTX (for testing)
func NewSessionStoreWithDB(db DBTX, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{db: db, ttl: ttl, now: time.Now}
}

// Load returns the stored state of an unexpired session
func (s *SessionStore) Load(ctx context.Context, sessionID string) (authstate.State, error) {
	var st authstate.State
	var userData []byte

	err := s.db.QueryRow(ctx, `
		SELECT loading, COALESCE(user_data, 'null'::jsonb)
		FROM auth_sessions
		WHERE session_id = $1 AND expires_at > NOW()
	`, sessionID).Scan(&st.Loading, &userData)
	if errors.Is(err, pgx.ErrNoRows) {
		return authstate.State{}, authstate.ErrSessionNotFound
	}
	if err != nil {
		return authstate.State{}, fmt.Errorf("failed to load session: %w", err)
	}

	if err := json.Unmarshal(userData, &st.User); err != nil {
		return authstate.State{}, fmt.Errorf("failed to decode session user: %w", err)
	}
	return st, nil
}

// Save upserts the session state and extends its expiry
func (s *SessionStore) Save(ctx context.Context, sessionID string, st authstate.State) error {
	var userData any
	if st.User != nil {
		b, err := json.Marshal(st.User)
		if err != nil {
			return fmt.Errorf("failed to encode session user: %w", err)
		}
		userData = b
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO auth_sessions (session_id, loading, user_data, updated_at, expires_at)
		VALUES ($1, $2, $3, NOW(), $4)
		ON CONFLICT (session_id) DO UPDATE SET
			loading = EXCLUDED.loading,
			user_data = EXCLUDED.user_data,
			updated_at = NOW(),
			expires_at = EXCLUDED.expires_at
	`, sessionID, st.Loading, userData, s.now().Add(s.ttl))
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Delete removes the session. Deleting an unknown session is not an error.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM auth_sessions WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// PurgeExpired deletes expired sessions and returns how many were removed
func (s *SessionStore) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM auth_sessions WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
