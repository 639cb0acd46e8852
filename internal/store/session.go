package store

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/hushline/hushline/internal/auth"
)

const SessionTTL = 4 * time.Hour

type SessionStore struct {
	db DBTX
}

// Create inserts a new session and returns its ID.
func (s *SessionStore) Create(ctx context.Context, userID string) (string, error) {
	id := auth.GenerateToken()
	q := s.db.Rebind(`INSERT INTO sessions (id, user_id, expires_at) VALUES (?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, q, id, userID, now().Add(SessionTTL).Unix())
	return id, err
}

// GetUserID validates the session and returns the associated user ID.
// Returns ErrNotFound if the session does not exist or is expired.
func (s *SessionStore) GetUserID(ctx context.Context, sessionID string) (string, error) {
	var userID string
	q := s.db.Rebind(`SELECT user_id FROM sessions WHERE id = ? AND expires_at > ?`)
	if err := sqlx.GetContext(ctx, s.db, &userID, q, sessionID, now().Unix()); err != nil {
		return "", notFound(err)
	}
	return userID, nil
}

func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM sessions WHERE id = ?`), sessionID)
	return err
}

// DeleteAllByUserID removes all sessions for a user.
func (s *SessionStore) DeleteAllByUserID(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM sessions WHERE user_id = ?`), userID)
	return err
}

// DeleteExpired removes expired sessions.
func (s *SessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM sessions WHERE expires_at <= ?`), now().Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
