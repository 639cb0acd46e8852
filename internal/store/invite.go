package store

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/hushline/hushline/internal/model"
)

const InviteCodeTTL = 365 * 24 * time.Hour

type InviteCodeStore struct {
	db DBTX
}

func (s *InviteCodeStore) Create(ctx context.Context) (*model.InviteCode, error) {
	c := &model.InviteCode{
		ID:        uuid.NewString(),
		Code:      rand.Text(),
		ExpiresAt: now().Add(InviteCodeTTL).Truncate(time.Second),
	}
	q := s.db.Rebind(`INSERT INTO invite_codes (id, code, expires_at) VALUES (?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, q, c.ID, c.Code, c.ExpiresAt.Unix()); err != nil {
		return nil, err
	}
	return c, nil
}

// Consume deletes a valid, unexpired code. It returns ErrNotFound for
// unknown, expired or already used codes.
func (s *InviteCodeStore) Consume(ctx context.Context, code string) error {
	q := s.db.Rebind(`DELETE FROM invite_codes WHERE code = ? AND expires_at > ?`)
	res, err := s.db.ExecContext(ctx, q, code, now().Unix())
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (s *InviteCodeStore) List(ctx context.Context) ([]model.InviteCode, error) {
	var rows []struct {
		ID        string `db:"id"`
		Code      string `db:"code"`
		ExpiresAt int64  `db:"expires_at"`
	}
	q := s.db.Rebind(`SELECT id, code, expires_at FROM invite_codes WHERE expires_at > ? ORDER BY expires_at`)
	if err := sqlx.SelectContext(ctx, s.db, &rows, q, now().Unix()); err != nil {
		return nil, err
	}
	out := make([]model.InviteCode, len(rows))
	for i, r := range rows {
		out[i] = model.InviteCode{ID: r.ID, Code: r.Code, ExpiresAt: time.Unix(r.ExpiresAt, 0).UTC()}
	}
	return out, nil
}
