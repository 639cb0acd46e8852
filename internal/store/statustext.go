package store

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/hushline/hushline/internal/model"
)

// StatusTextStore holds per-user replacements for MessageStatus.DefaultText.
type StatusTextStore struct {
	db DBTX
}

func (s *StatusTextStore) Upsert(ctx context.Context, userID string, status model.MessageStatus, markdown string) error {
	q := s.db.Rebind(`
		INSERT INTO message_status_texts (user_id, status, markdown)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id, status) DO UPDATE SET markdown = excluded.markdown`)
	_, err := s.db.ExecContext(ctx, q, userID, string(status), markdown)
	return err
}

// Delete reverts a status to its default text.
func (s *StatusTextStore) Delete(ctx context.Context, userID string, status model.MessageStatus) (int64, error) {
	q := s.db.Rebind(`DELETE FROM message_status_texts WHERE user_id = ? AND status = ?`)
	res, err := s.db.ExecContext(ctx, q, userID, string(status))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Get returns the custom text, reporting false when none is set.
func (s *StatusTextStore) Get(ctx context.Context, userID string, status model.MessageStatus) (string, bool, error) {
	var md string
	q := s.db.Rebind(`SELECT markdown FROM message_status_texts WHERE user_id = ? AND status = ?`)
	err := sqlx.GetContext(ctx, s.db, &md, q, userID, string(status))
	if errors.Is(notFound(err), ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return md, true, nil
}

func (s *StatusTextStore) ForUser(ctx context.Context, userID string) ([]model.MessageStatusText, error) {
	var out []model.MessageStatusText
	q := s.db.Rebind(`SELECT user_id, status, markdown FROM message_status_texts WHERE user_id = ? ORDER BY status`)
	if err := sqlx.SelectContext(ctx, s.db, &out, q, userID); err != nil {
		return nil, err
	}
	return out, nil
}
