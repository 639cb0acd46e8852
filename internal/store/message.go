package store

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/hushline/hushline/internal/model"
)

type MessageStore struct {
	db DBTX
}

const messageSelect = `
	SELECT m.id, m.username_id, m.content, m.reply_slug, m.status,
	       m.status_changed_at, m.created_at, n.username, n.user_id
	FROM messages m
	JOIN usernames n ON n.id = m.username_id`

// Create stores a message with the default status and a fresh reply slug.
func (s *MessageStore) Create(ctx context.Context, usernameID, content string) (*model.Message, error) {
	ts := now()
	m := &model.Message{
		ID:              uuid.NewString(),
		UsernameID:      usernameID,
		Content:         content,
		ReplySlug:       rand.Text(),
		Status:          model.DefaultMessageStatus(),
		StatusChangedAt: ts,
		CreatedAt:       ts,
	}
	q := s.db.Rebind(`
		INSERT INTO messages (id, username_id, content, reply_slug, status, status_changed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, q, m.ID, m.UsernameID, m.Content, m.ReplySlug, string(m.Status), m.StatusChangedAt, m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

// GetForUser returns a message only if one of userID's usernames received it.
func (s *MessageStore) GetForUser(ctx context.Context, userID, id string) (*model.Message, error) {
	var m model.Message
	q := s.db.Rebind(messageSelect + ` WHERE m.id = ? AND n.user_id = ?`)
	if err := sqlx.GetContext(ctx, s.db, &m, q, id, userID); err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (s *MessageStore) GetByReplySlug(ctx context.Context, slug string) (*model.Message, error) {
	var m model.Message
	q := s.db.Rebind(messageSelect + ` WHERE m.reply_slug = ?`)
	if err := sqlx.GetContext(ctx, s.db, &m, q, slug); err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// ListForUser returns the user's inbox, newest first. A nil status returns
// every message.
func (s *MessageStore) ListForUser(ctx context.Context, userID string, status *model.MessageStatus) ([]model.Message, error) {
	query := messageSelect + ` WHERE n.user_id = ?`
	args := []any{userID}
	if status != nil {
		query += ` AND m.status = ?`
		args = append(args, string(*status))
	}
	query += ` ORDER BY m.created_at DESC`

	var out []model.Message
	if err := sqlx.SelectContext(ctx, s.db, &out, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateStatus sets the status and stamps status_changed_at.
func (s *MessageStore) UpdateStatus(ctx context.Context, id string, status model.MessageStatus) error {
	q := s.db.Rebind(`UPDATE messages SET status = ?, status_changed_at = ? WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, q, string(status), now(), id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (s *MessageStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM messages WHERE id = ?`), id)
	if err != nil {
		return err
	}
	return expectOne(res)
}
