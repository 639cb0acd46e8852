package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/hushline/hushline/internal/model"
)

type FieldStore struct {
	db DBTX
}

type fieldRow struct {
	model.FieldDefinition
	ChoicesJSON string `db:"choices"`
}

func (s *FieldStore) Create(ctx context.Context, f *model.FieldDefinition) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.Choices == nil {
		f.Choices = []string{}
	}
	choices, err := json.Marshal(f.Choices)
	if err != nil {
		return err
	}

	q := s.db.Rebind(`
		INSERT INTO field_definitions (id, username_id, label, field_type, required, enabled, choices, sort_order)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = s.db.ExecContext(ctx, q, f.ID, f.UsernameID, f.Label, string(f.FieldType), f.Required, f.Enabled, string(choices), f.SortOrder)
	if err != nil {
		return fmt.Errorf("insert field definition: %w", err)
	}
	return nil
}

// ListForUsername returns a username's fields in display order.
func (s *FieldStore) ListForUsername(ctx context.Context, usernameID string, enabledOnly bool) ([]model.FieldDefinition, error) {
	query := `
		SELECT id, username_id, label, field_type, required, enabled, choices, sort_order
		FROM field_definitions WHERE username_id = ?`
	if enabledOnly {
		query += ` AND enabled = TRUE`
	}
	query += ` ORDER BY sort_order, label`

	var rows []fieldRow
	if err := sqlx.SelectContext(ctx, s.db, &rows, s.db.Rebind(query), usernameID); err != nil {
		return nil, err
	}

	out := make([]model.FieldDefinition, len(rows))
	for i, r := range rows {
		out[i] = r.FieldDefinition
		if err := json.Unmarshal([]byte(r.ChoicesJSON), &out[i].Choices); err != nil {
			return nil, fmt.Errorf("decode choices for field %s: %w", r.ID, err)
		}
	}
	return out, nil
}

func (s *FieldStore) Delete(ctx context.Context, usernameID, id string) error {
	q := s.db.Rebind(`DELETE FROM field_definitions WHERE id = ? AND username_id = ?`)
	res, err := s.db.ExecContext(ctx, q, id, usernameID)
	if err != nil {
		return err
	}
	return expectOne(res)
}
