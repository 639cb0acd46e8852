package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/hushline/hushline/internal/model"
)

// SettingsStore persists organization settings as one JSON value per key.
// The primary key on setting_key guarantees at most one row per key.
type SettingsStore struct {
	db    DBTX
	cache Cache

	// touched is non-nil when the store is bound to a transaction; keys
	// written there are invalidated once the transaction commits.
	touched []model.SettingKey
}

func settingCacheKey(k model.SettingKey) string {
	return "hushline:setting:" + string(k)
}

// FetchOne returns the stored JSON value for key, or the key's documented
// default when no row exists.
func (s *SettingsStore) FetchOne(ctx context.Context, key model.SettingKey) (json.RawMessage, error) {
	if _, err := model.ParseSettingKey(string(key)); err != nil {
		return nil, err
	}

	useCache := s.cache != nil && s.touched == nil
	if useCache {
		b, ok, err := s.cache.Get(ctx, settingCacheKey(key))
		if err != nil {
			slog.Warn("settings: cache read failed", "key", key, "err", err)
		} else if ok {
			return b, nil
		}
	}

	var raw string
	q := s.db.Rebind(`SELECT setting_value FROM organization_settings WHERE setting_key = ?`)
	err := sqlx.GetContext(ctx, s.db, &raw, q, string(key))

	var value json.RawMessage
	switch {
	case errors.Is(err, sql.ErrNoRows):
		value, err = json.Marshal(key.Default())
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("fetch setting %s: %w", key, err)
	default:
		value = json.RawMessage(raw)
	}

	if useCache {
		if err := s.cache.Set(ctx, settingCacheKey(key), value); err != nil {
			slog.Warn("settings: cache write failed", "key", key, "err", err)
		}
	}
	return value, nil
}

// String decodes a string setting. Unset settings yield "".
func (s *SettingsStore) String(ctx context.Context, key model.SettingKey) (string, error) {
	raw, err := s.FetchOne(ctx, key)
	if err != nil {
		return "", err
	}
	var v *string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("decode setting %s: %w", key, err)
	}
	if v == nil {
		return "", nil
	}
	return *v, nil
}

func (s *SettingsStore) Bool(ctx context.Context, key model.SettingKey) (bool, error) {
	raw, err := s.FetchOne(ctx, key)
	if err != nil {
		return false, err
	}
	var v *bool
	if err := json.Unmarshal(raw, &v); err != nil {
		return false, fmt.Errorf("decode setting %s: %w", key, err)
	}
	return v != nil && *v, nil
}

// All returns every key with its effective value.
func (s *SettingsStore) All(ctx context.Context) (map[model.SettingKey]json.RawMessage, error) {
	out := make(map[model.SettingKey]json.RawMessage)
	for _, k := range model.SettingKeys() {
		v, err := s.FetchOne(ctx, k)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

// Upsert inserts or replaces the value for key. value is stored as JSON.
func (s *SettingsStore) Upsert(ctx context.Context, key model.SettingKey, value any) error {
	if _, err := model.ParseSettingKey(string(key)); err != nil {
		return err
	}
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode setting %s: %w", key, err)
	}

	q := s.db.Rebind(`
		INSERT INTO organization_settings (setting_key, setting_value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (setting_key) DO UPDATE
		SET setting_value = excluded.setting_value, updated_at = excluded.updated_at`)
	if _, err := s.db.ExecContext(ctx, q, string(key), string(b), now()); err != nil {
		return fmt.Errorf("upsert setting %s: %w", key, err)
	}
	s.written(ctx, key)
	return nil
}

// Delete removes the row for key and reports how many rows were affected.
func (s *SettingsStore) Delete(ctx context.Context, key model.SettingKey) (int64, error) {
	q := s.db.Rebind(`DELETE FROM organization_settings WHERE setting_key = ?`)
	res, err := s.db.ExecContext(ctx, q, string(key))
	if err != nil {
		return 0, fmt.Errorf("delete setting %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	s.written(ctx, key)
	return n, nil
}

// ResetToDefault deletes the row for key. Removing zero or one row is
// success; more than one means the storage-level uniqueness is broken and
// ErrConsistencyViolation is returned so the caller rolls back.
func (s *SettingsStore) ResetToDefault(ctx context.Context, key model.SettingKey) (int64, error) {
	n, err := s.Delete(ctx, key)
	if err != nil {
		return 0, err
	}
	if n > 1 {
		return n, fmt.Errorf("%w: deleting setting %s would remove %d rows", ErrConsistencyViolation, key, n)
	}
	return n, nil
}

func (s *SettingsStore) written(ctx context.Context, key model.SettingKey) {
	if s.touched != nil {
		s.touched = append(s.touched, key)
		return
	}
	s.invalidate(ctx, key)
}

func (s *SettingsStore) invalidate(ctx context.Context, keys ...model.SettingKey) {
	if s.cache == nil || len(keys) == 0 {
		return
	}
	ck := make([]string, len(keys))
	for i, k := range keys {
		ck[i] = settingCacheKey(k)
	}
	if err := s.cache.Delete(ctx, ck...); err != nil {
		slog.Warn("settings: cache invalidation failed", "keys", ck, "err", err)
	}
}
