package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/hushline/hushline/internal/model"
)

type UserStore struct {
	db DBTX
}

const userSelect = `
	SELECT u.id, u.is_admin, u.is_premium, u.pgp_key, u.email,
	       u.enable_email_notifications, u.email_include_message_content,
	       u.smtp_server, u.smtp_port, u.smtp_username, u.smtp_password,
	       u.smtp_sender, u.smtp_encryption, u.created_at,
	       n.username AS primary_username, n.is_verified AS primary_verified
	FROM users u
	JOIN usernames n ON n.user_id = u.id AND n.is_primary = TRUE`

const usernameColumns = `id, user_id, username, display_name, bio, is_primary, is_verified, show_in_directory, created_at`

// Create inserts a user and its primary username. Run it inside InTx.
func (s *UserStore) Create(ctx context.Context, username, passwordHash string, isAdmin bool) (*model.User, error) {
	if _, err := s.GetUsername(ctx, username); err == nil {
		return nil, fmt.Errorf("username %q: %w", username, ErrDuplicate)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	id := uuid.NewString()
	q := s.db.Rebind(`
		INSERT INTO users (id, password_hash, is_admin, smtp_encryption, created_at)
		VALUES (?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, q, id, passwordHash, isAdmin, string(model.DefaultSMTPEncryption()), now()); err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	if _, err := s.insertUsername(ctx, id, username, true); err != nil {
		return nil, err
	}
	return s.GetByID(ctx, id)
}

func (s *UserStore) insertUsername(ctx context.Context, userID, username string, primary bool) (*model.Username, error) {
	n := &model.Username{
		ID:        uuid.NewString(),
		UserID:    userID,
		Username:  username,
		IsPrimary: primary,
		CreatedAt: now(),
	}
	q := s.db.Rebind(`
		INSERT INTO usernames (id, user_id, username, is_primary, created_at)
		VALUES (?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, q, n.ID, n.UserID, n.Username, n.IsPrimary, n.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert username: %w", err)
	}
	return n, nil
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	if err := sqlx.GetContext(ctx, s.db, &u, s.db.Rebind(userSelect+` WHERE u.id = ?`), id); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// GetByPrimaryUsername returns the user and password hash for a login.
func (s *UserStore) GetByPrimaryUsername(ctx context.Context, username string) (*model.User, string, error) {
	var row struct {
		model.User
		PasswordHash string `db:"password_hash"`
	}
	q := s.db.Rebind(`
		SELECT u.id, u.is_admin, u.is_premium, u.pgp_key, u.email,
		       u.enable_email_notifications, u.email_include_message_content,
		       u.smtp_server, u.smtp_port, u.smtp_username, u.smtp_password,
		       u.smtp_sender, u.smtp_encryption, u.created_at,
		       n.username AS primary_username, n.is_verified AS primary_verified,
		       u.password_hash
		FROM users u
		JOIN usernames n ON n.user_id = u.id AND n.is_primary = TRUE
		WHERE n.username = ?`)
	if err := sqlx.GetContext(ctx, s.db, &row, q, username); err != nil {
		return nil, "", notFound(err)
	}
	return &row.User, row.PasswordHash, nil
}

// GetUsername looks up any username, primary or alias.
func (s *UserStore) GetUsername(ctx context.Context, username string) (*model.Username, error) {
	var n model.Username
	q := s.db.Rebind(`SELECT ` + usernameColumns + ` FROM usernames WHERE username = ?`)
	if err := sqlx.GetContext(ctx, s.db, &n, q, username); err != nil {
		return nil, notFound(err)
	}
	return &n, nil
}

func (s *UserStore) ListUsernames(ctx context.Context, userID string) ([]model.Username, error) {
	var out []model.Username
	q := s.db.Rebind(`SELECT ` + usernameColumns + ` FROM usernames WHERE user_id = ? ORDER BY is_primary DESC, username`)
	if err := sqlx.SelectContext(ctx, s.db, &out, q, userID); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *UserStore) ListAll(ctx context.Context) ([]model.User, error) {
	var out []model.User
	if err := sqlx.SelectContext(ctx, s.db, &out, userSelect+` ORDER BY n.username`); err != nil {
		return nil, err
	}
	return out, nil
}

// ListDirectory returns the usernames that opted into the public directory.
func (s *UserStore) ListDirectory(ctx context.Context) ([]model.Username, error) {
	var out []model.Username
	q := `SELECT ` + usernameColumns + ` FROM usernames WHERE show_in_directory = TRUE ORDER BY username`
	if err := sqlx.SelectContext(ctx, s.db, &out, q); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *UserStore) CountAdmins(ctx context.Context) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, s.db, &n, `SELECT COUNT(*) FROM users WHERE is_admin = TRUE`)
	return n, err
}

func (s *UserStore) CountAliases(ctx context.Context, userID string) (int, error) {
	var n int
	q := s.db.Rebind(`SELECT COUNT(*) FROM usernames WHERE user_id = ? AND is_primary = FALSE`)
	err := sqlx.GetContext(ctx, s.db, &n, q, userID)
	return n, err
}

// ToggleAdmin flips the admin flag and returns the new value. Demoting the
// only admin fails with ErrLastAdmin.
func (s *UserStore) ToggleAdmin(ctx context.Context, id string) (bool, error) {
	u, err := s.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if u.IsAdmin {
		if err := s.guardLastAdmin(ctx); err != nil {
			return false, err
		}
	}
	q := s.db.Rebind(`UPDATE users SET is_admin = ? WHERE id = ?`)
	if _, err := s.db.ExecContext(ctx, q, !u.IsAdmin, id); err != nil {
		return false, err
	}
	return !u.IsAdmin, nil
}

// ToggleVerified flips the verified badge on the user's primary username.
func (s *UserStore) ToggleVerified(ctx context.Context, id string) (bool, error) {
	u, err := s.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	q := s.db.Rebind(`UPDATE usernames SET is_verified = ? WHERE user_id = ? AND is_primary = TRUE`)
	if _, err := s.db.ExecContext(ctx, q, !u.PrimaryUsernameVerified, id); err != nil {
		return false, err
	}
	return !u.PrimaryUsernameVerified, nil
}

// UpdateProfile sets the directory-facing fields of a username owned by userID.
func (s *UserStore) UpdateProfile(ctx context.Context, userID, usernameID, displayName, bio string, showInDirectory bool) error {
	q := s.db.Rebind(`
		UPDATE usernames SET display_name = ?, bio = ?, show_in_directory = ?
		WHERE id = ? AND user_id = ?`)
	res, err := s.db.ExecContext(ctx, q, displayName, bio, showInDirectory, usernameID, userID)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (s *UserStore) SetPGPKey(ctx context.Context, id, key string) error {
	// Without a key, message content can only be sent in the clear.
	q := s.db.Rebind(`UPDATE users SET pgp_key = ?,
		email_include_message_content = CASE WHEN ? = '' THEN FALSE ELSE email_include_message_content END
		WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, q, key, key, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (s *UserStore) SetPassword(ctx context.Context, id, hash string) error {
	q := s.db.Rebind(`UPDATE users SET password_hash = ? WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, q, hash, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// NotificationSettings is the mutable notification part of a User.
// SMTPPassword must already be encrypted.
type NotificationSettings struct {
	Email                      string
	EnableEmailNotifications   bool
	EmailIncludeMessageContent bool
	SMTPServer                 string
	SMTPPort                   int
	SMTPUsername               string
	SMTPPassword               string
	SMTPSender                 string
	SMTPEncryption             model.SMTPEncryption
}

func (s *UserStore) UpdateNotifications(ctx context.Context, id string, n NotificationSettings) error {
	q := s.db.Rebind(`
		UPDATE users SET
			email = ?, enable_email_notifications = ?, email_include_message_content = ?,
			smtp_server = ?, smtp_port = ?, smtp_username = ?, smtp_password = ?,
			smtp_sender = ?, smtp_encryption = ?
		WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, q,
		n.Email, n.EnableEmailNotifications, n.EmailIncludeMessageContent,
		n.SMTPServer, n.SMTPPort, n.SMTPUsername, n.SMTPPassword,
		n.SMTPSender, string(n.SMTPEncryption), id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// CreateAlias adds a non-primary username to a user.
func (s *UserStore) CreateAlias(ctx context.Context, userID, username string) (*model.Username, error) {
	if _, err := s.GetUsername(ctx, username); err == nil {
		return nil, fmt.Errorf("username %q: %w", username, ErrDuplicate)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return s.insertUsername(ctx, userID, username, false)
}

// Delete removes the user and everything it owns. Deleting the only admin
// fails with ErrLastAdmin. Run it inside InTx.
func (s *UserStore) Delete(ctx context.Context, id string) error {
	u, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if u.IsAdmin {
		if err := s.guardLastAdmin(ctx); err != nil {
			return err
		}
	}

	owned := `(SELECT id FROM usernames WHERE user_id = ?)`
	stmts := []string{
		`DELETE FROM messages WHERE username_id IN ` + owned,
		`DELETE FROM field_definitions WHERE username_id IN ` + owned,
		`DELETE FROM message_status_texts WHERE user_id = ?`,
		`DELETE FROM sessions WHERE user_id = ?`,
		`DELETE FROM usernames WHERE user_id = ?`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, s.db.Rebind(stmt), id); err != nil {
			return fmt.Errorf("delete user %s: %w", id, err)
		}
	}

	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM users WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete user %s: %w", id, err)
	}
	return expectOne(res)
}

// guardLastAdmin must run inside InTx. On Postgres the admin rows stay
// locked until commit, so two demotions cannot both see a second admin.
// SQLite serializes writers on its single connection.
func (s *UserStore) guardLastAdmin(ctx context.Context) error {
	var ids []string
	if err := sqlx.SelectContext(ctx, s.db, &ids, adminLockQuery(s.db.DriverName())); err != nil {
		return err
	}
	if len(ids) <= 1 {
		return ErrLastAdmin
	}
	return nil
}

func adminLockQuery(driver string) string {
	q := `SELECT id FROM users WHERE is_admin = TRUE`
	if driver == "pgx" {
		q += ` FOR UPDATE`
	}
	return q
}

// CreateAdmin satisfies auth.AdminSeeder.
func (s *UserStore) CreateAdmin(ctx context.Context, username, passwordHash string) error {
	_, err := s.Create(ctx, username, passwordHash, true)
	return err
}
