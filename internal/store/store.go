package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/hushline/hushline/internal/model"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrDuplicate            = errors.New("already exists")
	ErrLastAdmin            = errors.New("cannot remove the last admin account")
	ErrConsistencyViolation = errors.New("consistency violation")
)

func init() {
	// modernc registers as "sqlite", which sqlx does not know about.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// DBTX is satisfied by both *sqlx.DB and *sqlx.Tx.
type DBTX interface {
	sqlx.ExtContext
}

// Cache is a byte cache for setting values.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
}

// Store groups the per-table stores over one connection.
type Store struct {
	db *sqlx.DB

	Settings    *SettingsStore
	Users       *UserStore
	Sessions    *SessionStore
	Messages    *MessageStore
	StatusTexts *StatusTextStore
	Fields      *FieldStore
	InviteCodes *InviteCodeStore
}

// New returns a Store. cache may be nil.
func New(db *sqlx.DB, cache Cache) *Store {
	s := bind(db)
	s.db = db
	s.Settings.cache = cache
	return s
}

func bind(q DBTX) *Store {
	return &Store{
		Settings:    &SettingsStore{db: q},
		Users:       &UserStore{db: q},
		Sessions:    &SessionStore{db: q},
		Messages:    &MessageStore{db: q},
		StatusTexts: &StatusTextStore{db: q},
		Fields:      &FieldStore{db: q},
		InviteCodes: &InviteCodeStore{db: q},
	}
}

func (s *Store) DB() *sqlx.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InTx runs fn with every store bound to a single transaction. The
// transaction commits when fn returns nil and rolls back otherwise. Cached
// settings written inside fn are invalidated after the commit.
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	txs := bind(tx)
	txs.db = s.db
	txs.Settings.touched = []model.SettingKey{}

	if err := fn(txs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	s.Settings.invalidate(ctx, txs.Settings.touched...)
	return nil
}

// Open connects to the database and applies pending migrations.
func Open(ctx context.Context, driver, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if err := MigrateUp(db.DB, driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if driver == "sqlite" {
		// One writer at a time prevents SQLITE_BUSY under concurrent requests
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func now() time.Time { return time.Now().UTC() }

func ignoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

// expectOne maps a row count to ErrNotFound (none) or
// ErrConsistencyViolation (several).
func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	switch {
	case n == 0:
		return ErrNotFound
	case n > 1:
		return fmt.Errorf("%w: %d rows affected", ErrConsistencyViolation, n)
	}
	return nil
}
