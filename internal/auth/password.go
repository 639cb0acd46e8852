package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"sync"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 12

const (
	MinPasswordLength = 18
	MaxPasswordLength = 128
)

var ErrWeakPassword = errors.New("password must be between 18 and 128 characters")

// Hash returns a bcrypt hash of the password.
func Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	return string(b), err
}

// Verify reports whether password matches the stored bcrypt hash.
func Verify(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// dummyHash stands in for the hash of a user that does not exist.
var dummyHash = sync.OnceValue(func() string {
	h, _ := Hash(GenerateToken())
	return h
})

// VerifyMissing spends the same bcrypt work as Verify so a login for an
// unknown username takes as long as one with a wrong password. It always
// reports false.
func VerifyMissing(password string) bool {
	Verify(dummyHash(), password)
	return false
}

// CheckPassword enforces the length policy. bcrypt only reads 72 bytes, so
// the upper bound also keeps hashing cost predictable.
func CheckPassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < MinPasswordLength || n > MaxPasswordLength {
		return ErrWeakPassword
	}
	return nil
}

// GenerateToken returns a 32-byte cryptographically random hex string.
func GenerateToken() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// AdminSeeder is the minimal interface needed for seeding the first admin.
type AdminSeeder interface {
	CountAdmins(ctx context.Context) (int, error)
	CreateAdmin(ctx context.Context, username, passwordHash string) error
}

// SeedFirstAdmin creates the initial admin account when no admin exists.
// It does nothing when username or password is empty.
func SeedFirstAdmin(ctx context.Context, users AdminSeeder, username, password string) error {
	if username == "" || password == "" {
		return nil
	}

	count, err := users.CountAdmins(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := Hash(password)
	if err != nil {
		return err
	}

	if err := users.CreateAdmin(ctx, username, hash); err != nil {
		return err
	}
	slog.Info("seed: created first admin", "username", username)
	return nil
}
