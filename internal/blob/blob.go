// Package blob stores public brand assets such as the organization logo.
package blob

import (
	"context"
	"errors"
	"path"
	"strings"
)

var ErrInvalidKey = errors.New("blob: invalid key")

// Store puts and removes public objects by key. Deleting an object that does
// not exist is not an error.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// cleanKey rejects keys that could escape the store root.
func cleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") {
		return "", ErrInvalidKey
	}
	c := path.Clean(key)
	if c == "." || c == ".." || strings.HasPrefix(c, "../") {
		return "", ErrInvalidKey
	}
	return c, nil
}

func joinURL(base, key string) string {
	return strings.TrimSuffix(base, "/") + "/" + key
}
