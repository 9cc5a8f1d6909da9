// Package storage resolves opaque attachment ids to URLs a client can fetch.
// The bytes live elsewhere; nothing here reads or writes them.
package storage

import (
	"errors"
	"path"
	"strings"
)

var ErrBadKey = errors.New("storage: invalid attachment key")

// Resolver is satisfied by every backend and consumed by exam.Tracker.
type Resolver interface {
	SignedURL(key string) (string, error)
}

// cleanKey rejects empty, absolute and escaping keys and returns the key in
// slash-separated canonical form.
func cleanKey(key string) (string, error) {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	if key == "" || strings.HasPrefix(key, "/") {
		return "", ErrBadKey
	}
	c := path.Clean(key)
	if c == "." || c == ".." || strings.HasPrefix(c, "../") {
		return "", ErrBadKey
	}
	return c, nil
}
