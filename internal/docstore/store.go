// Package docstore holds the markdown documents the planner reads. Keys are
// slash-separated names without an extension, e.g. "journal/2025-07-21".
package docstore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
)

var (
	ErrNotFound   = errors.New("document not found")
	ErrInvalidKey = errors.New("invalid document key")
)

// Reader is the read-only capability the aggregator needs.
type Reader interface {
	Get(ctx context.Context, key string) (string, error)
	// ListKeys returns the keys matching a path.Match pattern in sorted
	// order. An empty pattern matches every key.
	ListKeys(ctx context.Context, pattern string) ([]string, error)
}

// Store adds writes for line-addressed edits.
type Store interface {
	Reader
	Set(ctx context.Context, key, text string) error
	Delete(ctx context.Context, key string) error
}

// ValidKey rejects empty, absolute and parent-relative keys.
func ValidKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}

// match reports whether key matches pattern. A malformed pattern is an error.
func match(pattern, key string) (bool, error) {
	if pattern == "" {
		return true, nil
	}
	ok, err := path.Match(pattern, key)
	if err != nil {
		return false, fmt.Errorf("pattern %q: %w", pattern, err)
	}
	return ok, nil
}

func filterKeys(keys []string, pattern string) ([]string, error) {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		ok, err := match(pattern, k)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}
