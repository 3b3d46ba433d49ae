// Package slug generates access-link slugs and decides which request
// paths may be treated as slug candidates.
package slug

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const charset = "abcdefghijklmnopqrstuvwxyz0123456789"

// Generate returns a random lowercase alphanumeric slug of the given
// length.
func Generate(length int) (string, error) {
	b := make([]byte, length)
	for i := range b {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		b[i] = charset[num.Int64()]
	}
	return string(b), nil
}

// Extract derives a single slug candidate from a request path. It
// reports ok=false for paths that must never be treated as slugs:
// the root path and nested paths.
func Extract(path string) (string, bool) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" || strings.Contains(trimmed, "/") {
		return "", false
	}
	return trimmed, true
}

// Valid reports whether a proposed slug is a single clean segment.
func Valid(s string) bool {
	return s != "" && !strings.ContainsAny(s, "/ \t?#")
}

// ConflictChecker vetoes slugs that collide with an external namespace.
// The host can supply its own implementation; ReservedList covers the
// service's own routes.
type ConflictChecker interface {
	Conflicts(slug string) bool
}

// ReservedList is a ConflictChecker over a fixed, case-insensitive set
// of reserved path segments.
type ReservedList struct {
	paths map[string]struct{}
}

// NewReservedList builds a ReservedList from the configured paths.
func NewReservedList(paths []string) *ReservedList {
	m := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		m[strings.ToLower(strings.Trim(p, "/"))] = struct{}{}
	}
	return &ReservedList{paths: m}
}

// Conflicts reports whether the slug matches a reserved path.
func (l *ReservedList) Conflicts(slug string) bool {
	_, ok := l.paths[strings.ToLower(slug)]
	return ok
}
