// Package uuid derives deterministic entity identifiers from natural keys.
package uuid

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// keySeparator joins natural key parts; it never appears in scraped text.
const keySeparator = "\x1f"

var rootNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://politylink.jp/"))

// Generator derives name-based (v5) UUIDs scoped by entity kind.
type Generator struct{}

// NewUUIDGenerator creates a new Generator.
func NewUUIDGenerator() *Generator {
	return &Generator{}
}

// NewID returns "<kind>:<uuid5>" for the given natural key parts.
func (g Generator) NewID(kind string, parts ...string) string {
	return fmt.Sprintf("%s:%s", kind, g.NewRawID(kind, parts...).String())
}

// NewRawID returns the bare v5 UUID for the natural key.
func (Generator) NewRawID(kind string, parts ...string) uuid.UUID {
	ns := uuid.NewSHA1(rootNamespace, []byte(kind))
	return uuid.NewSHA1(ns, []byte(strings.Join(parts, keySeparator)))
}

// Derive is shorthand for Generator{}.NewID.
func Derive(kind string, parts ...string) string {
	return Generator{}.NewID(kind, parts...)
}

// KindOf returns the kind prefix of an id produced by NewID.
func KindOf(id string) (string, error) {
	kind, rest, ok := strings.Cut(id, ":")
	if !ok || kind == "" || rest == "" {
		return "", fmt.Errorf("malformed entity id %q", id)
	}
	return kind, nil
}
