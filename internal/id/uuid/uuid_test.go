// Package uuid includes tests for the deterministic id generator.
package uuid

import (
	"strings"
	"testing"

	goUUID "github.com/google/uuid"
)

// TestGeneratorNewIDDeterministic ensures identical natural keys produce identical ids.
func TestGeneratorNewIDDeterministic(t *testing.T) {
	t.Parallel()

	gen := NewUUIDGenerator()
	id1 := gen.NewID("Minutes", "参議院本会議", "2023-05-01")
	id2 := gen.NewID("Minutes", "参議院本会議", "2023-05-01")
	if id1 != id2 {
		t.Fatalf("expected identical ids, got %s and %s", id1, id2)
	}
	if !strings.HasPrefix(id1, "Minutes:") {
		t.Fatalf("expected kind prefix, got %s", id1)
	}
	raw := strings.TrimPrefix(id1, "Minutes:")
	parsed, err := goUUID.Parse(raw)
	if err != nil {
		t.Fatalf("id suffix not valid UUID: %v", err)
	}
	if parsed.Version() != 5 {
		t.Fatalf("expected v5 uuid, got v%d", parsed.Version())
	}
}

// TestGeneratorNewIDScopedByKind checks the same key under different kinds does not collide.
func TestGeneratorNewIDScopedByKind(t *testing.T) {
	t.Parallel()

	a := Derive("Minutes", "x")
	b := Derive("Speech", "x")
	if strings.TrimPrefix(a, "Minutes:") == strings.TrimPrefix(b, "Speech:") {
		t.Fatalf("expected kind-scoped uuids to differ")
	}
}

// TestGeneratorNewIDSeparatesParts guards against ambiguous concatenation of key parts.
func TestGeneratorNewIDSeparatesParts(t *testing.T) {
	t.Parallel()

	if Derive("Url", "ab", "c") == Derive("Url", "a", "bc") {
		t.Fatal("expected part boundaries to affect the id")
	}
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	kind, err := KindOf(Derive("Activity", "m", "s", "t"))
	if err != nil || kind != "Activity" {
		t.Fatalf("KindOf() = %q, %v", kind, err)
	}
	for _, bad := range []string{"", "Minutes", ":abc", "Minutes:"} {
		if _, err := KindOf(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
