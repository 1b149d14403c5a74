// Package uuid includes tests for the UUID generator wrapper.
package uuid

import (
	"testing"

	goUUID "github.com/google/uuid"
)

// TestGeneratorNewID ensures generated IDs are unique and valid UUIDs.
func TestGeneratorNewID(t *testing.T) {
	t.Parallel()

	gen := New()
	id1, err := gen.NewID()
	if err != nil {
		t.Fatalf("NewID() error = %v", err)
	}
	id2, err := gen.NewID()
	if err != nil {
		t.Fatalf("NewID() error = %v", err)
	}
	if id1 == id2 {
		t.Fatalf("expected unique IDs, got %s and %s", id1, id2)
	}
	parsed, err := goUUID.Parse(id1)
	if err != nil {
		t.Fatalf("id1 not valid UUID: %v", err)
	}
	if parsed.Version() != 7 {
		t.Fatalf("expected version 7, got %d", parsed.Version())
	}
}

// TestGeneratorSignalIDStable checks signal IDs depend only on their parts.
func TestGeneratorSignalIDStable(t *testing.T) {
	t.Parallel()

	gen := New()
	a := gen.SignalID("org-1", "rec-1", "hiring_signal")
	b := New().SignalID("org-1", "rec-1", "hiring_signal")
	if a != b {
		t.Fatalf("expected stable IDs, got %s and %s", a, b)
	}
	if c := gen.SignalID("org-1", "rec-1", "funding_signal"); c == a {
		t.Fatalf("expected different labels to produce different IDs")
	}
	// Joining must not let part boundaries shift.
	if gen.SignalID("ab", "c") == gen.SignalID("a", "bc") {
		t.Fatal("expected part boundaries to be significant")
	}
	parsed, err := goUUID.Parse(a)
	if err != nil {
		t.Fatalf("signal id not valid UUID: %v", err)
	}
	if parsed.Version() != 5 {
		t.Fatalf("expected version 5, got %d", parsed.Version())
	}
}
