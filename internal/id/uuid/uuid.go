// Package uuid provides ID generation for raw scrape records and signals.
package uuid

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// signalNamespace scopes name-based signal IDs so they never collide with other v5 users.
var signalNamespace = uuid.MustParse("6f0c3b1e-8a8f-4c55-9d6e-2f4b7f1c9a10")

// Generator creates UUID v7 record IDs and UUID v5 signal IDs.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a time-ordered UUID7 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

// SignalID derives a stable UUID5 from the identifying parts of a signal.
// The same parts always produce the same ID, which makes appends idempotent.
func (Generator) SignalID(parts ...string) string {
	return uuid.NewSHA1(signalNamespace, []byte(strings.Join(parts, "\x1f"))).String()
}
