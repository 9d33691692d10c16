package model

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator produces opaque identifiers for resources and entities.
type IDGenerator interface {
	NewID() string
}

// UUIDv7Generator produces time-ordered UUIDs.
type UUIDv7Generator struct{}

// NewID returns a new UUIDv7 string.
func (UUIDv7Generator) NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// SequenceGenerator produces prefix-0001, prefix-0002, ... and is safe for
// concurrent use. It exists for deterministic tests and golden traces.
type SequenceGenerator struct {
	mu     sync.Mutex
	prefix string
	next   int
}

// NewSequenceGenerator returns a generator whose first ID is prefix-0001.
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	return &SequenceGenerator{prefix: prefix, next: 1}
}

// NewID returns the next ID in the sequence.
func (g *SequenceGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := fmt.Sprintf("%s-%04d", g.prefix, g.next)
	g.next++
	return id
}
