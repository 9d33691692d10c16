package testutil

import (
	"context"
	"sync"

	"github.com/icewiki/nomulus/internal/store"
)

// InterleavingBackend wraps an in-memory backend and runs a hook at the
// start of the next commit, before that commit validates its reads. Tests
// use it to land another transaction between a flow's reads and its commit.
type InterleavingBackend struct {
	store.Backend

	mu   sync.Mutex
	hook func()
}

// NewInterleavingStore returns a store over a fresh InterleavingBackend.
func NewInterleavingStore() (*store.Store, *InterleavingBackend) {
	b := &InterleavingBackend{Backend: store.NewMemory()}
	log, _ := NewLogger()
	return store.New(b, log), b
}

// BeforeNextCommit arms fn to run once, inside the next commit that carries
// writes. Commits made by fn itself do not trigger it again.
func (b *InterleavingBackend) BeforeNextCommit(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hook = fn
}

// Commit runs the armed hook, if any, then commits to the wrapped backend.
func (b *InterleavingBackend) Commit(ctx context.Context, reads map[string]int64, writes []store.Mutation) error {
	b.mu.Lock()
	fn := b.hook
	b.hook = nil
	b.mu.Unlock()
	if fn != nil {
		fn()
	}
	return b.Backend.Commit(ctx, reads, writes)
}
