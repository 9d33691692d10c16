package testutil

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/icewiki/nomulus/internal/store"
	"github.com/icewiki/nomulus/internal/tld"
)

// Epoch is the instant scenarios start at unless they say otherwise.
var Epoch = time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

// NewLogger returns a logger that discards output and records entries in
// the returned hook for assertions.
func NewLogger() (*logrus.Entry, *test.Hook) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log), hook
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *store.Store {
	log, _ := NewLogger()
	return store.New(store.NewMemory(), log)
}

// DefaultTLD is the policy of the "test" TLD used across tests.
func DefaultTLD() tld.TLD {
	return tld.TLD{
		Name:                    "test",
		AutomaticTransferLength: 5 * 24 * time.Hour,
		TransferGracePeriod:     5 * 24 * time.Hour,
		AddGracePeriod:          5 * 24 * time.Hour,
		Currency:                "USD",
		CreateCost:              1000,
		TransferCost:            800,
		RenewCost:               1000,
	}
}

// NewTLDs returns a registry holding DefaultTLD and any extra TLDs.
func NewTLDs(t testing.TB, extra ...tld.TLD) *tld.Registry {
	t.Helper()
	r, err := tld.NewRegistry(append([]tld.TLD{DefaultTLD()}, extra...)...)
	require.NoError(t, err)
	return r
}
