package tld

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icewiki/nomulus/internal/model"
)

func TestLoadDir(t *testing.T) {
	r, err := LoadDir("testdata/tlds")
	require.NoError(t, err)
	assert.Equal(t, []string{"example", "xn--q9jyb4c"}, r.Names())

	ex, err := r.Get("example")
	require.NoError(t, err)
	assert.Equal(t, 120*time.Hour, ex.AutomaticTransferLength)
	assert.Equal(t, 120*time.Hour, ex.TransferGracePeriod)
	assert.Equal(t, "USD", ex.Currency)
	assert.Equal(t, int64(800), ex.TransferCost, "defaults to create cost")

	idn, err := r.Get("xn--q9jyb4c")
	require.NoError(t, err)
	assert.Equal(t, 72*time.Hour, idn.AutomaticTransferLength)
	assert.Equal(t, int64(1000), idn.TransferCost)
	assert.Equal(t, "JPY", idn.Currency)
}

func TestGet_UnicodeNameCanonicalised(t *testing.T) {
	r, err := LoadDir("testdata/tlds")
	require.NoError(t, err)
	got, err := r.Get("みんな")
	require.NoError(t, err)
	assert.Equal(t, "xn--q9jyb4c", got.Name)
}

func TestGet_UnknownIsParameterError(t *testing.T) {
	r, err := NewRegistry(TLD{Name: "example"})
	require.NoError(t, err)
	_, err = r.Get("nope")
	assert.True(t, model.IsKind(err, model.KindParameter))
}

func TestParse_RejectsInvalidDefinitions(t *testing.T) {
	_, err := Parse(`tld: bad: { createCost: -1 }`)
	assert.Error(t, err)

	_, err = Parse(`tld: bad: { createCost: 1, automaticTransferLength: "soon" }`)
	assert.Error(t, err)

	_, err = Parse(`other: 1`)
	assert.Error(t, err)
}

func TestForDomain_LongestSuffix(t *testing.T) {
	r, err := NewRegistry(TLD{Name: "tld"}, TLD{Name: "co.tld"})
	require.NoError(t, err)

	got, err := r.ForDomain("example.co.tld")
	require.NoError(t, err)
	assert.Equal(t, "co.tld", got.Name)

	got, err = r.ForDomain("example.tld")
	require.NoError(t, err)
	assert.Equal(t, "tld", got.Name)

	_, err = r.ForDomain("example.other")
	assert.True(t, model.IsKind(err, model.KindParameter))
}
