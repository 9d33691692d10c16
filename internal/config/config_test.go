package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(New())
	require.NoError(t, err)
	assert.Equal(t, "sqlite3", cfg.DBDriver)
	assert.Equal(t, "registry.db", cfg.DBDSN)
	assert.Equal(t, 5*24*time.Hour, cfg.ContactTransferPeriod)
	assert.Equal(t, "registry.poll", cfg.PollTopic)
	assert.Equal(t, logrus.InfoLevel, cfg.Logger().GetLevel())
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("REGISTRY_DB_DRIVER", "pgx")
	t.Setenv("REGISTRY_DB_DSN", "postgres://localhost/registry")
	t.Setenv("REGISTRY_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("REGISTRY_CONTACT_TRANSFER_PERIOD", "48h")
	t.Setenv("REGISTRY_LOG_LEVEL", "debug")

	cfg, err := Load(New())
	require.NoError(t, err)
	assert.Equal(t, "pgx", cfg.DBDriver)
	assert.Equal(t, "postgres://localhost/registry", cfg.DBDSN)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 48*time.Hour, cfg.ContactTransferPeriod)
	assert.Equal(t, logrus.DebugLevel, cfg.Logger().GetLevel())
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tld_dir: /etc/registry/tlds\nkafka_brokers: [a:1, b:2]\n"), 0o644))

	v := New()
	v.SetConfigFile(path)
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "/etc/registry/tlds", cfg.TLDDir)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.KafkaBrokers)
}

func TestLoad_Invalid(t *testing.T) {
	for name, env := range map[string][2]string{
		"driver":   {"REGISTRY_DB_DRIVER", "oracle"},
		"period":   {"REGISTRY_CONTACT_TRANSFER_PERIOD", "-1h"},
		"loglevel": {"REGISTRY_LOG_LEVEL", "chatty"},
	} {
		t.Run(name, func(t *testing.T) {
			t.Setenv(env[0], env[1])
			_, err := Load(New())
			assert.Error(t, err)
		})
	}
}
