package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("OAUTH_STATE_SECRET", "s3cret")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "trellis-api", cfg.AppName)
	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.OutboundTimeout)
	assert.Equal(t, "ingest-jobs", cfg.KafkaJobsTopic)
	assert.True(t, cfg.AuthEnabled)
	assert.Equal(t, []string{"GET", "POST", "PUT", "DELETE"}, cfg.AllowMethods)
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("OAUTH_STATE_SECRET=from-file\nDB_NAME=admin\nOUTBOUND_HTTP_TIMEOUT=5s\n"), 0o600))
	unsetEnv(t, "OAUTH_STATE_SECRET", "DB_NAME", "OUTBOUND_HTTP_TIMEOUT")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.OAuthStateSecret)
	assert.Equal(t, 5*time.Second, cfg.OutboundTimeout)
	assert.Contains(t, cfg.DatabaseDSN(), "dbname=admin")
}

func TestLoad_RequiresStateSecret(t *testing.T) {
	unsetEnv(t, "OAUTH_STATE_SECRET")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

// unsetEnv clears names for the test; t.Setenv restores the previous values afterwards.
func unsetEnv(t *testing.T, names ...string) {
	t.Helper()
	for _, name := range names {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}
