package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "chromem", cfg.VectorStore.Provider)
	assert.Equal(t, "cosine", cfg.VectorStore.Chromem.DistanceMetric)
	assert.Equal(t, 4000, cfg.TokenLimit.MaxTokens)
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("SERVER_HTTP_PORT", "8080")
	t.Setenv("VECTORSTORE_CHROMEM_VECTOR_SIZE", "768")
	t.Setenv("COLLECTORS_JIRA_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 768, cfg.VectorStore.Chromem.VectorSize)
	assert.True(t, cfg.Collectors.Jira.Enabled)
}

func TestLoadSecretFileIndirection(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pat")
	require.NoError(t, os.WriteFile(path, []byte("super-secret\n"), 0o600))
	t.Setenv("COLLECTORS_JIRA_PAT_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "super-secret", cfg.Collectors.Jira.PAT.Value())
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := defaultConfig()
	cfg.Server.Port = 0
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestValidateRejectsUnknownVectorStoreProvider(t *testing.T) {
	cfg := defaultConfig()
	cfg.VectorStore.Provider = "postgres"
	err := cfg.Validate()
	assert.Error(t, err)
}
