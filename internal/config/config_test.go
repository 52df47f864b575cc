package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withSecrets(t *testing.T, secrets map[string]string) {
	t.Helper()
	dir := t.TempDir()
	for name, value := range secrets {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(value+"\n"), 0o600))
	}
	prev := secretsDir
	secretsDir = dir
	t.Cleanup(func() { secretsDir = prev })
}

func TestLoadConfig_Defaults(t *testing.T) {
	withSecrets(t, map[string]string{"ai_api_key": "sk-test"})

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "redis", cfg.StorageBackend)
	assert.Equal(t, 30*time.Minute, cfg.SlotClaimTTL)
	assert.Equal(t, 4, cfg.BatchMaxParallel)
	assert.Equal(t, 6, cfg.VideoDurationSeconds)
	assert.False(t, cfg.SelectorFallbackOnInvalid)
	assert.Equal(t, "sk-test", cfg.AIAPIKey)
	assert.Equal(t, cfg.AIModel, cfg.GraphModel())
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.Empty(t, cfg.InterServiceSecret)
}

func TestLoadConfig_PostgresNeedsPassword(t *testing.T) {
	withSecrets(t, map[string]string{"ai_api_key": "sk-test"})
	t.Setenv("STORAGE_BACKEND", "postgres")

	_, err := LoadConfig()
	assert.Error(t, err)

	withSecrets(t, map[string]string{"ai_api_key": "sk-test", "db_password": "pw"})
	t.Setenv("DB_HOST", "db")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "postgres://postgres:pw@db:5432/scenarios?sslmode=disable", cfg.GetDSN())
}

func TestLoadConfig_Validation(t *testing.T) {
	withSecrets(t, nil)

	t.Run("openai requires key", func(t *testing.T) {
		t.Setenv("AI_API_KEY", "")
		_, err := LoadConfig()
		assert.ErrorContains(t, err, "AI_API_KEY")
	})

	t.Run("ollama works without key", func(t *testing.T) {
		t.Setenv("AI_CLIENT_TYPE", "ollama")
		t.Setenv("AI_GRAPH_MODEL", "llama3.1")
		cfg, err := LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, "llama3.1", cfg.GraphModel())
	})

	t.Run("unknown backend", func(t *testing.T) {
		t.Setenv("AI_CLIENT_TYPE", "ollama")
		t.Setenv("STORAGE_BACKEND", "sqlite")
		_, err := LoadConfig()
		assert.ErrorContains(t, err, "STORAGE_BACKEND")
	})

	t.Run("parallelism must be positive", func(t *testing.T) {
		t.Setenv("AI_CLIENT_TYPE", "ollama")
		t.Setenv("BATCH_MAX_PARALLEL", "0")
		_, err := LoadConfig()
		assert.ErrorContains(t, err, "BATCH_MAX_PARALLEL")
	})

	t.Run("claim ttl must outlive generation timeout", func(t *testing.T) {
		t.Setenv("AI_CLIENT_TYPE", "ollama")
		t.Setenv("SLOT_CLAIM_TTL", "10m")
		t.Setenv("GENERATION_TIMEOUT", "10m")
		_, err := LoadConfig()
		assert.ErrorContains(t, err, "SLOT_CLAIM_TTL")

		t.Setenv("SLOT_CLAIM_TTL", "0")
		_, err = LoadConfig()
		assert.NoError(t, err, "zero ttl disables takeover")
	})
}

func TestReadOptionalSecret_EnvFallback(t *testing.T) {
	withSecrets(t, map[string]string{"from_file": "file-value"})
	t.Setenv("FROM_ENV", " env-value ")

	assert.Equal(t, "file-value", ReadOptionalSecret("from_file", "FROM_ENV"))
	assert.Equal(t, "env-value", ReadOptionalSecret("missing", "FROM_ENV"))
	assert.Empty(t, ReadOptionalSecret("missing", "NOT_SET_ANYWHERE"))

	_, err := ReadSecret("missing")
	assert.Error(t, err)
}
