package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"MONGODB_URI", "MONGODB_DATABASE",
		"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY",
		"SMARTQUERY_LLM_MODEL", "SMARTQUERY_LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Provider())
	assert.Equal(t, "mongodb://localhost:27017", cfg.Storage.URI)
	assert.Equal(t, "tracker", cfg.Storage.Database)
	assert.Equal(t, 5, cfg.Planner.MaxParallel)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 60*time.Second, cfg.LLMTimeout())
	assert.Equal(t, 8*time.Second, cfg.ConnectTimeout())
	assert.Equal(t, 15*time.Second, cfg.ParseTimeout())
	assert.Equal(t, 25*time.Second, cfg.ExecuteTimeout())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "smartquery.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
llm:
  provider: anthropic
  model: claude-sonnet
  timeout: 30s
storage:
  uri: mongodb://db.internal:27017
  database: issues
planner:
  max_parallel: 2
  execute_timeout: 10s
logging:
  level: debug
  json_format: true
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.Provider())
	assert.Equal(t, "claude-sonnet", cfg.LLM.Model)
	assert.Equal(t, 30*time.Second, cfg.LLMTimeout())
	assert.Equal(t, "mongodb://db.internal:27017", cfg.Storage.URI)
	assert.Equal(t, "issues", cfg.Storage.Database)
	assert.Equal(t, 2, cfg.Planner.MaxParallel)
	assert.Equal(t, 10*time.Second, cfg.ExecuteTimeout())
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.JSONFormat)
}

func TestLoad_MalformedFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm: [not: a: map"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("MONGODB_URI", "mongodb://envhost:27017")
	t.Setenv("MONGODB_DATABASE", "envdb")
	t.Setenv("SMARTQUERY_LLM_MODEL", "env-model")
	t.Setenv("SMARTQUERY_LOG_LEVEL", "warn")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "mongodb://envhost:27017", cfg.Storage.URI)
	assert.Equal(t, "envdb", cfg.Storage.Database)
	assert.Equal(t, "env-model", cfg.LLM.Model)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_ProviderKeyPrecedence(t *testing.T) {
	t.Run("gemini wins over anthropic and openai", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("OPENAI_API_KEY", "key-openai")
		t.Setenv("ANTHROPIC_API_KEY", "key-anthropic")
		t.Setenv("GEMINI_API_KEY", "key-gemini")

		cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "gemini", cfg.Provider())
		assert.Equal(t, "key-gemini", cfg.LLM.APIKey)
	})

	t.Run("anthropic wins over openai", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("OPENAI_API_KEY", "key-openai")
		t.Setenv("ANTHROPIC_API_KEY", "key-anthropic")

		cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "anthropic", cfg.Provider())
		assert.Equal(t, "key-anthropic", cfg.LLM.APIKey)
	})

	t.Run("openai alone", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("OPENAI_API_KEY", "key-openai")

		cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "openai", cfg.Provider())
		assert.Equal(t, "key-openai", cfg.LLM.APIKey)
	})

	t.Run("openai key does not flip a configured provider", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("OPENAI_API_KEY", "key-openai")

		path := filepath.Join(t.TempDir(), "smartquery.yaml")
		require.NoError(t, os.WriteFile(path, []byte("llm:\n  provider: gemini\n"), 0o644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "gemini", cfg.Provider())
		assert.Equal(t, "key-openai", cfg.LLM.APIKey)
	})
}

func TestParseDuration_Fallbacks(t *testing.T) {
	cfg := Default()
	cfg.LLM.Timeout = "not-a-duration"
	assert.Equal(t, 60*time.Second, cfg.LLMTimeout())

	cfg.LLM.Timeout = "-5s"
	assert.Equal(t, 60*time.Second, cfg.LLMTimeout())
}
