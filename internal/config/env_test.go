package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnvVars(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "", cfg.DataDir)
	assert.Equal(t, "", cfg.DBURL)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "pretty", cfg.LogFormat)
	assert.Equal(t, "", cfg.FunctionsFile)
	assert.False(t, cfg.RegistryAllowOverwrite)
	assert.Equal(t, 10, cfg.SearchLimit)
	assert.Equal(t, 4, cfg.Parallelism)
	assert.Empty(t, cfg.CORSOrigins)
	assert.False(t, cfg.EmbeddingEndpoint.IsConfigured())
}

func TestEnvDefaults_MatchConfigDefaults(t *testing.T) {
	// Struct tag defaults must be literals; keep them in sync with config.go.
	clearEnvVars(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, DefaultHost, cfg.Host)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, DefaultSearchLimit, cfg.SearchLimit)
	assert.Equal(t, DefaultParallelism, cfg.Parallelism)

	e := cfg.EmbeddingEndpoint.ToEndpoint()
	assert.Equal(t, DefaultEndpointTimeout, e.Timeout())
	assert.Equal(t, DefaultEndpointMaxRetries, e.MaxRetries())
	assert.Equal(t, DefaultEndpointInitialDelay, e.InitialDelay())
	assert.Equal(t, DefaultEndpointBackoffFactor, e.BackoffFactor())
}

func TestLoadFromEnv_OverrideValues(t *testing.T) {
	clearEnvVars(t)
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("PORT", "9090")
	t.Setenv("DATA_DIR", "/srv/vectable")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("FUNCTIONS_FILE", "/etc/vectable/functions.yaml")
	t.Setenv("REGISTRY_ALLOW_OVERWRITE", "true")
	t.Setenv("MODEL_DIR", "/models")
	t.Setenv("SEARCH_LIMIT", "25")
	t.Setenv("MATERIALIZE_PARALLELISM", "8")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	env, err := LoadFromEnv()
	require.NoError(t, err)
	cfg := env.ToAppConfig()

	assert.Equal(t, "127.0.0.1:9090", cfg.Addr())
	assert.Equal(t, "/srv/vectable", cfg.DataDir())
	assert.Equal(t, "sqlite:////srv/vectable/vectable.db", cfg.DBURL())
	assert.Equal(t, LogFormatJSON, cfg.LogFormat())
	assert.Equal(t, "/etc/vectable/functions.yaml", cfg.FunctionsFile())
	assert.True(t, cfg.AllowOverwrite())
	assert.Equal(t, "/models", cfg.ModelDir())
	assert.Equal(t, 25, cfg.SearchLimit())
	assert.Equal(t, 8, cfg.Parallelism())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins())
}

func TestLoadFromEnv_EmbeddingEndpoint(t *testing.T) {
	clearEnvVars(t)
	t.Setenv("EMBEDDING_ENDPOINT_BASE_URL", "http://localhost:11434/v1")
	t.Setenv("EMBEDDING_ENDPOINT_MODEL", "nomic-embed-text")
	t.Setenv("EMBEDDING_ENDPOINT_API_KEY", "secret")
	t.Setenv("EMBEDDING_ENDPOINT_DIMENSIONS", "256")
	t.Setenv("EMBEDDING_ENDPOINT_TIMEOUT", "1.5")
	t.Setenv("EMBEDDING_ENDPOINT_MAX_RETRIES", "2")
	t.Setenv("EMBEDDING_ENDPOINT_INITIAL_DELAY", "0.25")

	env, err := LoadFromEnv()
	require.NoError(t, err)

	e := env.ToAppConfig().EmbeddingEndpoint()
	require.NotNil(t, e)
	assert.Equal(t, "http://localhost:11434/v1", e.BaseURL())
	assert.Equal(t, "nomic-embed-text", e.Model())
	assert.Equal(t, "secret", e.APIKey())
	assert.Equal(t, 256, e.Dimensions())
	assert.Equal(t, 1500*time.Millisecond, e.Timeout())
	assert.Equal(t, 2, e.MaxRetries())
	assert.Equal(t, 250*time.Millisecond, e.InitialDelay())
}

func TestLoadFromEnvWithPrefix(t *testing.T) {
	clearEnvVars(t)
	t.Setenv("VECTABLE_PORT", "7070")

	env, err := LoadFromEnvWithPrefix("VECTABLE")
	require.NoError(t, err)
	assert.Equal(t, 7070, env.Port)
}

func TestLoadFromEnv_InvalidValue(t *testing.T) {
	clearEnvVars(t)
	t.Setenv("PORT", "not-a-port")

	_, err := LoadFromEnv()
	assert.Error(t, err)
}

func TestParseLogFormat(t *testing.T) {
	assert.Equal(t, LogFormatJSON, parseLogFormat("json"))
	assert.Equal(t, LogFormatJSON, parseLogFormat("JSON"))
	assert.Equal(t, LogFormatPretty, parseLogFormat("pretty"))
	assert.Equal(t, LogFormatPretty, parseLogFormat("anything"))
}

func TestLoadDotEnv(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("DATA_DIR=/from/dotenv\nLOG_LEVEL=DEBUG\n"), 0o644))

	clearEnvVars(t)
	require.NoError(t, LoadDotEnv(envFile))

	assert.Equal(t, "/from/dotenv", os.Getenv("DATA_DIR"))
	assert.Equal(t, "DEBUG", os.Getenv("LOG_LEVEL"))
}

func TestLoadDotEnv_NonExistent(t *testing.T) {
	clearEnvVars(t)
	assert.NoError(t, LoadDotEnv("/nonexistent/.env"))
}

func TestLoadConfig(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	content := "DATA_DIR=/config/data\nLOG_LEVEL=WARN\nEMBEDDING_ENDPOINT_MODEL=text-embedding-3-small\n"
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o644))

	clearEnvVars(t)
	t.Setenv("LOG_LEVEL", "ERROR")

	cfg, err := LoadConfig(envFile)
	require.NoError(t, err)

	assert.Equal(t, "/config/data", cfg.DataDir())
	assert.Equal(t, "ERROR", cfg.LogLevel(), "environment wins over .env")
	require.NotNil(t, cfg.EmbeddingEndpoint())
	assert.Equal(t, "text-embedding-3-small", cfg.EmbeddingEndpoint().Model())
}

func TestLoadDotEnvFromFiles(t *testing.T) {
	dir := t.TempDir()
	env1 := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(env1, []byte("KEY1=value1\nKEY2=value2\n"), 0o644))
	env2 := filepath.Join(dir, ".env.local")
	require.NoError(t, os.WriteFile(env2, []byte("KEY2=override\nKEY3=value3\n"), 0o644))

	clearEnvVars(t)
	require.NoError(t, LoadDotEnvFromFiles(env1, filepath.Join(dir, "missing"), env2))

	assert.Equal(t, "value1", os.Getenv("KEY1"))
	assert.Equal(t, "value2", os.Getenv("KEY2"))
	assert.Equal(t, "value3", os.Getenv("KEY3"))
}

// clearEnvVars unsets config variables for the duration of the test.
func clearEnvVars(t *testing.T) {
	t.Helper()

	vars := []string{
		"HOST",
		"PORT",
		"DATA_DIR",
		"DB_URL",
		"LOG_LEVEL",
		"LOG_FORMAT",
		"FUNCTIONS_FILE",
		"REGISTRY_ALLOW_OVERWRITE",
		"MODEL_DIR",
		"SEARCH_LIMIT",
		"MATERIALIZE_PARALLELISM",
		"CORS_ALLOWED_ORIGINS",
		"EMBEDDING_ENDPOINT_BASE_URL",
		"EMBEDDING_ENDPOINT_MODEL",
		"EMBEDDING_ENDPOINT_API_KEY",
		"EMBEDDING_ENDPOINT_DIMENSIONS",
		"EMBEDDING_ENDPOINT_TIMEOUT",
		"EMBEDDING_ENDPOINT_MAX_RETRIES",
		"EMBEDDING_ENDPOINT_INITIAL_DELAY",
		"EMBEDDING_ENDPOINT_BACKOFF_FACTOR",
		"VECTABLE_PORT",
		"KEY1",
		"KEY2",
		"KEY3",
	}

	for _, v := range vars {
		t.Setenv(v, "")
		_ = os.Unsetenv(v)
	}
}
