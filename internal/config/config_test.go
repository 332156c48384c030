package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 60*time.Second, cfg.RequestTimeout())
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "openai", cfg.AI.Provider)
	assert.Equal(t, 4000, cfg.AI.MaxTokens)
	assert.Equal(t, 60*time.Second, cfg.AITimeout())
	assert.Equal(t, 3, cfg.AI.MaxAttempts)
	assert.Equal(t, int64(5<<20), cfg.Ingest.MaxBytes)
	assert.Equal(t, 3, cfg.Ingest.FetchAttempts)
	assert.Equal(t, time.Second, cfg.FetchBackoff())
	assert.Equal(t, "screenshots", cfg.Minio.BucketName)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	doc := `
store:
  driver: mysql
log:
  level: debug
  format: console
server:
  port: 9090
auth:
  tokens:
    - token: AbCdEf
      userId: user-1
ai:
  provider: anthropic
  model: claude-sonnet-4-5
  maxTokens: 2000
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(doc), 0644))

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "anthropic", cfg.AI.Provider)
	assert.Equal(t, 2000, cfg.AI.MaxTokens)
	assert.Equal(t, map[string]string{"AbCdEf": "user-1"}, cfg.Auth.TokenMap())
	// Defaults still apply for unset values
	assert.Equal(t, 4, cfg.Ingest.Concurrency)
}

func TestLoadExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 7070\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store:\n  driver: mysql\n"), 0644))

	t.Setenv("UXNAREAL_STORE_DRIVER", "postgres")
	t.Setenv("UXNAREAL_AI_APIKEY", "sk-test")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "sk-test", cfg.AI.APIKey)
}

func TestLoadRejectsInvalid(t *testing.T) {
	chdirTemp(t)

	t.Setenv("UXNAREAL_STORE_DRIVER", "oracle")
	_, err := Load("")
	assert.ErrorContains(t, err, "store driver")
}

func TestValidate_MaxTokensRange(t *testing.T) {
	chdirTemp(t)
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.AI.MaxTokens = 500
	assert.Error(t, cfg.Validate())
	cfg.AI.MaxTokens = 1000
	assert.NoError(t, cfg.Validate())
}

func TestDSN(t *testing.T) {
	cfg := &Config{}
	cfg.Database = DatabaseConfig{Host: "db", Port: 5432, User: "app", Password: "p@ss", Name: "audits", SSLMode: "disable"}

	cfg.Store.Driver = "postgres"
	assert.Equal(t, "postgres://app:p%40ss@db:5432/audits?sslmode=disable", cfg.DSN())

	cfg.Store.Driver = "mysql"
	cfg.Database.Port = 3306
	assert.Equal(t, "app:p@ss@tcp(db:3306)/audits?parseTime=true&charset=utf8mb4&loc=UTC", cfg.DSN())

	cfg.Store.DSN = "file::memory:"
	assert.Equal(t, "file::memory:", cfg.DSN())
}

func TestYAMLRedactsSecrets(t *testing.T) {
	cfg := &Config{}
	cfg.AI.APIKey = "sk-secret"
	cfg.Minio.SecretKey = "minio-secret"
	cfg.Auth.Tokens = []StaticToken{{Token: "tok-secret", UserID: "user-1"}}

	out, err := cfg.YAML()
	require.NoError(t, err)
	for _, secret := range []string{"sk-secret", "minio-secret", "tok-secret"} {
		assert.NotContains(t, string(out), secret)
	}
	assert.Contains(t, string(out), "user-1")

	var back Config
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, redacted, back.AI.APIKey)
	assert.Equal(t, "sk-secret", cfg.AI.APIKey, "original must be untouched")
}

func TestInitLoggerConsole(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	assert.Error(t, InitLogger(LogConfig{Level: "invalid", Format: "json"}))
}
