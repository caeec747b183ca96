package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/VForWaTer/metacatalog-api/internal/orm/query"
	"github.com/VForWaTer/metacatalog-api/internal/web/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inTempDir runs the test from an empty working directory
func inTempDir(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	oldWd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tmpDir))
	t.Cleanup(func() { os.Chdir(oldWd) })
	return tmpDir
}

func TestLoad_Defaults(t *testing.T) {
	inTempDir(t)
	t.Setenv(URIEnv, "")
	os.Unsetenv(URIEnv)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultURI, cfg.Database.URL)
	assert.Equal(t, "public", cfg.Database.Schema)
	assert.Equal(t, 30*time.Second, cfg.Database.StatementTimeout)
	assert.Equal(t, cache.BackendMemory, cfg.Search.Cache)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:8000", cfg.Addr())
	assert.True(t, cfg.Catalog.ReplaceDatasource)
	assert.False(t, cfg.Catalog.AllowAuthorDuplicates)
	assert.Zero(t, cfg.Server.WriteLimit)

	rl, useRedis := cfg.RateLimitConfig()
	assert.Equal(t, time.Minute, rl.Window)
	assert.Equal(t, "metacatalog:public:writes:", rl.Prefix)
	assert.False(t, useRedis)
}

func TestLoad_ConfigFile(t *testing.T) {
	inTempDir(t)

	content := `
database:
  url: postgresql://localhost/catalog
  schema: metacatalog
  statement_timeout: 5s
search:
  cache: redis
  cache_ttl: 1m
redis:
  addr: redis:6379
  db: 2
server:
  port: 9000
  root_path: /api
log:
  level: debug
  format: console
catalog:
  allow_author_duplicates: true
`
	require.NoError(t, os.WriteFile("metacatalog.yaml", []byte(content), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgresql://localhost/catalog", cfg.Database.URL)
	assert.Equal(t, query.Schema("metacatalog"), cfg.Schema())
	assert.Equal(t, 5*time.Second, cfg.Database.StatementTimeout)
	assert.Equal(t, "/api", cfg.Server.RootPath)
	assert.True(t, cfg.Catalog.AllowAuthorDuplicates)

	cc := cfg.CacheConfig()
	assert.Equal(t, cache.BackendRedis, cc.Backend)
	assert.Equal(t, time.Minute, cc.DefaultTTL)
	assert.Equal(t, "metacatalog:metacatalog:", cc.Prefix)
	assert.Equal(t, "redis:6379", cc.Redis.Addr)
	assert.Equal(t, 2, cc.Redis.DB)

	tc := cfg.TransactionConfig()
	assert.Equal(t, "postgresql://localhost/catalog", tc.DSN)
	assert.Equal(t, 5*time.Second, tc.StatementTimeout)

	lc := cfg.LoggingConfig()
	assert.Equal(t, "debug", lc.Level)
	assert.Equal(t, "console", lc.Format)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	inTempDir(t)
	t.Setenv(URIEnv, "postgresql://env/catalog")
	t.Setenv("METACATALOG_SERVER_PORT", "8080")
	t.Setenv("METACATALOG_SEARCH_CACHE", "none")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgresql://env/catalog", cfg.Database.URL)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, cache.BackendNone, cfg.Search.Cache)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := inTempDir(t)
	t.Setenv(URIEnv, "")
	os.Unsetenv(URIEnv)
	t.Cleanup(func() { os.Unsetenv(URIEnv) })

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("METACATALOG_URI=postgresql://dotenv/catalog\n"), 0644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgresql://dotenv/catalog", cfg.Database.URL)
}

func TestLoadFile_Explicit(t *testing.T) {
	dir := inTempDir(t)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 7000\n"), 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database: DatabaseConfig{URL: DefaultURI, Schema: "public"},
			Search:   SearchConfig{Cache: cache.BackendMemory},
			Server:   ServerConfig{Port: 8000},
			Log:      LogConfig{Format: "json"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "bad schema", mutate: func(c *Config) { c.Database.Schema = "public; DROP" }, wantErr: "database.schema"},
		{name: "empty url", mutate: func(c *Config) { c.Database.URL = " " }, wantErr: "database.url"},
		{name: "unknown cache", mutate: func(c *Config) { c.Search.Cache = "memcached" }, wantErr: "search.cache"},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: "server.port"},
		{name: "root path without slash", mutate: func(c *Config) { c.Server.RootPath = "api" }, wantErr: "must start with"},
		{name: "root path trailing slash", mutate: func(c *Config) { c.Server.RootPath = "/api/" }, wantErr: "must not end with"},
		{name: "negative write limit", mutate: func(c *Config) { c.Server.WriteLimit = -1 }, wantErr: "server.write_limit"},
		{name: "write limit without window", mutate: func(c *Config) { c.Server.WriteLimit = 10 }, wantErr: "server.write_window"},
		{name: "bad log format", mutate: func(c *Config) { c.Log.Format = "xml" }, wantErr: "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := validateConfig(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
