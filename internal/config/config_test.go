package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serverless-kit/internal/config"
)

func writeFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// TestLoadDefaults tests loading with nothing but defaults.
func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("ENVIRONMENT", "")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 100, cfg.RateLimit.Max)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, config.RateLimitMemory, cfg.RateLimit.Backend)
	assert.Equal(t, 86400, cfg.CORSMaxAge)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.Auth.Enabled())
}

// TestLoadPrecedence tests that environment variables override the YAML file.
func TestLoadPrecedence(t *testing.T) {
	path := writeFile(t, t.TempDir(), `
logLevel: debug
aws:
  tableName: from-file
  topicArn: arn:aws:sns:us-east-1:123456789012:signups
rateLimit:
  max: 5
  window: 30s
`)
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("TABLE_NAME", "from-env")
	t.Setenv("RATE_LIMIT_WINDOW", "90")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, path, cfg.ConfigFile)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "from-env", cfg.AWS.TableName)
	assert.Equal(t, "arn:aws:sns:us-east-1:123456789012:signups", cfg.AWS.TopicARN)
	assert.Equal(t, 5, cfg.RateLimit.Max)
	assert.Equal(t, 90*time.Second, cfg.RateLimit.Window)
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := config.Load()
	assert.Error(t, err)
}

// TestConfigValidation tests configuration validation.
func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*config.Config) {},
		},
		{
			name:    "production without a signing secret",
			mutate:  func(c *config.Config) { c.Environment = "production" },
			wantErr: "JWT_SECRET or JWT_SECRET_NAME is required in production",
		},
		{
			name: "production with a secret name",
			mutate: func(c *config.Config) {
				c.Environment = "production"
				c.Auth.JWTSecretName = "prod/jwt"
			},
		},
		{
			name:    "redis backend without an address",
			mutate:  func(c *config.Config) { c.RateLimit.Backend = config.RateLimitRedis },
			wantErr: "REDIS_ADDR is required",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *config.Config) { c.RateLimit.Backend = "memcached" },
			wantErr: `unknown RATE_LIMIT_BACKEND "memcached"`,
		},
		{
			name:    "non-positive limit",
			mutate:  func(c *config.Config) { c.RateLimit.Max = 0 },
			wantErr: "RATE_LIMIT_MAX must be positive",
		},
		{
			name:    "missing table",
			mutate:  func(c *config.Config) { c.AWS.TableName = "" },
			wantErr: "TABLE_NAME is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestWatcher(t *testing.T) {
	t.Setenv("TABLE_NAME", "")
	t.Setenv("RATE_LIMIT_MAX", "")
	dir := t.TempDir()
	path := writeFile(t, dir, "rateLimit:\n  max: 10\n")

	w, err := config.NewWatcher(path, nil)
	require.NoError(t, err)
	defer w.Close()

	assert.Equal(t, 10, w.Current().RateLimit.Max)

	reloaded := make(chan *config.Config, 4)
	w.Subscribe(func(c *config.Config) { reloaded <- c })

	t.Run("Should publish a valid change", func(t *testing.T) {
		writeFile(t, dir, "rateLimit:\n  max: 25\n")

		select {
		case c := <-reloaded:
			assert.Equal(t, 25, c.RateLimit.Max)
		case <-time.After(5 * time.Second):
			t.Fatal("no reload observed")
		}
		assert.Equal(t, 25, w.Current().RateLimit.Max)
	})

	t.Run("Should keep the current config when the file is invalid", func(t *testing.T) {
		writeFile(t, dir, "rateLimit:\n  max: -1\n")

		time.Sleep(500 * time.Millisecond)
		assert.Equal(t, 25, w.Current().RateLimit.Max)
	})

	assert.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}
