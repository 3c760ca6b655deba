package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalConfig = `{
	"github": {"owner": "ReignOfTea", "repo": "protests-data", "token_file": "/run/secrets/github-token"},
	"users": {"file": "users.yaml"}
}`

func TestLoad_AppliesDefaults(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")

	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://api.github.com", cfg.GitHub.APIBase)
	assert.Equal(t, "main", cfg.GitHub.Branch)
	assert.Equal(t, 12*time.Hour, cfg.SessionTTL())
	assert.Equal(t, "./data/badger", cfg.Database.Path)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_KeepsExplicitValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{
		"server": {"host": "0.0.0.0", "port": 9000},
		"github": {"owner": "ReignOfTea", "repo": "protests-data", "branch": "data", "token_file": "token.txt"},
		"auth": {"session_ttl_minutes": 60},
		"users": {"file": "users.yaml"},
		"environment": "production",
		"log_level": "warn"
	}`))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "data", cfg.GitHub.Branch)
	assert.Equal(t, time.Hour, cfg.SessionTTL())
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoad_ValidationFailures(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing owner",
			content: `{"github": {"repo": "protests-data", "token_file": "t"}, "users": {"file": "u"}}`,
			wantErr: "github.owner is required",
		},
		{
			name:    "missing repo",
			content: `{"github": {"owner": "ReignOfTea", "token_file": "t"}, "users": {"file": "u"}}`,
			wantErr: "github.repo is required",
		},
		{
			name:    "missing token source",
			content: `{"github": {"owner": "ReignOfTea", "repo": "protests-data"}, "users": {"file": "u"}}`,
			wantErr: "github.token_file is required",
		},
		{
			name:    "missing users file",
			content: `{"github": {"owner": "ReignOfTea", "repo": "protests-data", "token_file": "t"}}`,
			wantErr: "users.file is required",
		},
		{
			name:    "admin token without admin user",
			content: `{"github": {"owner": "o", "repo": "r", "token_file": "t"}, "users": {"file": "u"}, "auth": {"admin_token": "secret"}}`,
			wantErr: "auth.admin_user is required",
		},
		{
			name:    "bad environment",
			content: `{"github": {"owner": "o", "repo": "r", "token_file": "t"}, "users": {"file": "u"}, "environment": "staging"}`,
			wantErr: "invalid environment",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_ExpandsEnvironment(t *testing.T) {
	t.Setenv("DASH_STATE", "/var/lib/protest-dash")

	cfg, err := Load(writeConfig(t, `{
		"github": {"owner": "ReignOfTea", "repo": "protests-data", "token_file": "t"},
		"users": {"file": "u"},
		"database": {"path": "${DASH_STATE}/badger"}
	}`))
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/protest-dash/badger", cfg.Database.Path)
}

func TestGitHubToken(t *testing.T) {
	t.Run("reads and trims the token file", func(t *testing.T) {
		t.Setenv("GITHUB_TOKEN", "")

		path := filepath.Join(t.TempDir(), "token")
		require.NoError(t, os.WriteFile(path, []byte("  ghp_secret\n"), 0o600))

		var cfg Config
		cfg.GitHub.TokenFile = path

		token, err := cfg.GitHubToken()
		require.NoError(t, err)
		assert.Equal(t, "ghp_secret", token)
	})

	t.Run("environment wins over the file", func(t *testing.T) {
		t.Setenv("GITHUB_TOKEN", "env-token")

		var cfg Config
		cfg.GitHub.TokenFile = "/does/not/exist"

		token, err := cfg.GitHubToken()
		require.NoError(t, err)
		assert.Equal(t, "env-token", token)
	})

	t.Run("empty file is an error", func(t *testing.T) {
		t.Setenv("GITHUB_TOKEN", "")

		path := filepath.Join(t.TempDir(), "token")
		require.NoError(t, os.WriteFile(path, []byte("\n"), 0o600))

		var cfg Config
		cfg.GitHub.TokenFile = path

		_, err := cfg.GitHubToken()
		assert.Error(t, err)
	})
}

func TestActorSalt(t *testing.T) {
	t.Run("development falls back without a file", func(t *testing.T) {
		cfg := Config{Environment: "development"}
		salt, err := cfg.ActorSalt()
		require.NoError(t, err)
		assert.NotEmpty(t, salt)
	})

	t.Run("production requires a file", func(t *testing.T) {
		cfg := Config{Environment: "production"}
		_, err := cfg.ActorSalt()
		assert.Error(t, err)
	})

	t.Run("reads and trims the salt file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "salt")
		require.NoError(t, os.WriteFile(path, []byte("s3cr3t-salt\n"), 0o600))

		var cfg Config
		cfg.Auth.ActorSaltFile = path

		salt, err := cfg.ActorSalt()
		require.NoError(t, err)
		assert.Equal(t, []byte("s3cr3t-salt"), salt)
	})
}

func TestPath(t *testing.T) {
	t.Setenv("PROTEST_DASH_CONFIG", "")
	assert.Equal(t, "config.json", Path())

	t.Setenv("PROTEST_DASH_CONFIG", "/etc/protest-dash/config.json")
	assert.Equal(t, "/etc/protest-dash/config.json", Path())
}
