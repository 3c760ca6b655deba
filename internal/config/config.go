// internal/config/config.go
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	Server struct {
		Host string `json:"host"`
		Port int    `json:"port"`
	} `json:"server"`

	GitHub struct {
		APIBase   string `json:"api_base"`
		Owner     string `json:"owner"`
		Repo      string `json:"repo"`
		Branch    string `json:"branch"`
		TokenFile string `json:"token_file"`
	} `json:"github"`

	Auth struct {
		SessionTTLMinutes int    `json:"session_ttl_minutes"`
		ActorSaltFile     string `json:"actor_salt_file"`
		AdminToken        string `json:"admin_token"`
		AdminUser         string `json:"admin_user"`
	} `json:"auth"`

	Users struct {
		File string `json:"file"`
	} `json:"users"`

	Database struct {
		Path string `json:"path"`
	} `json:"database"`

	Environment string `json:"environment"` // development, production
	LogLevel    string `json:"log_level"`   // debug, info, warn, error
}

// Path returns the config file location. PROTEST_DASH_CONFIG overrides
// the default for deployments keeping config outside the working dir.
func Path() string {
	if p := os.Getenv("PROTEST_DASH_CONFIG"); p != "" {
		return p
	}
	return "config.json"
}

func Load(path string) (*Config, error) {
	file, err := os.Open(os.ExpandEnv(path))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var config Config
	if err := json.NewDecoder(file).Decode(&config); err != nil {
		return nil, err
	}

	config.expandEnv()
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// expandEnv expands environment variables in string fields
func (c *Config) expandEnv() {
	c.GitHub.APIBase = os.ExpandEnv(c.GitHub.APIBase)
	c.GitHub.Owner = os.ExpandEnv(c.GitHub.Owner)
	c.GitHub.Repo = os.ExpandEnv(c.GitHub.Repo)
	c.GitHub.Branch = os.ExpandEnv(c.GitHub.Branch)
	c.GitHub.TokenFile = os.ExpandEnv(c.GitHub.TokenFile)
	c.Auth.ActorSaltFile = os.ExpandEnv(c.Auth.ActorSaltFile)
	c.Auth.AdminToken = os.ExpandEnv(c.Auth.AdminToken)
	c.Users.File = os.ExpandEnv(c.Users.File)
	c.Database.Path = os.ExpandEnv(c.Database.Path)
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.GitHub.APIBase == "" {
		c.GitHub.APIBase = "https://api.github.com"
	}
	if c.GitHub.Branch == "" {
		c.GitHub.Branch = "main"
	}
	if c.Auth.SessionTTLMinutes == 0 {
		c.Auth.SessionTTLMinutes = 720
	}
	if c.Database.Path == "" {
		c.Database.Path = "./data/badger"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.GitHub.Owner == "" {
		return fmt.Errorf("github.owner is required")
	}
	if c.GitHub.Repo == "" {
		return fmt.Errorf("github.repo is required")
	}
	if c.GitHub.TokenFile == "" && os.Getenv("GITHUB_TOKEN") == "" {
		return fmt.Errorf("github.token_file is required when GITHUB_TOKEN is not set")
	}
	if c.Users.File == "" {
		return fmt.Errorf("users.file is required")
	}
	if c.Auth.AdminToken != "" && c.Auth.AdminUser == "" {
		return fmt.Errorf("auth.admin_user is required when auth.admin_token is set")
	}

	switch c.Environment {
	case "development", "production":
	default:
		return fmt.Errorf("invalid environment: %s (must be development or production)", c.Environment)
	}

	return nil
}

// GitHubToken resolves the API token, preferring the environment over
// the token file.
func (c *Config) GitHubToken() (string, error) {
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		return token, nil
	}

	data, err := os.ReadFile(c.GitHub.TokenFile)
	if err != nil {
		return "", fmt.Errorf("reading github token: %w", err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("github token file %s is empty", c.GitHub.TokenFile)
	}
	return token, nil
}

// ActorSalt loads the HMAC salt used to anonymize commit authors.
// Development deployments may omit the file and get a fixed salt;
// production deployments must provide one.
func (c *Config) ActorSalt() ([]byte, error) {
	if c.Auth.ActorSaltFile == "" {
		if c.Environment == "production" {
			return nil, fmt.Errorf("auth.actor_salt_file is required in production")
		}
		return []byte("protest-dash-dev-salt"), nil
	}

	data, err := os.ReadFile(c.Auth.ActorSaltFile)
	if err != nil {
		return nil, fmt.Errorf("reading actor salt: %w", err)
	}

	salt := bytes.TrimSpace(data)
	if len(salt) == 0 {
		return nil, fmt.Errorf("actor salt file %s is empty", c.Auth.ActorSaltFile)
	}
	return salt, nil
}

// SessionTTL returns the configured session lifetime.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Auth.SessionTTLMinutes) * time.Minute
}
