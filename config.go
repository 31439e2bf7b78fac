package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const defaultConfigPath = "~/.config/whoop-mcp/config.toml"

// Config is the runtime configuration, read from an optional TOML file and
// overridden by WHOOP_* environment variables.
type Config struct {
	AccessToken  string  `mapstructure:"access_token"`
	RefreshToken string  `mapstructure:"refresh_token"`
	ClientID     string  `mapstructure:"client_id"`
	ClientSecret string  `mapstructure:"client_secret"`
	APIBaseURL   string  `mapstructure:"api_base_url"`
	TokenURL     string  `mapstructure:"token_url"`
	AuthURL      string  `mapstructure:"auth_url"`
	LogLevel     string  `mapstructure:"log_level"`
	Listen       string  `mapstructure:"listen"`
	WSRate       float64 `mapstructure:"ws_rate"`
	WSBurst      int     `mapstructure:"ws_burst"`

	// Path is the resolved config file location, used when saving credentials.
	Path string `mapstructure:"-"`
}

// Credentials are the token fields written back by the auth and refresh commands.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	ClientID     string
	ClientSecret string
}

// LoadConfig reads the config file at path (default ~/.config/whoop-mcp/config.toml).
// A missing file is not an error.
func LoadConfig(path string) (Config, error) {
	resolved, err := resolveConfigPath(path)
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(resolved)
	v.SetConfigType("toml")

	v.SetDefault("api_base_url", WhoopAPIBaseURL)
	v.SetDefault("token_url", WhoopTokenURL)
	v.SetDefault("auth_url", WhoopAuthURL)
	v.SetDefault("log_level", "info")
	v.SetDefault("ws_rate", 10.0)
	v.SetDefault("ws_burst", 20)

	v.SetEnvPrefix("WHOOP")
	v.AutomaticEnv()
	for _, key := range []string{"refresh_token", "client_id", "client_secret", "listen"} {
		v.SetDefault(key, "")
	}
	// WHOOP_API_KEY is the name older setups used for the access token.
	if err := v.BindEnv("access_token", "WHOOP_ACCESS_TOKEN", "WHOOP_API_KEY"); err != nil {
		return Config{}, fmt.Errorf("bind env: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg.AccessToken = strings.TrimSpace(cfg.AccessToken)
	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	cfg.Path = resolved

	return cfg, nil
}

// Validate checks the fields required to talk to the API.
func (c Config) Validate() error {
	if c.AccessToken == "" {
		return fmt.Errorf("WHOOP_ACCESS_TOKEN environment variable or access_token in %s is required", c.Path)
	}
	if c.WSRate <= 0 || c.WSBurst <= 0 {
		return fmt.Errorf("ws_rate and ws_burst must be positive")
	}
	return nil
}

// ClientConfig returns the endpoints and credentials for NewWhoopClient.
func (c Config) ClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:      c.APIBaseURL,
		TokenURL:     c.TokenURL,
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
	}
}

// SaveCredentials merges creds into the TOML file at path, keeping any other keys.
// Empty fields in creds leave the stored value alone.
func SaveCredentials(path string, creds Credentials) error {
	resolved, err := resolveConfigPath(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	doc := map[string]interface{}{}
	existing, err := os.ReadFile(resolved)
	switch {
	case err == nil:
		if err := toml.Unmarshal(existing, &doc); err != nil {
			return fmt.Errorf("parse existing config: %w", err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("read existing config: %w", err)
	}

	for key, value := range map[string]string{
		"access_token":  creds.AccessToken,
		"refresh_token": creds.RefreshToken,
		"client_id":     creds.ClientID,
		"client_secret": creds.ClientSecret,
	} {
		if value != "" {
			doc[key] = value
		}
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := toml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(resolved, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

func resolveConfigPath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		path = defaultConfigPath
	}
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
