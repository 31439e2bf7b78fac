package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func clearWhoopEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"WHOOP_ACCESS_TOKEN", "WHOOP_API_KEY", "WHOOP_REFRESH_TOKEN",
		"WHOOP_CLIENT_ID", "WHOOP_CLIENT_SECRET", "WHOOP_API_BASE_URL",
		"WHOOP_TOKEN_URL", "WHOOP_AUTH_URL", "WHOOP_LOG_LEVEL",
		"WHOOP_LISTEN", "WHOOP_WS_RATE", "WHOOP_WS_BURST",
	} {
		t.Setenv(key, "")
	}
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearWhoopEnv(t)
	path := filepath.Join(t.TempDir(), "missing.toml")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.APIBaseURL != WhoopAPIBaseURL || cfg.TokenURL != WhoopTokenURL || cfg.AuthURL != WhoopAuthURL {
		t.Errorf("endpoints = %q, %q, %q", cfg.APIBaseURL, cfg.TokenURL, cfg.AuthURL)
	}
	if cfg.LogLevel != "info" || cfg.WSRate != 10 || cfg.WSBurst != 20 {
		t.Errorf("log_level = %q, ws_rate = %v, ws_burst = %d", cfg.LogLevel, cfg.WSRate, cfg.WSBurst)
	}
	if cfg.Path != path {
		t.Errorf("Path = %q, want %q", cfg.Path, path)
	}

	err = cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "WHOOP_ACCESS_TOKEN") {
		t.Errorf("Validate() error = %v, want missing access token", err)
	}
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	clearWhoopEnv(t)
	path := writeConfigFile(t, `
access_token = "  file-token  "
refresh_token = "file-refresh"
client_id = "file-client"
api_base_url = "http://localhost:9000/"
log_level = "debug"
ws_rate = 2.5
ws_burst = 5
`)
	t.Setenv("WHOOP_CLIENT_SECRET", "env-secret")
	t.Setenv("WHOOP_REFRESH_TOKEN", "env-refresh")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.AccessToken != "file-token" {
		t.Errorf("AccessToken = %q, want trimmed file value", cfg.AccessToken)
	}
	if cfg.RefreshToken != "env-refresh" {
		t.Errorf("RefreshToken = %q, want env override", cfg.RefreshToken)
	}
	if cfg.ClientID != "file-client" || cfg.ClientSecret != "env-secret" {
		t.Errorf("client = %q, %q", cfg.ClientID, cfg.ClientSecret)
	}
	if cfg.APIBaseURL != "http://localhost:9000" {
		t.Errorf("APIBaseURL = %q, want trailing slash trimmed", cfg.APIBaseURL)
	}
	if cfg.LogLevel != "debug" || cfg.WSRate != 2.5 || cfg.WSBurst != 5 {
		t.Errorf("log_level = %q, ws_rate = %v, ws_burst = %d", cfg.LogLevel, cfg.WSRate, cfg.WSBurst)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}

	client := cfg.ClientConfig()
	if client.BaseURL != cfg.APIBaseURL || client.ClientSecret != "env-secret" {
		t.Errorf("ClientConfig() = %+v", client)
	}
}

func TestLoadConfig_AccessTokenEnv(t *testing.T) {
	path := writeConfigFile(t, `access_token = "file-token"`)

	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "file only", env: map[string]string{}, want: "file-token"},
		{name: "access token env", env: map[string]string{"WHOOP_ACCESS_TOKEN": "env-token"}, want: "env-token"},
		{name: "legacy api key", env: map[string]string{"WHOOP_API_KEY": "legacy-token"}, want: "legacy-token"},
		{
			name: "access token wins over api key",
			env:  map[string]string{"WHOOP_ACCESS_TOKEN": "env-token", "WHOOP_API_KEY": "legacy-token"},
			want: "env-token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearWhoopEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := LoadConfig(path)
			if err != nil {
				t.Fatalf("LoadConfig() error = %v", err)
			}
			if cfg.AccessToken != tt.want {
				t.Errorf("AccessToken = %q, want %q", cfg.AccessToken, tt.want)
			}
		})
	}
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	clearWhoopEnv(t)
	path := writeConfigFile(t, "access_token = \n[[[")

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("LoadConfig() error = nil, want parse error")
	}
}

func TestConfigValidate_Throttle(t *testing.T) {
	for _, cfg := range []Config{
		{AccessToken: "t", WSRate: 0, WSBurst: 1},
		{AccessToken: "t", WSRate: 1, WSBurst: 0},
		{AccessToken: "t", WSRate: -1, WSBurst: 1},
	} {
		if err := cfg.Validate(); err == nil {
			t.Errorf("Validate(%+v) error = nil, want error", cfg)
		}
	}
}

func TestSaveCredentials_MergesIntoExistingFile(t *testing.T) {
	clearWhoopEnv(t)
	path := writeConfigFile(t, `
access_token = "old-token"
client_id = "kept-client"
log_level = "warn"
`)

	err := SaveCredentials(path, Credentials{AccessToken: "new-token", RefreshToken: "new-refresh"})
	if err != nil {
		t.Fatalf("SaveCredentials() error = %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.AccessToken != "new-token" || cfg.RefreshToken != "new-refresh" {
		t.Errorf("tokens = %q, %q", cfg.AccessToken, cfg.RefreshToken)
	}
	if cfg.ClientID != "kept-client" || cfg.LogLevel != "warn" {
		t.Errorf("client_id = %q, log_level = %q; want existing values kept", cfg.ClientID, cfg.LogLevel)
	}
}

func TestSaveCredentials_CreatesPrivateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "whoop", "config.toml")

	creds := Credentials{AccessToken: "a", RefreshToken: "r", ClientID: "id", ClientSecret: "secret"}
	if err := SaveCredentials(path, creds); err != nil {
		t.Fatalf("SaveCredentials() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("file mode = %o, want 600", perm)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	for _, want := range []string{"access_token", "refresh_token", "client_id", "client_secret"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("saved file missing %s:\n%s", want, data)
		}
	}
}

func TestSaveCredentials_RejectsMalformedExisting(t *testing.T) {
	path := writeConfigFile(t, "not = [valid")

	if err := SaveCredentials(path, Credentials{AccessToken: "a"}); err == nil {
		t.Fatal("SaveCredentials() error = nil, want parse error")
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir: %v", err)
	}

	got, err := expandPath("~/.config/whoop-mcp/config.toml")
	if err != nil {
		t.Fatalf("expandPath() error = %v", err)
	}
	if want := filepath.Join(home, ".config", "whoop-mcp", "config.toml"); got != want {
		t.Errorf("expandPath() = %q, want %q", got, want)
	}

	if _, err := expandPath("   "); err == nil {
		t.Error("expandPath(blank) error = nil, want error")
	}
}
