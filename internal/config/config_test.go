package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(EnvAPIURL, "")
	t.Setenv(EnvChatAPIURL, "")
	t.Setenv(EnvAuthURL, "")
	t.Setenv(EnvSessionFile, "")
	t.Setenv(EnvLanguage, "")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.APIURL != DefaultAPIURL || cfg.ChatAPIURL != DefaultAPIURL || cfg.AuthURL != DefaultAPIURL {
		t.Errorf("urls = %s %s %s", cfg.APIURL, cfg.ChatAPIURL, cfg.AuthURL)
	}
	if !strings.HasSuffix(cfg.SessionFile, "session.yaml") {
		t.Errorf("session file = %q", cfg.SessionFile)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	env := "MEDASSIST_API_URL=http://from-dotenv:9000\nMEDASSIST_AUTH_URL=http://auth.local\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvAPIURL, "http://from-env:8000")
	t.Setenv(EnvAuthURL, "")
	os.Unsetenv(EnvAuthURL)
	t.Setenv(EnvChatAPIURL, "")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.APIURL != "http://from-env:8000" {
		t.Errorf("api url = %q, environment should win", cfg.APIURL)
	}
	if cfg.AuthURL != "http://auth.local" {
		t.Errorf("auth url = %q, want value from .env", cfg.AuthURL)
	}
	if cfg.ChatAPIURL != cfg.APIURL {
		t.Errorf("chat url = %q, want fallback to api url", cfg.ChatAPIURL)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := &Config{APIURL: "not a url", ChatAPIURL: "http://x", AuthURL: "http://x", SessionFile: "s"}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "APIURL") {
		t.Errorf("err = %v", err)
	}
	cfg = &Config{APIURL: "http://x", ChatAPIURL: "http://x", AuthURL: "http://x", SessionFile: "s", Language: "de"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected unsupported language to fail")
	}
}
