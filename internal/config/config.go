// Package config resolves the CLI's settings from the environment, optionally
// seeded from a .env file in the working directory.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/fpang/medassist/internal/session"
)

// Environment variable names.
const (
	EnvAPIURL      = "MEDASSIST_API_URL"
	EnvChatAPIURL  = "MEDASSIST_CHAT_API_URL"
	EnvAuthURL     = "MEDASSIST_AUTH_URL"
	EnvSessionFile = "MEDASSIST_SESSION_FILE"
	EnvLanguage    = "MEDASSIST_LANGUAGE"
)

// DefaultAPIURL is the diagnosis backend started by medassist-server.
const DefaultAPIURL = "http://localhost:8000"

// Config holds the client settings.
type Config struct {
	// APIURL is the diagnosis backend (analyze, records, chat).
	APIURL string `validate:"required,url"`
	// ChatAPIURL is the consult backend (analyze_and_chat, chats).
	ChatAPIURL string `validate:"required,url"`
	// AuthURL is the security service (api/user/login, api/user/register).
	AuthURL     string `validate:"required,url"`
	SessionFile string `validate:"required"`
	Language    string `validate:"omitempty,oneof=en ar"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads .env (if present) and the environment. Variables already set in
// the environment take precedence over .env.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("Ignoring unreadable .env file")
	}

	cfg := &Config{
		APIURL:      envOr(EnvAPIURL, DefaultAPIURL),
		SessionFile: os.Getenv(EnvSessionFile),
		Language:    strings.ToLower(os.Getenv(EnvLanguage)),
	}
	cfg.ChatAPIURL = envOr(EnvChatAPIURL, cfg.APIURL)
	cfg.AuthURL = envOr(EnvAuthURL, cfg.APIURL)

	if cfg.SessionFile == "" {
		path, err := session.DefaultPath()
		if err != nil {
			// No config dir (e.g. HOME unset): fall back to the working directory.
			path = filepath.Join(".", "."+session.DefaultFileName)
		}
		cfg.SessionFile = path
	}
	return cfg, nil
}

// Validate checks that every URL is well formed and the language is supported.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("invalid configuration: %s fails %q (got %q)", fe.Field(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
