package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is the session file name under the user config directory.
const DefaultFileName = "session.yaml"

// Store persists a Session between process runs.
type Store interface {
	Load() (*Session, error)
	Save(s *Session) error
	Clear() error
}

// FileStore keeps the session as a flat YAML key-value file readable only by
// the owner.
type FileStore struct {
	path string
}

var _ Store = (*FileStore)(nil)

// NewFileStore returns a FileStore backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultPath returns the session file path under the OS config directory
// (e.g. ~/.config/medassist/session.yaml on Linux).
func DefaultPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(configDir, "medassist", DefaultFileName), nil
}

// Path returns the file backing the store.
func (f *FileStore) Path() string {
	return f.path
}

// Load reads the session file. A missing file yields an empty, signed-out
// session rather than an error.
func (f *FileStore) Load() (*Session, error) {
	values, err := f.read()
	if err != nil {
		return nil, err
	}
	return fromValues(values)
}

// Save replaces the persisted session. Language is preserved from s.
func (f *FileStore) Save(s *Session) error {
	if s == nil {
		return errors.New("session is nil")
	}
	values, err := toValues(s)
	if err != nil {
		return err
	}
	return f.write(values)
}

// Clear removes every persisted key, including the language preference.
func (f *FileStore) Clear() error {
	err := os.Remove(f.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("unable to remove session file: %w", err)
	}
	log.Debug().Str("path", f.path).Msg("Session cleared")
	return nil
}

func (f *FileStore) read() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("unable to read session file: %w", err)
	}
	values := map[string]string{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("unable to parse session file: %w", err)
	}
	return values, nil
}

func (f *FileStore) write(values map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("unable to create session directory: %w", err)
	}
	data, err := yaml.Marshal(values)
	if err != nil {
		return fmt.Errorf("unable to encode session: %w", err)
	}
	if err := os.WriteFile(f.path, data, 0600); err != nil {
		return fmt.Errorf("unable to write session file: %w", err)
	}
	// WriteFile keeps the mode of a file that already exists.
	if err := os.Chmod(f.path, 0600); err != nil {
		return fmt.Errorf("unable to restrict session file permissions: %w", err)
	}
	log.Debug().Str("path", f.path).Int("keys", len(values)).Msg("Session saved")
	return nil
}

// toValues flattens a Session into the persisted key set. The profile is kept
// both whole (as JSON under "user") and as individual keys.
func toValues(s *Session) (map[string]string, error) {
	user, err := json.Marshal(s.User)
	if err != nil {
		return nil, fmt.Errorf("unable to encode user profile: %w", err)
	}
	values := map[string]string{
		KeyToken:    s.Token,
		KeyUser:     string(user),
		KeyUserID:   s.User.ID,
		KeyUserName: s.User.Name,
		KeyAppID:    s.User.AppID,
		KeyAppName:  s.User.AppName,
		KeyRoleID:   s.User.RoleID,
		KeyRole:     s.User.Role,
	}
	if s.Language != "" {
		values[KeyLanguage] = s.Language
	}
	for k, v := range values {
		if v == "" {
			delete(values, k)
		}
	}
	return values, nil
}

func fromValues(values map[string]string) (*Session, error) {
	s := &Session{
		Token:    values[KeyToken],
		Language: values[KeyLanguage],
	}
	if raw := values[KeyUser]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &s.User); err != nil {
			return nil, fmt.Errorf("unable to decode stored user profile: %w", err)
		}
	}
	// Individual keys win over the JSON blob; older files may only have them.
	overlay := func(dst *string, key string) {
		if v := values[key]; v != "" {
			*dst = v
		}
	}
	overlay(&s.User.ID, KeyUserID)
	overlay(&s.User.Name, KeyUserName)
	overlay(&s.User.AppID, KeyAppID)
	overlay(&s.User.AppName, KeyAppName)
	overlay(&s.User.RoleID, KeyRoleID)
	overlay(&s.User.Role, KeyRole)
	return s, nil
}
