package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/matheus3301/rentchat/internal/chat"
)

// Environment overrides for the stored credentials.
const (
	TokenEnv  = "RENTCHAT_TOKEN"
	UserIDEnv = "RENTCHAT_USER_ID"
)

// ErrNoCredentials means neither the credentials file nor the environment
// provided a complete identity.
var ErrNoCredentials = errors.New("no credentials")

type credentials struct {
	UserID string `toml:"user_id"`
	Token  string `toml:"token"`
}

// LoadCredentials returns the portal identity for a session. Environment
// variables take precedence over credentials.toml.
func LoadCredentials(name string) (chat.Session, error) {
	var c credentials
	_, err := toml.DecodeFile(CredentialsPath(name), &c)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return chat.Session{}, fmt.Errorf("read credentials: %w", err)
	}
	if v := os.Getenv(UserIDEnv); v != "" {
		c.UserID = v
	}
	if v := os.Getenv(TokenEnv); v != "" {
		c.Token = v
	}
	if c.UserID == "" || c.Token == "" {
		return chat.Session{}, fmt.Errorf("session %q: %w (set %s and %s or write %s)",
			name, ErrNoCredentials, UserIDEnv, TokenEnv, CredentialsPath(name))
	}
	return chat.Session{UserID: c.UserID, Token: c.Token}, nil
}

// SaveCredentials writes credentials.toml with owner-only permissions.
func SaveCredentials(name string, s chat.Session) error {
	path := CredentialsPath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(credentials{UserID: s.UserID, Token: s.Token})
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
