package session

import (
	"os"

	"github.com/matheus3301/rentchat/internal/config"
)

// DefaultSessionName is used when nothing else names a session.
const DefaultSessionName = "main"

// SessionEnv names the session when no flag is given.
const SessionEnv = "RENTCHAT_SESSION"

// Resolve picks the session name, first match wins: the --session flag,
// $RENTCHAT_SESSION, default_session in config.toml, "main". The result is
// not validated.
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	if name := os.Getenv(SessionEnv); name != "" {
		return name
	}
	if cfg, err := config.Load(ConfigPath()); err == nil && cfg.DefaultSession != "" {
		return cfg.DefaultSession
	}
	return DefaultSessionName
}
