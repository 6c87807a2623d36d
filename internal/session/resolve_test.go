package session

import (
	"testing"

	"github.com/matheus3301/rentchat/internal/config"
)

func TestResolvePrecedence(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())
	t.Setenv(SessionEnv, "")

	if got := Resolve(""); got != DefaultSessionName {
		t.Errorf("no config: Resolve() = %q, want %q", got, DefaultSessionName)
	}

	cfg := config.Default()
	cfg.DefaultSession = "landlord"
	if err := config.Save(ConfigPath(), cfg); err != nil {
		t.Fatal(err)
	}
	if got := Resolve(""); got != "landlord" {
		t.Errorf("config: Resolve() = %q, want landlord", got)
	}

	t.Setenv(SessionEnv, "tenant")
	if got := Resolve(""); got != "tenant" {
		t.Errorf("env: Resolve() = %q, want tenant", got)
	}

	if got := Resolve("work"); got != "work" {
		t.Errorf("flag: Resolve() = %q, want work", got)
	}
}
