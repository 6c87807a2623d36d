package session

import (
	"errors"
	"os"
	"testing"

	"github.com/matheus3301/rentchat/internal/chat"
)

func TestCredentialsRoundTrip(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())
	t.Setenv(TokenEnv, "")
	t.Setenv(UserIDEnv, "")

	want := chat.Session{UserID: "u-17", Token: "secret"}
	if err := SaveCredentials("main", want); err != nil {
		t.Fatal(err)
	}
	got, err := LoadCredentials("main")
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("LoadCredentials() = %+v, want %+v", got, want)
	}

	info, err := os.Stat(CredentialsPath("main"))
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("credentials permission = %o, want 0600", perm)
	}
}

func TestCredentialsEnvOverride(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())
	if err := SaveCredentials("main", chat.Session{UserID: "u-17", Token: "old"}); err != nil {
		t.Fatal(err)
	}
	t.Setenv(TokenEnv, "fresh")
	t.Setenv(UserIDEnv, "")

	got, err := LoadCredentials("main")
	if err != nil {
		t.Fatal(err)
	}
	if got.Token != "fresh" || got.UserID != "u-17" {
		t.Errorf("LoadCredentials() = %+v", got)
	}
}

func TestCredentialsMissing(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())
	t.Setenv(TokenEnv, "")
	t.Setenv(UserIDEnv, "")

	_, err := LoadCredentials("main")
	if !errors.Is(err, ErrNoCredentials) {
		t.Errorf("LoadCredentials() error = %v, want ErrNoCredentials", err)
	}
}
