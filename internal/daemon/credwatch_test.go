package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestCredentialWatcherDebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.toml")

	cw, err := newCredentialWatcher(path, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	trigger := make(chan struct{}, 1)
	go cw.run(ctx, trigger)

	// Unrelated files in the session directory are ignored.
	if err := os.WriteFile(filepath.Join(dir, "rentchat.db"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	select {
	case <-trigger:
		t.Fatal("reload triggered by an unrelated file")
	case <-time.After(3 * credentialsDebounce):
	}

	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte("user_id = \"u-1\"\ntoken = \"tok\"\n"), 0600); err != nil {
			t.Fatal(err)
		}
	}
	select {
	case <-trigger:
	case <-time.After(3 * time.Second):
		t.Fatal("no reload after credentials were written")
	}
	select {
	case <-trigger:
		t.Fatal("burst of writes produced more than one reload")
	case <-time.After(3 * credentialsDebounce):
	}
}
