package daemon

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const credentialsDebounce = 250 * time.Millisecond

// credentialWatcher turns changes to the credentials file into reload
// requests. A burst of events within credentialsDebounce yields one request.
type credentialWatcher struct {
	watcher *fsnotify.Watcher
	path    string
	logger  *zap.Logger
}

func newCredentialWatcher(path string, logger *zap.Logger) (*credentialWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	// The directory is watched because the file may not exist yet and
	// may be replaced rather than written in place.
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	return &credentialWatcher{watcher: w, path: filepath.Clean(path), logger: logger}, nil
}

func (cw *credentialWatcher) run(ctx context.Context, trigger chan<- struct{}) {
	defer func() { _ = cw.watcher.Close() }()

	timer := time.NewTimer(credentialsDebounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != cw.path || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(credentialsDebounce)
		case <-timer.C:
			cw.logger.Info("credentials file changed")
			select {
			case trigger <- struct{}{}:
			default:
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logger.Warn("credentials watch error", zap.Error(err))
		}
	}
}
