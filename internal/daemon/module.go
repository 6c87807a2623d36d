package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/matheus3301/rentchat/internal/api"
	"github.com/matheus3301/rentchat/internal/bus"
	"github.com/matheus3301/rentchat/internal/chat"
	"github.com/matheus3301/rentchat/internal/config"
	"github.com/matheus3301/rentchat/internal/engine"
	"github.com/matheus3301/rentchat/internal/lock"
	"github.com/matheus3301/rentchat/internal/logging"
	"github.com/matheus3301/rentchat/internal/remote"
	"github.com/matheus3301/rentchat/internal/session"
	"github.com/matheus3301/rentchat/internal/status"
	"github.com/matheus3301/rentchat/internal/store"
	intsync "github.com/matheus3301/rentchat/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// sentRetention is how long acknowledged sends stay in the journal.
const sentRetention = 7 * 24 * time.Hour

var _ engine.Persistence = (*store.DB)(nil)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	SocketPath  string         // optional override for testing; empty = use default
	Config      *config.Config // optional; nil = load ~/.rentchat/config.toml
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideCredentials,
			provideRemote,
			provideEngine,
			provideService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	cfg := p.Config
	if cfg == nil {
		var err error
		if cfg, err = config.LoadOrDefault(session.ConfigPath()); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	return logging.New(logging.Options{
		Path:    session.LogPath(p.SessionName),
		Session: p.SessionName,
		Level:   cfg.Log.Level,
	})
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.LockPath(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

// provideStore depends on the lock so a second daemon never opens the database.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.AppDBPath(p.SessionName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed() {
		logger.Info("migrations applied", zap.Uint("from", result.From), zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	pruned, err := db.PruneSentSends(context.Background(), time.Now().Add(-sentRetention))
	if err != nil {
		logger.Warn("failed to prune send journal", zap.Error(err))
	} else if pruned > 0 {
		logger.Info("pruned send journal", zap.Int64("entries", pruned))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideCredentials(p Params) (chat.Session, error) {
	return session.LoadCredentials(p.SessionName)
}

func provideRemote(cfg *config.Config, logger *zap.Logger) (*remote.Client, error) {
	return remote.New(cfg.Remote.BaseURL, cfg.Remote.Timeout.Std(),
		remote.WithRateLimit(cfg.Remote.RateLimit, cfg.Remote.Burst),
		remote.WithLogger(logger.Named("remote")))
}

func provideEngine(client *remote.Client, sess chat.Session, db *store.DB, b *bus.Bus, m *status.Machine, cfg *config.Config, logger *zap.Logger) *engine.Engine {
	return engine.New(client, sess, db, b, m, engine.Config{
		Sync: intsync.Config{
			MessageInterval:      cfg.Sync.MessageInterval.Std(),
			ConversationInterval: cfg.Sync.ConversationInterval.Std(),
		},
		DegradedAfter: cfg.Sync.DegradedAfter,
	}, logger.Named("engine"))
}

func provideService(p Params, e *engine.Engine, b *bus.Bus, logger *zap.Logger) *api.Service {
	return api.NewService(e, b, p.SessionName, logger.Named("api"))
}

func registerLifecycle(lc fx.Lifecycle, p Params, srv *Server, lk *lock.Lock, db *store.DB, e *engine.Engine, b *bus.Bus, logger *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	hup := make(chan os.Signal, 1)
	reload := make(chan struct{}, 1)

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if err := e.Start(ctx); err != nil {
				return err
			}

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()
			go srv.WatchHealth(ctx, b)

			// SIGHUP or an edit of credentials.toml reloads credentials,
			// e.g. after rentchatctl login.
			signal.Notify(hup, syscall.SIGHUP)
			go forwardHangups(ctx, hup, reload)
			if cw, err := newCredentialWatcher(session.CredentialsPath(p.SessionName), logger); err != nil {
				logger.Warn("credentials file not watched; use SIGHUP to reload", zap.Error(err))
			} else {
				go cw.run(ctx, reload)
			}
			go reloadCredentials(ctx, reload, p.SessionName, e, logger)
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			signal.Stop(hup)
			srv.Stop(stopCtx)
			if err := e.Stop(stopCtx); err != nil {
				logger.Warn("error saving snapshot", zap.Error(err))
			}
			cancel()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}

func forwardHangups(ctx context.Context, hup <-chan os.Signal, reload chan<- struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			select {
			case reload <- struct{}{}:
			default:
			}
		}
	}
}

func reloadCredentials(ctx context.Context, reload <-chan struct{}, sessionName string, e *engine.Engine, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-reload:
			sess, err := session.LoadCredentials(sessionName)
			if err != nil {
				logger.Warn("credential reload failed", zap.Error(err))
				continue
			}
			if err := e.Reauthenticate(ctx, sess); err != nil {
				logger.Warn("credentials not applied", zap.Error(err))
				continue
			}
			logger.Info("credentials reloaded, token replaced", zap.String("user_id", sess.UserID))
		}
	}
}
