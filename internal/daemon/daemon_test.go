package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matheus3301/rentchat/internal/api"
	"github.com/matheus3301/rentchat/internal/config"
	"github.com/matheus3301/rentchat/internal/session"
	"github.com/matheus3301/rentchat/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
)

// portal fakes the rental platform's REST API for one conversation.
func portal(t *testing.T) *httptest.Server {
	t.Helper()
	var sent atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/conversations", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"conversations": []map[string]any{
				{"id": 42, "subject": "Tent rental", "last_message": "is it free?", "last_activity_at": "2024-03-01T12:00:00Z", "unread_count": 1},
			},
		})
	})
	mux.HandleFunc("GET /v1/conversations/42/messages", func(w http.ResponseWriter, _ *http.Request) {
		msgs := []map[string]any{
			{"id": 500, "sender_id": "landlord", "content": "is it free?", "sent_at": "2024-03-01T12:00:00Z"},
		}
		if sent.Load() {
			msgs = append(msgs, map[string]any{"id": 501, "sender_id": "u-1", "content": "hola", "sent_at": "2024-03-01T12:05:00Z"})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"messages": msgs})
	})
	mux.HandleFunc("POST /v1/conversations/42/messages", func(w http.ResponseWriter, _ *http.Request) {
		sent.Store(true)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": 501, "conversation_id": 42, "sender_id": "u-1", "content": "hola", "sent_at": "2024-03-01T12:05:00Z",
		})
	})
	mux.HandleFunc("POST /v1/conversations/42/read", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// setup points the session home at a short temp dir and returns daemon params.
func setup(t *testing.T, baseURL string) Params {
	t.Helper()
	// Use a short path to avoid the Unix socket path limit.
	home, err := os.MkdirTemp("/tmp", "rc-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(home) })
	t.Setenv(session.HomeEnv, home)
	t.Setenv(session.UserIDEnv, "u-1")
	t.Setenv(session.TokenEnv, "tok")

	cfg := config.Default()
	cfg.Remote.BaseURL = baseURL
	cfg.Sync.MessageInterval = config.Duration(500 * time.Millisecond)
	cfg.Sync.ConversationInterval = config.Duration(500 * time.Millisecond)
	cfg.Log.Level = "error"

	return Params{
		SessionName: "test",
		SocketPath:  filepath.Join(home, "d.sock"),
		Config:      cfg,
	}
}

func callCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestDaemonLifecycle(t *testing.T) {
	p := setup(t, portal(t).URL)

	app := fxtest.New(t, Module(p))
	app.RequireStart()

	c, err := api.Dial(p.SocketPath)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	require.Eventually(t, func() bool {
		convs, err := c.ListConversations(callCtx(t))
		return err == nil && len(convs) == 1 && convs[0].ID == "42"
	}, 5*time.Second, 50*time.Millisecond)

	ok, err := c.Healthy(callCtx(t))
	require.NoError(t, err)
	assert.True(t, ok)

	stream, err := c.WatchEvents(callCtx(t), &api.WatchEventsRequest{ViewID: "test-view"})
	require.NoError(t, err)
	_, err = stream.Recv()
	require.NoError(t, err)
	require.NoError(t, c.OpenConversation(callCtx(t), "test-view", "42"))
	corr, err := c.SendMessage(callCtx(t), "42", "hola")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		msgs, err := c.ListMessages(callCtx(t), "42")
		if err != nil || len(msgs) != 2 {
			return false
		}
		last := msgs[1]
		return last.ID == "501" && last.CorrelationID == corr && last.State == "sent"
	}, 5*time.Second, 50*time.Millisecond)

	st, err := c.GetStatus(callCtx(t))
	require.NoError(t, err)
	assert.Equal(t, "u-1", st.UserID)
	assert.Equal(t, "42", st.ActiveConversation)

	app.RequireStop()

	_, err = os.Stat(p.SocketPath)
	assert.True(t, os.IsNotExist(err), "socket removed on stop")

	db, err := store.Open(session.AppDBPath(p.SessionName))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	convs, err := db.LoadConversations(context.Background())
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "Tent rental", convs[0].Subject)
	msgs, err := db.LoadMessages(context.Background(), "42")
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestSecondDaemonIsRejected(t *testing.T) {
	p := setup(t, portal(t).URL)

	app := fxtest.New(t, Module(p))
	app.RequireStart()
	defer app.RequireStop()

	second := p
	second.SocketPath = p.SocketPath + "2"
	err := fx.New(Module(second), fx.NopLogger).Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session lock held")
}

func TestMissingCredentials(t *testing.T) {
	p := setup(t, "http://127.0.0.1:1")
	t.Setenv(session.TokenEnv, "")

	err := fx.New(Module(p), fx.NopLogger).Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no credentials")
}

func TestInvalidConfig(t *testing.T) {
	p := setup(t, "portal.local")

	err := fx.New(Module(p), fx.NopLogger).Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remote.base_url")
}
