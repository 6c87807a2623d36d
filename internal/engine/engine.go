// Package engine runs the chat components on a single event loop and offers
// goroutine-safe entry points to the daemon's API layer.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/rentchat/internal/bus"
	"github.com/matheus3301/rentchat/internal/chat"
	"github.com/matheus3301/rentchat/internal/conversations"
	"github.com/matheus3301/rentchat/internal/loop"
	"github.com/matheus3301/rentchat/internal/messages"
	"github.com/matheus3301/rentchat/internal/outbox"
	"github.com/matheus3301/rentchat/internal/receipts"
	"github.com/matheus3301/rentchat/internal/status"
	intsync "github.com/matheus3301/rentchat/internal/sync"
	"github.com/matheus3301/rentchat/internal/unread"
	"go.uber.org/zap"
)

// CheckpointListSynced is the sync_state key holding the time of the last
// successful conversation list poll.
const CheckpointListSynced = "conversations.synced_at"

// Persistence is the durable side of the engine. A nil Persistence runs the
// engine purely in memory.
type Persistence interface {
	outbox.Journal
	InterruptPendingSends(ctx context.Context) (int64, error)
	FailedSends(ctx context.Context) ([]chat.Message, error)
	LoadConversations(ctx context.Context) ([]chat.Conversation, error)
	LoadMessages(ctx context.Context, conversationID string) ([]chat.Message, error)
	SaveSnapshot(ctx context.Context, convs []chat.Conversation, threads map[string][]chat.Message) error
	SetCheckpoint(ctx context.Context, key, value string) error
}

// Config tunes polling and health.
type Config struct {
	Sync          intsync.Config
	DegradedAfter int
}

// Engine owns the message store, the conversation index and every component
// that mutates them.
type Engine struct {
	loop    *loop.Loop
	remote  chat.Remote
	persist Persistence
	bus     *bus.Bus
	machine *status.Machine
	health  *status.Health
	logger  *zap.Logger

	// Loop-owned state.
	session  chat.Session
	store    *messages.Store
	index    *conversations.Index
	agg      *unread.Aggregator
	poller   *intsync.Poller
	sender   *outbox.Coordinator
	receipts *receipts.Tracker
	active   string
	mounts   int

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New wires the components. persist may be nil.
func New(remote chat.Remote, sess chat.Session, persist Persistence, b *bus.Bus, machine *status.Machine, cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if machine == nil {
		machine = status.NewMachine(b)
	}
	if cfg.DegradedAfter <= 0 {
		cfg.DegradedAfter = 3
	}
	e := &Engine{
		loop:    loop.New(0),
		remote:  remote,
		persist: persist,
		bus:     b,
		machine: machine,
		health:  status.NewHealth(machine, cfg.DegradedAfter),
		logger:  logger,
		session: sess,
		store:   messages.New(),
		index:   conversations.New(),
		done:    make(chan struct{}),
	}
	current := func() chat.Session { return e.session }

	e.agg = unread.New(e.store, e.index, sess.UserID)
	e.poller = intsync.New(e.loop, remote, current, e.store, e.index, e.agg, b, cfg.Sync, logger.Named("poller"))
	e.poller.SetHooks(intsync.Hooks{
		Unauthorized: e.unauthorized,
		Succeeded:    func(intsync.Purpose) { e.health.Succeeded() },
		Failed:       func(intsync.Purpose, error) { e.health.Failed() },
		ThreadMerged: e.threadMerged,
		ListMerged:   e.listMerged,
	})

	var journal outbox.Journal
	if persist != nil {
		journal = persist
	}
	e.sender = outbox.New(e.loop, remote, current, e.store, e.index, journal, b, logger.Named("outbox"))
	e.sender.OnUnauthorized(e.unauthorized)

	e.receipts = receipts.New(e.loop, remote, current, e.store, e.agg, b, logger.Named("receipts"))
	e.receipts.OnUnauthorized(e.unauthorized)
	return e
}

// Start restores persisted state, starts the loop and kicks off the first
// conversation list fetch. ctx bounds the engine's lifetime.
func (e *Engine) Start(ctx context.Context) error {
	e.ctx, e.cancel = context.WithCancel(ctx)

	var (
		convs  []chat.Conversation
		failed []chat.Message
	)
	if e.persist != nil {
		n, err := e.persist.InterruptPendingSends(ctx)
		if err != nil {
			return fmt.Errorf("recover send journal: %w", err)
		}
		if n > 0 {
			e.logger.Warn("sends interrupted by shutdown marked failed", zap.Int64("count", n))
		}
		if failed, err = e.persist.FailedSends(ctx); err != nil {
			return fmt.Errorf("load failed sends: %w", err)
		}
		if convs, err = e.persist.LoadConversations(ctx); err != nil {
			return fmt.Errorf("load conversations: %w", err)
		}
	}

	go func() {
		defer close(e.done)
		e.loop.Run(e.ctx)
	}()

	return e.loop.Call(ctx, func() {
		for _, c := range convs {
			e.index.Upsert(c)
		}
		if n := e.sender.Restore(failed); n > 0 {
			e.logger.Info("restored failed sends", zap.Int("count", n))
		}
		e.logger.Info("engine started",
			zap.Int("conversations", e.index.Len()),
			zap.String("user_id", e.session.UserID))
		_ = e.machine.Transition(status.Syncing)
		e.poller.RefreshList(e.ctx)
	})
}

// Stop halts polling, saves the warm-start snapshot and stops the loop.
func (e *Engine) Stop(ctx context.Context) error {
	if e.cancel == nil {
		return nil
	}
	var (
		convs   []chat.Conversation
		threads map[string][]chat.Message
	)
	err := e.loop.Call(ctx, func() {
		e.poller.StopAll()
		convs = e.index.List()
		threads = make(map[string][]chat.Message)
		for _, id := range e.store.Conversations() {
			for m := range e.store.List(id) {
				if m.State == chat.Sent {
					threads[id] = append(threads[id], m)
				}
			}
		}
	})
	e.cancel()
	<-e.done
	if err != nil && !errors.Is(err, loop.ErrClosed) {
		return err
	}
	if e.persist != nil && err == nil {
		if err := e.persist.SaveSnapshot(ctx, convs, threads); err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
		e.logger.Info("snapshot saved", zap.Int("conversations", len(convs)), zap.Int("threads", len(threads)))
	}
	return nil
}

// Status returns the current sync health.
func (e *Engine) Status() status.State {
	return e.machine.Current()
}

// UserID returns the authenticated user.
func (e *Engine) UserID(ctx context.Context) (string, error) {
	var id string
	err := e.loop.Call(ctx, func() { id = e.session.UserID })
	return id, err
}

// Conversations returns the conversation list, most recent first. When no
// view keeps the list poll running, a refresh is triggered in the background.
func (e *Engine) Conversations(ctx context.Context) ([]chat.Conversation, error) {
	var out []chat.Conversation
	err := e.loop.Call(ctx, func() {
		if e.mounts == 0 && e.machine.Current() != status.Unauthorized {
			e.poller.RefreshList(e.ctx)
		}
		out = e.index.List()
	})
	return out, err
}

// TotalUnread sums the unread badges of every known conversation.
func (e *Engine) TotalUnread(ctx context.Context) (int, error) {
	var n int
	err := e.loop.Call(ctx, func() { n = e.index.TotalUnread() })
	return n, err
}

// Conversation returns one summary.
func (e *Engine) Conversation(ctx context.Context, id string) (chat.Conversation, bool, error) {
	var (
		c  chat.Conversation
		ok bool
	)
	err := e.loop.Call(ctx, func() { c, ok = e.index.Get(id) })
	return c, ok, err
}

// Messages returns a conversation's log in render order. Conversations that
// have not been polled yet fall back to the warm-start cache.
func (e *Engine) Messages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	var (
		out    []chat.Message
		loaded bool
	)
	err := e.loop.Call(ctx, func() {
		loaded = e.store.Loaded(conversationID)
		out = e.store.Snapshot(conversationID)
	})
	if err != nil || loaded || e.persist == nil {
		return out, err
	}
	cached, err := e.persist.LoadMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load cached messages: %w", err)
	}
	// Failed sends restored from the journal are already in out.
	merged := messages.New()
	merged.Merge(conversationID, cached)
	for _, m := range out {
		merged.Append(conversationID, m)
	}
	return merged.Snapshot(conversationID), nil
}

// Mount registers a mounted conversation list view. The list is polled while
// at least one view is mounted.
func (e *Engine) Mount(ctx context.Context) error {
	return e.loop.Call(ctx, func() {
		e.mounts++
		if e.mounts == 1 && e.machine.Current() != status.Unauthorized {
			e.poller.StartList(e.ctx)
		}
	})
}

// Unmount releases a view registered with Mount.
func (e *Engine) Unmount(ctx context.Context) error {
	return e.loop.Call(ctx, func() {
		if e.mounts == 0 {
			return
		}
		e.mounts--
		if e.mounts == 0 {
			e.poller.StopList()
		}
	})
}

// Open makes conversationID the active view: its poller starts (stopping the
// previously active one) and it is marked read.
func (e *Engine) Open(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return chat.ErrNotFound
	}
	var err error
	callErr := e.loop.Call(ctx, func() {
		if e.machine.Current() == status.Unauthorized {
			err = chat.ErrUnauthorized
			return
		}
		if e.active != "" && e.active != conversationID {
			e.poller.Stop(e.active)
		}
		e.active = conversationID
		e.poller.Start(e.ctx, conversationID)
		e.receipts.MarkRead(e.ctx, conversationID)
	})
	if callErr != nil {
		return callErr
	}
	return err
}

// Close leaves the conversation view. In-flight responses for it are
// discarded on arrival.
func (e *Engine) Close(ctx context.Context, conversationID string) error {
	return e.loop.Call(ctx, func() {
		e.poller.Stop(conversationID)
		if e.active == conversationID {
			e.active = ""
		}
	})
}

// Active returns the open conversation, if any.
func (e *Engine) Active(ctx context.Context) (string, error) {
	var id string
	err := e.loop.Call(ctx, func() { id = e.active })
	return id, err
}

// Send posts a message and returns its correlation id. The entry is visible
// as pending before Send returns.
func (e *Engine) Send(ctx context.Context, conversationID, content string) (string, error) {
	var (
		corr string
		err  error
	)
	callErr := e.loop.Call(ctx, func() {
		if e.machine.Current() == status.Unauthorized {
			err = chat.ErrUnauthorized
			return
		}
		corr, err = e.sender.Send(e.ctx, conversationID, content)
	})
	if callErr != nil {
		return "", callErr
	}
	return corr, err
}

// Resend retries a failed message under a new correlation id.
func (e *Engine) Resend(ctx context.Context, correlationID string) (string, error) {
	var (
		corr string
		err  error
	)
	callErr := e.loop.Call(ctx, func() {
		if e.machine.Current() == status.Unauthorized {
			err = chat.ErrUnauthorized
			return
		}
		corr, err = e.sender.Resend(e.ctx, correlationID)
	})
	if callErr != nil {
		return "", callErr
	}
	return corr, err
}

// CreateConversation asks the service for a new conversation, shows it in
// the list right away and refreshes the list to pick up server details.
func (e *Engine) CreateConversation(ctx context.Context, subject, initialMessage string) (string, error) {
	var sess chat.Session
	if err := e.loop.Call(ctx, func() { sess = e.session }); err != nil {
		return "", err
	}
	id, err := e.remote.CreateConversation(ctx, sess, subject, initialMessage)
	if err != nil {
		if errors.Is(err, chat.ErrUnauthorized) {
			_ = e.loop.Post(func() { e.unauthorized(err) })
		}
		return "", fmt.Errorf("create conversation: %w", err)
	}
	if id == "" {
		return "", errors.New("create conversation: service returned no id")
	}
	err = e.loop.Call(ctx, func() {
		now := time.Now()
		e.index.Upsert(chat.Conversation{
			ID:             id,
			Subject:        subject,
			LastMessage:    chat.Summary(initialMessage),
			LastActivityAt: now,
		})
		e.bus.Emit(bus.ConversationUpdated, "conversation_id", id)
		e.poller.RefreshList(e.ctx)
	})
	return id, err
}

// ErrUserChanged is returned by Reauthenticate for credentials of another
// user. Message logs and badges belong to the original user, so switching
// users needs a daemon restart.
var ErrUserChanged = errors.New("credentials belong to a different user; restart the daemon")

// Reauthenticate installs a fresh token for the same user and, after the
// service rejected the previous one, resumes polling.
func (e *Engine) Reauthenticate(ctx context.Context, sess chat.Session) error {
	var err error
	callErr := e.loop.Call(ctx, func() {
		if sess.UserID != "" && sess.UserID != e.session.UserID {
			err = fmt.Errorf("%w: running as %q, got %q", ErrUserChanged, e.session.UserID, sess.UserID)
			return
		}
		e.session.Token = sess.Token
		if e.machine.Current() != status.Unauthorized {
			return
		}
		_ = e.machine.Transition(status.Syncing)
		e.logger.Info("credentials reloaded, resuming sync")
		if e.mounts > 0 {
			e.poller.StartList(e.ctx)
		} else {
			e.poller.RefreshList(e.ctx)
		}
		if e.active != "" {
			e.poller.Start(e.ctx, e.active)
		}
	})
	if callErr != nil {
		return callErr
	}
	return err
}

func (e *Engine) unauthorized(err error) {
	if e.machine.Current() == status.Unauthorized {
		return
	}
	e.logger.Warn("session rejected by service, polling stopped", zap.Error(err))
	e.poller.StopAll()
	_ = e.machine.Transition(status.Unauthorized)
	e.bus.Emit(bus.SessionUnauthorized, "user_id", e.session.UserID, "error", err.Error())
}

// threadMerged marks freshly arrived messages in the open conversation read.
func (e *Engine) threadMerged(conversationID string, _ int) {
	if conversationID != e.active {
		return
	}
	if n, _ := e.store.Unread(conversationID, e.session.UserID); n > 0 {
		e.receipts.MarkRead(e.ctx, conversationID)
	}
}

func (e *Engine) listMerged(_ []string, at time.Time) {
	if e.persist == nil {
		return
	}
	go func() {
		if err := e.persist.SetCheckpoint(e.ctx, CheckpointListSynced, at.UTC().Format(time.RFC3339)); err != nil {
			e.logger.Warn("failed to save sync checkpoint", zap.Error(err))
		}
	}()
}
