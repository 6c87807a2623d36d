package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matheus3301/rentchat/internal/bus"
	"github.com/matheus3301/rentchat/internal/chat"
	"github.com/matheus3301/rentchat/internal/chat/chattest"
	"github.com/matheus3301/rentchat/internal/status"
	intsync "github.com/matheus3301/rentchat/internal/sync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

var fast = Config{
	Sync:          intsync.Config{MessageInterval: 20 * time.Millisecond, ConversationInterval: 20 * time.Millisecond},
	DegradedAfter: 2,
}

func start(t *testing.T, remote chat.Remote, persist Persistence, cfg Config) (*Engine, *bus.Bus) {
	t.Helper()
	b := bus.New()
	e := New(remote, chat.Session{UserID: "me", Token: "tok"}, persist, b, status.NewMachine(b), cfg, zap.NewNop())
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() { _ = e.Stop(context.Background()) })
	return e, b
}

// memPersist is an in-memory Persistence.
type memPersist struct {
	mu          sync.Mutex
	convs       []chat.Conversation
	cached      map[string][]chat.Message
	failed      []chat.Message
	journal     map[string]string
	interrupted int64
	saved       []chat.Conversation
	savedMsgs   map[string][]chat.Message
	checkpoints map[string]string
}

func newMemPersist() *memPersist {
	return &memPersist{journal: map[string]string{}, checkpoints: map[string]string{}, cached: map[string][]chat.Message{}}
}

func (p *memPersist) set(corr, state string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.journal[corr] = state
	return nil
}

func (p *memPersist) RecordSend(_ context.Context, m chat.Message) error { return p.set(m.CorrelationID, "queued") }
func (p *memPersist) MarkSendSent(_ context.Context, corr, _ string) error {
	return p.set(corr, "sent")
}
func (p *memPersist) MarkSendFailed(_ context.Context, corr, _ string) error {
	return p.set(corr, "failed")
}
func (p *memPersist) ForgetSend(_ context.Context, corr string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.journal, corr)
	return nil
}
func (p *memPersist) InterruptPendingSends(context.Context) (int64, error) {
	return p.interrupted, nil
}
func (p *memPersist) FailedSends(context.Context) ([]chat.Message, error) { return p.failed, nil }
func (p *memPersist) LoadConversations(context.Context) ([]chat.Conversation, error) {
	return p.convs, nil
}
func (p *memPersist) LoadMessages(_ context.Context, id string) ([]chat.Message, error) {
	return p.cached[id], nil
}
func (p *memPersist) SaveSnapshot(_ context.Context, convs []chat.Conversation, threads map[string][]chat.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saved = convs
	p.savedMsgs = threads
	return nil
}
func (p *memPersist) SetCheckpoint(_ context.Context, key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkpoints[key] = value
	return nil
}
func (p *memPersist) checkpoint(key string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.checkpoints[key]
}

// Sending "hola" to conversation 42 shows one pending bubble that becomes
// sent with id 501; a later poll returning 501 does not add a second one.
func TestSendThenPollShowsSingleBubble(t *testing.T) {
	var acked atomic.Bool
	remote := &chattest.Remote{
		SendMessageFn: func(_ context.Context, conv, content, corr string) (chat.Message, error) {
			acked.Store(true)
			return chat.Message{ID: "501", ConversationID: conv, SenderID: "me", Content: content, SentAt: t0.Add(time.Second)}, nil
		},
		ListMessagesFn: func(context.Context, string) ([]chat.Message, error) {
			if !acked.Load() {
				return nil, nil
			}
			return []chat.Message{{ID: "501", SenderID: "me", Content: "hola", SentAt: t0.Add(time.Second)}}, nil
		},
	}
	e, b := start(t, remote, nil, fast)
	acks, unsub := b.Subscribe(bus.MessageSendAck, 4)
	defer unsub()

	ctx := context.Background()
	require.NoError(t, e.Open(ctx, "42"))
	corr, err := e.Send(ctx, "42", "hola")
	require.NoError(t, err)

	select {
	case <-acks:
	case <-time.After(2 * time.Second):
		t.Fatal("no send ack")
	}
	// Let a few polls run after the ack.
	require.Eventually(t, func() bool { return remote.Calls("ListMessages") >= 3 }, 2*time.Second, 10*time.Millisecond)

	msgs, err := e.Messages(ctx, "42")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "501", msgs[0].ID)
	assert.Equal(t, corr, msgs[0].CorrelationID)
	assert.Equal(t, chat.Sent, msgs[0].State)
}

func TestPendingVisibleBeforeAck(t *testing.T) {
	release := make(chan struct{})
	remote := &chattest.Remote{SendMessageFn: func(_ context.Context, _, content, _ string) (chat.Message, error) {
		<-release
		return chat.Message{ID: "501", Content: content, SentAt: time.Now()}, nil
	}}
	e, _ := start(t, remote, nil, Config{Sync: intsync.Config{MessageInterval: time.Hour, ConversationInterval: time.Hour}})
	defer close(release)

	_, err := e.Send(context.Background(), "42", "hola")
	require.NoError(t, err)
	msgs, err := e.Messages(context.Background(), "42")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, chat.Pending, msgs[0].State)
}

// Conversation 7 has three unread landlord messages; opening it drops the
// badge to zero.
func TestOpenMarksConversationRead(t *testing.T) {
	remote := &chattest.Remote{
		ListConversationsFn: func(context.Context) ([]chat.Conversation, error) {
			return []chat.Conversation{{ID: "7", Subject: "Party tent", LastActivityAt: t0, UnreadCount: 3}}, nil
		},
		ListMessagesFn: func(context.Context, string) ([]chat.Message, error) {
			return []chat.Message{
				{ID: "1", SenderID: "landlord", Content: "hi", SentAt: t0.Add(-3 * time.Minute)},
				{ID: "2", SenderID: "landlord", Content: "still there?", SentAt: t0.Add(-2 * time.Minute)},
				{ID: "3", SenderID: "landlord", Content: "hello?", SentAt: t0},
			}, nil
		},
	}
	e, _ := start(t, remote, nil, Config{Sync: intsync.Config{MessageInterval: time.Hour, ConversationInterval: time.Hour}})
	ctx := context.Background()

	require.Eventually(t, func() bool {
		c, ok, _ := e.Conversation(ctx, "7")
		return ok && c.UnreadCount == 3
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, e.Open(ctx, "7"))
	require.Eventually(t, func() bool {
		c, _, _ := e.Conversation(ctx, "7")
		return c.UnreadCount == 0 && remote.Calls("MarkRead") >= 1
	}, 2*time.Second, 10*time.Millisecond)

	// Once loaded, later list polls cannot resurrect the server's stale count.
	_, err := e.Conversations(ctx)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return remote.Calls("ListConversations") >= 2 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	c, _, _ := e.Conversation(ctx, "7")
	assert.Equal(t, 0, c.UnreadCount)
}

// A list poll carrying an older timestamp must not undo a local send.
func TestLocalSendNotRegressedByStaleList(t *testing.T) {
	remote := &chattest.Remote{
		ListConversationsFn: func(context.Context) ([]chat.Conversation, error) {
			return []chat.Conversation{{ID: "42", LastMessage: "old", LastActivityAt: t0}}, nil
		},
		SendMessageFn: func(_ context.Context, _, content, _ string) (chat.Message, error) {
			return chat.Message{ID: "9", Content: content, SentAt: time.Now()}, nil
		},
	}
	e, _ := start(t, remote, nil, fast)
	ctx := context.Background()
	require.NoError(t, e.Mount(ctx))
	defer func() { _ = e.Unmount(ctx) }()

	_, err := e.Send(ctx, "42", "new")
	require.NoError(t, err)

	n := remote.Calls("ListConversations")
	require.Eventually(t, func() bool { return remote.Calls("ListConversations") >= n+2 }, 2*time.Second, 10*time.Millisecond)

	c, ok, err := e.Conversation(ctx, "42")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "new", c.LastMessage)
	assert.True(t, c.LastActivityAt.After(t0))
}

func TestOpenSwitchesActiveConversation(t *testing.T) {
	e, _ := start(t, &chattest.Remote{}, nil, Config{Sync: intsync.Config{MessageInterval: time.Hour, ConversationInterval: time.Hour}})
	ctx := context.Background()

	require.NoError(t, e.Open(ctx, "a"))
	require.NoError(t, e.Open(ctx, "b"))

	var aRunning, bRunning bool
	require.NoError(t, e.loop.Call(ctx, func() {
		aRunning = e.poller.Running("a")
		bRunning = e.poller.Running("b")
	}))
	assert.False(t, aRunning)
	assert.True(t, bRunning)

	active, _ := e.Active(ctx)
	assert.Equal(t, "b", active)
	require.NoError(t, e.Close(ctx, "b"))
	active, _ = e.Active(ctx)
	assert.Empty(t, active)
}

func TestUnauthorizedStopsEverything(t *testing.T) {
	var rejected atomic.Bool
	rejected.Store(true)
	remote := &chattest.Remote{ListConversationsFn: func(context.Context) ([]chat.Conversation, error) {
		if rejected.Load() {
			return nil, chat.ErrUnauthorized
		}
		return nil, nil
	}}
	b := bus.New()
	events, unsub := b.Subscribe(bus.SessionUnauthorized, 4)
	defer unsub()

	e := New(remote, chat.Session{UserID: "me", Token: "expired"}, nil, b, status.NewMachine(b), fast, zap.NewNop())
	require.NoError(t, e.Start(context.Background()))
	defer func() { _ = e.Stop(context.Background()) }()

	select {
	case evt := <-events:
		assert.Equal(t, "me", evt.Get("user_id"))
	case <-time.After(2 * time.Second):
		t.Fatal("no session.unauthorized event")
	}
	assert.Equal(t, status.Unauthorized, e.Status())

	_, err := e.Send(context.Background(), "42", "hola")
	assert.ErrorIs(t, err, chat.ErrUnauthorized)
	assert.ErrorIs(t, e.Open(context.Background(), "42"), chat.ErrUnauthorized)

	rejected.Store(false)
	err = e.Reauthenticate(context.Background(), chat.Session{UserID: "someone-else", Token: "theirs"})
	require.ErrorIs(t, err, ErrUserChanged)
	assert.Equal(t, status.Unauthorized, e.Status(), "a foreign login does not resume sync")

	require.NoError(t, e.Reauthenticate(context.Background(), chat.Session{UserID: "me", Token: "fresh"}))
	require.Eventually(t, func() bool { return e.Status() == status.Ready }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "fresh", remote.LastSession().Token)
}

func TestPollFailuresDegradeAndRecover(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)
	remote := &chattest.Remote{ListConversationsFn: func(context.Context) ([]chat.Conversation, error) {
		if failing.Load() {
			return nil, assert.AnError
		}
		return nil, nil
	}}
	e, _ := start(t, remote, nil, fast)
	require.NoError(t, e.Mount(context.Background()))

	require.Eventually(t, func() bool { return e.Status() == status.Degraded }, 2*time.Second, 10*time.Millisecond)
	failing.Store(false)
	require.Eventually(t, func() bool { return e.Status() == status.Ready }, 2*time.Second, 10*time.Millisecond)
}

func TestCreateConversationAppearsImmediately(t *testing.T) {
	remote := &chattest.Remote{CreateConversationFn: func(_ context.Context, subject, initial string) (string, error) {
		return "77", nil
	}}
	e, _ := start(t, remote, nil, Config{Sync: intsync.Config{MessageInterval: time.Hour, ConversationInterval: time.Hour}})

	id, err := e.CreateConversation(context.Background(), "Stage rental", "Is it free on Friday?")
	require.NoError(t, err)
	assert.Equal(t, "77", id)

	c, ok, err := e.Conversation(context.Background(), "77")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Stage rental", c.Subject)
	assert.Equal(t, "Is it free on Friday?", c.LastMessage)
}

func TestWarmStartAndSnapshot(t *testing.T) {
	persist := newMemPersist()
	persist.convs = []chat.Conversation{{ID: "5", Subject: "Chairs", LastActivityAt: t0, UnreadCount: 1}}
	persist.cached["5"] = []chat.Message{{ID: "50", SenderID: "landlord", Content: "cached", SentAt: t0}}
	persist.failed = []chat.Message{{CorrelationID: "lost", ConversationID: "5", SenderID: "me", Content: "retry me", SentAt: t0.Add(time.Second)}}
	persist.interrupted = 1

	remote := &chattest.Remote{
		ListMessagesFn: func(context.Context, string) ([]chat.Message, error) {
			return []chat.Message{{ID: "50", SenderID: "landlord", Content: "cached", SentAt: t0}}, nil
		},
	}
	b := bus.New()
	e := New(remote, chat.Session{UserID: "me", Token: "tok"}, persist, b, status.NewMachine(b),
		Config{Sync: intsync.Config{MessageInterval: time.Hour, ConversationInterval: time.Hour}}, zap.NewNop())
	ctx := context.Background()
	require.NoError(t, e.Start(ctx))

	c, ok, err := e.Conversation(ctx, "5")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Chairs", c.Subject)

	// Before the first poll, the cache and the failed send are both shown.
	msgs, err := e.Messages(ctx, "5")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "50", msgs[0].ID)
	assert.Equal(t, chat.Failed, msgs[1].State)

	require.Eventually(t, func() bool { return persist.checkpoint(CheckpointListSynced) != "" }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, e.Open(ctx, "5"))
	require.Eventually(t, func() bool { return remote.Calls("ListMessages") >= 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, e.Stop(ctx))

	persist.mu.Lock()
	defer persist.mu.Unlock()
	require.Len(t, persist.saved, 1)
	require.Len(t, persist.savedMsgs["5"], 1, "only sent messages are snapshotted")
}
