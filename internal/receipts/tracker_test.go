package receipts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/matheus3301/rentchat/internal/bus"
	"github.com/matheus3301/rentchat/internal/chat"
	"github.com/matheus3301/rentchat/internal/chat/chattest"
	"github.com/matheus3301/rentchat/internal/conversations"
	"github.com/matheus3301/rentchat/internal/loop"
	"github.com/matheus3301/rentchat/internal/messages"
	"github.com/matheus3301/rentchat/internal/unread"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	lp      *loop.Loop
	store   *messages.Store
	index   *conversations.Index
	tracker *Tracker
	bus     *bus.Bus
}

func newFixture(t *testing.T, remote chat.Remote) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	lp := loop.New(0)
	go lp.Run(ctx)

	f := &fixture{lp: lp, store: messages.New(), index: conversations.New(), bus: bus.New()}
	agg := unread.New(f.store, f.index, "me")
	sess := func() chat.Session { return chat.Session{UserID: "me", Token: "tok"} }
	f.tracker = New(lp, remote, sess, f.store, agg, f.bus, zap.NewNop())
	return f
}

func (f *fixture) on(t *testing.T, fn func()) {
	t.Helper()
	require.NoError(t, f.lp.Call(context.Background(), fn))
}

func (f *fixture) seedUnread(t *testing.T, conv string, n int) {
	now := time.Now()
	msgs := make([]chat.Message, 0, n)
	for i := range n {
		msgs = append(msgs, chat.Message{ID: conv + "-" + string(rune('a'+i)), SenderID: "landlord", SentAt: now.Add(time.Duration(i) * time.Second)})
	}
	f.on(t, func() {
		f.index.Upsert(chat.Conversation{ID: conv, LastActivityAt: now, UnreadCount: n})
		f.store.Merge(conv, msgs)
	})
}

func (f *fixture) unread(t *testing.T, conv string) int {
	var n int
	f.on(t, func() {
		c, _ := f.index.Get(conv)
		n = c.UnreadCount
	})
	return n
}

func TestMarkReadClearsUnread(t *testing.T) {
	remote := &chattest.Remote{}
	f := newFixture(t, remote)
	f.seedUnread(t, "7", 3)

	events, unsub := f.bus.Subscribe(bus.ReceiptMarked, 4)
	defer unsub()

	var started bool
	f.on(t, func() { started = f.tracker.MarkRead(context.Background(), "7") })
	require.True(t, started)

	select {
	case evt := <-events:
		assert.Equal(t, "7", evt.Get("conversation_id"))
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for receipt.marked")
	}
	assert.Equal(t, 0, f.unread(t, "7"))
	assert.Equal(t, "tok", remote.LastSession().Token)

	f.on(t, func() {
		for m := range f.store.List("7") {
			assert.NotNil(t, m.ReadAt)
		}
	})
}

func TestMarkReadCoalescesWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	remote := &chattest.Remote{MarkReadFn: func(ctx context.Context, _ string) error {
		<-release
		return nil
	}}
	f := newFixture(t, remote)
	f.seedUnread(t, "7", 1)

	var first, second, other bool
	f.on(t, func() {
		first = f.tracker.MarkRead(context.Background(), "7")
		second = f.tracker.MarkRead(context.Background(), "7")
		other = f.tracker.MarkRead(context.Background(), "8")
	})
	assert.True(t, first)
	assert.False(t, second, "second trigger is dropped")
	assert.True(t, other, "flags are per conversation")

	close(release)
	require.Eventually(t, func() bool {
		var pending bool
		f.on(t, func() { pending = f.tracker.Pending("7") })
		return !pending
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 2, remote.Calls("MarkRead"))
	assert.Equal(t, 0, f.unread(t, "7"))
}

func TestMarkReadFailureIsDropped(t *testing.T) {
	remote := &chattest.Remote{MarkReadFn: func(context.Context, string) error {
		return errors.New("503 service unavailable")
	}}
	f := newFixture(t, remote)
	f.seedUnread(t, "7", 2)

	f.on(t, func() { f.tracker.MarkRead(context.Background(), "7") })
	require.Eventually(t, func() bool {
		var pending bool
		f.on(t, func() { pending = f.tracker.Pending("7") })
		return !pending
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 2, f.unread(t, "7"))

	// A later open retries.
	var again bool
	f.on(t, func() { again = f.tracker.MarkRead(context.Background(), "7") })
	assert.True(t, again)
}

func TestMarkReadUnauthorizedGoesToHook(t *testing.T) {
	remote := &chattest.Remote{MarkReadFn: func(context.Context, string) error {
		return chat.ErrUnauthorized
	}}
	f := newFixture(t, remote)
	f.seedUnread(t, "7", 1)

	got := make(chan error, 1)
	f.on(t, func() {
		f.tracker.OnUnauthorized(func(err error) { got <- err })
		f.tracker.MarkRead(context.Background(), "7")
	})

	select {
	case err := <-got:
		assert.ErrorIs(t, err, chat.ErrUnauthorized)
	case <-time.After(2 * time.Second):
		t.Fatal("unauthorized hook not called")
	}
	assert.Equal(t, 1, f.unread(t, "7"))
}
