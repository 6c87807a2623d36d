// Package receipts sends mark-as-read requests for the conversation the user
// is looking at.
package receipts

import (
	"context"
	"errors"
	"time"

	"github.com/matheus3301/rentchat/internal/bus"
	"github.com/matheus3301/rentchat/internal/chat"
	"github.com/matheus3301/rentchat/internal/loop"
	"github.com/matheus3301/rentchat/internal/messages"
	"github.com/matheus3301/rentchat/internal/unread"
	"go.uber.org/zap"
)

// Tracker issues at most one mark-read request per conversation at a time.
// All methods must be called on the engine loop.
type Tracker struct {
	loop    *loop.Loop
	remote  chat.Remote
	session chat.SessionFunc
	store   *messages.Store
	agg     *unread.Aggregator
	bus     *bus.Bus
	logger  *zap.Logger

	inFlight       map[string]bool
	onUnauthorized func(error)
	now            func() time.Time
}

// New creates a tracker.
func New(lp *loop.Loop, remote chat.Remote, session chat.SessionFunc, store *messages.Store, agg *unread.Aggregator, b *bus.Bus, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		loop:     lp,
		remote:   remote,
		session:  session,
		store:    store,
		agg:      agg,
		bus:      b,
		logger:   logger,
		inFlight: make(map[string]bool),
		now:      time.Now,
	}
}

// OnUnauthorized sets the hook that receives credential rejections.
func (t *Tracker) OnUnauthorized(fn func(error)) {
	t.onUnauthorized = fn
}

// MarkRead asks the service to mark a conversation read. It returns false
// when a request for the same conversation is already outstanding; the
// trigger is dropped, not queued.
func (t *Tracker) MarkRead(ctx context.Context, conversationID string) bool {
	if t.inFlight[conversationID] {
		return false
	}
	t.inFlight[conversationID] = true
	sess := t.session()

	go func() {
		err := t.remote.MarkRead(ctx, sess, conversationID)
		if perr := t.loop.Post(func() { t.finish(conversationID, sess.UserID, err) }); perr != nil {
			t.logger.Debug("mark read completion dropped", zap.String("conversation_id", conversationID), zap.Error(perr))
		}
	}()
	return true
}

// Pending reports whether a mark-read is outstanding for the conversation.
func (t *Tracker) Pending(conversationID string) bool {
	return t.inFlight[conversationID]
}

func (t *Tracker) finish(conversationID, currentUser string, err error) {
	delete(t.inFlight, conversationID)

	switch {
	case err == nil:
	case errors.Is(err, chat.ErrUnauthorized):
		if t.onUnauthorized != nil {
			t.onUnauthorized(err)
		}
		return
	case errors.Is(err, context.Canceled):
		return
	default:
		// Dropped; the next open of the conversation tries again.
		t.logger.Warn("mark read failed", zap.String("conversation_id", conversationID), zap.Error(err))
		return
	}

	n := t.store.MarkRead(conversationID, currentUser, t.now())
	badge := t.agg.Cleared(conversationID)
	t.logger.Debug("conversation marked read", zap.String("conversation_id", conversationID), zap.Int("messages", n))
	t.bus.Emit(bus.ReceiptMarked, "conversation_id", conversationID)
	if badge {
		t.bus.Emit(bus.ConversationUpdated, "conversation_id", conversationID)
	}
}
