// Package outbox sends user messages with optimistic local echo.
package outbox

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/rentchat/internal/bus"
	"github.com/matheus3301/rentchat/internal/chat"
	"github.com/matheus3301/rentchat/internal/conversations"
	"github.com/matheus3301/rentchat/internal/loop"
	"github.com/matheus3301/rentchat/internal/messages"
	"go.uber.org/zap"
)

// Journal mirrors send state to durable storage so failed sends survive a
// restart. It is called off the loop.
type Journal interface {
	RecordSend(ctx context.Context, m chat.Message) error
	MarkSendSent(ctx context.Context, correlationID, messageID string) error
	MarkSendFailed(ctx context.Context, correlationID, reason string) error
	ForgetSend(ctx context.Context, correlationID string) error
}

// Coordinator owns the pending → sent / failed lifecycle of outgoing
// messages. All exported methods must be called on the engine loop.
type Coordinator struct {
	loop    *loop.Loop
	remote  chat.Remote
	session chat.SessionFunc
	store   *messages.Store
	index   *conversations.Index
	journal Journal
	bus     *bus.Bus
	logger  *zap.Logger

	onUnauthorized func(error)
	now            func() time.Time
	newID          func() string
}

// New creates a coordinator. journal may be nil.
func New(lp *loop.Loop, remote chat.Remote, session chat.SessionFunc, store *messages.Store, index *conversations.Index, journal Journal, b *bus.Bus, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		loop:    lp,
		remote:  remote,
		session: session,
		store:   store,
		index:   index,
		journal: journal,
		bus:     b,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// OnUnauthorized sets the hook that receives credential rejections.
func (c *Coordinator) OnUnauthorized(fn func(error)) {
	c.onUnauthorized = fn
}

// Send appends a pending message and submits it. The returned correlation id
// identifies the bubble until the service acknowledges it. ctx bounds the
// network call and should outlive the caller's request.
func (c *Coordinator) Send(ctx context.Context, conversationID, content string) (string, error) {
	if conversationID == "" {
		return "", chat.ErrNotFound
	}
	if strings.TrimSpace(content) == "" {
		return "", chat.ErrEmptyContent
	}
	return c.submit(ctx, conversationID, content, ""), nil
}

// Resend discards a failed bubble and sends its content again under a new
// correlation id, so the thread shows one bubble per logical send.
func (c *Coordinator) Resend(ctx context.Context, correlationID string) (string, error) {
	m, ok := c.store.Lookup(correlationID)
	if !ok {
		return "", chat.ErrNotFound
	}
	if m.State != chat.Failed {
		return "", chat.ErrNotFailed
	}
	c.store.Discard(correlationID)
	return c.submit(ctx, m.ConversationID, m.Content, correlationID), nil
}

// Restore puts failed sends recovered from the journal back into the store.
func (c *Coordinator) Restore(failed []chat.Message) int {
	n := 0
	for _, m := range failed {
		m.State = chat.Failed
		m.ID = ""
		if c.store.Append(m.ConversationID, m) {
			n++
		}
	}
	return n
}

func (c *Coordinator) submit(ctx context.Context, conversationID, content, replaces string) string {
	sess := c.session()
	m := chat.Message{
		CorrelationID:  c.newID(),
		ConversationID: conversationID,
		SenderID:       sess.UserID,
		Content:        content,
		SentAt:         c.now(),
		State:          chat.Pending,
	}
	c.store.Append(conversationID, m)
	c.index.Touch(conversationID, content, m.SentAt)
	c.bus.Emit(bus.MessageUpserted, "conversation_id", conversationID, "correlation_id", m.CorrelationID, "state", m.State.String())
	c.bus.Emit(bus.ConversationUpdated, "conversation_id", conversationID)

	go func() {
		if replaces != "" {
			c.journalErr("forget", replaces, c.forget(ctx, replaces))
		}
		c.journalErr("record", m.CorrelationID, c.record(ctx, m))

		server, err := c.remote.SendMessage(ctx, sess, conversationID, content, m.CorrelationID)
		if err == nil && server.ID == "" {
			err = errors.New("send response carries no message id")
		}
		if err != nil {
			c.journalErr("mark failed", m.CorrelationID, c.markFailed(ctx, m.CorrelationID, err.Error()))
		} else {
			c.journalErr("mark sent", m.CorrelationID, c.markSent(ctx, m.CorrelationID, server.ID))
		}
		if perr := c.loop.Post(func() { c.settle(conversationID, m.CorrelationID, server, err) }); perr != nil {
			c.logger.Debug("send completion dropped", zap.String("correlation_id", m.CorrelationID), zap.Error(perr))
		}
	}()
	return m.CorrelationID
}

func (c *Coordinator) settle(conversationID, correlationID string, server chat.Message, err error) {
	if err != nil {
		if m, ok := c.store.Lookup(correlationID); ok && m.State == chat.Sent {
			// A poll delivered the persisted copy; only the response was lost.
			c.logger.Warn("send response lost after delivery", zap.Error(err),
				zap.String("correlation_id", correlationID), zap.String("message_id", m.ID))
			go c.journalErr("mark sent", correlationID, c.markSent(context.Background(), correlationID, m.ID))
			return
		}
		c.logger.Error("failed to send message", zap.Error(err),
			zap.String("conversation_id", conversationID), zap.String("correlation_id", correlationID))
		if c.store.MarkFailed(correlationID) {
			c.bus.Emit(bus.MessageSendFailed,
				"conversation_id", conversationID,
				"correlation_id", correlationID,
				"error", err.Error())
		}
		if errors.Is(err, chat.ErrUnauthorized) && c.onUnauthorized != nil {
			c.onUnauthorized(err)
		}
		return
	}

	if !c.store.Replace(correlationID, server) {
		c.logger.Warn("acknowledged send has no local entry", zap.String("correlation_id", correlationID))
		return
	}
	c.index.Touch(conversationID, server.Content, server.SentAt)
	c.logger.Info("message sent", zap.String("correlation_id", correlationID), zap.String("message_id", server.ID))
	c.bus.Emit(bus.MessageSendAck,
		"conversation_id", conversationID,
		"correlation_id", correlationID,
		"message_id", server.ID)
}

func (c *Coordinator) record(ctx context.Context, m chat.Message) error {
	if c.journal == nil {
		return nil
	}
	return c.journal.RecordSend(context.WithoutCancel(ctx), m)
}

func (c *Coordinator) markSent(ctx context.Context, correlationID, messageID string) error {
	if c.journal == nil {
		return nil
	}
	return c.journal.MarkSendSent(context.WithoutCancel(ctx), correlationID, messageID)
}

func (c *Coordinator) markFailed(ctx context.Context, correlationID, reason string) error {
	if c.journal == nil {
		return nil
	}
	return c.journal.MarkSendFailed(context.WithoutCancel(ctx), correlationID, reason)
}

func (c *Coordinator) forget(ctx context.Context, correlationID string) error {
	if c.journal == nil {
		return nil
	}
	return c.journal.ForgetSend(context.WithoutCancel(ctx), correlationID)
}

func (c *Coordinator) journalErr(op, correlationID string, err error) {
	if err != nil {
		c.logger.Warn("send journal "+op+" failed", zap.String("correlation_id", correlationID), zap.Error(err))
	}
}
