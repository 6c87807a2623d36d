// Package chattest provides a scriptable chat.Remote for tests.
package chattest

import (
	"context"
	"sync"

	"github.com/matheus3301/rentchat/internal/chat"
)

// Remote implements chat.Remote by delegating to the function fields. A nil
// field returns a zero result. Calls are counted per operation.
type Remote struct {
	ListConversationsFn  func(ctx context.Context) ([]chat.Conversation, error)
	ListMessagesFn       func(ctx context.Context, conversationID string) ([]chat.Message, error)
	SendMessageFn        func(ctx context.Context, conversationID, content, correlationID string) (chat.Message, error)
	MarkReadFn           func(ctx context.Context, conversationID string) error
	CreateConversationFn func(ctx context.Context, subject, initialMessage string) (string, error)

	mu       sync.Mutex
	calls    map[string]int
	sessions []chat.Session
}

var _ chat.Remote = (*Remote)(nil)

func (r *Remote) record(op string, s chat.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = make(map[string]int)
	}
	r.calls[op]++
	r.sessions = append(r.sessions, s)
}

// Calls returns how many times op was invoked.
func (r *Remote) Calls(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[op]
}

// LastSession returns the session passed to the most recent call.
func (r *Remote) LastSession() chat.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sessions) == 0 {
		return chat.Session{}
	}
	return r.sessions[len(r.sessions)-1]
}

func (r *Remote) ListConversations(ctx context.Context, s chat.Session) ([]chat.Conversation, error) {
	r.record("ListConversations", s)
	if r.ListConversationsFn == nil {
		return nil, nil
	}
	return r.ListConversationsFn(ctx)
}

func (r *Remote) ListMessages(ctx context.Context, s chat.Session, conversationID string) ([]chat.Message, error) {
	r.record("ListMessages", s)
	if r.ListMessagesFn == nil {
		return nil, nil
	}
	return r.ListMessagesFn(ctx, conversationID)
}

func (r *Remote) SendMessage(ctx context.Context, s chat.Session, conversationID, content, correlationID string) (chat.Message, error) {
	r.record("SendMessage", s)
	if r.SendMessageFn == nil {
		return chat.Message{}, nil
	}
	return r.SendMessageFn(ctx, conversationID, content, correlationID)
}

func (r *Remote) MarkRead(ctx context.Context, s chat.Session, conversationID string) error {
	r.record("MarkRead", s)
	if r.MarkReadFn == nil {
		return nil
	}
	return r.MarkReadFn(ctx, conversationID)
}

func (r *Remote) CreateConversation(ctx context.Context, s chat.Session, subject, initialMessage string) (string, error) {
	r.record("CreateConversation", s)
	if r.CreateConversationFn == nil {
		return "", nil
	}
	return r.CreateConversationFn(ctx, subject, initialMessage)
}
