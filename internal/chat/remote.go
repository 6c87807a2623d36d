package chat

import (
	"context"
	"errors"
)

var (
	// ErrUnauthorized means the session token was rejected by the service.
	// It is never handled inside the engine; it is handed to the session owner.
	ErrUnauthorized = errors.New("session unauthorized")
	// ErrNotFound is returned for unknown conversations or correlation ids.
	ErrNotFound = errors.New("not found")
	// ErrNotFailed is returned when resending a message that has not failed.
	ErrNotFailed = errors.New("message is not in failed state")
	// ErrEmptyContent is returned when sending a blank message.
	ErrEmptyContent = errors.New("message content is empty")
)

// Session is the authenticated identity every remote call runs under.
// It is passed explicitly to the components that talk to the service.
type Session struct {
	UserID string
	Token  string
}

// Remote is the REST service that owns conversations and messages.
type Remote interface {
	ListConversations(ctx context.Context, s Session) ([]Conversation, error)
	ListMessages(ctx context.Context, s Session, conversationID string) ([]Message, error)
	SendMessage(ctx context.Context, s Session, conversationID, content, correlationID string) (Message, error)
	MarkRead(ctx context.Context, s Session, conversationID string) error
	CreateConversation(ctx context.Context, s Session, subject, initialMessage string) (string, error)
}

// SessionFunc returns the session the next remote call should use. The
// engine owns the value; components read it on the loop.
type SessionFunc func() Session
