package api

import (
	"time"

	"github.com/matheus3301/rentchat/internal/bus"
	"github.com/matheus3301/rentchat/internal/chat"
)

// Conversation is one row of the conversation list.
type Conversation struct {
	ID             string    `json:"id"`
	Subject        string    `json:"subject,omitempty"`
	LastMessage    string    `json:"last_message,omitempty"`
	LastActivityAt time.Time `json:"last_activity_at"`
	UnreadCount    int       `json:"unread_count"`
}

// Message is one entry of a conversation log. State is "pending", "sent"
// or "failed".
type Message struct {
	ID             string     `json:"id,omitempty"`
	CorrelationID  string     `json:"correlation_id,omitempty"`
	ConversationID string     `json:"conversation_id"`
	SenderID       string     `json:"sender_id"`
	Content        string     `json:"content"`
	SentAt         time.Time  `json:"sent_at"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	State          string     `json:"state"`
	Own            bool       `json:"own"`
}

// Event is a bus event as streamed by WatchEvents.
type Event struct {
	ID         string            `json:"id"`
	Session    string            `json:"session"`
	Kind       string            `json:"kind"`
	OccurredAt time.Time         `json:"occurred_at"`
	Payload    map[string]string `json:"payload,omitempty"`
}

type Empty struct{}

type ListConversationsRequest struct{}

type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
}

type ListMessagesRequest struct {
	ConversationID string `json:"conversation_id"`
}

type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
}

// ConversationRequest names a conversation. ViewID is the view attached by
// a WatchEvents stream; OpenConversation requires it.
type ConversationRequest struct {
	ViewID         string `json:"view_id,omitempty"`
	ConversationID string `json:"conversation_id"`
}

type SendMessageRequest struct {
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
}

type ResendMessageRequest struct {
	CorrelationID string `json:"correlation_id"`
}

type SendMessageResponse struct {
	CorrelationID string `json:"correlation_id"`
}

type CreateConversationRequest struct {
	Subject        string `json:"subject"`
	InitialMessage string `json:"initial_message"`
}

type CreateConversationResponse struct {
	ConversationID string `json:"conversation_id"`
}

type GetStatusRequest struct{}

type GetStatusResponse struct {
	Session            string `json:"session"`
	UserID             string `json:"user_id"`
	State              string `json:"state"`
	ActiveConversation string `json:"active_conversation,omitempty"`
	TotalUnread        int    `json:"total_unread"`
}

// WatchEventsRequest selects events by kind prefix; empty means all. With
// MountList set, the conversation list is polled while the stream is open.
// A non-empty ViewID attaches a view: conversations it opens are closed when
// the stream ends.
type WatchEventsRequest struct {
	Namespace string `json:"namespace,omitempty"`
	MountList bool   `json:"mount_list,omitempty"`
	ViewID    string `json:"view_id,omitempty"`
}

func conversationToWire(c chat.Conversation) Conversation {
	return Conversation{
		ID:             c.ID,
		Subject:        c.Subject,
		LastMessage:    c.LastMessage,
		LastActivityAt: c.LastActivityAt,
		UnreadCount:    c.UnreadCount,
	}
}

func messageToWire(m chat.Message, currentUser string) Message {
	return Message{
		ID:             m.ID,
		CorrelationID:  m.CorrelationID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		SentAt:         m.SentAt,
		ReadAt:         m.ReadAt,
		State:          m.State.String(),
		Own:            m.SenderID == currentUser,
	}
}

func eventToWire(sessionName string, evt bus.Event) *Event {
	return &Event{
		ID:         evt.ID,
		Session:    sessionName,
		Kind:       evt.Kind,
		OccurredAt: evt.Timestamp,
		Payload:    evt.Payload,
	}
}
