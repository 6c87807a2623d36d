package remote

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/matheus3301/rentchat/internal/chat"
)

// id accepts identifiers encoded either as JSON strings or numbers.
type id string

func (i *id) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*i = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*i = id(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*i = id(n.String())
	return nil
}

type wireConversation struct {
	ID             id        `json:"id"`
	Subject        string    `json:"subject,omitempty"`
	LastMessage    string    `json:"last_message,omitempty"`
	LastActivityAt time.Time `json:"last_activity_at"`
	UnreadCount    int       `json:"unread_count"`
}

func (w wireConversation) domain() chat.Conversation {
	return chat.Conversation{
		ID:             string(w.ID),
		Subject:        w.Subject,
		LastMessage:    chat.Summary(w.LastMessage),
		LastActivityAt: w.LastActivityAt,
		UnreadCount:    max(w.UnreadCount, 0),
	}
}

type conversationList struct {
	Conversations []wireConversation `json:"conversations"`
}

type wireMessage struct {
	ID             id         `json:"id"`
	CorrelationID  string     `json:"correlation_id,omitempty"`
	ConversationID id         `json:"conversation_id"`
	SenderID       id         `json:"sender_id"`
	Content        string     `json:"content"`
	SentAt         time.Time  `json:"sent_at"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
}

func (w wireMessage) domain() chat.Message {
	return chat.Message{
		ID:             string(w.ID),
		CorrelationID:  w.CorrelationID,
		ConversationID: string(w.ConversationID),
		SenderID:       string(w.SenderID),
		Content:        w.Content,
		SentAt:         w.SentAt,
		ReadAt:         w.ReadAt,
		State:          chat.Sent,
	}
}

type messageList struct {
	Messages []wireMessage `json:"messages"`
}

type sendRequest struct {
	Content       string `json:"content"`
	CorrelationID string `json:"correlation_id"`
}

type createRequest struct {
	Subject        string `json:"subject,omitempty"`
	InitialMessage string `json:"initial_message,omitempty"`
}

type createResponse struct {
	ID id `json:"id"`
}
