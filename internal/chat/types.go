package chat

import (
	"strings"
	"time"
)

// DeliveryState is the lifecycle of a message as seen by this client.
type DeliveryState uint8

const (
	// Pending messages were sent optimistically and are awaiting the server.
	Pending DeliveryState = iota
	// Sent messages are persisted server-side and carry a server ID.
	Sent
	// Failed messages were rejected or lost; they stay visible until resent.
	Failed
)

func (s DeliveryState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Sent:
		return "sent"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// ParseDeliveryState is the inverse of DeliveryState.String.
func ParseDeliveryState(s string) (DeliveryState, bool) {
	switch s {
	case "pending":
		return Pending, true
	case "sent":
		return Sent, true
	case "failed":
		return Failed, true
	}
	return Pending, false
}

// Conversation is a thread summary as shown in the conversation list.
type Conversation struct {
	ID             string
	Subject        string
	LastMessage    string
	LastActivityAt time.Time
	UnreadCount    int
}

// Message is a single entry of a conversation log.
type Message struct {
	ID             string // empty until the server acknowledges the send
	CorrelationID  string
	ConversationID string
	SenderID       string
	Content        string
	SentAt         time.Time
	ReadAt         *time.Time
	State          DeliveryState
}

// Unread reports whether m counts towards currentUser's unread badge.
func (m *Message) Unread(currentUser string) bool {
	return m.ReadAt == nil && m.SenderID != currentUser
}

// Less orders messages by SentAt, then ID, then CorrelationID.
func Less(a, b *Message) bool {
	if !a.SentAt.Equal(b.SentAt) {
		return a.SentAt.Before(b.SentAt)
	}
	if c := CompareIDs(a.ID, b.ID); c != 0 {
		return c < 0
	}
	return a.CorrelationID < b.CorrelationID
}

// CompareIDs compares server IDs, numerically when both are decimal.
// An empty ID (not yet acknowledged) sorts after any assigned ID.
func CompareIDs(a, b string) int {
	switch {
	case a == b:
		return 0
	case a == "":
		return 1
	case b == "":
		return -1
	}
	if isDecimal(a) && isDecimal(b) {
		a = strings.TrimLeft(a, "0")
		b = strings.TrimLeft(b, "0")
		if len(a) != len(b) {
			if len(a) < len(b) {
				return -1
			}
			return 1
		}
	}
	return strings.Compare(a, b)
}

func isDecimal(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Summary truncates content for use as a conversation's last message.
func Summary(content string) string {
	const maxLen = 100
	r := []rune(content)
	if len(r) <= maxLen {
		return content
	}
	return string(r[:maxLen])
}
