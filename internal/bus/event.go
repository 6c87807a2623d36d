package bus

import "time"

// Event kinds published by the engine. Subscribers filter by prefix, so
// "message." receives every message event.
const (
	ConversationUpdated = "conversation.updated"
	MessageUpserted     = "message.upserted"
	MessageSendAck      = "message.send_ack"
	MessageSendFailed   = "message.send_failed"
	ReceiptMarked       = "receipt.marked"
	SessionUnauthorized = "session.unauthorized"
	SessionStatus       = "session.status_changed"
)

// Event represents a domain event published on the bus.
type Event struct {
	ID        string
	Kind      string
	Timestamp time.Time
	Payload   map[string]string
}

// Get returns one payload field, or "" when absent.
func (e Event) Get(key string) string {
	return e.Payload[key]
}
