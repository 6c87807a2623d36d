package store

// Outbox entry states.
const (
	OutboxQueued = "queued"
	OutboxSent   = "sent"
	OutboxFailed = "failed"
)

// InterruptedReason is recorded on sends that were in flight when the
// daemon stopped.
const InterruptedReason = "interrupted by daemon shutdown"

// OutboxEntry is one row of the send journal.
type OutboxEntry struct {
	CorrelationID  string
	ConversationID string
	SenderID       string
	Content        string
	Status         string
	ErrorMessage   string
	ServerMsgID    string
	CreatedAt      int64
	UpdatedAt      int64
}
