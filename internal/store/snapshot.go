package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/matheus3301/rentchat/internal/chat"
)

// SaveSnapshot stores the conversation list and the given message logs for
// the next warm start. Conversations are upserted; each supplied log
// replaces the stored log of its conversation.
func (db *DB) SaveSnapshot(ctx context.Context, convs []chat.Conversation, threads map[string][]chat.Message) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		return saveSnapshot(ctx, tx, convs, threads)
	})
}

func saveSnapshot(ctx context.Context, tx *sql.Tx, convs []chat.Conversation, threads map[string][]chat.Message) error {
	now := time.Now().UnixMilli()
	for _, c := range convs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversations (id, subject, last_message, last_activity_at, unread_count, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				subject = excluded.subject,
				last_message = excluded.last_message,
				last_activity_at = MAX(conversations.last_activity_at, excluded.last_activity_at),
				unread_count = excluded.unread_count,
				updated_at = excluded.updated_at`,
			c.ID, c.Subject, c.LastMessage, c.LastActivityAt.UnixMilli(), max(c.UnreadCount, 0), now); err != nil {
			return fmt.Errorf("upsert conversation %s: %w", c.ID, err)
		}
	}

	for id, msgs := range threads {
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
			return fmt.Errorf("clear messages %s: %w", id, err)
		}
		for _, m := range msgs {
			if m.ID == "" {
				continue
			}
			var readAt sql.NullInt64
			if m.ReadAt != nil {
				readAt = sql.NullInt64{Int64: m.ReadAt.UnixMilli(), Valid: true}
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO messages (conversation_id, id, correlation_id, sender_id, content, sent_at, read_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(conversation_id, id) DO NOTHING`,
				id, m.ID, m.CorrelationID, m.SenderID, m.Content, m.SentAt.UnixMilli(), readAt); err != nil {
				return fmt.Errorf("insert message %s/%s: %w", id, m.ID, err)
			}
		}
	}

	return nil
}

// LoadConversations returns the stored conversation list, most recent first.
func (db *DB) LoadConversations(ctx context.Context) ([]chat.Conversation, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, subject, last_message, last_activity_at, unread_count
		FROM conversations
		ORDER BY last_activity_at DESC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var convs []chat.Conversation
	for rows.Next() {
		var (
			c        chat.Conversation
			activity int64
		)
		if err := rows.Scan(&c.ID, &c.Subject, &c.LastMessage, &activity, &c.UnreadCount); err != nil {
			return nil, err
		}
		c.LastActivityAt = time.UnixMilli(activity).UTC()
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// LoadMessages returns the stored log of one conversation in send order.
func (db *DB) LoadMessages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, correlation_id, sender_id, content, sent_at, read_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY sent_at ASC, id ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []chat.Message
	for rows.Next() {
		var (
			m      chat.Message
			sentAt int64
			readAt sql.NullInt64
		)
		if err := rows.Scan(&m.ID, &m.CorrelationID, &m.SenderID, &m.Content, &sentAt, &readAt); err != nil {
			return nil, err
		}
		m.ConversationID = conversationID
		m.SentAt = time.UnixMilli(sentAt).UTC()
		if readAt.Valid {
			ts := time.UnixMilli(readAt.Int64).UTC()
			m.ReadAt = &ts
		}
		m.State = chat.Sent
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
