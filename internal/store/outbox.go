package store

import (
	"context"
	"time"

	"github.com/matheus3301/rentchat/internal/chat"
)

// RecordSend journals a send as queued.
func (db *DB) RecordSend(ctx context.Context, m chat.Message) error {
	created := m.SentAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO outbox (correlation_id, conversation_id, sender_id, content, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'queued', ?, ?)
		ON CONFLICT(correlation_id) DO NOTHING`,
		m.CorrelationID, m.ConversationID, m.SenderID, m.Content, created.UnixMilli(), time.Now().UnixMilli())
	return err
}

// MarkSendSent records the server id of an acknowledged send.
func (db *DB) MarkSendSent(ctx context.Context, correlationID, messageID string) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `UPDATE outbox SET status = 'sent', server_msg_id = ?, error_message = '', updated_at = ? WHERE correlation_id = ?`,
		messageID, now, correlationID)
	return err
}

// MarkSendFailed records why a send failed. Sent entries are left alone.
func (db *DB) MarkSendFailed(ctx context.Context, correlationID, reason string) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `UPDATE outbox SET status = 'failed', error_message = ?, updated_at = ? WHERE correlation_id = ? AND status != 'sent'`,
		reason, now, correlationID)
	return err
}

// ForgetSend removes an entry, used when a failed send is resent.
func (db *DB) ForgetSend(ctx context.Context, correlationID string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM outbox WHERE correlation_id = ?`, correlationID)
	return err
}

// InterruptPendingSends marks every queued entry failed. It runs at startup:
// a queued entry means the daemon stopped before the service answered.
func (db *DB) InterruptPendingSends(ctx context.Context) (int64, error) {
	now := time.Now().UnixMilli()
	res, err := db.ExecContext(ctx, `UPDATE outbox SET status = 'failed', error_message = ?, updated_at = ? WHERE status = 'queued'`,
		InterruptedReason, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// FailedSends returns failed entries as messages, oldest first.
func (db *DB) FailedSends(ctx context.Context) ([]chat.Message, error) {
	entries, err := db.OutboxByStatus(ctx, OutboxFailed)
	if err != nil {
		return nil, err
	}
	msgs := make([]chat.Message, 0, len(entries))
	for _, e := range entries {
		msgs = append(msgs, chat.Message{
			CorrelationID:  e.CorrelationID,
			ConversationID: e.ConversationID,
			SenderID:       e.SenderID,
			Content:        e.Content,
			SentAt:         time.UnixMilli(e.CreatedAt),
			State:          chat.Failed,
		})
	}
	return msgs, nil
}

// OutboxByStatus lists journal entries in one state, oldest first.
func (db *DB) OutboxByStatus(ctx context.Context, status string) ([]OutboxEntry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT correlation_id, conversation_id, sender_id, content, status, error_message, server_msg_id, created_at, updated_at
		FROM outbox WHERE status = ? ORDER BY created_at ASC`, status)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		if err := rows.Scan(&e.CorrelationID, &e.ConversationID, &e.SenderID, &e.Content, &e.Status,
			&e.ErrorMessage, &e.ServerMsgID, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PruneSentSends deletes acknowledged entries last updated before cutoff.
func (db *DB) PruneSentSends(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM outbox WHERE status = 'sent' AND updated_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
