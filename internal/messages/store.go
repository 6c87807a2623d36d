// Package messages holds the per-conversation ordered message logs that the
// UI renders from. A Store is owned by the engine loop and is not safe for
// concurrent use.
package messages

import (
	"iter"
	"slices"
	"time"

	"github.com/matheus3301/rentchat/internal/chat"
)

// Store is the in-memory message log, keyed by conversation.
type Store struct {
	threads map[string][]chat.Message
	byCorr  map[string]string // correlation id -> conversation id
	loaded  map[string]bool   // conversations merged from the service at least once
}

// New creates an empty store.
func New() *Store {
	return &Store{
		threads: make(map[string][]chat.Message),
		byCorr:  make(map[string]string),
		loaded:  make(map[string]bool),
	}
}

// Append inserts m into its sorted position. An entry that already exists
// with the same ID or correlation id is left untouched.
func (s *Store) Append(conversationID string, m chat.Message) bool {
	m.ConversationID = conversationID
	msgs := s.threads[conversationID]
	if m.ID != "" && indexByID(msgs, m.ID) >= 0 {
		return false
	}
	if m.CorrelationID != "" {
		if _, ok := s.byCorr[m.CorrelationID]; ok {
			return false
		}
	}
	s.insert(conversationID, m)
	return true
}

// Replace reconciles the pending entry for correlationID with the server's
// copy. If a poll already delivered that server message, the pending entry is
// folded into it so only one entry remains.
func (s *Store) Replace(correlationID string, server chat.Message) bool {
	conv, ok := s.byCorr[correlationID]
	if !ok {
		return false
	}
	msgs := s.threads[conv]
	i := indexByCorr(msgs, correlationID)
	if i < 0 {
		return false
	}
	local := msgs[i]

	if server.ID != "" {
		if j := indexByID(msgs, server.ID); j >= 0 && j != i {
			s.threads[conv] = slices.Delete(msgs, i, i+1)
			if j > i {
				j--
			}
			s.threads[conv][j].CorrelationID = correlationID
			s.threads[conv][j].State = chat.Sent
			return true
		}
	}

	merged := server
	merged.ConversationID = conv
	merged.CorrelationID = correlationID
	merged.State = chat.Sent
	if merged.SenderID == "" {
		merged.SenderID = local.SenderID
	}
	if merged.Content == "" {
		merged.Content = local.Content
	}
	if merged.SentAt.IsZero() {
		merged.SentAt = local.SentAt
	}
	if merged.ReadAt == nil {
		merged.ReadAt = local.ReadAt
	}
	s.threads[conv] = slices.Delete(msgs, i, i+1)
	s.insert(conv, merged)
	return true
}

// MarkFailed moves a pending entry to failed, keeping its position.
func (s *Store) MarkFailed(correlationID string) bool {
	conv, ok := s.byCorr[correlationID]
	if !ok {
		return false
	}
	msgs := s.threads[conv]
	i := indexByCorr(msgs, correlationID)
	if i < 0 || msgs[i].State != chat.Pending {
		return false
	}
	msgs[i].State = chat.Failed
	return true
}

// Discard removes a failed entry. Pending and sent entries cannot be removed.
func (s *Store) Discard(correlationID string) bool {
	conv, ok := s.byCorr[correlationID]
	if !ok {
		return false
	}
	msgs := s.threads[conv]
	i := indexByCorr(msgs, correlationID)
	if i < 0 || msgs[i].State != chat.Failed {
		return false
	}
	s.threads[conv] = slices.Delete(msgs, i, i+1)
	delete(s.byCorr, correlationID)
	return true
}

// Lookup returns the entry for correlationID.
func (s *Store) Lookup(correlationID string) (chat.Message, bool) {
	conv, ok := s.byCorr[correlationID]
	if !ok {
		return chat.Message{}, false
	}
	msgs := s.threads[conv]
	i := indexByCorr(msgs, correlationID)
	if i < 0 {
		return chat.Message{}, false
	}
	return clone(msgs[i]), true
}

// Merge ingests a fetched server log. Entries are matched by correlation id,
// then by server ID, then to the earliest pending send with the same sender
// and content, since the service need not echo correlation ids. Unmatched
// ones are inserted; entries with neither an ID nor a correlation id are
// skipped. It returns the number of entries inserted or changed.
func (s *Store) Merge(conversationID string, fetched []chat.Message) int {
	s.loaded[conversationID] = true
	changed := 0
	for _, f := range fetched {
		if f.ID == "" && f.CorrelationID == "" {
			continue
		}
		f.ConversationID = conversationID
		f.State = chat.Sent

		msgs := s.threads[conversationID]
		i := -1
		if f.CorrelationID != "" && s.byCorr[f.CorrelationID] == conversationID {
			i = indexByCorr(msgs, f.CorrelationID)
		}
		if i < 0 && f.ID != "" {
			i = indexByID(msgs, f.ID)
		}
		if i < 0 && f.ID != "" {
			i = indexPendingSend(msgs, f)
		}
		if i < 0 {
			if f.CorrelationID != "" {
				if _, taken := s.byCorr[f.CorrelationID]; taken {
					f.CorrelationID = ""
				}
			}
			s.insert(conversationID, f)
			changed++
			continue
		}

		local := msgs[i]
		merged := local
		if f.ID != "" {
			merged.ID = f.ID
		}
		if f.SenderID != "" {
			merged.SenderID = f.SenderID
		}
		if !f.SentAt.IsZero() {
			merged.SentAt = f.SentAt
		}
		merged.Content = f.Content
		merged.State = chat.Sent
		if merged.CorrelationID == "" && f.CorrelationID != "" {
			if _, taken := s.byCorr[f.CorrelationID]; !taken {
				merged.CorrelationID = f.CorrelationID
			}
		}
		// Local read marks win over a lagging server copy.
		if merged.ReadAt == nil && f.ReadAt != nil {
			merged.ReadAt = f.ReadAt
		}
		if equal(local, merged) {
			continue
		}
		changed++
		if local.SentAt.Equal(merged.SentAt) && local.ID == merged.ID {
			msgs[i] = merged
			if merged.CorrelationID != "" {
				s.byCorr[merged.CorrelationID] = conversationID
			}
			continue
		}
		s.threads[conversationID] = slices.Delete(msgs, i, i+1)
		s.insert(conversationID, merged)
	}
	return changed
}

// MarkRead sets ReadAt on every counterpart message lacking it and returns
// how many entries changed.
func (s *Store) MarkRead(conversationID, currentUser string, at time.Time) int {
	msgs := s.threads[conversationID]
	n := 0
	for i := range msgs {
		if msgs[i].Unread(currentUser) {
			ts := at
			msgs[i].ReadAt = &ts
			n++
		}
	}
	return n
}

// Loaded reports whether the conversation log was ever merged from the
// service. Local sends alone do not load a conversation.
func (s *Store) Loaded(conversationID string) bool {
	return s.loaded[conversationID]
}

// Unread counts counterpart messages without ReadAt. The second result is
// false when the conversation log has never been loaded.
func (s *Store) Unread(conversationID, currentUser string) (int, bool) {
	if !s.loaded[conversationID] {
		return 0, false
	}
	msgs := s.threads[conversationID]
	n := 0
	for i := range msgs {
		if msgs[i].Unread(currentUser) {
			n++
		}
	}
	return n, true
}

// List returns the conversation log in render order. The sequence reads the
// live log, so it must be consumed on the goroutine that owns the store.
func (s *Store) List(conversationID string) iter.Seq[chat.Message] {
	return func(yield func(chat.Message) bool) {
		for _, m := range s.threads[conversationID] {
			if !yield(clone(m)) {
				return
			}
		}
	}
}

// Snapshot copies the conversation log.
func (s *Store) Snapshot(conversationID string) []chat.Message {
	return slices.Collect(s.List(conversationID))
}

// Last returns the newest entry of a conversation.
func (s *Store) Last(conversationID string) (chat.Message, bool) {
	msgs := s.threads[conversationID]
	if len(msgs) == 0 {
		return chat.Message{}, false
	}
	return clone(msgs[len(msgs)-1]), true
}

// Len returns the number of entries in a conversation.
func (s *Store) Len(conversationID string) int {
	return len(s.threads[conversationID])
}

// Conversations lists every conversation with a loaded log.
func (s *Store) Conversations() []string {
	ids := make([]string, 0, len(s.loaded))
	for id := range s.loaded {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (s *Store) insert(conversationID string, m chat.Message) {
	msgs := s.threads[conversationID]
	pos, _ := slices.BinarySearchFunc(msgs, m, func(e, target chat.Message) int {
		if chat.Less(&target, &e) {
			return 1
		}
		return -1
	})
	s.threads[conversationID] = slices.Insert(msgs, pos, m)
	if m.CorrelationID != "" {
		s.byCorr[m.CorrelationID] = conversationID
	}
}

func indexByCorr(msgs []chat.Message, correlationID string) int {
	return slices.IndexFunc(msgs, func(m chat.Message) bool { return m.CorrelationID == correlationID })
}

func indexByID(msgs []chat.Message, id string) int {
	return slices.IndexFunc(msgs, func(m chat.Message) bool { return m.ID == id })
}

// indexPendingSend finds the earliest unacknowledged send that f is the
// server copy of.
func indexPendingSend(msgs []chat.Message, f chat.Message) int {
	if f.SenderID == "" {
		return -1
	}
	return slices.IndexFunc(msgs, func(m chat.Message) bool {
		return m.State == chat.Pending && m.ID == "" && m.SenderID == f.SenderID && m.Content == f.Content
	})
}

func clone(m chat.Message) chat.Message {
	if m.ReadAt != nil {
		ts := *m.ReadAt
		m.ReadAt = &ts
	}
	return m
}

func equal(a, b chat.Message) bool {
	if (a.ReadAt == nil) != (b.ReadAt == nil) {
		return false
	}
	if a.ReadAt != nil && !a.ReadAt.Equal(*b.ReadAt) {
		return false
	}
	return a.ID == b.ID && a.CorrelationID == b.CorrelationID && a.SenderID == b.SenderID &&
		a.Content == b.Content && a.SentAt.Equal(b.SentAt) && a.State == b.State
}
