// Package conversations keeps the conversation list ordered by recency.
package conversations

import (
	"slices"
	"strings"
	"time"

	"github.com/matheus3301/rentchat/internal/chat"
)

// Index is the per-session set of conversation summaries. It is owned by the
// engine loop and is not safe for concurrent use.
type Index struct {
	byID map[string]chat.Conversation
}

// New creates an empty index.
func New() *Index {
	return &Index{byID: make(map[string]chat.Conversation)}
}

// Upsert merges a fetched summary. A summary whose LastActivityAt is strictly
// older than the cached one is discarded, so a slow poll response cannot
// overwrite fresher state. It reports whether the summary was applied.
func (x *Index) Upsert(c chat.Conversation) bool {
	if c.ID == "" {
		return false
	}
	if c.UnreadCount < 0 {
		c.UnreadCount = 0
	}
	cur, ok := x.byID[c.ID]
	if ok && c.LastActivityAt.Before(cur.LastActivityAt) {
		return false
	}
	if ok && c.Subject == "" {
		c.Subject = cur.Subject
	}
	x.byID[c.ID] = c
	return true
}

// Touch records local activity (a send) on a conversation. It never moves
// LastActivityAt backwards.
func (x *Index) Touch(id, lastMessage string, at time.Time) {
	c, ok := x.byID[id]
	if !ok {
		c = chat.Conversation{ID: id}
	}
	if at.Before(c.LastActivityAt) {
		return
	}
	c.LastActivityAt = at
	c.LastMessage = chat.Summary(lastMessage)
	x.byID[id] = c
}

// SetUnread overwrites the derived unread count of a known conversation.
func (x *Index) SetUnread(id string, n int) bool {
	c, ok := x.byID[id]
	if !ok {
		return false
	}
	if n < 0 {
		n = 0
	}
	if c.UnreadCount == n {
		return false
	}
	c.UnreadCount = n
	x.byID[id] = c
	return true
}

// Get returns one summary.
func (x *Index) Get(id string) (chat.Conversation, bool) {
	c, ok := x.byID[id]
	return c, ok
}

// Len returns the number of known conversations.
func (x *Index) Len() int {
	return len(x.byID)
}

// List returns summaries ordered by LastActivityAt descending, ties by ID.
func (x *Index) List() []chat.Conversation {
	out := make([]chat.Conversation, 0, len(x.byID))
	for _, c := range x.byID {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b chat.Conversation) int {
		if c := b.LastActivityAt.Compare(a.LastActivityAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// TotalUnread sums the unread badges.
func (x *Index) TotalUnread() int {
	n := 0
	for _, c := range x.byID {
		n += c.UnreadCount
	}
	return n
}
