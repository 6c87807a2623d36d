// Package unread derives conversation badge counts from the message logs.
package unread

import (
	"github.com/matheus3301/rentchat/internal/conversations"
	"github.com/matheus3301/rentchat/internal/messages"
)

// Aggregator pushes derived unread counts into the conversation index. It has
// no state of its own.
type Aggregator struct {
	store       *messages.Store
	index       *conversations.Index
	currentUser string
}

// New creates an aggregator for the given user.
func New(store *messages.Store, index *conversations.Index, currentUser string) *Aggregator {
	return &Aggregator{store: store, index: index, currentUser: currentUser}
}

// Recompute refreshes one conversation's badge. Conversations whose log was
// never loaded keep the count reported by the server. It reports whether the
// badge changed.
func (a *Aggregator) Recompute(conversationID string) bool {
	n, loaded := a.store.Unread(conversationID, a.currentUser)
	if !loaded {
		return false
	}
	return a.index.SetUnread(conversationID, n)
}

// RecomputeAll refreshes every loaded conversation and returns the ids whose
// badge changed.
func (a *Aggregator) RecomputeAll() []string {
	var changed []string
	for _, id := range a.store.Conversations() {
		if a.Recompute(id) {
			changed = append(changed, id)
		}
	}
	return changed
}

// Cleared is called after the service accepted a mark-read. Loaded
// conversations are recomputed; unloaded ones drop their server count.
func (a *Aggregator) Cleared(conversationID string) bool {
	if _, loaded := a.store.Unread(conversationID, a.currentUser); loaded {
		return a.Recompute(conversationID)
	}
	return a.index.SetUnread(conversationID, 0)
}
