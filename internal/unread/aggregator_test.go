package unread

import (
	"testing"
	"time"

	"github.com/matheus3301/rentchat/internal/chat"
	"github.com/matheus3301/rentchat/internal/conversations"
	"github.com/matheus3301/rentchat/internal/messages"
	"github.com/stretchr/testify/assert"
)

func TestRecomputeFromLoadedLog(t *testing.T) {
	store := messages.New()
	index := conversations.New()
	agg := New(store, index, "me")

	now := time.Now()
	index.Upsert(chat.Conversation{ID: "7", LastActivityAt: now, UnreadCount: 0})
	store.Merge("7", []chat.Message{
		{ID: "1", SenderID: "landlord", SentAt: now},
		{ID: "2", SenderID: "landlord", SentAt: now.Add(time.Second)},
		{ID: "3", SenderID: "me", SentAt: now.Add(2 * time.Second)},
	})

	assert.True(t, agg.Recompute("7"))
	c, _ := index.Get("7")
	assert.Equal(t, 2, c.UnreadCount)

	assert.False(t, agg.Recompute("7"), "no change on second pass")
}

func TestRecomputeKeepsServerCountForUnloaded(t *testing.T) {
	store := messages.New()
	index := conversations.New()
	agg := New(store, index, "me")

	index.Upsert(chat.Conversation{ID: "9", LastActivityAt: time.Now(), UnreadCount: 4})
	assert.False(t, agg.Recompute("9"))
	c, _ := index.Get("9")
	assert.Equal(t, 4, c.UnreadCount)
}

func TestRecomputeAll(t *testing.T) {
	store := messages.New()
	index := conversations.New()
	agg := New(store, index, "me")

	now := time.Now()
	for _, id := range []string{"a", "b"} {
		index.Upsert(chat.Conversation{ID: id, LastActivityAt: now})
	}
	store.Merge("a", []chat.Message{{ID: "1", SenderID: "x", SentAt: now}})
	store.Merge("b", nil)

	assert.Equal(t, []string{"a"}, agg.RecomputeAll())
}

func TestClearedDropsServerCountForUnloaded(t *testing.T) {
	store := messages.New()
	index := conversations.New()
	agg := New(store, index, "me")

	index.Upsert(chat.Conversation{ID: "3", LastActivityAt: time.Now(), UnreadCount: 5})
	assert.True(t, agg.Cleared("3"))
	c, _ := index.Get("3")
	assert.Equal(t, 0, c.UnreadCount)
}
