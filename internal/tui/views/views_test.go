package views

import (
	"testing"
	"time"

	"github.com/matheus3301/rentchat/internal/api"
	"github.com/matheus3301/rentchat/internal/tui/ui"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeForTerminal(t *testing.T) {
	assert.Equal(t, "ok\nnext  col", sanitizeForTerminal("ok\nnext\t col"))
	assert.Equal(t, "[31mred", sanitizeForTerminal("\x1b[31mred"))
	assert.Equal(t, "👍", sanitizeForTerminal("👍🏻"))
	assert.Equal(t, "ab", sanitizeForTerminal("a\rb\x00"))
}

func TestConversationListFilterAndIndex(t *testing.T) {
	cl := NewConversationList(ui.DefaultTheme())
	cl.Update([]api.Conversation{
		{ID: "1", Subject: "Tent rental", LastMessage: "is it free?"},
		{ID: "2", Subject: "Stage lights", UnreadCount: 3},
		{ID: "3", LastMessage: "Tent poles too"},
	})
	assert.Equal(t, "2", cl.ByIndex(2))
	assert.Empty(t, cl.ByIndex(4))
	assert.Empty(t, cl.ByIndex(0))

	cl.SetFilter("  tent ")
	assert.Equal(t, "tent", cl.Filter())
	assert.Equal(t, "1", cl.ByIndex(1))
	assert.Equal(t, "3", cl.ByIndex(2))
	assert.Empty(t, cl.ByIndex(3))
	assert.Equal(t, "1", cl.SelectedID())

	cl.SetFilter("")
	assert.Equal(t, 4, cl.GetRowCount())
}

func TestConversationListSelectionFollowsID(t *testing.T) {
	cl := NewConversationList(ui.DefaultTheme())
	cl.Update([]api.Conversation{{ID: "a"}, {ID: "b"}})
	cl.Select(2, 0)
	require.Equal(t, "b", cl.SelectedID())

	// "b" moved to the top after new activity.
	cl.Update([]api.Conversation{{ID: "b"}, {ID: "a"}})
	assert.Equal(t, "b", cl.SelectedID())
}

func TestMessageThreadMarkers(t *testing.T) {
	mt := NewMessageThread(ui.DefaultTheme())
	mt.now = func() time.Time { return time.Date(2026, 3, 1, 18, 0, 0, 0, time.Local) }
	sent := time.Date(2026, 3, 1, 12, 30, 0, 0, time.Local)

	out := mt.renderMessages([]api.Message{
		{ID: "1", SenderID: "landlord", Content: "hello [red]", SentAt: sent, State: "sent"},
		{CorrelationID: "c1", Own: true, Content: "hi", SentAt: sent, State: "pending"},
		{CorrelationID: "c2", Own: true, Content: "again", SentAt: sent, State: "failed"},
	})
	assert.Contains(t, out, "landlord")
	assert.Contains(t, out, "12:30")
	assert.Contains(t, out, "hello [red[]")
	assert.Contains(t, out, "You")
	assert.Contains(t, out, "…")
	assert.Contains(t, out, "not delivered")
}

func TestMessageThreadSwitchClearsComposer(t *testing.T) {
	mt := NewMessageThread(ui.DefaultTheme())
	mt.SetConversation("1", "Tent rental")
	mt.Composer().SetText("draft")
	mt.SetConversation("1", "Tent rental")
	assert.Equal(t, "draft", mt.Composer().GetText())
	mt.SetConversation("2", "")
	assert.Empty(t, mt.Composer().GetText())
	assert.Equal(t, "2", mt.ConversationID())
}
