package views

import (
	"fmt"
	"strings"

	"github.com/matheus3301/rentchat/internal/api"
	"github.com/matheus3301/rentchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// ConversationInfo displays detailed information about a conversation.
type ConversationInfo struct {
	*tview.TextView
	theme *ui.Theme
}

// NewConversationInfo creates a new conversation info view.
func NewConversationInfo(theme *ui.Theme) *ConversationInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetWordWrap(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Conversation Details ")
	tv.SetTitleColor(theme.TitleColor)

	return &ConversationInfo{TextView: tv, theme: theme}
}

// Name implements ui.Component.
func (ci *ConversationInfo) Name() string { return "details" }

// Start implements ui.Component.
func (ci *ConversationInfo) Start() {}

// Stop implements ui.Component.
func (ci *ConversationInfo) Stop() {}

// Hints implements ui.Component.
func (ci *ConversationInfo) Hints() []ui.MenuHint {
	return []ui.MenuHint{{Key: "esc", Description: "Back"}}
}

// Update renders conversation details.
func (ci *ConversationInfo) Update(c api.Conversation) {
	fg := ui.Tag(ci.theme.FgColor)
	ct := ui.Tag(ci.theme.CounterColor)

	lastActive := "-"
	if !c.LastActivityAt.IsZero() {
		lastActive = c.LastActivityAt.Local().Format("2006-01-02 15:04:05")
	}
	subject := c.Subject
	if subject == "" {
		subject = "-"
	}

	rows := [][2]string{
		{"Subject:", subject},
		{"ID:", c.ID},
		{"Unread:", fmt.Sprint(c.UnreadCount)},
		{"Last Active:", lastActive},
		{"Last Message:", c.LastMessage},
	}
	var b strings.Builder
	b.WriteByte('\n')
	for _, r := range rows {
		fmt.Fprintf(&b, " [%s::b]%-14s[-:-:-][%s]%s[-]\n", fg, r[0], ct, tview.Escape(sanitizeForTerminal(r[1])))
	}
	ci.SetText(b.String())
	ci.SetTitle(fmt.Sprintf(" %s ", tview.Escape(sanitizeForTerminal(subject))))
}
