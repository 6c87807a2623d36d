package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/rentchat/internal/api"
	"github.com/matheus3301/rentchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// MessageThread displays the log of one conversation and a composer.
type MessageThread struct {
	*tview.Flex
	theme    *ui.Theme
	messages *tview.TextView
	composer *tview.InputField
	convID   string
	onSend   func(text string)
	now      func() time.Time
}

// NewMessageThread creates a new message thread view.
func NewMessageThread(theme *ui.Theme) *MessageThread {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitle(" Messages ")
	messages.SetTitleColor(theme.TitleColor)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.MenuKeyColor)
	composer.SetTitle(" Compose (c to focus) ")
	composer.SetTitleColor(theme.TitleColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(composer, 3, 0, false)

	mt := &MessageThread{
		Flex:     flex,
		theme:    theme,
		messages: messages,
		composer: composer,
		now:      time.Now,
	}

	composer.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter || mt.onSend == nil {
			return
		}
		text := composer.GetText()
		if strings.TrimSpace(text) == "" {
			return
		}
		composer.SetText("")
		mt.onSend(text)
	})

	return mt
}

// Name implements ui.Component.
func (mt *MessageThread) Name() string { return "thread" }

// Start implements ui.Component.
func (mt *MessageThread) Start() {}

// Stop implements ui.Component.
func (mt *MessageThread) Stop() {}

// Hints implements ui.Component.
func (mt *MessageThread) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "c", Description: "Compose"},
		{Key: "r", Description: "Resend failed"},
		{Key: "i", Description: "Details"},
		{Key: "esc", Description: "Back"},
	}
}

// SetConversation switches the thread to another conversation.
func (mt *MessageThread) SetConversation(id, subject string) {
	if id != mt.convID {
		mt.messages.Clear()
		mt.composer.SetText("")
	}
	mt.convID = id
	if subject == "" {
		subject = "#" + id
	}
	mt.messages.SetTitle(fmt.Sprintf(" %s ", tview.Escape(sanitizeForTerminal(subject))))
}

// ConversationID returns the conversation shown.
func (mt *MessageThread) ConversationID() string { return mt.convID }

// SetOnSend sets the callback for composer submissions.
func (mt *MessageThread) SetOnSend(fn func(text string)) {
	mt.onSend = fn
}

// Update renders the log, oldest first, and scrolls to the newest entry.
func (mt *MessageThread) Update(msgs []api.Message) {
	mt.messages.SetText(mt.renderMessages(msgs))
	mt.messages.ScrollToEnd()
}

func (mt *MessageThread) renderMessages(msgs []api.Message) string {
	var b strings.Builder
	now := mt.now()
	for _, m := range msgs {
		sender := sanitizeForTerminal(m.SenderID)
		color := mt.theme.FgColor
		if m.Own {
			sender = "You"
			color = mt.theme.OwnColor
		}

		marker := ""
		switch m.State {
		case "pending":
			marker = fmt.Sprintf(" [%s]…[-]", ui.Tag(mt.theme.PendingColor))
		case "failed":
			marker = fmt.Sprintf(" [%s::b]! not delivered[-:-:-]", ui.Tag(mt.theme.FailedColor))
		}

		fmt.Fprintf(&b, "[%s::b]%s[-:-:-] [::d]%s[-:-:-]%s\n%s\n\n",
			ui.Tag(color), tview.Escape(sender), formatTimestamp(m.SentAt, now), marker,
			tview.Escape(sanitizeForTerminal(m.Content)))
	}
	return b.String()
}

// Messages returns the log view for focus management.
func (mt *MessageThread) Messages() *tview.TextView {
	return mt.messages
}

// Composer returns the composer for focus management.
func (mt *MessageThread) Composer() *tview.InputField {
	return mt.composer
}
