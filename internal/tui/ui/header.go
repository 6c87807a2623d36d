package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
)

// SessionData is the daemon state shown in the header.
type SessionData struct {
	Session       string
	UserID        string
	State         string
	Conversations int
	Unread        int
}

// Header shows session facts on the left and key hints on the right.
type Header struct {
	*tview.Flex
	theme *Theme
	info  *tview.TextView
	menu  *tview.TextView
}

// NewHeader creates the header bar.
func NewHeader(theme *Theme) *Header {
	info := tview.NewTextView().SetDynamicColors(true)
	info.SetBackgroundColor(theme.BgColor)
	info.SetBorderPadding(0, 0, 1, 1)

	menu := tview.NewTextView().SetDynamicColors(true)
	menu.SetBackgroundColor(theme.BgColor)
	menu.SetBorderPadding(0, 0, 2, 0)

	flex := tview.NewFlex().
		AddItem(info, 0, 1, false).
		AddItem(menu, 0, 1, false)

	return &Header{Flex: flex, theme: theme, info: info, menu: menu}
}

// SetSession renders the session facts.
func (h *Header) SetSession(d SessionData) {
	fg := Tag(h.theme.FgColor)
	ct := Tag(h.theme.CounterColor)
	user := d.UserID
	if user == "" {
		user = "-"
	}
	rows := [][2]string{
		{"Session:", d.Session},
		{"User:", user},
		{"Status:", d.State},
		{"Chats:", fmt.Sprint(d.Conversations)},
		{"Unread:", fmt.Sprint(d.Unread)},
	}
	var b strings.Builder
	for i, r := range rows {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "[%s::b]%-9s[-:-:-][%s]%s[-]", fg, r[0], ct, tview.Escape(r[1]))
	}
	h.info.SetText(b.String())
}

// SetHints renders key hints, one per line.
func (h *Header) SetHints(hints []MenuHint) {
	kc := Tag(h.theme.MenuKeyColor)
	var b strings.Builder
	for _, hint := range hints {
		fmt.Fprintf(&b, "[%s::b]<%s>[-:-:-] %s\n", kc, tview.Escape(hint.Key), hint.Description)
	}
	h.menu.SetText(b.String())
}
