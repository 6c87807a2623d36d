package views

import (
	"fmt"

	"github.com/matheus3301/rentchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// HelpView displays the key and command reference.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHelpView creates a new help view.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	hv := &HelpView{TextView: tv, theme: theme}
	hv.render()
	return hv
}

// Name implements ui.Component.
func (hv *HelpView) Name() string { return "help" }

// Start implements ui.Component.
func (hv *HelpView) Start() {}

// Stop implements ui.Component.
func (hv *HelpView) Stop() {}

// Hints implements ui.Component.
func (hv *HelpView) Hints() []ui.MenuHint {
	return []ui.MenuHint{{Key: "esc", Description: "Back"}}
}

var helpSections = []struct {
	title string
	rows  [][2]string
}{
	{"Global", [][2]string{
		{":", "Command mode"},
		{"?", "This help"},
		{"esc", "Cancel / go back"},
		{"q", "Quit (from the list)"},
		{"ctrl-c", "Quit immediately"},
	}},
	{"Conversations", [][2]string{
		{"enter", "Open conversation"},
		{"1-9", "Open Nth visible conversation"},
		{"/", "Filter by subject or message"},
		{"n", "New conversation"},
		{"i", "Details"},
	}},
	{"Thread", [][2]string{
		{"c", "Focus composer"},
		{"enter", "Send (in composer)"},
		{"r", "Resend last failed message"},
		{"i", "Details"},
	}},
	{"Commands", [][2]string{
		{":open <id>", "Open conversation by id"},
		{":new <subject> | <message>", "Start a conversation"},
		{":resend", "Resend last failed message"},
		{":filter <text>", "Filter the list"},
		{":help, :h", "This help"},
		{":quit, :q", "Quit"},
	}},
}

func (hv *HelpView) render() {
	kc := ui.Tag(hv.theme.MenuKeyColor)
	for _, s := range helpSections {
		fmt.Fprintf(hv, "\n  [::b]%s[-:-:-]\n\n", s.title)
		for _, r := range s.rows {
			fmt.Fprintf(hv, "  [%s]%-28s[-] %s\n", kc, tview.Escape(r[0]), r[1])
		}
	}
}
