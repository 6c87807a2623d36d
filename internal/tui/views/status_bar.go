package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/rentchat/internal/status"
	"github.com/matheus3301/rentchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// StatusBar displays the session state, the unread total and the current
// flash message.
type StatusBar struct {
	*tview.TextView
	theme   *ui.Theme
	session string
	state   string
	unread  int
	flash   *ui.FlashMessage
	now     func() time.Time
}

// NewStatusBar creates a new status bar.
func NewStatusBar(theme *ui.Theme) *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	sb := &StatusBar{TextView: tv, theme: theme, now: time.Now}
	sb.render()
	return sb
}

// SetSession updates the session name display.
func (sb *StatusBar) SetSession(name string) {
	sb.session = name
	sb.render()
}

// SetState updates the session state and unread total.
func (sb *StatusBar) SetState(state string, unread int) {
	sb.state = state
	sb.unread = unread
	sb.render()
}

// SetFlash shows msg, or clears the flash when msg is nil.
func (sb *StatusBar) SetFlash(msg *ui.FlashMessage) {
	sb.flash = msg
	sb.render()
}

func (sb *StatusBar) render() {
	state := sb.state
	if state == "" {
		state = "connecting"
	}
	stateColor := "green"
	switch status.State(state) {
	case status.Unauthorized, status.Error:
		stateColor = ui.Tag(sb.theme.FailedColor)
	case status.Ready:
	default:
		stateColor = ui.Tag(sb.theme.FlashWarnColor)
	}

	var b strings.Builder
	fmt.Fprintf(&b, " [::b]%s[-:-:-] | [%s]%s[-]", tview.Escape(sb.session), stateColor, state)
	if sb.unread > 0 {
		fmt.Fprintf(&b, " | [%s::b]%d unread[-:-:-]", ui.Tag(sb.theme.UnreadColor), sb.unread)
	}
	fmt.Fprintf(&b, " | %s", sb.now().Format("15:04"))
	if sb.flash != nil {
		fmt.Fprintf(&b, " | %s", sb.flash.Markup(sb.theme))
	}
	sb.SetText(b.String())
}
