package ui

import (
	"fmt"
	"sync"
	"time"

	"github.com/rivo/tview"
)

// FlashLevel represents the severity of a flash message.
type FlashLevel int

const (
	FlashInfo FlashLevel = iota
	FlashWarn
	FlashErr
)

// FlashMessage is a flash notification with a level and expiry.
type FlashMessage struct {
	Text    string
	Level   FlashLevel
	Expires time.Time
}

// FlashModel holds the current transient notification. It is written from
// background goroutines and read on the draw goroutine.
type FlashModel struct {
	mu      sync.RWMutex
	current FlashMessage
	pinned  *FlashMessage
	now     func() time.Time
}

// NewFlashModel creates a new flash model.
func NewFlashModel() *FlashModel {
	return &FlashModel{now: time.Now}
}

// Info sets an info-level flash message.
func (f *FlashModel) Info(msg string) {
	f.set(msg, FlashInfo, 4*time.Second)
}

// Warn sets a warn-level flash message.
func (f *FlashModel) Warn(msg string) {
	f.set(msg, FlashWarn, 8*time.Second)
}

// Err sets an error-level flash message.
func (f *FlashModel) Err(err error) {
	f.set(err.Error(), FlashErr, 10*time.Second)
}

func (f *FlashModel) set(msg string, level FlashLevel, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = FlashMessage{Text: msg, Level: level, Expires: f.now().Add(d)}
}

// Pin shows msg whenever no transient message is live, until Unpin.
func (f *FlashModel) Pin(level FlashLevel, msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pinned = &FlashMessage{Text: msg, Level: level}
}

// Unpin removes the pinned message.
func (f *FlashModel) Unpin() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pinned = nil
}

// Current returns the live transient message, else the pinned one, else nil.
func (f *FlashModel) Current() *FlashMessage {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.current.Text != "" && !f.now().After(f.current.Expires) {
		m := f.current
		return &m
	}
	if f.pinned != nil {
		m := *f.pinned
		return &m
	}
	return nil
}

// Markup renders msg as a colored tview string.
func (msg *FlashMessage) Markup(theme *Theme) string {
	if msg == nil {
		return ""
	}
	color := theme.FlashInfoColor
	switch msg.Level {
	case FlashWarn:
		color = theme.FlashWarnColor
	case FlashErr:
		color = theme.FlashErrColor
	}
	return fmt.Sprintf("[%s]%s[-]", Tag(color), tview.Escape(msg.Text))
}
