package ui

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestFlashExpires(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	f := NewFlashModel()
	f.now = func() time.Time { return now }

	if f.Current() != nil {
		t.Fatal("empty model should have no message")
	}

	f.Info("message queued")
	if got := f.Current(); got == nil || got.Text != "message queued" {
		t.Fatalf("Current() = %+v", got)
	}

	now = now.Add(5 * time.Second)
	if f.Current() != nil {
		t.Error("info message should expire after 4s")
	}

	f.Err(errors.New("send failed"))
	now = now.Add(9 * time.Second)
	if got := f.Current(); got == nil || got.Level != FlashErr {
		t.Errorf("error message should still be visible: %+v", got)
	}
}

func TestFlashMarkupEscapes(t *testing.T) {
	msg := &FlashMessage{Text: "[red]spoof", Level: FlashWarn}
	out := msg.Markup(DefaultTheme())
	if !strings.Contains(out, "[red[]spoof") {
		t.Errorf("Markup() = %q, want escaped text", out)
	}
	var none *FlashMessage
	if none.Markup(DefaultTheme()) != "" {
		t.Error("nil message should render empty")
	}
}

func TestFlashPinnedUnderTransient(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	f := NewFlashModel()
	f.now = func() time.Time { return now }

	f.Pin(FlashErr, "session rejected")
	if got := f.Current(); got == nil || got.Text != "session rejected" {
		t.Fatalf("Current() = %+v, want pinned", got)
	}

	f.Info("conversation created")
	if got := f.Current(); got == nil || got.Text != "conversation created" {
		t.Fatalf("transient should cover the pin: %+v", got)
	}

	now = now.Add(5 * time.Second)
	if got := f.Current(); got == nil || got.Text != "session rejected" {
		t.Fatalf("pin should return after expiry: %+v", got)
	}

	f.Unpin()
	if f.Current() != nil {
		t.Error("Unpin should clear the message")
	}
}
