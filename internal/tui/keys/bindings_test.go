package keys

import (
	"testing"

	"github.com/gdamore/tcell/v2"
)

func TestPageBindingWinsOverGlobal(t *testing.T) {
	r := NewRegistry()
	var got string
	r.AddGlobal(&Action{Key: tcell.KeyRune, Rune: 'r', Label: "r", Description: "Refresh", Handler: func() { got = "global" }})
	r.Add("thread", &Action{Key: tcell.KeyRune, Rune: 'r', Label: "r", Description: "Resend", Handler: func() { got = "thread" }})

	if !r.handle("thread", tcell.KeyRune, 'r') || got != "thread" {
		t.Errorf("thread page: got %q", got)
	}
	if !r.handle("list", tcell.KeyRune, 'r') || got != "global" {
		t.Errorf("list page: got %q", got)
	}
	if r.handle("list", tcell.KeyRune, 'x') {
		t.Error("unbound key should not match")
	}
}

func TestSpecialKeys(t *testing.T) {
	r := NewRegistry()
	hit := false
	r.Add("thread", &Action{Key: tcell.KeyEscape, Label: "Esc", Description: "Back", Handler: func() { hit = true }})
	if !r.handle("thread", tcell.KeyEscape, 0) || !hit {
		t.Error("Esc binding did not fire")
	}
}

func TestHintsOrder(t *testing.T) {
	r := NewRegistry()
	r.AddGlobal(&Action{Key: tcell.KeyRune, Rune: 'q', Label: "q", Description: "Quit", Handler: func() {}})
	r.Add("list", &Action{Key: tcell.KeyEnter, Label: "Enter", Description: "Open", Handler: func() {}})
	r.Add("list", &Action{Key: tcell.KeyRune, Rune: 'j', Label: "j", Description: "Down", Handler: func() {}, Hidden: true})
	r.Add("list", &Action{Key: tcell.KeyRune, Rune: '/', Label: "/", Description: "Filter", Handler: func() {}})

	hints := r.Hints("list")
	want := []string{"Open", "Filter", "Quit"}
	if len(hints) != len(want) {
		t.Fatalf("Hints() = %v", hints)
	}
	for i, h := range hints {
		if h.Description != want[i] {
			t.Errorf("hint %d = %q, want %q", i, h.Description, want[i])
		}
	}
}
