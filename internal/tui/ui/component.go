package ui

import "github.com/rivo/tview"

// MenuHint describes a keyboard shortcut for display in the header.
type MenuHint struct {
	Key         string
	Description string
}

// Component is a page of the TUI. Start runs when the page becomes the top
// of the stack, Stop when it leaves.
type Component interface {
	tview.Primitive
	Name() string
	Start()
	Stop()
	Hints() []MenuHint
}
