package ui

import (
	"testing"

	"github.com/rivo/tview"
)

type fakePage struct {
	*tview.Box
	name    string
	started int
	stopped int
}

func (f *fakePage) Name() string      { return f.name }
func (f *fakePage) Start()            { f.started++ }
func (f *fakePage) Stop()             { f.stopped++ }
func (f *fakePage) Hints() []MenuHint { return nil }

func TestPagesPushPop(t *testing.T) {
	p := NewPages()
	var tops []string
	p.SetOnChange(func(top Component) { tops = append(tops, top.Name()) })

	list := &fakePage{Box: tview.NewBox(), name: "list"}
	thread := &fakePage{Box: tview.NewBox(), name: "thread"}

	p.Push(list)
	p.Push(thread)
	if p.Top() != thread || p.Depth() != 2 {
		t.Fatalf("top = %v, depth = %d", p.Top().Name(), p.Depth())
	}
	if list.stopped != 1 || thread.started != 1 {
		t.Errorf("list stopped %d, thread started %d", list.stopped, thread.started)
	}

	if got := p.Pop(); got != thread {
		t.Fatalf("Pop() = %v", got)
	}
	if thread.stopped != 1 || list.started != 2 {
		t.Errorf("thread stopped %d, list started %d", thread.stopped, list.started)
	}
	if p.Pop() != nil {
		t.Error("root page must not be popped")
	}
	want := []string{"list", "thread", "list"}
	if len(tops) != len(want) {
		t.Fatalf("onChange tops = %v, want %v", tops, want)
	}
	for i := range want {
		if tops[i] != want[i] {
			t.Errorf("onChange tops = %v, want %v", tops, want)
		}
	}
}
