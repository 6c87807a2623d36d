package ui

import "github.com/rivo/tview"

// Pages is a stack of Components on top of tview.Pages. Pushing starts the
// new top and stops the one it covers; popping does the reverse.
type Pages struct {
	*tview.Pages
	stack    []Component
	onChange func(top Component)
}

// NewPages creates an empty stack.
func NewPages() *Pages {
	return &Pages{Pages: tview.NewPages()}
}

// SetOnChange sets a callback that fires with the new top after every change.
func (p *Pages) SetOnChange(fn func(top Component)) {
	p.onChange = fn
}

// Push shows c on top of the stack.
func (p *Pages) Push(c Component) {
	if top := p.Top(); top != nil {
		top.Stop()
		p.HidePage(top.Name())
	}
	p.stack = append(p.stack, c)
	if !p.HasPage(c.Name()) {
		p.AddPage(c.Name(), c, true, false)
	}
	p.ShowPage(c.Name())
	p.SendToFront(c.Name())
	c.Start()
	p.notify()
}

// Pop removes the top component. The root component is never popped.
func (p *Pages) Pop() Component {
	if len(p.stack) <= 1 {
		return nil
	}
	top := p.stack[len(p.stack)-1]
	top.Stop()
	p.HidePage(top.Name())
	p.stack = p.stack[:len(p.stack)-1]
	cur := p.stack[len(p.stack)-1]
	p.ShowPage(cur.Name())
	p.SendToFront(cur.Name())
	cur.Start()
	p.notify()
	return top
}

// Top returns the component on top of the stack, or nil.
func (p *Pages) Top() Component {
	if len(p.stack) == 0 {
		return nil
	}
	return p.stack[len(p.stack)-1]
}

// Depth returns the current stack depth.
func (p *Pages) Depth() int {
	return len(p.stack)
}

func (p *Pages) notify() {
	if p.onChange != nil {
		p.onChange(p.Top())
	}
}
