package ui

import "testing"

func TestPromptHistoryPerMode(t *testing.T) {
	p := NewPrompt(DefaultTheme())

	p.Activate(PromptCommand)
	p.remember("open 42")
	p.remember("open 42")
	p.remember("resend")
	p.remember("  ")

	p.Activate(PromptFilter)
	p.remember("tent")
	if got := p.recall(-1); got != "tent" {
		t.Errorf("filter history = %q, want tent", got)
	}

	p.Activate(PromptCommand)
	for _, want := range []string{"resend", "open 42", "open 42"} {
		if got := p.recall(-1); got != want {
			t.Errorf("recall(-1) = %q, want %q", got, want)
		}
	}
	if got := p.recall(1); got != "resend" {
		t.Errorf("recall(1) = %q, want resend", got)
	}
	if got := p.recall(1); got != "" {
		t.Errorf("past newest = %q, want empty", got)
	}
}

func TestPromptHistoryIsBounded(t *testing.T) {
	p := NewPrompt(DefaultTheme())
	p.Activate(PromptCommand)
	for i := 0; i < historySize+10; i++ {
		p.remember(string(rune('a'+i%26)) + string(rune('0'+i/26)))
	}
	if n := len(p.history[PromptCommand]); n != historySize {
		t.Errorf("history len = %d, want %d", n, historySize)
	}
}

func TestPromptComplete(t *testing.T) {
	p := NewPrompt(DefaultTheme())
	p.SetCommands([]string{"open", "new", "resend", "quit", "filter"})

	got := p.complete("re")
	if len(got) != 1 || got[0] != "resend" {
		t.Errorf("complete(re) = %v", got)
	}
	if got := p.complete("open"); got != nil {
		t.Errorf("complete of a full name = %v, want none", got)
	}
	if got := p.complete("open 4"); got != nil {
		t.Errorf("arguments are not completed: %v", got)
	}
	if got := p.complete(""); got != nil {
		t.Errorf("empty input = %v", got)
	}
}
