package tui

import "testing"

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		name string
		args string
	}{
		{"q", "quit", ""},
		{"H", "help", ""},
		{"o 42", "open", "42"},
		{"  Open 42 ", "open", "42"},
		{"filter   tent  poles ", "filter", "tent  poles"},
		{"resendx", "resendx", ""},
		{"new Tent rental | is it free on friday?", "new", "Tent rental | is it free on friday?"},
		{"", "", ""},
	}
	for _, tt := range tests {
		got := ParseCommand(tt.in)
		if got.Name != tt.name || got.Args != tt.args {
			t.Errorf("ParseCommand(%q) = %+v, want {%s %s}", tt.in, got, tt.name, tt.args)
		}
	}
}

func TestSubjectAndMessage(t *testing.T) {
	subject, msg := ParseCommand("new Tent rental | is it free?").SubjectAndMessage()
	if subject != "Tent rental" || msg != "is it free?" {
		t.Errorf("got %q / %q", subject, msg)
	}
	subject, msg = ParseCommand("new Stage lights").SubjectAndMessage()
	if subject != "Stage lights" || msg != "" {
		t.Errorf("got %q / %q", subject, msg)
	}
}
