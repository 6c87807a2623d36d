package tui

import "strings"

// Command is a parsed ":" command. Name is always the canonical long form.
type Command struct {
	Name string
	Args string
}

var commandAliases = map[string]string{
	"o": "open",
	"n": "new",
	"r": "resend",
	"f": "filter",
	"h": "help",
	"q": "quit",
}

// ParseCommand parses a command line without the leading ':'. Names are
// case-insensitive and short aliases are expanded.
func ParseCommand(input string) Command {
	name, args, _ := strings.Cut(strings.TrimSpace(input), " ")
	name = strings.ToLower(name)
	if long, ok := commandAliases[name]; ok {
		name = long
	}
	return Command{Name: name, Args: strings.TrimSpace(args)}
}

// SubjectAndMessage splits ":new" arguments of the form "subject | first
// message". The message part is optional.
func (c Command) SubjectAndMessage() (subject, message string) {
	subject, message, _ = strings.Cut(c.Args, "|")
	return strings.TrimSpace(subject), strings.TrimSpace(message)
}
