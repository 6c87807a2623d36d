package session

import (
	"fmt"
	"regexp"
)

// maxSocketPath is the smallest sun_path limit among supported platforms
// (104 bytes on macOS, including the terminating NUL).
const maxSocketPath = 103

var nameRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,31}$`)

// ValidateName checks that name is a usable session name: up to 32
// lowercase letters, digits, '-' or '_', not starting with a separator, and
// short enough that the session socket path fits in a unix address.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("invalid session name %q: want up to 32 of [a-z0-9_-], starting with a letter or digit", name)
	}
	if p := SocketPath(name); len(p) > maxSocketPath {
		return fmt.Errorf("session %q: socket path %s exceeds %d bytes; point %s at a shorter directory", name, p, maxSocketPath, HomeEnv)
	}
	return nil
}
