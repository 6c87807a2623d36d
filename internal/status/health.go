package status

// Health turns poll outcomes into Ready/Degraded transitions. It is driven
// from the engine loop and is not safe for concurrent use.
type Health struct {
	machine   *Machine
	threshold int
	failures  int
}

// NewHealth degrades the session after threshold consecutive poll failures.
func NewHealth(m *Machine, threshold int) *Health {
	if threshold < 1 {
		threshold = 1
	}
	return &Health{machine: m, threshold: threshold}
}

// Succeeded records a successful poll.
func (h *Health) Succeeded() {
	h.failures = 0
	switch h.machine.Current() {
	case Syncing, Degraded:
		_ = h.machine.Transition(Ready)
	}
}

// Failed records a failed poll.
func (h *Health) Failed() {
	h.failures++
	if h.failures < h.threshold {
		return
	}
	switch h.machine.Current() {
	case Syncing, Ready:
		_ = h.machine.Transition(Degraded)
	}
}

// Failures returns the current run of consecutive failures.
func (h *Health) Failures() int {
	return h.failures
}
