package status

import "testing"

func TestHealthDegradesAfterThreshold(t *testing.T) {
	m := NewMachine(nil)
	walkTo(t, m, Ready)
	h := NewHealth(m, 3)

	h.Failed()
	h.Failed()
	if m.Current() != Ready {
		t.Fatalf("state = %s after 2 failures, want READY", m.Current())
	}
	h.Failed()
	if m.Current() != Degraded {
		t.Fatalf("state = %s after 3 failures, want DEGRADED", m.Current())
	}

	h.Succeeded()
	if m.Current() != Ready {
		t.Errorf("state = %s after success, want READY", m.Current())
	}
	if h.Failures() != 0 {
		t.Errorf("failures = %d, want 0", h.Failures())
	}
}

func TestHealthFirstSuccessLeavesSyncing(t *testing.T) {
	m := NewMachine(nil)
	walkTo(t, m, Syncing)
	NewHealth(m, 1).Succeeded()
	if m.Current() != Ready {
		t.Errorf("state = %s, want READY", m.Current())
	}
}

func TestHealthLeavesUnauthorizedAlone(t *testing.T) {
	m := NewMachine(nil)
	walkTo(t, m, Unauthorized)
	h := NewHealth(m, 1)
	h.Failed()
	h.Succeeded()
	if m.Current() != Unauthorized {
		t.Errorf("state = %s, want UNAUTHORIZED", m.Current())
	}
}
