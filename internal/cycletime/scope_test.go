package cycletime

import (
	"testing"
	"time"
)

func TestScopesRecordFullCycle(t *testing.T) {
	h, mc := newTestHelper(t, HelperOptions{})

	rs := NewReadStatusScope(h, true)
	mc.Advance(2 * time.Millisecond)
	rs.End()

	mc.Advance(time.Millisecond)

	ac := NewApplyCommandScope(h, true)
	mc.Advance(3 * time.Millisecond)
	ac.End()

	m := h.Metrics()
	if got := m.ReadStatusDuration.Max(); got != 2*time.Millisecond {
		t.Fatalf("ReadStatusDuration max=%v want 2ms", got)
	}
	if got := m.ProcessDuration.Max(); got != time.Millisecond {
		t.Fatalf("ProcessDuration max=%v want 1ms", got)
	}
	if got := m.ApplyCommandDuration.Max(); got != 3*time.Millisecond {
		t.Fatalf("ApplyCommandDuration max=%v want 3ms", got)
	}
}

func TestInactiveScopesRecordNothing(t *testing.T) {
	h, mc := newTestHelper(t, HelperOptions{})

	rs := NewReadStatusScope(h, false)
	mc.Advance(2 * time.Millisecond)
	rs.End()
	ac := NewApplyCommandScope(h, false)
	mc.Advance(2 * time.Millisecond)
	ac.End()

	if got := h.Metrics().ReadStatusDuration.NumEntries(); got != 0 {
		t.Fatalf("inactive scope recorded %d entries", got)
	}
	if got := h.Metrics().ApplyCommandDuration.NumEntries(); got != 0 {
		t.Fatalf("inactive scope recorded %d entries", got)
	}
}

func TestNilHelperScopesAreNoOps(t *testing.T) {
	rs := NewReadStatusScope(nil, true)
	rs.End()
	ac := NewApplyCommandScope(nil, true)
	ac.End()
}

func TestScopeEndErrorIsLoggedNotPropagated(t *testing.T) {
	logger := newCaptureLogger()
	h, _ := newTestHelper(t, HelperOptions{Logger: logger, LogCycleTimeWarnings: true})

	// An End whose Start never ran must not panic or unwind; the
	// precondition failure goes to the warning channel.
	s := ApplyCommandScope{helper: h, active: true}
	s.End()

	if got := logger.count("hwmcore.cycletime.apply_command_scope_failed"); got != 1 {
		t.Fatalf("apply_command_scope_failed warnings=%d want 1", got)
	}
	if got := h.Metrics().ApplyCommandDuration.NumEntries(); got != 0 {
		t.Fatalf("failed scope recorded %d entries", got)
	}
}
