package clock_test

import (
	"testing"
	"time"

	"pkt.systems/hwmcore/internal/clock"
)

func TestRealNowUsesUTC(t *testing.T) {
	t.Parallel()

	now := clock.Real{}.Now()
	if loc := now.Location(); loc != time.UTC {
		t.Fatalf("expected UTC location, got %v", loc)
	}
	if delta := time.Since(now); delta < 0 || delta > time.Second {
		t.Fatalf("unexpected Now delta: %v", delta)
	}
}

func TestManualAdvanceFiresDueTimers(t *testing.T) {
	t.Parallel()

	m := clock.NewManual(time.Unix(0, 0))
	ch := m.After(10 * time.Millisecond)

	m.Advance(5 * time.Millisecond)
	select {
	case <-ch:
		t.Fatal("timer fired before its deadline")
	default:
	}

	m.Advance(5 * time.Millisecond)
	select {
	case at := <-ch:
		if got := at.Sub(time.Unix(0, 0).UTC()); got != 10*time.Millisecond {
			t.Fatalf("timer fired at +%v, want +10ms", got)
		}
	default:
		t.Fatal("timer did not fire at its deadline")
	}
	if m.Pending() != 0 {
		t.Fatalf("expected no pending timers, got %d", m.Pending())
	}
}

func TestManualAfterNonPositiveFiresImmediately(t *testing.T) {
	t.Parallel()

	m := clock.NewManual(time.Unix(100, 0))
	select {
	case <-m.After(0):
	default:
		t.Fatal("After(0) should deliver immediately")
	}
}
