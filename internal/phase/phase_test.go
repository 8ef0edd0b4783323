package phase

import (
	"testing"
	"time"
)

func TestSwitchUpOnHighExcess(t *testing.T) {
	g := NewGovernor(1, 6, 16, 300, 5*time.Minute, 30*time.Second)
	now := time.Now()

	switched := 0
	err := g.Evaluate(now, 5000, func(target int) error {
		switched = target
		return nil
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	// three_phase_min = 6*230*3 = 4140; +hys(300) = 4440; 5000 > 4440 -> switch to 3.
	if switched != 3 {
		t.Errorf("switched to %d, want 3", switched)
	}
	if g.AppliedPhases() != 3 {
		t.Errorf("AppliedPhases() = %d, want 3", g.AppliedPhases())
	}
}

func TestNoSwitchUpBelowThreshold(t *testing.T) {
	g := NewGovernor(1, 6, 16, 300, 5*time.Minute, 30*time.Second)
	now := time.Now()

	switched := false
	err := g.Evaluate(now, 4000, func(target int) error {
		switched = true
		return nil
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if switched {
		t.Errorf("expected no switch at 4000W excess (below 4440W threshold)")
	}
	if g.AppliedPhases() != 1 {
		t.Errorf("AppliedPhases() = %d, want 1 (unchanged)", g.AppliedPhases())
	}
}

func TestSwitchDownOnLowExcess(t *testing.T) {
	g := NewGovernor(3, 6, 16, 300, 5*time.Minute, 30*time.Second)
	now := time.Now()

	switched := 0
	err := g.Evaluate(now, 3000, func(target int) error {
		switched = target
		return nil
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	// one_phase_max = 16*230*1 = 3680; -hys(300) = 3380; 3000 < 3380 -> switch to 1.
	if switched != 1 {
		t.Errorf("switched to %d, want 1", switched)
	}
}

func TestGraceBlocksSecondSwitchWithinWindow(t *testing.T) {
	g := NewGovernor(1, 6, 16, 300, 5*time.Minute, 0)
	now := time.Now()

	switchCount := 0
	applyFn := func(target int) error { switchCount++; return nil }

	if err := g.Evaluate(now, 5000, applyFn); err != nil {
		t.Fatalf("first Evaluate: %v", err)
	}
	if switchCount != 1 {
		t.Fatalf("expected first switch to apply, got %d", switchCount)
	}

	// Second attempt to switch back down, well within the grace window.
	if err := g.Evaluate(now.Add(time.Second), 0, applyFn); err != nil {
		t.Fatalf("second Evaluate: %v", err)
	}
	if switchCount != 1 {
		t.Errorf("expected grace window to block second switch, got %d total switches", switchCount)
	}
}

func TestSettleWindowHoldsOffFurtherSwitches(t *testing.T) {
	g := NewGovernor(1, 6, 16, 300, 0, time.Minute)
	now := time.Now()

	switchCount := 0
	applyFn := func(target int) error { switchCount++; return nil }

	if err := g.Evaluate(now, 5000, applyFn); err != nil {
		t.Fatalf("first Evaluate: %v", err)
	}
	if !g.Settling(now) {
		t.Errorf("expected governor to be settling right after a switch")
	}

	if err := g.Evaluate(now.Add(10*time.Second), 0, applyFn); err != nil {
		t.Fatalf("second Evaluate: %v", err)
	}
	if switchCount != 1 {
		t.Errorf("expected settle window to suppress a second switch, got %d", switchCount)
	}

	if g.Settling(now.Add(2 * time.Minute)) {
		t.Errorf("expected settle window to have expired after 2 minutes")
	}
}
