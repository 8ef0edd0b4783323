// Package phase implements the phase-switch governor (C9): deciding
// 1<->3-phase transitions from PV excess with hysteresis, a minimum gap
// between switches, and a settle window during which current is held
// at zero while the charger stabilizes.
package phase

import "time"

// ApplyFunc commands the charger to the given phase count (1 or 3),
// writing current=0 first per spec §4.9's switch guard.
type ApplyFunc func(targetPhases int) error

// Governor tracks phase-switch timing state across ticks.
type Governor struct {
	MinSetCurrentA    float32
	MaxSetCurrentA    float32
	HysteresisW       float64
	GraceDuration     time.Duration
	SettleDuration    time.Duration

	appliedPhases      int
	lastSwitch         time.Time
	hasSwitched        bool
	settleDeadline     time.Time
	settling           bool
}

// NewGovernor constructs a Governor starting at the given applied phase
// count (1 or 3).
func NewGovernor(initialPhases int, minSetCurrentA, maxSetCurrentA float32, hysteresisW float64, grace, settle time.Duration) *Governor {
	if initialPhases != 3 {
		initialPhases = 1
	}
	return &Governor{
		MinSetCurrentA: minSetCurrentA,
		MaxSetCurrentA: maxSetCurrentA,
		HysteresisW:    hysteresisW,
		GraceDuration:  grace,
		SettleDuration: settle,
		appliedPhases:  initialPhases,
	}
}

// AppliedPhases reports the phase count currently believed applied.
func (g *Governor) AppliedPhases() int { return g.appliedPhases }

// Settling reports whether the governor is within a post-switch settle
// window; during this window the poll loop must hold current at zero
// regardless of mode.
func (g *Governor) Settling(now time.Time) bool {
	return g.settling && now.Before(g.settleDeadline)
}

// Evaluate runs one tick of the governor against excessPVPowerW. If a
// switch is warranted and the guards permit it, apply is invoked with
// the new phase count and, on success, the settle window is armed.
func (g *Governor) Evaluate(now time.Time, excessPVPowerW float64, apply ApplyFunc) error {
	if g.settling {
		if now.Before(g.settleDeadline) {
			return nil
		}
		g.settling = false
	}

	if g.hasSwitched && now.Sub(g.lastSwitch) < g.GraceDuration {
		return nil
	}

	const v = 230.0
	minA := g.MinSetCurrentA
	if minA < 0 {
		minA = 0
	}
	maxA := g.MaxSetCurrentA
	if maxA < minA {
		maxA = minA
	}
	hys := g.HysteresisW
	if hys < 0 {
		hys = 0
	}

	oneToThreeMin := float64(minA) * v * 3
	threeToOneMax := float64(maxA) * v * 1

	target := g.appliedPhases
	switch g.appliedPhases {
	case 1:
		if excessPVPowerW > oneToThreeMin+hys {
			target = 3
		}
	default: // 3
		if excessPVPowerW < threeToOneMax-hys {
			target = 1
		}
	}

	if target == g.appliedPhases {
		return nil
	}

	if err := apply(target); err != nil {
		return err
	}

	g.appliedPhases = target
	g.lastSwitch = now
	g.hasSwitched = true
	if g.SettleDuration > 0 {
		g.settling = true
		g.settleDeadline = now.Add(g.SettleDuration)
	}
	return nil
}
