package control

import (
	"testing"
	"time"
)

func f64(v float64) *float64 { return &v }
func b(v bool) *bool         { return &v }

func TestDecideTable(t *testing.T) {
	tests := []struct {
		name    string
		in      Inputs
		want    float32
		epsilon float32
	}{
		{
			name: "manual stopped",
			in: Inputs{
				Mode: ModeManual, StartStop: StartStopStopped,
				RequestedCurrentA: 16, StationMaxA: 32, MaxSetCurrentA: 32, AppliedPhases: 3,
			},
			want: 0,
		},
		{
			name: "manual enabled clamps to station max",
			in: Inputs{
				Mode: ModeManual, StartStop: StartStopEnabled,
				RequestedCurrentA: 40, StationMaxA: 32, MaxSetCurrentA: 32, AppliedPhases: 3,
			},
			want: 32,
		},
		{
			name: "auto enabled pv excess converts to amps",
			in: Inputs{
				Mode: ModeAuto, StartStop: StartStopEnabled,
				RequestedCurrentA: 0, StationMaxA: 32, MaxSetCurrentA: 32,
				PVExcessW: f64(6900), AppliedPhases: 3,
			},
			want: 10.0, epsilon: 0.05,
		},
		{
			name: "auto enabled low soc zeroes",
			in: Inputs{
				Mode: ModeAuto, StartStop: StartStopEnabled,
				RequestedCurrentA: 0, StationMaxA: 32, MaxSetCurrentA: 32,
				PVExcessW: f64(6900), SoCPercent: f64(40), SoCMinPercent: f64(50), AppliedPhases: 3,
			},
			want: 0,
		},
		{
			name: "scheduled enabled inactive window",
			in: Inputs{
				Mode: ModeScheduled, StartStop: StartStopEnabled,
				RequestedCurrentA: 6, StationMaxA: 25, MaxSetCurrentA: 25,
				ScheduleActive: false, AppliedPhases: 3,
			},
			want: 0,
		},
		{
			name: "scheduled enabled active window",
			in: Inputs{
				Mode: ModeScheduled, StartStop: StartStopEnabled,
				RequestedCurrentA: 6, StationMaxA: 25, MaxSetCurrentA: 25,
				ScheduleActive: true, AppliedPhases: 3,
			},
			want: 6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(tt.in)
			diff := got - tt.want
			if diff < 0 {
				diff = -diff
			}
			eps := tt.epsilon
			if eps == 0 {
				eps = 1e-6
			}
			if diff > eps {
				t.Errorf("Decide() = %v, want %v (±%v)", got, tt.want, eps)
			}
		})
	}
}

func TestAutoBelowMinSetCurrentReturnsZero(t *testing.T) {
	got := Decide(Inputs{
		Mode: ModeAuto, StartStop: StartStopEnabled,
		StationMaxA: 32, MaxSetCurrentA: 32, MinSetCurrentA: 6,
		PVExcessW: f64(500), AppliedPhases: 3,
	})
	if got != 0 {
		t.Errorf("Decide() = %v, want 0 (below min_set_current avoids oscillation)", got)
	}
}

func TestScheduleActiveOvernightWindow(t *testing.T) {
	// Window 23:00-06:00, "now" at 01:00 Monday; the after-midnight match
	// comes from Sunday (the previous day, where the window opened) being
	// listed in Days.
	loc := time.UTC
	now := time.Date(2026, 8, 3, 1, 0, 0, 0, loc) // Monday 01:00

	items := []ScheduleItem{{
		Active:    true,
		Days:      []int{0, 6}, // Monday, Sunday
		StartTime: "23:00",
		EndTime:   "06:00",
	}}
	if !IsScheduleActive(items, now, loc) {
		t.Errorf("expected overnight window to be active at 01:00 Monday")
	}
}

func TestScheduleActiveDayTimeWindow(t *testing.T) {
	loc := time.UTC
	now := time.Date(2026, 8, 3, 14, 30, 0, 0, loc) // Monday 14:30

	items := []ScheduleItem{{
		Active: true, Days: []int{0}, StartTime: "08:00", EndTime: "18:00",
	}}
	if !IsScheduleActive(items, now, loc) {
		t.Errorf("expected daytime window to be active at 14:30")
	}

	items[0].Days = []int{1} // Tuesday only
	if IsScheduleActive(items, now, loc) {
		t.Errorf("expected window inactive on wrong weekday")
	}
}

func TestDeriveStatusTable(t *testing.T) {
	tests := []struct {
		name           string
		base           int
		mode           Mode
		startStop      StartStop
		soCBelowMin    *bool
		lastSent       float32
		scheduleActive bool
		want           int
	}{
		{"disconnected passthrough", 0, ModeManual, StartStopEnabled, nil, 10, true, 0},
		{"explicit stop", 1, ModeManual, StartStopStopped, nil, 0, true, 6},
		{"auto low soc", 1, ModeAuto, StartStopEnabled, b(true), 10, true, 7},
		{"auto wait sun", 1, ModeAuto, StartStopEnabled, nil, 0.05, true, 4},
		{"scheduled inactive window", 1, ModeScheduled, StartStopEnabled, nil, 6, false, 6},
		{"base passthrough when charging", 2, ModeManual, StartStopEnabled, nil, 16, true, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveStatus(tt.base, tt.mode, tt.startStop, tt.soCBelowMin, tt.lastSent, tt.scheduleActive)
			if got != tt.want {
				t.Errorf("DeriveStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}
