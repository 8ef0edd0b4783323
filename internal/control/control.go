// Package control implements the pure charging-control decision (C8):
// mode x start/stop x PV excess x SoC x schedule -> effective amperes,
// plus the schedule-active evaluation it depends on. No I/O: every
// input is resolved to a primitive before this package is called.
package control

import "time"

// Mode is the driver's charging-mode selector.
type Mode int

const (
	ModeManual Mode = iota
	ModeAuto
	ModeScheduled
)

// StartStop is the driver's enable/disable selector.
type StartStop int

const (
	StartStopStopped StartStop = iota
	StartStopEnabled
)

// ScheduleItem is one configured charging window, evaluated against a
// wall-clock instant in the configured timezone.
type ScheduleItem struct {
	Active    bool
	Days      []int // 0=Mon..6=Sun
	StartTime string // "HH:MM"
	EndTime   string // "HH:MM"
}

// Inputs bundles every primitive C8 needs, resolved ahead of time by
// the poll loop so this package stays pure.
type Inputs struct {
	Mode              Mode
	StartStop         StartStop
	RequestedCurrentA float32
	StationMaxA       float32
	MaxSetCurrentA    float32
	MinSetCurrentA    float32
	PVExcessW         *float64
	SoCPercent        *float64
	SoCMinPercent     *float64
	ScheduleActive    bool
	AppliedPhases     int
}

func clamp32(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Decide computes the effective amperage per spec §4.8's numbered rule
// list, evaluated in order.
func Decide(in Inputs) float32 {
	// Rule 1.
	if in.StartStop == StartStopStopped {
		return 0
	}
	// Rule 2.
	if in.Mode == ModeScheduled && !in.ScheduleActive {
		return 0
	}
	// Rule 3.
	if (in.Mode == ModeAuto || in.Mode == ModeScheduled) &&
		in.SoCPercent != nil && in.SoCMinPercent != nil && *in.SoCPercent < *in.SoCMinPercent {
		return 0
	}

	stationCap := min32(in.StationMaxA, in.MaxSetCurrentA)

	// Rule 4 (also used by rule 6 for Scheduled).
	if in.Mode == ModeManual || in.Mode == ModeScheduled {
		return clamp32(in.RequestedCurrentA, 0, stationCap)
	}

	// Rule 5: Auto.
	phases := in.AppliedPhases
	if phases <= 0 {
		phases = 1
	}
	var excessW float64
	if in.PVExcessW != nil {
		excessW = *in.PVExcessW
	}
	amps := float32(excessW / (230.0 * float64(phases)))
	amps = clamp32(amps, 0, stationCap)
	if amps < in.MinSetCurrentA {
		return 0
	}
	return amps
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

// hhmmToMinutes parses "HH:MM" into minutes since midnight. Malformed
// input parses as 0, matching the permissive original behavior (an
// admin-supplied schedule, not untrusted input).
func hhmmToMinutes(hhmm string) int {
	if len(hhmm) != 5 || hhmm[2] != ':' {
		return 0
	}
	for _, i := range []int{0, 1, 3, 4} {
		if hhmm[i] < '0' || hhmm[i] > '9' {
			return 0
		}
	}
	h := int(hhmm[0]-'0')*10 + int(hhmm[1]-'0')
	m := int(hhmm[3]-'0')*10 + int(hhmm[4]-'0')
	return h*60 + m
}

// IsScheduleActive reports whether any schedule item is active at now
// (interpreted in loc). Per spec §4.8/§9, an overnight window (end <=
// start) is active when minute-of-day is >= start OR < end; this
// implementation additionally ORs in the previous weekday automatically
// so operators do not need to list it explicitly in Days (spec §9's
// permitted implementation choice).
func IsScheduleActive(items []ScheduleItem, now time.Time, loc *time.Location) bool {
	if loc != nil {
		now = now.In(loc)
	}
	weekday := int(now.Weekday()+6) % 7 // Go: Sunday=0 -> want Monday=0
	prevWeekday := (weekday + 6) % 7
	minuteOfDay := now.Hour()*60 + now.Minute()

	for _, item := range items {
		if !item.Active {
			continue
		}
		start := hhmmToMinutes(item.StartTime)
		end := hhmmToMinutes(item.EndTime)

		if end <= start {
			// Overnight window: active for [start,1440) on the window's own
			// day, or [0,end) on the day after it started.
			if containsDay(item.Days, weekday) && minuteOfDay >= start {
				return true
			}
			if containsDay(item.Days, prevWeekday) && minuteOfDay < end {
				return true
			}
			continue
		}

		if containsDay(item.Days, weekday) && minuteOfDay >= start && minuteOfDay < end {
			return true
		}
	}
	return false
}

func containsDay(days []int, d int) bool {
	for _, x := range days {
		if x == d {
			return true
		}
	}
	return false
}

// DeriveStatus combines the hardware base status with policy state into
// the driver's derived status code (spec §4.10 "Status derivation").
func DeriveStatus(baseStatus int, mode Mode, startStop StartStop, soCBelowMin *bool, lastSentCurrent float32, scheduleActive bool) int {
	if baseStatus < 1 {
		return baseStatus
	}
	if startStop == StartStopStopped {
		return 6
	}
	if (mode == ModeAuto || mode == ModeScheduled) && soCBelowMin != nil && *soCBelowMin {
		return 7
	}
	if mode == ModeScheduled && !scheduleActive {
		return 6
	}
	if mode == ModeAuto && lastSentCurrent < 0.1 {
		return 4
	}
	return baseStatus
}
