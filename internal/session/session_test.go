package session

import (
	"encoding/json"
	"testing"
	"time"
)

func TestStartUpdateEndYieldsCompletedSession(t *testing.T) {
	m := NewManager(100, nil)

	if err := m.StartSession(100); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	m.Update(3500, 101)
	if err := m.EndSession(102); err != nil {
		t.Fatalf("EndSession: %v", err)
	}

	if m.Current != nil {
		t.Fatalf("expected no active session after EndSession")
	}
	last := m.Last
	if last == nil {
		t.Fatalf("expected a last session")
	}
	if last.EnergyDeliveredKWh != 2.0 {
		t.Errorf("energy_delivered_kwh = %v, want 2.0", last.EnergyDeliveredKWh)
	}
	if last.Status != StatusCompleted {
		t.Errorf("status = %v, want Completed", last.Status)
	}
	if last.PeakPowerW < 3500 {
		t.Errorf("peak_power_w = %v, want >= 3500", last.PeakPowerW)
	}
	if last.EndTime == nil || !last.EndTime.After(last.StartTime.Add(-time.Second)) {
		t.Errorf("expected end_time to be set and sane")
	}
}

func TestStartSessionTwiceErrors(t *testing.T) {
	m := NewManager(10, nil)
	if err := m.StartSession(10); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if err := m.StartSession(10); err == nil {
		t.Fatalf("expected error starting a second active session")
	}
}

func TestEndSessionWithoutActiveErrors(t *testing.T) {
	m := NewManager(10, nil)
	if err := m.EndSession(5); err == nil {
		t.Fatalf("expected error ending with no active session")
	}
}

func TestUpdateClampsAveragePowerDuringWarmup(t *testing.T) {
	m := NewManager(10, nil)
	if err := m.StartSession(0); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	// Immediately after start, duration < 1s: average must stay at its
	// zero-value rather than exploding from a near-zero denominator.
	m.Update(50000, 10)
	if m.Current.AveragePowerW != 0 {
		t.Errorf("average_power_w = %v, want 0 (clamped during warm-up)", m.Current.AveragePowerW)
	}
}

func TestSetCostOnLastSession(t *testing.T) {
	m := NewManager(10, nil)
	_ = m.StartSession(100)
	_ = m.EndSession(102.5)
	m.SetCostOnLastSession(102.5 - 100)

	if m.Last.Cost == nil {
		t.Fatalf("expected cost to be set")
	}
	if *m.Last.Cost != 2.5 {
		t.Errorf("cost = %v, want 2.5", *m.Last.Cost)
	}
}

func TestRestoreTrimsHistoryToCap(t *testing.T) {
	m := NewManager(5, nil)

	hist := make([]ChargingSession, 12)
	for i := range hist {
		hist[i] = ChargingSession{ID: string(rune('a' + i)), Status: StatusCompleted}
	}
	raw, err := json.Marshal(persistedState{History: hist})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	if err := m.Restore(raw); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if len(m.History()) != 5 {
		t.Errorf("len(History()) = %d, want 5 (capped)", len(m.History()))
	}
}

func TestRestoreToleratesAbsentFields(t *testing.T) {
	m := NewManager(5, nil)
	if err := m.Restore(json.RawMessage(`{}`)); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if m.Current != nil || m.Last != nil {
		t.Errorf("expected no current/last session restored from empty object")
	}
}

func TestStateTrimsHistoryToTenForPersistence(t *testing.T) {
	m := NewManager(100, nil)
	for i := 0; i < 12; i++ {
		_ = m.StartSession(float64(i))
		_ = m.EndSession(float64(i) + 1)
	}

	var ps persistedState
	if err := json.Unmarshal(m.State(), &ps); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if len(ps.History) != 10 {
		t.Errorf("persisted history len = %d, want 10", len(ps.History))
	}
}
