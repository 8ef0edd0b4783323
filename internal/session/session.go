// Package session tracks charging sessions: detecting start/stop from the
// derived status code, accumulating delivered energy and peak/average
// power, and attaching static pricing once a session completes (C6).
package session

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log"
	"time"
)

// Status is the lifecycle state of a ChargingSession.
type Status string

const (
	StatusActive      Status = "Active"
	StatusCompleted   Status = "Completed"
	StatusInterrupted Status = "Interrupted"
	StatusFailed      Status = "Failed"
)

// ChargingSession is one charging episode, from connect-and-start to
// disconnect-or-stop.
type ChargingSession struct {
	ID              string     `json:"id"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	StartEnergyKWh  float64    `json:"start_energy_kwh"`
	EndEnergyKWh    *float64   `json:"end_energy_kwh,omitempty"`
	EnergyDeliveredKWh float64 `json:"energy_delivered_kwh"`
	PeakPowerW      float64    `json:"peak_power_w"`
	AveragePowerW   float64    `json:"average_power_w"`
	Cost            *float64   `json:"cost,omitempty"`
	Status          Status     `json:"status"`
}

// Manager tracks the current session, the last completed one, and a
// bounded in-memory history.
type Manager struct {
	Current *ChargingSession
	Last    *ChargingSession

	history        []ChargingSession
	maxHistorySize int

	logger *log.Logger
}

// NewManager constructs a session manager retaining at most
// maxHistorySize completed sessions in memory.
func NewManager(maxHistorySize int, logger *log.Logger) *Manager {
	if maxHistorySize <= 0 {
		maxHistorySize = 100
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		history:        make([]ChargingSession, 0, maxHistorySize),
		maxHistorySize: maxHistorySize,
		logger:         logger,
	}
}

// StartSession begins a new Active session at startEnergyKWh. It is an
// error to start one while another is already Active.
func (m *Manager) StartSession(startEnergyKWh float64) error {
	if m.Current != nil {
		return fmt.Errorf("session already active")
	}
	s := &ChargingSession{
		ID:             newSessionID(),
		StartTime:      time.Now(),
		StartEnergyKWh: startEnergyKWh,
		Status:         StatusActive,
	}
	m.logger.Printf("Started charging session %s", s.ID)
	m.Current = s
	return nil
}

// Update folds one tick's power/energy reading into the Active session,
// if any. Average power is clamped to 0 until the session has run for
// at least one second, avoiding the divide-by-tiny-duration blowup the
// original implementation does not guard against.
func (m *Manager) Update(powerW, energyKWh float64) {
	s := m.Current
	if s == nil {
		return
	}

	s.EnergyDeliveredKWh = energyKWh - s.StartEnergyKWh
	if s.EnergyDeliveredKWh < 0 {
		s.EnergyDeliveredKWh = 0
	}

	if powerW > s.PeakPowerW {
		s.PeakPowerW = powerW
	}

	duration := time.Since(s.StartTime)
	if duration >= time.Second {
		durationHours := duration.Seconds() / 3600.0
		s.AveragePowerW = s.EnergyDeliveredKWh / durationHours * 1000.0
	}
}

// EndSession finalizes the Active session at endEnergyKWh, moves it to
// Last and into history, and returns an error if none is Active.
func (m *Manager) EndSession(endEnergyKWh float64) error {
	s := m.Current
	if s == nil {
		return fmt.Errorf("no active session to end")
	}
	m.Current = nil

	now := time.Now()
	s.EndTime = &now
	s.EndEnergyKWh = &endEnergyKWh
	delivered := endEnergyKWh - s.StartEnergyKWh
	if delivered < 0 {
		delivered = 0
	}
	s.EnergyDeliveredKWh = delivered
	s.Status = StatusCompleted

	m.Last = s
	m.history = append(m.history, *s)
	if len(m.history) > m.maxHistorySize {
		m.history = m.history[len(m.history)-m.maxHistorySize:]
	}

	m.logger.Printf("Ended charging session, delivered %.3f kWh", delivered)
	return nil
}

// SetCostOnLastSession attaches a computed cost to the most recently
// completed session, used by static pricing right after EndSession.
func (m *Manager) SetCostOnLastSession(cost float64) {
	if m.Last != nil {
		m.Last.Cost = &cost
		for i := range m.history {
			if m.history[i].ID == m.Last.ID {
				m.history[i].Cost = &cost
				break
			}
		}
	}
}

// History returns the retained completed sessions, oldest first.
func (m *Manager) History() []ChargingSession { return m.history }

// persistedState is the JSON shape written to the persistence file's
// "session" section (spec §4.7).
type persistedState struct {
	CurrentSession *ChargingSession  `json:"current_session"`
	LastSession    *ChargingSession  `json:"last_session"`
	History        []ChargingSession `json:"history"`
}

// State returns the JSON-serializable view of session state for
// persistence, trimming history to at most 10 entries (spec §3 Lifecycle).
func (m *Manager) State() json.RawMessage {
	hist := m.history
	if len(hist) > 10 {
		hist = hist[len(hist)-10:]
	}
	out, err := json.Marshal(persistedState{
		CurrentSession: m.Current,
		LastSession:    m.Last,
		History:        hist,
	})
	if err != nil {
		return json.RawMessage("null")
	}
	return out
}

// Restore loads session state from a previously-persisted section. Any
// of current/last/history may be absent; restored history is trimmed to
// maxHistorySize.
func (m *Manager) Restore(data json.RawMessage) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	var ps persistedState
	if err := json.Unmarshal(data, &ps); err != nil {
		return fmt.Errorf("restore session state: %w", err)
	}
	m.Current = ps.CurrentSession
	m.Last = ps.LastSession
	if len(ps.History) > m.maxHistorySize {
		ps.History = ps.History[len(ps.History)-m.maxHistorySize:]
	}
	m.history = ps.History
	return nil
}

func newSessionID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("session-%d", time.Now().UnixNano())
	}
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}
