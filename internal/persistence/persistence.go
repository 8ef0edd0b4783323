// Package persistence implements the single-JSON-file control-state
// store (C7): mode, start/stop, set-current, and the session tracker's
// section, written best-effort on every tick and tolerant of a missing
// or malformed file at load time.
package persistence

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
)

// State is the on-disk shape of the persistence file (spec §4.7).
type State struct {
	Mode                   uint32          `json:"mode"`
	StartStop              uint32          `json:"start_stop"`
	SetCurrent             float32         `json:"set_current"`
	InsufficientSolarStart float64         `json:"insufficient_solar_start"`
	Session                json.RawMessage `json:"session"`
}

func defaultState() State {
	return State{
		Mode:       0,
		StartStop:  0,
		SetCurrent: 6.0,
		Session:    json.RawMessage("null"),
	}
}

// Manager owns the in-memory State mirror and the on-disk file it is
// periodically flushed to.
type Manager struct {
	filePath string
	state    State
	logger   *log.Logger
}

// NewManager constructs a persistence manager for filePath with default
// state; call Load to populate it from disk.
func NewManager(filePath string, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{filePath: filePath, state: defaultState(), logger: logger}
}

// Load reads state from disk. A missing file is not an error (defaults
// are kept); a malformed file is an error so the caller can decide
// whether to fall back to defaults.
func (m *Manager) Load() error {
	data, err := os.ReadFile(m.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			m.logger.Printf("No persistent state file found at %s, using defaults", m.filePath)
			return nil
		}
		return fmt.Errorf("read persistence file: %w", err)
	}

	var loaded State
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("decode persistence file: %w", err)
	}
	m.state = loaded
	if m.state.Session == nil {
		m.state.Session = json.RawMessage("null")
	}
	m.logger.Printf("Loaded persistent state from %s", m.filePath)
	return nil
}

// Save writes the current state to disk. Failures are the caller's to
// log; they must never be treated as fatal (spec §4.7/§7).
func (m *Manager) Save() error {
	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode persistence state: %w", err)
	}
	if err := os.WriteFile(m.filePath, data, 0o644); err != nil {
		return fmt.Errorf("write persistence file: %w", err)
	}
	return nil
}

// SetMode, SetStartStop, SetSetCurrent, SetInsufficientSolarStart mutate
// the in-memory mirror; the caller calls Save once per tick afterward.
func (m *Manager) SetMode(mode uint32)              { m.state.Mode = mode }
func (m *Manager) SetStartStop(startStop uint32)    { m.state.StartStop = startStop }
func (m *Manager) SetSetCurrent(amps float32)       { m.state.SetCurrent = amps }
func (m *Manager) SetInsufficientSolarStart(ts float64) {
	m.state.InsufficientSolarStart = ts
}

// SetSection replaces a named top-level JSON section. Only "session" is
// currently used, but the shape generalizes the original's stubbed
// section API to something callers can actually exercise.
func (m *Manager) SetSection(name string, value json.RawMessage) error {
	switch name {
	case "session":
		m.state.Session = value
		return nil
	default:
		return fmt.Errorf("unknown persistence section: %s", name)
	}
}

// GetSection returns a named top-level JSON section, or nil if unknown.
func (m *Manager) GetSection(name string) json.RawMessage {
	switch name {
	case "session":
		return m.state.Session
	default:
		return nil
	}
}

// Mode, StartStop, SetCurrent, InsufficientSolarStart read back the
// in-memory mirror, used to seed control state at startup.
func (m *Manager) Mode() uint32                      { return m.state.Mode }
func (m *Manager) StartStop() uint32                 { return m.state.StartStop }
func (m *Manager) SetCurrentValue() float32          { return m.state.SetCurrent }
func (m *Manager) InsufficientSolarStart() float64   { return m.state.InsufficientSolarStart }
