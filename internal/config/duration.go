package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// MarshalJSON renders ModbusConfig's durations as human strings ("5s"),
// matching the teacher's type-Alias trick in scheduler/config.go.
func (m ModbusConfig) MarshalJSON() ([]byte, error) {
	type alias ModbusConfig
	return json.Marshal(&struct {
		alias
		ConnectTimeout   string `json:"connect_timeout"`
		OperationTimeout string `json:"operation_timeout"`
	}{
		alias:            alias(m),
		ConnectTimeout:   m.ConnectTimeout.String(),
		OperationTimeout: m.OperationTimeout.String(),
	})
}

// UnmarshalJSON parses ModbusConfig's durations from human strings,
// falling back to whatever default was already set if the field is
// absent from the input.
func (m *ModbusConfig) UnmarshalJSON(data []byte) error {
	type alias ModbusConfig
	aux := &struct {
		*alias
		ConnectTimeout   string `json:"connect_timeout"`
		OperationTimeout string `json:"operation_timeout"`
	}{alias: (*alias)(m)}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	var err error
	if aux.ConnectTimeout != "" {
		if m.ConnectTimeout, err = time.ParseDuration(aux.ConnectTimeout); err != nil {
			return fmt.Errorf("invalid modbus.connect_timeout: %w", err)
		}
	}
	if aux.OperationTimeout != "" {
		if m.OperationTimeout, err = time.ParseDuration(aux.OperationTimeout); err != nil {
			return fmt.Errorf("invalid modbus.operation_timeout: %w", err)
		}
	}
	return nil
}

// MarshalJSON renders ControlsConfig's durations as human strings.
func (c ControlsConfig) MarshalJSON() ([]byte, error) {
	type alias ControlsConfig
	return json.Marshal(&struct {
		alias
		CurrentUpdateInterval string `json:"current_update_interval"`
		WatchdogInterval      string `json:"watchdog_interval"`
		RetryDelay            string `json:"retry_delay"`
		EVReportingLag        string `json:"ev_reporting_lag"`
		PhaseSwitchGrace      string `json:"phase_switch_grace"`
		PhaseSwitchSettle     string `json:"phase_switch_settle"`
	}{
		alias:                 alias(c),
		CurrentUpdateInterval: c.CurrentUpdateInterval.String(),
		WatchdogInterval:      c.WatchdogInterval.String(),
		RetryDelay:            c.RetryDelay.String(),
		EVReportingLag:        c.EVReportingLag.String(),
		PhaseSwitchGrace:      c.PhaseSwitchGrace.String(),
		PhaseSwitchSettle:     c.PhaseSwitchSettle.String(),
	})
}

// UnmarshalJSON parses ControlsConfig's durations from human strings.
func (c *ControlsConfig) UnmarshalJSON(data []byte) error {
	type alias ControlsConfig
	aux := &struct {
		*alias
		CurrentUpdateInterval string `json:"current_update_interval"`
		WatchdogInterval      string `json:"watchdog_interval"`
		RetryDelay            string `json:"retry_delay"`
		EVReportingLag        string `json:"ev_reporting_lag"`
		PhaseSwitchGrace      string `json:"phase_switch_grace"`
		PhaseSwitchSettle     string `json:"phase_switch_settle"`
	}{alias: (*alias)(c)}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	fields := []struct {
		raw string
		dst *time.Duration
		name string
	}{
		{aux.CurrentUpdateInterval, &c.CurrentUpdateInterval, "current_update_interval"},
		{aux.WatchdogInterval, &c.WatchdogInterval, "watchdog_interval"},
		{aux.RetryDelay, &c.RetryDelay, "retry_delay"},
		{aux.EVReportingLag, &c.EVReportingLag, "ev_reporting_lag"},
		{aux.PhaseSwitchGrace, &c.PhaseSwitchGrace, "phase_switch_grace"},
		{aux.PhaseSwitchSettle, &c.PhaseSwitchSettle, "phase_switch_settle"},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("invalid controls.%s: %w", f.name, err)
		}
		*f.dst = d
	}
	return nil
}

// MarshalJSON renders the top-level PollInterval as a human string.
func (c *Config) MarshalJSON() ([]byte, error) {
	type alias Config
	return json.Marshal(&struct {
		*alias
		PollInterval string `json:"poll_interval"`
	}{
		alias:        (*alias)(c),
		PollInterval: c.PollInterval.String(),
	})
}

// UnmarshalJSON parses the top-level PollInterval from a human string.
func (c *Config) UnmarshalJSON(data []byte) error {
	type alias Config
	aux := &struct {
		*alias
		PollInterval string `json:"poll_interval"`
	}{alias: (*alias)(c)}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	if aux.PollInterval != "" {
		d, err := time.ParseDuration(aux.PollInterval)
		if err != nil {
			return fmt.Errorf("invalid poll_interval: %w", err)
		}
		c.PollInterval = d
	}
	return nil
}
