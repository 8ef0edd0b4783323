// Package config loads, validates, and persists the driver's
// configuration in the teacher's JSON-plus-Validate idiom.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// ModbusConfig describes the TCP endpoint and slave addressing.
type ModbusConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	SocketSlaveID  byte          `json:"socket_slave_id"`
	StationSlaveID byte          `json:"station_slave_id"`
	ConnectTimeout time.Duration `json:"connect_timeout"`
	OperationTimeout time.Duration `json:"operation_timeout"`
}

// RegisterMap is the fixed mapping from logical field to (base address,
// register count) on each of the two slaves.
type RegisterMap struct {
	VoltagesBase     uint16 `json:"voltages_base"`
	CurrentsBase     uint16 `json:"currents_base"`
	PowersBase       uint16 `json:"powers_base"`
	EnergyBase       uint16 `json:"energy_base"`
	EnergyCount      uint16 `json:"energy_count"`
	StatusBase       uint16 `json:"status_base"`
	StatusCount      uint16 `json:"status_count"`
	AmpsConfigBase   uint16 `json:"amps_config_base"`
	PhasesBase       uint16 `json:"phases_base"`
	ManufacturerBase uint16 `json:"manufacturer_base"`
	ManufacturerCount uint16 `json:"manufacturer_count"`
	FirmwareBase     uint16 `json:"firmware_base"`
	FirmwareCount    uint16 `json:"firmware_count"`
	SerialBase       uint16 `json:"serial_base"`
	SerialCount      uint16 `json:"serial_count"`
	StationMaxBase   uint16 `json:"station_max_base"`
	StationStatusBase uint16 `json:"station_status_base"`
}

// ScheduleItem is one configured charging window.
type ScheduleItem struct {
	Active    bool  `json:"active"`
	Days      []int `json:"days"` // 0=Mon..6=Sun
	StartTime string `json:"start_time"` // "HH:MM"
	EndTime   string `json:"end_time"`   // "HH:MM"
}

// ControlsConfig holds the numeric constants C8/C9/C10 consult.
type ControlsConfig struct {
	DefaultCurrent            float32       `json:"default_current"`
	MinSetCurrent             float32       `json:"min_set_current"`
	MaxSetCurrent             float32       `json:"max_set_current"`
	UpdateDifferenceThreshold float32       `json:"update_difference_threshold"`
	CurrentUpdateInterval     time.Duration `json:"current_update_interval"`
	WatchdogInterval          time.Duration `json:"watchdog_interval"`
	MaxRetries                int           `json:"max_retries"`
	RetryDelay                time.Duration `json:"retry_delay"`
	EVReportingLag            time.Duration `json:"ev_reporting_lag"`
	PVExcessAlpha             float64       `json:"pv_excess_alpha"`
	AutoPhaseSwitchEnabled    bool          `json:"auto_phase_switch_enabled"`
	PhaseSwitchGrace          time.Duration `json:"phase_switch_grace"`
	PhaseSwitchSettle         time.Duration `json:"phase_switch_settle"`
	PhaseSwitchHysteresisW    float64       `json:"phase_switch_hysteresis_w"`
	SoCMinPercent             float64       `json:"soc_min_percent"`
}

// PricingConfig selects the pricing source and, for static pricing, the
// flat rate. The external (dynamic) source is out of scope (spec.md §1)
// and is represented only as a named, unimplemented choice.
type PricingConfig struct {
	Source     string  `json:"source"` // "static" | "external" | "none"
	StaticRate float64 `json:"static_rate"`
	Currency   string  `json:"currency"`
}

// WebConfig configures the HTTP/SSE surface.
type WebConfig struct {
	ListenAddr string `json:"listen_addr"`
}

// LocationConfig supplies the coordinates used for sunrise/sunset
// enrichment in the status endpoint; it has no bearing on control
// decisions.
type LocationConfig struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// LoggingConfig configures the ambient log-ring-buffer surface.
type LoggingConfig struct {
	Level       string `json:"level"`
	RingBufferLines int `json:"ring_buffer_lines"`
}

// BusConfig configures the system message bus integration.
type BusConfig struct {
	VendorPrefix   string `json:"vendor_prefix"`
	DeviceInstance int    `json:"device_instance"`
	RequireBus     bool   `json:"require_bus"`
	UseSessionBusFallback bool `json:"use_session_bus_fallback"`
}

// PersistenceConfig configures the JSON state file and optional archive.
type PersistenceConfig struct {
	StateFilePath      string `json:"state_file_path"`
	MaxHistoryInMemory int    `json:"max_history_in_memory"`
	MaxHistoryPersisted int   `json:"max_history_persisted"`
	PostgresConnString string `json:"postgres_conn_string"`
}

// Config is the immutable, validated runtime configuration.
type Config struct {
	PollInterval time.Duration `json:"poll_interval"`
	Timezone     string        `json:"timezone"`

	Modbus      ModbusConfig      `json:"modbus"`
	Registers   RegisterMap       `json:"registers"`
	Controls    ControlsConfig    `json:"controls"`
	Schedule    []ScheduleItem    `json:"schedule"`
	Pricing     PricingConfig     `json:"pricing"`
	Web         WebConfig         `json:"web"`
	Location    LocationConfig    `json:"location"`
	Logging     LoggingConfig     `json:"logging"`
	Bus         BusConfig         `json:"bus"`
	Persistence PersistenceConfig `json:"persistence"`
}

// DefaultConfig returns a configuration with sensible defaults, mirroring
// the register map and control constants of an Alfen-style AC charger.
func DefaultConfig() *Config {
	return &Config{
		PollInterval: 2 * time.Second,
		Timezone:     "UTC",
		Modbus: ModbusConfig{
			Host:             "192.168.1.50",
			Port:             502,
			SocketSlaveID:    1,
			StationSlaveID:   200,
			ConnectTimeout:   5 * time.Second,
			OperationTimeout: 2 * time.Second,
		},
		Registers: RegisterMap{
			VoltagesBase:      306,
			CurrentsBase:      320,
			PowersBase:        344,
			EnergyBase:        374,
			EnergyCount:       4,
			StatusBase:        1201,
			StatusCount:       5,
			AmpsConfigBase:    1210,
			PhasesBase:        1215,
			ManufacturerBase:  100,
			ManufacturerCount: 5,
			FirmwareBase:      123,
			FirmwareCount:     17,
			SerialBase:        157,
			SerialCount:       11,
			StationMaxBase:    1100,
			StationStatusBase: 1201,
		},
		Controls: ControlsConfig{
			DefaultCurrent:            6.0,
			MinSetCurrent:             6.0,
			MaxSetCurrent:             32.0,
			UpdateDifferenceThreshold: 0.5,
			CurrentUpdateInterval:     30 * time.Second,
			WatchdogInterval:          60 * time.Second,
			MaxRetries:                3,
			RetryDelay:                2 * time.Second,
			EVReportingLag:            10 * time.Second,
			PVExcessAlpha:             0.4,
			AutoPhaseSwitchEnabled:    true,
			PhaseSwitchGrace:          5 * time.Minute,
			PhaseSwitchSettle:        30 * time.Second,
			PhaseSwitchHysteresisW:    300,
			SoCMinPercent:             20,
		},
		Schedule: nil,
		Pricing: PricingConfig{
			Source:     "static",
			StaticRate: 0.25,
			Currency:   "EUR",
		},
		Web: WebConfig{
			ListenAddr: ":8080",
		},
		Location: LocationConfig{
			Latitude:  52.3676,
			Longitude: 4.9041,
		},
		Logging: LoggingConfig{
			Level:           "info",
			RingBufferLines: 2000,
		},
		Bus: BusConfig{
			VendorPrefix:          "com.victronenergy",
			DeviceInstance:        0,
			RequireBus:            false,
			UseSessionBusFallback: true,
		},
		Persistence: PersistenceConfig{
			StateFilePath:       "/data/phaeton_state.json",
			MaxHistoryInMemory:  100,
			MaxHistoryPersisted: 10,
			PostgresConnString:  "",
		},
	}
}

// LoadConfig loads configuration from a JSON file, applying defaults to
// any field absent from the file and validating the result.
func LoadConfig(filename string) (*Config, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return LoadConfigFromReader(file)
}

// LoadConfigFromReader loads configuration from an io.Reader.
func LoadConfigFromReader(reader io.Reader) (*Config, error) {
	cfg := DefaultConfig()

	decoder := json.NewDecoder(reader)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a JSON file.
func (c *Config) SaveConfig(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	return c.SaveConfigToWriter(file)
}

// SaveConfigToWriter saves the configuration to an io.Writer.
func (c *Config) SaveConfigToWriter(writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config JSON: %w", err)
	}
	return nil
}

// Validate checks that configuration values are within the ranges the
// control loop and phase governor depend on.
func (c *Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be greater than 0, got: %s", c.PollInterval)
	}
	if c.Modbus.Host == "" {
		return fmt.Errorf("modbus.host cannot be empty")
	}
	if c.Modbus.Port <= 0 || c.Modbus.Port > 65535 {
		return fmt.Errorf("modbus.port must be between 1 and 65535, got: %d", c.Modbus.Port)
	}
	if c.Modbus.ConnectTimeout <= 0 {
		return fmt.Errorf("modbus.connect_timeout must be greater than 0")
	}
	if c.Modbus.OperationTimeout <= 0 {
		return fmt.Errorf("modbus.operation_timeout must be greater than 0")
	}
	if c.Controls.MinSetCurrent < 0 {
		return fmt.Errorf("controls.min_set_current must be non-negative")
	}
	if c.Controls.MaxSetCurrent <= 0 {
		return fmt.Errorf("controls.max_set_current must be greater than 0")
	}
	if c.Controls.MinSetCurrent > c.Controls.MaxSetCurrent {
		return fmt.Errorf("controls.min_set_current (%v) cannot exceed controls.max_set_current (%v)",
			c.Controls.MinSetCurrent, c.Controls.MaxSetCurrent)
	}
	if c.Controls.MaxRetries <= 0 {
		return fmt.Errorf("controls.max_retries must be greater than 0")
	}
	if c.Controls.RetryDelay <= 0 {
		return fmt.Errorf("controls.retry_delay must be greater than 0")
	}
	if c.Controls.PVExcessAlpha <= 0 || c.Controls.PVExcessAlpha > 1 {
		return fmt.Errorf("controls.pv_excess_alpha must be in (0, 1], got: %v", c.Controls.PVExcessAlpha)
	}
	if c.Controls.SoCMinPercent < 0 || c.Controls.SoCMinPercent > 100 {
		return fmt.Errorf("controls.soc_min_percent must be between 0 and 100")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s, must be one of: debug, info, warn, error", c.Logging.Level)
	}

	validPricingSources := map[string]bool{"static": true, "external": true, "none": true}
	if !validPricingSources[c.Pricing.Source] {
		return fmt.Errorf("invalid pricing.source: %s, must be one of: static, external, none", c.Pricing.Source)
	}

	for i, item := range c.Schedule {
		if len(item.StartTime) != 5 || len(item.EndTime) != 5 {
			return fmt.Errorf("schedule[%d]: start_time/end_time must be HH:MM", i)
		}
		for _, d := range item.Days {
			if d < 0 || d > 6 {
				return fmt.Errorf("schedule[%d]: day %d out of range [0,6]", i, d)
			}
		}
	}

	if c.Persistence.StateFilePath == "" {
		return fmt.Errorf("persistence.state_file_path cannot be empty")
	}
	if c.Persistence.MaxHistoryInMemory <= 0 {
		return fmt.Errorf("persistence.max_history_in_memory must be greater than 0")
	}
	if c.Persistence.MaxHistoryPersisted <= 0 {
		return fmt.Errorf("persistence.max_history_persisted must be greater than 0")
	}

	if c.Web.ListenAddr == "" {
		return fmt.Errorf("web.listen_addr cannot be empty")
	}

	return nil
}

// String returns a string representation of the config, matching the
// teacher's debug-printing convention.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
