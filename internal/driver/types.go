// Package driver implements the poll loop (C10) and snapshot publisher
// (C11): the per-tick measurement/decide/write pipeline that owns the
// Modbus connection exclusively, and the latest-value-wins watch slot
// plus object-store mirroring that fan a DriverSnapshot out to the bus
// and web surfaces.
package driver

import "time"

// Measurement is one tick's decoded reading (spec §3 "Measurement").
type Measurement struct {
	VoltagesV   [3]float64
	CurrentsA   [3]float64
	PowersW     [3]float64
	TotalPowerW float64
	EnergyKWh   float64
	BaseStatus  int
	StatusText  string
	Timestamp   time.Time
	ReadDuration time.Duration
}

// Identity is the charger's station identity, read periodically rather
// than every tick (manufacturer/firmware/serial rarely change).
type Identity struct {
	ManufacturerName string
	FirmwareVersion  string
	SerialNumber     string
	StationMaxA      float32
}

// SessionSummary is the read-only view of session state a snapshot
// carries, mirroring spec §3's "session summary" field.
type SessionSummary struct {
	Active          bool       `json:"active"`
	ID              string     `json:"id,omitempty"`
	StartTime       *time.Time `json:"start_time,omitempty"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	EnergyDeliveredKWh float64 `json:"energy_delivered_kwh"`
	PeakPowerW      float64    `json:"peak_power_w"`
	AveragePowerW   float64    `json:"average_power_w"`
	Cost            *float64   `json:"cost,omitempty"`
	Currency        string     `json:"currency,omitempty"`
}

// DriverSnapshot is the serializable per-tick record published to the
// watch slot and mirrored into the object store (spec §3/§4.11).
type DriverSnapshot struct {
	Timestamp time.Time `json:"timestamp"`

	Mode      int `json:"mode"`
	StartStop int `json:"start_stop"`

	RequestedCurrentA float32 `json:"requested_current_a"`
	AppliedCurrentA   float32 `json:"applied_current_a"`
	StationMaxA       float32 `json:"station_max_a"`

	DeviceInstance int    `json:"device_instance"`
	ProductName    string `json:"product_name,omitempty"`
	FirmwareVersion string `json:"firmware_version,omitempty"`
	SerialNumber   string `json:"serial_number,omitempty"`

	Status        int `json:"status"`
	AppliedPhases int `json:"applied_phases"`

	VoltagesV   [3]float64 `json:"voltages_v"`
	CurrentsA   [3]float64 `json:"currents_a"`
	PowersW     [3]float64 `json:"powers_w"`
	TotalPowerW float64    `json:"total_power_w"`
	TotalEnergyKWh float64 `json:"total_energy_kwh"`

	Currency string   `json:"currency,omitempty"`
	Rate     *float64 `json:"rate,omitempty"`

	Session SessionSummary `json:"session"`

	LastPollDurationMs int64 `json:"last_poll_duration_ms"`
	TotalPolls         uint64 `json:"total_polls"`
	OverrunCount       uint64 `json:"overrun_count"`
	PollIntervalMs     int64  `json:"poll_interval_ms"`

	PVExcessW float64 `json:"pv_excess_w"`

	ModbusConnected bool   `json:"modbus_connected"`
	BusConnected    bool   `json:"bus_connected"`
	State           string `json:"state"`
}

// Metrics is the subset of snapshot/counter data spec §4.12's
// /api/metrics endpoint reports.
type Metrics struct {
	TotalPolls         uint64 `json:"total_polls"`
	OverrunCount       uint64 `json:"overrun_count"`
	PollIntervalMs     int64  `json:"poll_interval_ms"`
	LastPollDurationMs int64  `json:"last_poll_duration_ms"`
	ModbusConnected    bool   `json:"modbus_connected"`
}
