package driver

import (
	"time"

	"github.com/devskill-org/phaeton-driver/internal/bus"
	"github.com/devskill-org/phaeton-driver/internal/session"
)

// Mirrored object-store paths (spec §6's "required mirrored paths").
const (
	pathMgmtProcessName    = "/Mgmt/ProcessName"
	pathMgmtProcessVersion = "/Mgmt/ProcessVersion"
	pathMgmtConnection     = "/Mgmt/Connection"
	pathDeviceInstance     = "/DeviceInstance"
	pathProductName        = "/ProductName"
	pathProductID          = "/ProductId"
	pathFirmwareVersion    = "/FirmwareVersion"
	pathSerial             = "/Serial"
	pathConnected          = "/Connected"
	pathMode               = "/Mode"
	pathStartStop          = "/StartStop"
	pathSetCurrent         = "/SetCurrent"
	pathMaxCurrent         = "/MaxCurrent"
	pathAcPower            = "/Ac/Power"
	pathAcEnergyForward    = "/Ac/Energy/Forward"
	pathStatus             = "/Status"
)

func phaseVoltagePath(i int) string { return [3]string{"/Ac/L1/Voltage", "/Ac/L2/Voltage", "/Ac/L3/Voltage"}[i] }
func phaseCurrentPath(i int) string { return [3]string{"/Ac/L1/Current", "/Ac/L2/Current", "/Ac/L3/Current"}[i] }
func phasePowerPath(i int) string   { return [3]string{"/Ac/L1/Power", "/Ac/L2/Power", "/Ac/L3/Power"}[i] }

// buildSnapshot assembles a DriverSnapshot from the tick's resolved
// state (spec §4.11/§3 "Driver snapshot").
func (d *Driver) buildSnapshot(meas Measurement, effective float32, status int, excess float64, connected bool) DriverSnapshot {
	snap := DriverSnapshot{
		Timestamp:         time.Now(),
		Mode:              int(d.mode),
		StartStop:         int(d.startStop),
		RequestedCurrentA: d.requestedCurrentA,
		AppliedCurrentA:   effective,
		StationMaxA:       d.identity.StationMaxA,
		DeviceInstance:    d.cfg.Bus.DeviceInstance,
		ProductName:       d.identity.ManufacturerName,
		FirmwareVersion:   d.identity.FirmwareVersion,
		SerialNumber:      d.identity.SerialNumber,
		Status:            status,
		AppliedPhases:     d.phaseGov.AppliedPhases(),
		VoltagesV:         meas.VoltagesV,
		CurrentsA:         meas.CurrentsA,
		PowersW:           meas.PowersW,
		TotalPowerW:       meas.TotalPowerW,
		TotalEnergyKWh:    meas.EnergyKWh,
		LastPollDurationMs: d.lastPollDuration.Milliseconds(),
		TotalPolls:        d.totalPolls,
		OverrunCount:      d.overrunCount,
		PollIntervalMs:    d.cfg.PollInterval.Milliseconds(),
		PVExcessW:         excess,
		ModbusConnected:   connected,
		BusConnected:      d.busConnected(),
		State:             d.state(),
	}

	if d.cfg.Pricing.Source != "none" {
		snap.Currency = d.cfg.Pricing.Currency
		rate := d.cfg.Pricing.StaticRate
		snap.Rate = &rate
	}

	snap.Session = sessionSummary(d.sessions.Current, d.sessions.Last, d.cfg.Pricing.Currency)
	return snap
}

// sessionSummary prefers the Active session, if any, falling back to
// the most recently completed one.
func sessionSummary(current, last *session.ChargingSession, currency string) SessionSummary {
	s := current
	if s == nil {
		s = last
	}
	if s == nil {
		return SessionSummary{}
	}
	return SessionSummary{
		Active:             s.Status == session.StatusActive,
		ID:                 s.ID,
		StartTime:          &s.StartTime,
		EndTime:            s.EndTime,
		EnergyDeliveredKWh: s.EnergyDeliveredKWh,
		PeakPowerW:         s.PeakPowerW,
		AveragePowerW:      s.AveragePowerW,
		Cost:               s.Cost,
		Currency:           currency,
	}
}

// mirror writes the snapshot's mirrored fields into the shared object
// store (spec §4.11 "mirrored fields"), which in turn fans out
// PropertiesChanged/ItemsChanged signals via the bus service's
// subscription to store changes.
func (d *Driver) mirror(snap DriverSnapshot) {
	d.store.Set(pathMgmtProcessName, bus.Str("phaeton-driver"))
	d.store.Set(pathMgmtProcessVersion, bus.Str(Version))
	d.store.Set(pathMgmtConnection, bus.Str(d.cfg.Modbus.Host))
	d.store.Set(pathDeviceInstance, bus.Int(int64(d.cfg.Bus.DeviceInstance)))
	d.store.Set(pathProductName, bus.Str(snap.ProductName))
	d.store.Set(pathProductID, bus.Int(0xA000))
	d.store.Set(pathFirmwareVersion, bus.Str(snap.FirmwareVersion))
	d.store.Set(pathSerial, bus.Str(snap.SerialNumber))
	d.store.Set(pathConnected, bus.Bool(snap.ModbusConnected))
	d.store.Set(pathMode, bus.Int(int64(snap.Mode)))
	d.store.Set(pathStartStop, bus.Int(int64(snap.StartStop)))
	d.store.Set(pathSetCurrent, bus.Float(float64(snap.AppliedCurrentA)))
	d.store.Set(pathMaxCurrent, bus.Float(float64(d.cfg.Controls.MaxSetCurrent)))
	d.store.Set(pathAcPower, bus.Float(snap.TotalPowerW))
	d.store.Set(pathAcEnergyForward, bus.Float(snap.TotalEnergyKWh))
	d.store.Set(pathStatus, bus.Int(int64(snap.Status)))

	for i := 0; i < 3; i++ {
		d.store.Set(phaseVoltagePath(i), bus.Float(snap.VoltagesV[i]))
		d.store.Set(phaseCurrentPath(i), bus.Float(snap.CurrentsA[i]))
		d.store.Set(phasePowerPath(i), bus.Float(snap.PowersW[i]))
	}
}

// Version is the runtime-reported build identification (spec §6). A
// real build pipeline would inject this via -ldflags; absent that, it
// is a stable fallback string.
var Version = "0.1.0"
