package driver

import (
	"fmt"
	"math"
	"time"

	"github.com/devskill-org/phaeton-driver/internal/codec"
	"github.com/devskill-org/phaeton-driver/internal/config"
	"github.com/devskill-org/phaeton-driver/internal/modbusio"
)

// readMeasurement performs step 1-2 of the poll loop (spec §4.10): one
// bulk read_holding spanning voltages/currents/powers/energy on the
// socket slave, a separate status-string read, and the station-status
// register on the station slave, then decodes and sanitizes the result.
func (d *Driver) readMeasurement() (Measurement, error) {
	start := time.Now()
	rm := d.cfg.Registers

	blockCount := (rm.EnergyBase + rm.EnergyCount) - rm.VoltagesBase
	block, err := d.reconnector.ReadHolding(d.cfg.Modbus.SocketSlaveID, rm.VoltagesBase, blockCount)
	if err != nil {
		return Measurement{}, err
	}

	m := Measurement{Timestamp: time.Now()}

	at := func(base uint16) []uint16 {
		offset := base - rm.VoltagesBase
		if int(offset) >= len(block) {
			return nil
		}
		return block[offset:]
	}

	for i := 0; i < 3; i++ {
		regs := at(rm.VoltagesBase + uint16(i*2))
		if v, err := decodeF32Safe(regs); err == nil {
			m.VoltagesV[i] = float64(v)
		}
		regs = at(rm.CurrentsBase + uint16(i*2))
		if v, err := decodeF32Safe(regs); err == nil {
			m.CurrentsA[i] = float64(v)
		}
		regs = at(rm.PowersBase + uint16(i*2))
		if v, err := decodeF32Safe(regs); err == nil {
			m.PowersW[i] = float64(v)
		}
	}
	if regs := at(rm.PowersBase + 6); len(regs) >= 2 {
		if v, err := decodeF32Safe(regs); err == nil {
			m.TotalPowerW = float64(v)
		}
	}
	if regs := at(rm.EnergyBase); len(regs) >= 4 {
		if v, err := codec.DecodeF64(regs); err == nil {
			m.EnergyKWh = v
		}
	}

	// V x I fallback when a per-phase power reads ~0 but current flows.
	for i := 0; i < 3; i++ {
		if math.Abs(m.PowersW[i]) < 1.0 {
			m.PowersW[i] = m.VoltagesV[i] * m.CurrentsA[i]
		}
	}
	if math.Abs(m.TotalPowerW) < 1.0 {
		m.TotalPowerW = m.PowersW[0] + m.PowersW[1] + m.PowersW[2]
	}

	statusRegs, err := d.reconnector.ReadHolding(d.cfg.Modbus.SocketSlaveID, rm.StatusBase, rm.StatusCount)
	if err == nil {
		if s, decErr := codec.DecodeString(statusRegs, 0); decErr != nil {
			d.logger.Printf("codec: status string decode failed: %v", decErr)
		} else {
			m.StatusText = s
		}
	}

	stationStatusRegs, err := d.reconnector.ReadHolding(d.cfg.Modbus.StationSlaveID, rm.StationStatusBase, 1)
	if err != nil {
		return Measurement{}, err
	}
	m.BaseStatus = int(stationStatusRegs[0])

	m.ReadDuration = time.Since(start)
	return m, nil
}

// decodeF32Safe decodes regs[:2] as a big-endian float32, substituting 0
// for non-finite results (spec §4.10 step 2: "sanitize non-finite floats
// to 0").
func decodeF32Safe(regs []uint16) (float32, error) {
	v, err := codec.DecodeF32(regs)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
		return 0, nil
	}
	return v, nil
}

// readIdentity reads the manufacturer/firmware/serial strings and the
// station max-current register, both on the station slave. It is only
// called periodically (spec §4.10 step 1: "read station-max
// periodically"), not on every tick.
func (d *Driver) readIdentity() (Identity, error) {
	rm := d.cfg.Registers
	var id Identity

	if regs, err := d.reconnector.ReadHolding(d.cfg.Modbus.StationSlaveID, rm.ManufacturerBase, rm.ManufacturerCount); err == nil {
		if s, decErr := codec.DecodeString(regs, 0); decErr == nil {
			id.ManufacturerName = s
		}
	}
	if regs, err := d.reconnector.ReadHolding(d.cfg.Modbus.StationSlaveID, rm.FirmwareBase, rm.FirmwareCount); err == nil {
		if s, decErr := codec.DecodeString(regs, 0); decErr == nil {
			id.FirmwareVersion = s
		}
	}
	if regs, err := d.reconnector.ReadHolding(d.cfg.Modbus.StationSlaveID, rm.SerialBase, rm.SerialCount); err == nil {
		if s, decErr := codec.DecodeString(regs, 0); decErr == nil {
			id.SerialNumber = s
		}
	}

	maxRegs, err := d.reconnector.ReadHolding(d.cfg.Modbus.StationSlaveID, rm.StationMaxBase, 2)
	if err != nil {
		return id, err
	}
	v, err := decodeF32Safe(maxRegs)
	if err != nil {
		return id, err
	}
	id.StationMaxA = v
	return id, nil
}

// applyPhases applies a phase switch by first zeroing the
// commanded current, then writing the new phase count (spec §4.9's
// switch guard: current=0 before a phase change), via the reconnector
// so the normal C3 retry/classification path applies.
func (d *Driver) applyPhases(target int) error {
	rm := d.cfg.Registers
	if err := d.writeSetCurrent(0); err != nil {
		return err
	}
	return d.reconnector.WriteMultiple(d.cfg.Modbus.SocketSlaveID, rm.PhasesBase, []uint16{uint16(target)})
}

// writeSetCurrent writes the commanded current to the amps-config
// register as a big-endian float32.
func (d *Driver) writeSetCurrent(amps float32) error {
	enc := codec.EncodeF32(amps)
	return d.reconnector.WriteMultiple(d.cfg.Modbus.SocketSlaveID, d.cfg.Registers.AmpsConfigBase, enc[:])
}

// newReconnector wires a modbusio.Reconnector from the resolved config,
// grounded on internal/modbusio's own constructors.
func newReconnector(cfg *config.Config) *modbusio.Reconnector {
	addr := cfg.Modbus.Host
	client := modbusio.NewClient(addrWithPort(addr, cfg.Modbus.Port), cfg.Modbus.SocketSlaveID, cfg.Modbus.ConnectTimeout, cfg.Modbus.OperationTimeout)
	return modbusio.NewReconnector(client, cfg.Controls.MaxRetries, cfg.Controls.RetryDelay)
}

func addrWithPort(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
