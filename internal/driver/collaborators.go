package driver

import "github.com/devskill-org/phaeton-driver/internal/bus"

// Collaborator object-store paths (spec §4.10 step 3): these are
// populated by an external energy-management service the host exposes
// on the same bus; the driver only ever reads them. Missing power values
// default to 0, a missing SoC to nil, and a missing SoC minimum to the
// configured controls.soc_min_percent.
const (
	pathPVDCPower        = "/Ems/Pv/Dc/Power"
	pathPVACPowerL1       = "/Ems/Pv/Ac/L1/Power"
	pathPVACPowerL2       = "/Ems/Pv/Ac/L2/Power"
	pathPVACPowerL3       = "/Ems/Pv/Ac/L3/Power"
	pathConsumptionL1     = "/Ems/Consumption/L1/Power"
	pathConsumptionL2     = "/Ems/Consumption/L2/Power"
	pathConsumptionL3     = "/Ems/Consumption/L3/Power"
	pathBatterySoC        = "/Ems/Battery/Soc"
	pathBatterySoCMin     = "/Ems/Battery/SocMin"
)

// collaboratorReadings is the resolved set of external-EMS values one
// tick consults to compute PV excess and the SoC guard.
type collaboratorReadings struct {
	totalPVW     float64
	consumptionW float64
	soCPercent   *float64
	soCMinPercent *float64
}

func storeFloat(s *bus.Store, path string) float64 {
	v, ok := s.Get(path)
	if !ok {
		return 0
	}
	f, _ := v.AsFloat64()
	return f
}

func storeFloatPtr(s *bus.Store, path string) *float64 {
	v, ok := s.Get(path)
	if !ok {
		return nil
	}
	f, ok := v.AsFloat64()
	if !ok {
		return nil
	}
	return &f
}

// readCollaborators resolves the EMS-sourced readings from the shared
// object store, defaulting every missing power value to 0, a missing SoC
// to nil, and a missing SoC minimum to cfg.Controls.SoCMinPercent.
func (d *Driver) readCollaborators() collaboratorReadings {
	pv := storeFloat(d.store, pathPVDCPower) +
		storeFloat(d.store, pathPVACPowerL1) +
		storeFloat(d.store, pathPVACPowerL2) +
		storeFloat(d.store, pathPVACPowerL3)

	consumption := storeFloat(d.store, pathConsumptionL1) +
		storeFloat(d.store, pathConsumptionL2) +
		storeFloat(d.store, pathConsumptionL3)

	soc := storeFloatPtr(d.store, pathBatterySoC)
	socMin := storeFloatPtr(d.store, pathBatterySoCMin)
	if socMin == nil {
		v := d.cfg.Controls.SoCMinPercent
		socMin = &v
	}

	return collaboratorReadings{
		totalPVW:      pv,
		consumptionW:  consumption,
		soCPercent:    soc,
		soCMinPercent: socMin,
	}
}
