package driver

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/devskill-org/phaeton-driver/internal/archive"
	"github.com/devskill-org/phaeton-driver/internal/bus"
	"github.com/devskill-org/phaeton-driver/internal/config"
	"github.com/devskill-org/phaeton-driver/internal/control"
	"github.com/devskill-org/phaeton-driver/internal/modbusio"
	"github.com/devskill-org/phaeton-driver/internal/persistence"
	"github.com/devskill-org/phaeton-driver/internal/phase"
	"github.com/devskill-org/phaeton-driver/internal/pricing"
	"github.com/devskill-org/phaeton-driver/internal/session"
)

// Driver owns the Modbus connection exclusively and runs the poll loop
// (C10) plus the snapshot publisher (C11). No other component touches
// the Modbus connection or the control state mutated here (spec §5).
type Driver struct {
	cfg    *config.Config
	logger *log.Logger

	reconnector *modbusio.Reconnector
	store       *bus.Store
	commands    <-chan bus.Command

	sessions   *session.Manager
	persist    *persistence.Manager
	pricer     pricing.Source
	archiver   *archive.Archiver
	busService *bus.Service
	phaseGov   *phase.Governor
	watch      *Watch
	loc        *time.Location

	// Control state (spec §3 "Control state").
	mode              control.Mode
	startStop         control.StartStop
	requestedCurrentA float32

	lastSentCurrentA        float32
	lastCurrentSetTime      time.Time
	lastSetCurrentChangedAt time.Time

	pvExcessSmoothed     float64
	havePVExcessSmoothed bool

	identity        Identity
	haveIdentity    bool
	identityTickGap int

	totalPolls       uint64
	overrunCount     uint64
	lastTickAt       time.Time
	lastPollDuration time.Duration

	mu           sync.Mutex
	stateLabel   string
	shuttingDown bool
}

// NewDriver constructs a Driver. Control state is seeded from
// persist's in-memory mirror; callers must have already called
// persist.Load().
func NewDriver(cfg *config.Config, logger *log.Logger, store *bus.Store, commands <-chan bus.Command, persist *persistence.Manager, sessions *session.Manager, pricer pricing.Source, archiver *archive.Archiver) *Driver {
	if logger == nil {
		logger = log.Default()
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Printf("driver: unknown timezone %q, defaulting to UTC: %v", cfg.Timezone, err)
		loc = time.UTC
	}

	d := &Driver{
		cfg:         cfg,
		logger:      logger,
		reconnector: newReconnector(cfg),
		store:       store,
		commands:    commands,
		sessions:    sessions,
		persist:     persist,
		pricer:      pricer,
		archiver:    archiver,
		phaseGov: phase.NewGovernor(1, cfg.Controls.MinSetCurrent, cfg.Controls.MaxSetCurrent,
			cfg.Controls.PhaseSwitchHysteresisW, cfg.Controls.PhaseSwitchGrace, cfg.Controls.PhaseSwitchSettle),
		watch:      NewWatch(),
		loc:        loc,
		stateLabel: "Starting",
	}

	d.mode = control.Mode(persist.Mode())
	d.startStop = control.StartStop(persist.StartStop())
	d.requestedCurrentA = persist.SetCurrentValue()
	if d.requestedCurrentA == 0 {
		d.requestedCurrentA = cfg.Controls.DefaultCurrent
	}
	if err := sessions.Restore(persist.GetSection("session")); err != nil {
		logger.Printf("driver: session restore: %v", err)
	}

	d.markMirroredIdentityPaths()
	return d
}

// Watch exposes the snapshot watch slot for T3 (the HTTP surface) to
// subscribe to.
func (d *Driver) Watch() *Watch { return d.watch }

// SetBusService wires the message-bus service so snapshots can report
// its connection state (spec.md's "bus-connection indicator" field,
// distinct from the Modbus connection). Call before Run; nil is safe
// and simply reports BusConnected=false.
func (d *Driver) SetBusService(svc *bus.Service) { d.busService = svc }

func (d *Driver) busConnected() bool {
	return d.busService != nil && d.busService.Connected()
}

// Run executes the poll loop until ctx is cancelled, ticking at
// cfg.PollInterval. Ticks are processed sequentially in this goroutine;
// if a tick overruns the interval, Go's time.Ticker coalesces the
// missed signal(s) rather than queuing them, and overrunCount records
// the fact (spec §4.10/§5: "processed back-to-back without catching up
// lost ticks").
func (d *Driver) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	d.setState("Running")
	d.lastTickAt = time.Now()
	d.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			d.shutdown()
			return
		case now := <-ticker.C:
			if elapsed := now.Sub(d.lastTickAt); elapsed > d.cfg.PollInterval+d.cfg.PollInterval/2 {
				d.overrunCount++
			}
			d.lastTickAt = now
			d.tick(ctx)
		}
	}
}

func (d *Driver) setState(label string) {
	d.mu.Lock()
	d.stateLabel = label
	d.mu.Unlock()
}

func (d *Driver) state() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stateLabel
}

// tick runs one full iteration of spec §4.10's ten steps.
func (d *Driver) tick(ctx context.Context) {
	tickStart := time.Now()

	d.drainCommands()

	d.identityTickGap++
	if !d.haveIdentity || d.identityTickGap >= identityRefreshTicks {
		if id, err := d.readIdentity(); err != nil {
			d.logger.Printf("driver: identity/station-max read failed: %v", err)
		} else {
			d.identity = id
			d.haveIdentity = true
			d.identityTickGap = 0
		}
	}

	meas, err := d.readMeasurement()
	connected := err == nil
	if err != nil {
		d.logger.Printf("driver: measurement read failed: %v", err)
		meas.BaseStatus = 0
	}

	collab := d.readCollaborators()
	excess := d.computePVExcess(meas, collab, tickStart)

	scheduleActive := control.IsScheduleActive(toControlSchedule(d.cfg.Schedule), time.Now(), d.loc)

	effective := control.Decide(control.Inputs{
		Mode:              d.mode,
		StartStop:         d.startStop,
		RequestedCurrentA: d.requestedCurrentA,
		StationMaxA:       d.identity.StationMaxA,
		MaxSetCurrentA:    d.cfg.Controls.MaxSetCurrent,
		MinSetCurrentA:    d.cfg.Controls.MinSetCurrent,
		PVExcessW:         &excess,
		SoCPercent:        collab.soCPercent,
		SoCMinPercent:     collab.soCMinPercent,
		ScheduleActive:    scheduleActive,
		AppliedPhases:     d.phaseGov.AppliedPhases(),
	})

	if d.phaseGov.Settling(tickStart) {
		effective = 0
	}

	var soCBelowMin *bool
	if collab.soCPercent != nil && collab.soCMinPercent != nil {
		b := *collab.soCPercent < *collab.soCMinPercent
		soCBelowMin = &b
	}
	status := control.DeriveStatus(meas.BaseStatus, d.mode, d.startStop, soCBelowMin, effective, scheduleActive)

	d.maybeWriteCurrent(effective, tickStart)

	d.handleSessionTransition(status, meas)

	if d.cfg.Controls.AutoPhaseSwitchEnabled {
		if err := d.phaseGov.Evaluate(tickStart, excess, d.applyPhases); err != nil {
			d.logger.Printf("driver: phase switch failed: %v", err)
		}
	}

	d.persistTick()

	d.lastPollDuration = time.Since(tickStart)
	d.totalPolls++

	snap := d.buildSnapshot(meas, effective, status, excess, connected)
	d.watch.Publish(snap)
	d.mirror(snap)
}

const identityRefreshTicks = 30

func toControlSchedule(items []config.ScheduleItem) []control.ScheduleItem {
	out := make([]control.ScheduleItem, len(items))
	for i, it := range items {
		out[i] = control.ScheduleItem{Active: it.Active, Days: it.Days, StartTime: it.StartTime, EndTime: it.EndTime}
	}
	return out
}

// computePVExcess implements spec §4.10 step 4, including the
// reporting-lag compensation window after a set-current change.
func (d *Driver) computePVExcess(meas Measurement, collab collaboratorReadings, now time.Time) float64 {
	evPower := meas.TotalPowerW
	if !d.lastSetCurrentChangedAt.IsZero() && now.Sub(d.lastSetCurrentChangedAt) < d.cfg.Controls.EVReportingLag {
		phases := d.phaseGov.AppliedPhases()
		if phases <= 0 {
			phases = 1
		}
		evPower = float64(d.lastSentCurrentA) * 230.0 * float64(phases)
	}

	consumption := collab.consumptionW - evPower
	if consumption < 0 {
		consumption = 0
	}
	excess := collab.totalPVW - consumption
	if excess < 0 {
		excess = 0
	}

	alpha := d.cfg.Controls.PVExcessAlpha
	if alpha <= 0 || alpha > 1 {
		alpha = 1
	}
	if !d.havePVExcessSmoothed {
		d.pvExcessSmoothed = excess
		d.havePVExcessSmoothed = true
	} else {
		d.pvExcessSmoothed = alpha*excess + (1-alpha)*d.pvExcessSmoothed
	}
	return d.pvExcessSmoothed
}

// maybeWriteCurrent implements spec §4.10 step 6's write-decision rule.
func (d *Driver) maybeWriteCurrent(effective float32, now time.Time) {
	diff := effective - d.lastSentCurrentA
	if diff < 0 {
		diff = -diff
	}

	shouldWrite := diff > d.cfg.Controls.UpdateDifferenceThreshold
	if !shouldWrite && !d.lastCurrentSetTime.IsZero() && now.Sub(d.lastCurrentSetTime) >= d.cfg.Controls.CurrentUpdateInterval {
		shouldWrite = true
	}
	if !shouldWrite && !d.lastCurrentSetTime.IsZero() && now.Sub(d.lastCurrentSetTime) >= d.cfg.Controls.WatchdogInterval {
		shouldWrite = true
	}
	if !shouldWrite && d.lastCurrentSetTime.IsZero() {
		shouldWrite = true
	}
	if !shouldWrite {
		return
	}

	if err := d.writeSetCurrent(effective); err != nil {
		d.logger.Printf("driver: write set-current failed: %v", err)
		return
	}
	if diff > d.cfg.Controls.UpdateDifferenceThreshold {
		d.lastSetCurrentChangedAt = now
	}
	d.lastSentCurrentA = effective
	d.lastCurrentSetTime = now
}

// handleSessionTransition implements spec §4.10 step 7.
func (d *Driver) handleSessionTransition(status int, meas Measurement) {
	const chargingStatus = 2
	if status == chargingStatus {
		if d.sessions.Current == nil {
			if err := d.sessions.StartSession(meas.EnergyKWh); err != nil {
				d.logger.Printf("driver: start session: %v", err)
			}
		}
		d.sessions.Update(meas.TotalPowerW, meas.EnergyKWh)
		return
	}

	if d.sessions.Current != nil {
		if err := d.sessions.EndSession(meas.EnergyKWh); err != nil {
			d.logger.Printf("driver: end session: %v", err)
			return
		}
		if d.pricer != nil && d.sessions.Last != nil {
			if staticPricer, ok := d.pricer.(interface{ Cost(float64) float64 }); ok {
				d.sessions.SetCostOnLastSession(staticPricer.Cost(d.sessions.Last.EnergyDeliveredKWh))
			}
		}
		if d.archiver.Enabled() && d.sessions.Last != nil {
			if err := d.archiver.Save(context.Background(), *d.sessions.Last); err != nil {
				d.logger.Printf("driver: archive session: %v", err)
			}
		}
	}
}

// persistTick implements spec §4.10 step 9.
func (d *Driver) persistTick() {
	d.persist.SetMode(uint32(d.mode))
	d.persist.SetStartStop(uint32(d.startStop))
	d.persist.SetSetCurrent(d.requestedCurrentA)
	if err := d.persist.SetSection("session", d.sessions.State()); err != nil {
		d.logger.Printf("driver: persist session section: %v", err)
	}
	if err := d.persist.Save(); err != nil {
		d.logger.Printf("driver: persist save failed: %v", err)
	}
}

// shutdown implements spec §4.10's shutdown sequence: drain commands,
// final persistence write, drop the Modbus connection.
func (d *Driver) shutdown() {
	d.setState("ShuttingDown")
	d.drainCommands()
	d.persistTick()
	if err := d.reconnector.Disconnect(); err != nil {
		d.logger.Printf("driver: disconnect on shutdown: %v", err)
	}
	d.setState("Stopped")
}

func (d *Driver) markMirroredIdentityPaths() {
	d.store.MarkWritable("/Mode")
	d.store.MarkWritable("/StartStop")
	d.store.MarkWritable("/SetCurrent")
}
