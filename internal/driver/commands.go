package driver

import (
	"github.com/devskill-org/phaeton-driver/internal/bus"
	"github.com/devskill-org/phaeton-driver/internal/control"
)

// drainCommands applies every pending command in FIFO order at the
// tick boundary (spec §4.10 step 1's implicit drain, §5: "commands
// channel is drained each tick, applied before the next read").
func (d *Driver) drainCommands() {
	for {
		select {
		case cmd, ok := <-d.commands:
			if !ok {
				return
			}
			d.applyCommand(cmd)
		default:
			return
		}
	}
}

func (d *Driver) applyCommand(cmd bus.Command) {
	switch cmd.Kind {
	case bus.CommandSetMode:
		d.mode = control.Mode(cmd.ModeValue)
	case bus.CommandSetStartStop:
		d.startStop = control.StartStop(cmd.StartStop)
	case bus.CommandSetCurrent:
		d.requestedCurrentA = clampRequested(cmd.CurrentA, d.cfg.Controls.MinSetCurrent, d.cfg.Controls.MaxSetCurrent)
	case bus.CommandSetPhases:
		// Operator-forced phase override; the governor resumes arbitrating
		// on the next excess-PV evaluation regardless.
		if err := d.applyPhases(cmd.Phases); err != nil {
			d.logger.Printf("driver: forced phase switch failed: %v", err)
		}
	}
}

func clampRequested(v, lo, hi float32) float32 {
	if v < 0 {
		return 0
	}
	if v > hi {
		return hi
	}
	if v < lo && v != 0 {
		return lo
	}
	return v
}
