// Package archive persists completed charging sessions to Postgres,
// grounded on the teacher's MPC decision archiver
// (scheduler/mpc_persistence.go): a BeginTx/PrepareContext/ON CONFLICT
// DO UPDATE/Commit pattern behind an explicit connection-string switch.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	_ "github.com/lib/pq"

	"github.com/devskill-org/phaeton-driver/internal/session"
)

const schema = `
CREATE TABLE IF NOT EXISTS charging_sessions (
	id TEXT PRIMARY KEY,
	start_time TIMESTAMPTZ NOT NULL,
	end_time TIMESTAMPTZ,
	start_energy_kwh DOUBLE PRECISION NOT NULL,
	end_energy_kwh DOUBLE PRECISION,
	energy_delivered_kwh DOUBLE PRECISION NOT NULL,
	peak_power_w DOUBLE PRECISION NOT NULL,
	average_power_w DOUBLE PRECISION NOT NULL,
	cost DOUBLE PRECISION,
	status TEXT NOT NULL
)`

// Archiver persists ChargingSession records to Postgres. A nil db
// (empty connection string) makes every method a no-op, matching the
// teacher's "db == nil means archiving disabled" convention.
type Archiver struct {
	db     *sql.DB
	logger *log.Logger
}

// Open connects to connString and ensures the schema exists. An empty
// connString yields a disabled Archiver rather than an error, since
// Postgres archiving is an optional deployment feature (spec's
// "storage/archival" domain-stack slot).
func Open(connString string, logger *log.Logger) (*Archiver, error) {
	if logger == nil {
		logger = log.Default()
	}
	if connString == "" {
		return &Archiver{logger: logger}, nil
	}
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("archive: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: ping: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: create schema: %w", err)
	}
	return &Archiver{db: db, logger: logger}, nil
}

// Enabled reports whether this Archiver is backed by a live connection.
func (a *Archiver) Enabled() bool { return a != nil && a.db != nil }

// Close releases the underlying connection pool, if any.
func (a *Archiver) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

// Save upserts one completed session, keyed by its ID.
func (a *Archiver) Save(ctx context.Context, s session.ChargingSession) error {
	if a == nil || a.db == nil {
		return nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("archive: begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO charging_sessions (
			id, start_time, end_time, start_energy_kwh, end_energy_kwh,
			energy_delivered_kwh, peak_power_w, average_power_w, cost, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			end_time = EXCLUDED.end_time,
			end_energy_kwh = EXCLUDED.end_energy_kwh,
			energy_delivered_kwh = EXCLUDED.energy_delivered_kwh,
			peak_power_w = EXCLUDED.peak_power_w,
			average_power_w = EXCLUDED.average_power_w,
			cost = EXCLUDED.cost,
			status = EXCLUDED.status
	`)
	if err != nil {
		return fmt.Errorf("archive: prepare statement: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx,
		s.ID, s.StartTime, s.EndTime, s.StartEnergyKWh, s.EndEnergyKWh,
		s.EnergyDeliveredKWh, s.PeakPowerW, s.AveragePowerW, s.Cost, string(s.Status),
	)
	if err != nil {
		return fmt.Errorf("archive: insert session %s: %w", s.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("archive: commit: %w", err)
	}

	a.logger.Printf("archive: saved session %s", s.ID)
	return nil
}

// Recent returns up to limit most-recent sessions, newest first.
func (a *Archiver) Recent(ctx context.Context, limit int) ([]session.ChargingSession, error) {
	if a == nil || a.db == nil {
		return nil, nil
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT id, start_time, end_time, start_energy_kwh, end_energy_kwh,
			energy_delivered_kwh, peak_power_w, average_power_w, cost, status
		FROM charging_sessions
		ORDER BY start_time DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("archive: query recent: %w", err)
	}
	defer rows.Close()

	var out []session.ChargingSession
	for rows.Next() {
		var s session.ChargingSession
		var status string
		if err := rows.Scan(
			&s.ID, &s.StartTime, &s.EndTime, &s.StartEnergyKWh, &s.EndEnergyKWh,
			&s.EnergyDeliveredKWh, &s.PeakPowerW, &s.AveragePowerW, &s.Cost, &status,
		); err != nil {
			return nil, fmt.Errorf("archive: scan: %w", err)
		}
		s.Status = session.Status(status)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: iterate: %w", err)
	}
	return out, nil
}
