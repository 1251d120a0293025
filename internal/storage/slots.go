package storage

import (
	"context"

	"dispatchcore/internal/dispatch"
)

// RegenerateSlots performs the §4.4 idempotent regeneration: delete every
// existing slot for (driverID, date), then insert the freshly generated
// set, in one transaction.
func (p *Postgres) RegenerateSlots(ctx context.Context, driverID, date string, slots []dispatch.WorkSlot) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM work_slots WHERE driver_id=$1 AND date=$2`, driverID, date); err != nil {
		return err
	}
	for _, s := range slots {
		if _, err := tx.Exec(ctx, `
INSERT INTO work_slots (id, driver_id, date, start_hour, label, start_time, end_time, status, is_selected, customer_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			s.ID, s.DriverID, s.Date, s.StartHour, s.Label, s.StartTime, s.EndTime, s.Status, s.IsSelected, s.CustomerID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (p *Postgres) GetSlot(ctx context.Context, slotID string) (*dispatch.WorkSlot, error) {
	row := p.pool.QueryRow(ctx, `
SELECT id, driver_id, date, start_hour, label, start_time, end_time, status, is_selected, customer_id
FROM work_slots WHERE id = $1`, slotID)
	var s dispatch.WorkSlot
	if err := row.Scan(&s.ID, &s.DriverID, &s.Date, &s.StartHour, &s.Label, &s.StartTime, &s.EndTime,
		&s.Status, &s.IsSelected, &s.CustomerID); err != nil {
		return nil, dispatch.ErrSlotNotFound
	}
	return &s, nil
}

func (p *Postgres) ListSlots(ctx context.Context, driverID, date string) ([]dispatch.WorkSlot, error) {
	rows, err := p.pool.Query(ctx, `
SELECT id, driver_id, date, start_hour, label, start_time, end_time, status, is_selected, customer_id
FROM work_slots WHERE driver_id=$1 AND date=$2 ORDER BY start_hour`, driverID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []dispatch.WorkSlot
	for rows.Next() {
		var s dispatch.WorkSlot
		if err := rows.Scan(&s.ID, &s.DriverID, &s.Date, &s.StartHour, &s.Label, &s.StartTime, &s.EndTime,
			&s.Status, &s.IsSelected, &s.CustomerID); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) SaveSlot(ctx context.Context, s *dispatch.WorkSlot) error {
	_, err := p.pool.Exec(ctx, `
UPDATE work_slots SET status=$2, is_selected=$3, customer_id=$4 WHERE id=$1`,
		s.ID, s.Status, s.IsSelected, s.CustomerID)
	return err
}
