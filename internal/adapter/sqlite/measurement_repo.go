package sqlite

import (
	"context"
	"database/sql"
	"time"

	"weighttracker/internal/domain"
)

var _ domain.MeasurementRepository = (*DB)(nil)

const insertMeasurement = "INSERT INTO measurements(user_id, date, weight, goal, created_at) VALUES(?, ?, ?, ?, ?);"

// AddMeasurement inserts one measurement and returns its ID.
func (d *DB) AddMeasurement(ctx context.Context, m domain.Measurement) (int64, error) {
	res, err := d.sql.ExecContext(ctx, insertMeasurement,
		m.UserID, m.Date, m.Weight, nullGoal(m.Goal), formatTime(time.Now()))
	if err != nil {
		return 0, mapError(err)
	}
	return res.LastInsertId()
}

// AddMeasurements inserts all rows in a single transaction.
func (d *DB) AddMeasurements(ctx context.Context, ms []domain.Measurement) error {
	now := formatTime(time.Now())
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, insertMeasurement)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, m := range ms {
			if _, err := stmt.ExecContext(ctx, m.UserID, m.Date, m.Weight, nullGoal(m.Goal), now); err != nil {
				return err
			}
		}
		return nil
	})
	return mapError(err)
}

// ListMeasurements returns the user's measurements, newest date first.
func (d *DB) ListMeasurements(ctx context.Context, userID int64) ([]domain.Measurement, error) {
	rows, err := d.sql.QueryContext(ctx,
		"SELECT id, user_id, date, weight, goal, created_at FROM measurements WHERE user_id = ? ORDER BY date DESC, id ASC;",
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Measurement{}
	for rows.Next() {
		var m domain.Measurement
		var goal sql.NullFloat64
		var created string
		if err := rows.Scan(&m.ID, &m.UserID, &m.Date, &m.Weight, &goal, &created); err != nil {
			return nil, err
		}
		if goal.Valid {
			g := goal.Float64
			m.Goal = &g
		}
		if m.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteMeasurement removes measurement id if it belongs to userID.
func (d *DB) DeleteMeasurement(ctx context.Context, userID, id int64) (bool, error) {
	res, err := d.sql.ExecContext(ctx, "DELETE FROM measurements WHERE id = ? AND user_id = ?;", id, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func nullGoal(g *float64) sql.NullFloat64 {
	if g == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *g, Valid: true}
}
