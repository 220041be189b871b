package postgres

import (
	"context"
	"database/sql"

	"weighttracker/internal/domain"
)

var _ domain.MeasurementRepository = (*DB)(nil)

const insertMeasurement = "INSERT INTO measurements(user_id, date, weight, goal) VALUES($1, $2, $3, $4) RETURNING id;"

// AddMeasurement inserts one measurement and returns its ID.
func (d *DB) AddMeasurement(ctx context.Context, m domain.Measurement) (int64, error) {
	var id int64
	err := d.sql.QueryRowContext(ctx, insertMeasurement, m.UserID, m.Date, m.Weight, nullGoal(m.Goal)).Scan(&id)
	if err != nil {
		return 0, mapError(err)
	}
	return id, nil
}

// AddMeasurements inserts all rows in a single transaction.
func (d *DB) AddMeasurements(ctx context.Context, ms []domain.Measurement) error {
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, insertMeasurement)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, m := range ms {
			var id int64
			if err := stmt.QueryRowContext(ctx, m.UserID, m.Date, m.Weight, nullGoal(m.Goal)).Scan(&id); err != nil {
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
		"SELECT id, user_id, to_char(date, 'YYYY-MM-DD'), weight, goal, created_at FROM measurements WHERE user_id = $1 ORDER BY date DESC, id ASC;",
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
		if err := rows.Scan(&m.ID, &m.UserID, &m.Date, &m.Weight, &goal, &m.CreatedAt); err != nil {
			return nil, err
		}
		if goal.Valid {
			g := goal.Float64
			m.Goal = &g
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteMeasurement removes measurement id if it belongs to userID.
func (d *DB) DeleteMeasurement(ctx context.Context, userID, id int64) (bool, error) {
	res, err := d.sql.ExecContext(ctx, "DELETE FROM measurements WHERE id = $1 AND user_id = $2;", id, userID)
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
