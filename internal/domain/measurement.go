package domain

import (
	"context"
	"time"
)

// DateLayout is the ISO calendar date form used for Measurement.Date.
const DateLayout = "2006-01-02"

// Measurement is a single dated weight record in pounds, with an optional
// goal. Measurements are never updated, only inserted or deleted.
type Measurement struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	Date      string    `json:"date"`
	Weight    float64   `json:"weight"`
	Goal      *float64  `json:"goal,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// MeasurementRepository is the port for measurement persistence.
type MeasurementRepository interface {
	AddMeasurement(ctx context.Context, m Measurement) (int64, error)
	// AddMeasurements inserts all rows in one transaction or none of them.
	AddMeasurements(ctx context.Context, ms []Measurement) error
	// ListMeasurements returns the user's rows by date descending; rows
	// sharing a date keep insertion order.
	ListMeasurements(ctx context.Context, userID int64) ([]Measurement, error)
	DeleteMeasurement(ctx context.Context, userID, id int64) (bool, error)
}
