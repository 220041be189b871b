package app

import (
	"context"

	"weighttracker/internal/domain"
)

// WeightService encapsulates measurement use cases. Every write is validated
// before the repository is called.
type WeightService struct {
	repo domain.MeasurementRepository
}

// NewWeightService creates a WeightService backed by the given repository.
func NewWeightService(repo domain.MeasurementRepository) *WeightService {
	return &WeightService{repo: repo}
}

// AddMeasurement validates and stores one measurement, returning its ID.
func (s *WeightService) AddMeasurement(ctx context.Context, userID int64, date string, weight float64, goal *float64) (int64, error) {
	if err := validate(userID, date, weight, goal); err != nil {
		return 0, err
	}
	id, err := s.repo.AddMeasurement(ctx, domain.Measurement{
		UserID: userID,
		Date:   date,
		Weight: weight,
		Goal:   goal,
	})
	if err != nil {
		return 0, storageErr("add measurement", err)
	}
	return id, nil
}

// AddMeasurementsBatch stores entries for userID in one transaction. If any
// entry is invalid nothing is stored. Entry IDs and user IDs are ignored.
func (s *WeightService) AddMeasurementsBatch(ctx context.Context, userID int64, entries []domain.Measurement) error {
	if len(entries) == 0 {
		return nil
	}
	batch := make([]domain.Measurement, len(entries))
	for i, e := range entries {
		if err := validate(userID, e.Date, e.Weight, e.Goal); err != nil {
			return domain.Validationf("entry %d: %v", i, err)
		}
		batch[i] = domain.Measurement{UserID: userID, Date: e.Date, Weight: e.Weight, Goal: e.Goal}
	}
	return storageErr("add measurements", s.repo.AddMeasurements(ctx, batch))
}

// ListByUser returns the user's measurements by date descending.
func (s *WeightService) ListByUser(ctx context.Context, userID int64) ([]domain.Measurement, error) {
	ms, err := s.repo.ListMeasurements(ctx, userID)
	if err != nil {
		return nil, storageErr("list measurements", err)
	}
	return ms, nil
}

// DeleteMeasurement removes measurement id owned by userID and reports
// whether a row was removed.
func (s *WeightService) DeleteMeasurement(ctx context.Context, userID, id int64) (bool, error) {
	deleted, err := s.repo.DeleteMeasurement(ctx, userID, id)
	if err != nil {
		return false, storageErr("delete measurement", err)
	}
	return deleted, nil
}

func validate(userID int64, date string, weight float64, goal *float64) error {
	if userID <= 0 {
		return domain.Validationf("user id is required")
	}
	return domain.ValidateMeasurement(date, weight, goal)
}
