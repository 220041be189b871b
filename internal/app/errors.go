package app

import (
	"errors"

	"github.com/rs/zerolog/log"

	"weighttracker/internal/domain"
	"weighttracker/internal/observability"
)

// storageErr turns an adapter failure into a domain error. Errors that already
// carry a domain kind pass through; anything else is logged and replaced by a
// storage error so driver details never reach callers.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return de
	}
	log.Error().Err(err).Str("op", op).Msg("storage failure")
	observability.Default.StoreErrorsTotal.WithLabelValues(op).Inc()
	return domain.Storagef("%s failed", op)
}
