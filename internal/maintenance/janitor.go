// Package maintenance runs periodic housekeeping jobs.
package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// DefaultSchedule runs the session purge at the top of every hour.
const DefaultSchedule = "@hourly"

// SessionPurger deletes expired sessions.
type SessionPurger interface {
	PurgeExpiredSessions(ctx context.Context) error
}

// Janitor purges expired sessions on a cron schedule.
type Janitor struct {
	cron    *cron.Cron
	purger  SessionPurger
	timeout time.Duration
}

// NewJanitor schedules purger on schedule, a standard cron expression or
// descriptor such as "@hourly".
func NewJanitor(purger SessionPurger, schedule string) (*Janitor, error) {
	j := &Janitor{
		cron:    cron.New(),
		purger:  purger,
		timeout: 30 * time.Second,
	}
	if _, err := j.cron.AddFunc(schedule, j.RunOnce); err != nil {
		return nil, err
	}
	return j, nil
}

// Start begins running scheduled jobs in the background.
func (j *Janitor) Start() {
	log.Info().Msg("starting maintenance scheduler")
	j.cron.Start()
}

// Stop halts the scheduler and waits for a running job to finish or ctx to end.
func (j *Janitor) Stop(ctx context.Context) {
	done := j.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		log.Warn().Msg("maintenance job still running at shutdown")
	}
}

// RunOnce purges expired sessions now.
func (j *Janitor) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	start := time.Now()
	if err := j.purger.PurgeExpiredSessions(ctx); err != nil {
		log.Error().Err(err).Msg("purge expired sessions failed")
		return
	}
	log.Debug().Dur("duration", time.Since(start)).Msg("expired sessions purged")
}
