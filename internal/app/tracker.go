package app

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"weighttracker/internal/domain"
	"weighttracker/internal/observe"
	"weighttracker/internal/trend"
	"weighttracker/internal/worker"
)

// UserEntries is the published ascending entry list of one user.
type UserEntries struct {
	UserID  int64                `json:"userId"`
	Entries []domain.Measurement `json:"entries"`
}

// UserAverages is the published moving average of one user.
type UserAverages struct {
	UserID int64     `json:"userId"`
	Window int       `json:"window"`
	Values []float64 `json:"values"`
}

// Tracker composes the auth and weight services behind two observable
// channels per user. Mutations run on a single background worker; each one
// refreshes the affected user's published state before it completes.
type Tracker struct {
	auth    *AuthService
	weights *WeightService
	queue   *worker.Queue
	store   io.Closer
	window  int

	mu    sync.Mutex
	users map[int64]*userState
}

// userState is the published state of one user. Every read that may publish
// takes a ticket before it touches the store; a snapshot is published only
// if no later ticket has been published already.
type userState struct {
	tickets atomic.Uint64

	mu        sync.Mutex
	published uint64
	entries   *observe.Value[UserEntries]
	averages  *observe.Value[UserAverages]
}

func newUserState(userID int64, window int) *userState {
	return &userState{
		entries:  observe.NewValue(UserEntries{UserID: userID, Entries: []domain.Measurement{}}),
		averages: observe.NewValue(UserAverages{UserID: userID, Window: window, Values: []float64{}}),
	}
}

func (s *userState) ticket() uint64 { return s.tickets.Add(1) }

// publish sets view unless a read with a later ticket was published first.
func (s *userState) publish(ticket uint64, userID int64, view trend.View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ticket <= s.published {
		return
	}
	s.published = ticket
	s.entries.Set(UserEntries{UserID: userID, Entries: view.Entries})
	s.averages.Set(UserAverages{UserID: userID, Window: view.Window, Values: view.MovingAverage})
}

// NewTracker wires the services, starts the queue and takes ownership of
// store, which is closed by Shutdown.
func NewTracker(auth *AuthService, weights *WeightService, queue *worker.Queue, store io.Closer) *Tracker {
	queue.Start()
	return &Tracker{
		auth:    auth,
		weights: weights,
		queue:   queue,
		store:   store,
		window:  trend.DefaultWindow,
		users:   make(map[int64]*userState),
	}
}

// Entries is userID's "current entries" channel.
func (t *Tracker) Entries(userID int64) *observe.Value[UserEntries] {
	return t.state(userID).entries
}

// Averages is userID's "current moving average" channel.
func (t *Tracker) Averages(userID int64) *observe.Value[UserAverages] {
	return t.state(userID).averages
}

// WeightsForUser re-reads the user's measurements, publishes the ascending
// list and its moving average, and returns the same view. A read that
// finishes after a newer one returns its view but does not publish it.
func (t *Tracker) WeightsForUser(ctx context.Context, userID int64) (trend.View, error) {
	st := t.state(userID)
	ticket := st.ticket()
	ms, err := t.weights.ListByUser(ctx, userID)
	if err != nil {
		return trend.View{}, err
	}
	view := trend.Build(ms, t.window)
	st.publish(ticket, userID, view)
	return view, nil
}

// FindByDate returns the user's measurement on date, if any.
func (t *Tracker) FindByDate(ctx context.Context, userID int64, date string) (domain.Measurement, bool, error) {
	ms, err := t.weights.ListByUser(ctx, userID)
	if err != nil {
		return domain.Measurement{}, false, err
	}
	m, ok := trend.FindByDate(trend.SortAscending(ms), date)
	return m, ok, nil
}

// InsertWeight stores one measurement for m.UserID and refreshes that user.
func (t *Tracker) InsertWeight(ctx context.Context, m domain.Measurement) (int64, error) {
	var id int64
	err := t.queue.Do(ctx, func(ctx context.Context) error {
		var err error
		id, err = t.weights.AddMeasurement(ctx, m.UserID, m.Date, m.Weight, m.Goal)
		if err != nil {
			return err
		}
		t.refresh(ctx, m.UserID)
		return nil
	})
	return id, err
}

// InsertWeights stores a batch for userID, all or nothing, and refreshes.
func (t *Tracker) InsertWeights(ctx context.Context, userID int64, entries []domain.Measurement) error {
	return t.queue.Do(ctx, func(ctx context.Context) error {
		if err := t.weights.AddMeasurementsBatch(ctx, userID, entries); err != nil {
			return err
		}
		t.refresh(ctx, userID)
		return nil
	})
}

// RemoveWeight deletes one of userID's measurements and refreshes.
func (t *Tracker) RemoveWeight(ctx context.Context, weightID, userID int64) (bool, error) {
	var deleted bool
	err := t.queue.Do(ctx, func(ctx context.Context) error {
		var err error
		deleted, err = t.weights.DeleteMeasurement(ctx, userID, weightID)
		if err != nil {
			return err
		}
		t.refresh(ctx, userID)
		return nil
	})
	return deleted, err
}

// DeleteUserAndWeights deletes the user and, by cascade, all of their
// measurements, then publishes an empty state to current subscribers and
// forgets the user's channels.
func (t *Tracker) DeleteUserAndWeights(ctx context.Context, userID int64) (bool, error) {
	var deleted bool
	err := t.queue.Do(ctx, func(ctx context.Context) error {
		var err error
		deleted, err = t.auth.DeleteUserCascade(ctx, userID)
		if err != nil {
			return err
		}
		if deleted {
			st := t.state(userID)
			st.publish(st.ticket(), userID, trend.Build(nil, t.window))
			t.forget(userID)
		}
		return nil
	})
	return deleted, err
}

// Shutdown stops accepting mutations, waits for queued ones to finish and
// closes the store.
func (t *Tracker) Shutdown(ctx context.Context) error {
	drainErr := t.queue.Stop(ctx)
	if drainErr != nil {
		log.Warn().Err(drainErr).Msg("closing store before worker drained")
	}
	var closeErr error
	if t.store != nil {
		closeErr = t.store.Close()
	}
	return errors.Join(drainErr, closeErr)
}

// refresh republishes userID's state after a mutation. The mutation already
// committed, so a failed re-read is logged rather than returned.
func (t *Tracker) refresh(ctx context.Context, userID int64) {
	if _, err := t.WeightsForUser(ctx, userID); err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("refresh after mutation failed")
	}
}

func (t *Tracker) state(userID int64) *userState {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.users[userID]
	if !ok {
		st = newUserState(userID, t.window)
		t.users[userID] = st
	}
	return st
}

func (t *Tracker) forget(userID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.users, userID)
}
