package app_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weighttracker/internal/adapter/memory"
	"weighttracker/internal/app"
	"weighttracker/internal/domain"
	"weighttracker/internal/worker"
)

func newTracker(t *testing.T) (*app.Tracker, *app.AuthService, *memory.DB) {
	t.Helper()
	db := memory.New()
	auth := app.NewAuthService(db, db.NewSessionRepo())
	tr := app.NewTracker(auth, app.NewWeightService(db), worker.New(16, nil), db)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = tr.Shutdown(ctx)
	})
	return tr, auth, db
}

func addUser(t *testing.T, db *memory.DB, name string) int64 {
	t.Helper()
	u, err := db.Create(context.Background(), name, "hash")
	require.NoError(t, err)
	return u.ID
}

func TestTracker_InsertPublishes(t *testing.T) {
	tr, _, db := newTracker(t)
	ctx := context.Background()
	uid := addUser(t, db, "alice")

	sub := tr.Entries(uid).Subscribe()
	defer sub.Close()
	initial := <-sub.C
	assert.Empty(t, initial.Entries)

	for i, w := range []float64{200, 199, 198, 197, 196, 195, 194} {
		date := time.Date(2024, 1, i+1, 0, 0, 0, 0, time.UTC).Format(domain.DateLayout)
		_, err := tr.InsertWeight(ctx, domain.Measurement{UserID: uid, Date: date, Weight: w})
		require.NoError(t, err)
	}

	entries := tr.Entries(uid).Get()
	assert.Equal(t, uid, entries.UserID)
	require.Len(t, entries.Entries, 7)
	assert.Equal(t, "2024-01-01", entries.Entries[0].Date)
	assert.Equal(t, "2024-01-07", entries.Entries[6].Date)

	avg := tr.Averages(uid).Get()
	assert.Equal(t, uid, avg.UserID)
	assert.Equal(t, 7, avg.Window)
	require.Len(t, avg.Values, 1)
	assert.InDelta(t, 197.0, avg.Values[0], 1e-9)

	latest := <-sub.C
	assert.Len(t, latest.Entries, 7)
}

func TestTracker_InsertInvalid(t *testing.T) {
	tr, _, db := newTracker(t)
	uid := addUser(t, db, "alice")

	_, err := tr.InsertWeight(context.Background(), domain.Measurement{UserID: uid, Date: "2024-01-01", Weight: 10})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Empty(t, tr.Entries(uid).Get().Entries)
}

func TestTracker_InsertWeightsBatch(t *testing.T) {
	tr, _, db := newTracker(t)
	ctx := context.Background()
	uid := addUser(t, db, "alice")

	err := tr.InsertWeights(ctx, uid, []domain.Measurement{
		{Date: "2024-01-03", Weight: 150},
		{Date: "2024-01-01", Weight: 152},
		{Date: "2024-01-02", Weight: 151},
	})
	require.NoError(t, err)

	view, err := tr.WeightsForUser(ctx, uid)
	require.NoError(t, err)
	require.Len(t, view.Entries, 3)
	assert.Equal(t, []string{"2024-01-01", "2024-01-02", "2024-01-03"},
		[]string{view.Entries[0].Date, view.Entries[1].Date, view.Entries[2].Date})
	assert.Empty(t, view.MovingAverage)

	err = tr.InsertWeights(ctx, uid, []domain.Measurement{
		{Date: "2024-01-04", Weight: 150},
		{Date: "2999-01-01", Weight: 150},
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
	view, err = tr.WeightsForUser(ctx, uid)
	require.NoError(t, err)
	assert.Len(t, view.Entries, 3)
}

func TestTracker_RemoveWeight(t *testing.T) {
	tr, _, db := newTracker(t)
	ctx := context.Background()
	uid := addUser(t, db, "alice")

	id, err := tr.InsertWeight(ctx, domain.Measurement{UserID: uid, Date: "2024-01-01", Weight: 150})
	require.NoError(t, err)

	deleted, err := tr.RemoveWeight(ctx, id, uid+1)
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = tr.RemoveWeight(ctx, id, uid)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Empty(t, tr.Entries(uid).Get().Entries)
}

func TestTracker_FindByDate(t *testing.T) {
	tr, _, db := newTracker(t)
	ctx := context.Background()
	uid := addUser(t, db, "alice")

	require.NoError(t, tr.InsertWeights(ctx, uid, []domain.Measurement{
		{Date: "2024-01-01", Weight: 150},
		{Date: "2024-01-05", Weight: 149},
	}))

	m, ok, err := tr.FindByDate(ctx, uid, "2024-01-05")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 149.0, m.Weight)

	_, ok, err = tr.FindByDate(ctx, uid, "2024-01-03")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTracker_DeleteUserAndWeights(t *testing.T) {
	tr, auth, _ := newTracker(t)
	ctx := context.Background()

	uid, err := auth.Register(ctx, "alice", "secret1!x")
	require.NoError(t, err)
	_, err = tr.InsertWeight(ctx, domain.Measurement{UserID: uid, Date: "2024-01-01", Weight: 150})
	require.NoError(t, err)

	deleted, err := tr.DeleteUserAndWeights(ctx, uid)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Empty(t, tr.Entries(uid).Get().Entries)
	assert.Empty(t, tr.Averages(uid).Get().Values)

	_, ok, err := auth.LookupUserID(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	// The username is free again.
	_, err = auth.Register(ctx, "alice", "secret1!x")
	assert.NoError(t, err)
}

func TestTracker_ConcurrentInsertsSerialize(t *testing.T) {
	tr, _, db := newTracker(t)
	ctx := context.Background()
	uid := addUser(t, db, "alice")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			date := time.Date(2024, 2, i+1, 0, 0, 0, 0, time.UTC).Format(domain.DateLayout)
			_, err := tr.InsertWeight(ctx, domain.Measurement{UserID: uid, Date: date, Weight: 150})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	view, err := tr.WeightsForUser(ctx, uid)
	require.NoError(t, err)
	assert.Len(t, view.Entries, 20)
	assert.Len(t, view.MovingAverage, 14)
}

func TestTracker_ShutdownRejectsMutations(t *testing.T) {
	tr, _, db := newTracker(t)
	uid := addUser(t, db, "alice")

	require.NoError(t, tr.Shutdown(context.Background()))

	_, err := tr.InsertWeight(context.Background(), domain.Measurement{UserID: uid, Date: "2024-01-01", Weight: 150})
	assert.True(t, errors.Is(err, worker.ErrStopped))
}

func TestTracker_ChannelsArePerUser(t *testing.T) {
	tr, _, db := newTracker(t)
	ctx := context.Background()
	alice := addUser(t, db, "alice")
	bob := addUser(t, db, "bobby")

	sub := tr.Entries(alice).Subscribe()
	defer sub.Close()
	<-sub.C

	_, err := tr.InsertWeight(ctx, domain.Measurement{UserID: alice, Date: "2024-01-01", Weight: 150})
	require.NoError(t, err)
	_, err = tr.InsertWeight(ctx, domain.Measurement{UserID: bob, Date: "2024-01-01", Weight: 180})
	require.NoError(t, err)

	select {
	case got := <-sub.C:
		assert.Equal(t, alice, got.UserID)
		require.Len(t, got.Entries, 1)
		assert.Equal(t, 150.0, got.Entries[0].Weight)
	case <-time.After(time.Second):
		t.Fatal("alice's update was not delivered")
	}

	require.Len(t, tr.Entries(bob).Get().Entries, 1)
	assert.Equal(t, 180.0, tr.Entries(bob).Get().Entries[0].Weight)
}

// pausedRepo blocks the first armed ListMeasurements after it has read.
type pausedRepo struct {
	*memory.DB
	armed   atomic.Bool
	read    chan struct{}
	release chan struct{}
}

func (p *pausedRepo) ListMeasurements(ctx context.Context, userID int64) ([]domain.Measurement, error) {
	ms, err := p.DB.ListMeasurements(ctx, userID)
	if p.armed.CompareAndSwap(true, false) {
		close(p.read)
		<-p.release
	}
	return ms, err
}

func TestTracker_SlowReadDoesNotPublishStaleState(t *testing.T) {
	db := memory.New()
	repo := &pausedRepo{DB: db, read: make(chan struct{}), release: make(chan struct{})}
	auth := app.NewAuthService(db, db.NewSessionRepo())
	tr := app.NewTracker(auth, app.NewWeightService(repo), worker.New(16, nil), db)
	t.Cleanup(func() { _ = tr.Shutdown(context.Background()) })
	ctx := context.Background()
	uid := addUser(t, db, "alice")

	repo.armed.Store(true)
	done := make(chan app.UserEntries)
	go func() {
		view, err := tr.WeightsForUser(ctx, uid)
		assert.NoError(t, err)
		done <- app.UserEntries{UserID: uid, Entries: view.Entries}
	}()
	<-repo.read

	_, err := tr.InsertWeight(ctx, domain.Measurement{UserID: uid, Date: "2024-01-01", Weight: 150})
	require.NoError(t, err)
	require.Len(t, tr.Entries(uid).Get().Entries, 1)

	close(repo.release)
	slow := <-done
	assert.Empty(t, slow.Entries)
	assert.Len(t, tr.Entries(uid).Get().Entries, 1)
}
