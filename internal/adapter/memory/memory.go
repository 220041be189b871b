// Package memory implements an in-memory repository for development and testing.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"weighttracker/internal/domain"
)

// DB implements an in-memory database storage. It enforces the same
// constraints as the SQL stores: unique usernames, measurements must belong
// to an existing user, and deleting a user cascades.
type DB struct {
	mu           sync.Mutex
	users        []*domain.User
	measurements []domain.Measurement
	sessions     map[string]*domain.Session

	userIDCounter        int64
	measurementIDCounter int64
}

// New creates a new in-memory database.
func New() *DB {
	return &DB{
		sessions: make(map[string]*domain.Session),
	}
}

// Close is a no-op; it lets DB stand in wherever a store is closed on shutdown.
func (db *DB) Close() error { return nil }

// Ensure interfaces are met.
var _ domain.MeasurementRepository = (*DB)(nil)
var _ domain.UserRepository = (*DB)(nil)
var _ domain.SessionRepository = (*SessionRepo)(nil)

// --- MeasurementRepository ---

// AddMeasurement stores a single measurement.
func (db *DB) AddMeasurement(ctx context.Context, m domain.Measurement) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.checkLocked(m); err != nil {
		return 0, err
	}
	return db.insertLocked(m), nil
}

// AddMeasurements stores all rows or none of them.
func (db *DB) AddMeasurements(ctx context.Context, ms []domain.Measurement) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, m := range ms {
		if err := db.checkLocked(m); err != nil {
			return err
		}
	}
	for _, m := range ms {
		db.insertLocked(m)
	}
	return nil
}

// ListMeasurements returns the user's rows by date descending, ties in
// insertion order.
func (db *DB) ListMeasurements(ctx context.Context, userID int64) ([]domain.Measurement, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	result := []domain.Measurement{}
	for _, m := range db.measurements {
		if m.UserID == userID {
			result = append(result, cloneMeasurement(m))
		}
	}
	slices.SortStableFunc(result, func(a, b domain.Measurement) int {
		switch {
		case a.Date > b.Date:
			return -1
		case a.Date < b.Date:
			return 1
		}
		return 0
	})
	return result, nil
}

// DeleteMeasurement removes measurement id if it belongs to userID.
func (db *DB) DeleteMeasurement(ctx context.Context, userID, id int64) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for i, m := range db.measurements {
		if m.ID == id && m.UserID == userID {
			db.measurements = slices.Delete(db.measurements, i, i+1)
			return true, nil
		}
	}
	return false, nil
}

func (db *DB) checkLocked(m domain.Measurement) error {
	if db.userLocked(m.UserID) == nil {
		return domain.NotFoundf("user %d does not exist", m.UserID)
	}
	return domain.ValidateMeasurement(m.Date, m.Weight, m.Goal)
}

func (db *DB) insertLocked(m domain.Measurement) int64 {
	db.measurementIDCounter++
	m.ID = db.measurementIDCounter
	m.CreatedAt = time.Now().UTC()
	db.measurements = append(db.measurements, cloneMeasurement(m))
	return m.ID
}

// cloneMeasurement detaches m from the caller's goal pointer.
func cloneMeasurement(m domain.Measurement) domain.Measurement {
	if m.Goal != nil {
		g := *m.Goal
		m.Goal = &g
	}
	return m
}

// --- UserRepository ---

// GetByUsername retrieves a user by username.
func (db *DB) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	// Return nil if not found
	return nil, nil
}

// GetByID retrieves a user by ID.
func (db *DB) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if u := db.userLocked(id); u != nil {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

// Create creates a new user.
func (db *DB) Create(ctx context.Context, username, passwordHash string) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if u.Username == username {
			return nil, domain.Conflictf("username %q already exists", username)
		}
	}

	db.userIDCounter++
	u := &domain.User{
		ID:           db.userIDCounter,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	db.users = append(db.users, u)
	cp := *u
	return &cp, nil
}

// Count returns the total number of users.
func (db *DB) Count(ctx context.Context) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.users), nil
}

// Delete removes the user with their measurements and sessions.
func (db *DB) Delete(ctx context.Context, id int64) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	idx := slices.IndexFunc(db.users, func(u *domain.User) bool { return u.ID == id })
	if idx < 0 {
		return false, nil
	}
	db.users = slices.Delete(db.users, idx, idx+1)
	db.measurements = slices.DeleteFunc(db.measurements, func(m domain.Measurement) bool {
		return m.UserID == id
	})
	for k, s := range db.sessions {
		if s.UserID == id {
			delete(db.sessions, k)
		}
	}
	return true, nil
}

func (db *DB) userLocked(id int64) *domain.User {
	for _, u := range db.users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

// --- SessionRepository ---

// SessionRepo implements session persistence.
type SessionRepo struct {
	db *DB
}

// NewSessionRepo creates a new session repository.
func (db *DB) NewSessionRepo() *SessionRepo {
	return &SessionRepo{db: db}
}

// Create creates a new session.
func (r *SessionRepo) Create(ctx context.Context, userID int64, token string, expiresAt time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if r.db.userLocked(userID) == nil {
		return domain.NotFoundf("user %d does not exist", userID)
	}
	r.db.sessions[token] = &domain.Session{
		Token:     token,
		UserID:    userID,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}
	return nil
}

// GetByToken retrieves a session by token.
func (r *SessionRepo) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if s, ok := r.db.sessions[token]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

// Delete deletes a session.
func (r *SessionRepo) Delete(ctx context.Context, token string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	delete(r.db.sessions, token)
	return nil
}

// DeleteExpired deletes all expired sessions.
func (r *SessionRepo) DeleteExpired(ctx context.Context) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	now := time.Now()
	for k, v := range r.db.sessions {
		if now.After(v.ExpiresAt) {
			delete(r.db.sessions, k)
		}
	}
	return nil
}
