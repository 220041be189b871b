// Package app holds the application services and business logic.
package app

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"weighttracker/internal/domain"
)

// PasswordCost is the bcrypt cost used for new password hashes.
const PasswordCost = 12

// DefaultSessionTTL is how long a login session stays valid.
const DefaultSessionTTL = 24 * time.Hour

var (
	// ErrInvalidCredentials is returned for an unknown user and for a wrong
	// password alike.
	ErrInvalidCredentials = &domain.Error{Kind: domain.KindNotFound, Msg: "invalid username or password"}
	// ErrSessionNotFound indicates that the requested session does not exist.
	ErrSessionNotFound = &domain.Error{Kind: domain.KindNotFound, Msg: "session not found"}
	// ErrSessionExpired indicates that the session has expired.
	ErrSessionExpired = &domain.Error{Kind: domain.KindNotFound, Msg: "session expired"}
	// ErrUserNotFound indicates that the user does not exist.
	ErrUserNotFound = &domain.Error{Kind: domain.KindNotFound, Msg: "user not found"}
)

// AuthService owns user identity: registration, password verification,
// sessions and account deletion.
type AuthService struct {
	users    domain.UserRepository
	sessions domain.SessionRepository

	cost       int
	sessionTTL time.Duration

	// dummyHash is compared against when the user does not exist, at the
	// same cost as real hashes.
	dummyHash []byte
}

// NewAuthService creates a new authentication service.
func NewAuthService(users domain.UserRepository, sessions domain.SessionRepository) *AuthService {
	return &AuthService{
		users:      users,
		sessions:   sessions,
		cost:       PasswordCost,
		sessionTTL: DefaultSessionTTL,
		dummyHash:  dummyHashFor(PasswordCost),
	}
}

// WithSessionTTL overrides the session lifetime.
func (s *AuthService) WithSessionTTL(ttl time.Duration) *AuthService {
	if ttl > 0 {
		s.sessionTTL = ttl
	}
	return s
}

// WithPasswordCost overrides the bcrypt cost for new hashes. Values outside
// bcrypt's accepted range are ignored.
func (s *AuthService) WithPasswordCost(cost int) *AuthService {
	if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
		s.cost = cost
		s.dummyHash = dummyHashFor(cost)
	}
	return s
}

// IsPasswordAcceptable reports whether password meets the registration rules.
func (s *AuthService) IsPasswordAcceptable(password string) bool {
	return domain.IsPasswordValid(password)
}

// Register validates the credentials, hashes the password and stores a new
// user, returning its ID.
func (s *AuthService) Register(ctx context.Context, username, password string) (int64, error) {
	if !domain.IsUsernameValid(username) {
		return 0, domain.Validationf("username must be at least %d characters", domain.MinUsernameLen)
	}
	if !domain.IsPasswordValid(password) {
		return 0, domain.Validationf("password must be at least %d characters with a number and one of !@#$%%^&*", domain.MinPasswordLen)
	}

	existing, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return 0, storageErr("lookup user", err)
	}
	if existing != nil {
		return 0, domain.Conflictf("username %q already exists", username)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return 0, domain.Validationf("password must be at most 72 bytes")
	}
	if err != nil {
		return 0, err
	}

	u, err := s.users.Create(ctx, username, string(hash))
	if err != nil {
		return 0, storageErr("create user", err)
	}
	log.Info().Int64("user_id", u.ID).Str("username", u.Username).Msg("user registered")
	return u.ID, nil
}

// Authenticate checks a username and password and returns the user's ID.
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (int64, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return 0, storageErr("lookup user", err)
	}
	if user == nil {
		// Burn the same bcrypt time as a real comparison.
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return 0, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return 0, ErrInvalidCredentials
	}
	return user.ID, nil
}

// LookupUserID returns the ID for username; ok is false when no such user.
func (s *AuthService) LookupUserID(ctx context.Context, username string) (id int64, ok bool, err error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return 0, false, storageErr("lookup user", err)
	}
	if user == nil {
		return 0, false, nil
	}
	return user.ID, true, nil
}

// DeleteUserCascade removes the user together with all of their
// measurements and sessions. It reports whether a user was deleted.
func (s *AuthService) DeleteUserCascade(ctx context.Context, userID int64) (bool, error) {
	deleted, err := s.users.Delete(ctx, userID)
	if err != nil {
		return false, storageErr("delete user", err)
	}
	if deleted {
		log.Info().Int64("user_id", userID).Msg("user deleted")
	}
	return deleted, nil
}

// Login authenticates a user and creates a session.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	userID, err := s.Authenticate(ctx, username, password)
	if err != nil {
		return "", err
	}
	return s.newSession(ctx, userID)
}

// Logout invalidates a session.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	return storageErr("delete session", s.sessions.Delete(ctx, token))
}

// ValidateSession returns the user owning a live session token.
func (s *AuthService) ValidateSession(ctx context.Context, token string) (*domain.User, error) {
	session, err := s.sessions.GetByToken(ctx, token)
	if err != nil {
		return nil, storageErr("lookup session", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	if time.Now().After(session.ExpiresAt) {
		_ = s.sessions.Delete(ctx, token)
		return nil, ErrSessionExpired
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		return nil, storageErr("lookup user", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// LoginWithUser creates a session for an already authenticated user (e.g. via
// SSO), provisioning the account on first use. Provisioned accounts get a
// random password nobody knows.
func (s *AuthService) LoginWithUser(ctx context.Context, username string) (string, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return "", storageErr("lookup user", err)
	}
	if user == nil {
		user, err = s.provision(ctx, username)
		if err != nil {
			return "", err
		}
	}
	return s.newSession(ctx, user.ID)
}

// PurgeExpiredSessions deletes every expired session.
func (s *AuthService) PurgeExpiredSessions(ctx context.Context) error {
	return storageErr("purge sessions", s.sessions.DeleteExpired(ctx))
}

func (s *AuthService) provision(ctx context.Context, username string) (*domain.User, error) {
	if !domain.IsUsernameValid(username) {
		return nil, domain.Validationf("username must be at least %d characters", domain.MinUsernameLen)
	}
	secret, err := generateToken()
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.cost)
	if err != nil {
		return nil, err
	}
	user, err := s.users.Create(ctx, username, string(hash))
	if errors.Is(err, domain.ErrConflict) {
		// Lost a race with a concurrent first login.
		user, err = s.users.GetByUsername(ctx, username)
		if err == nil && user == nil {
			return nil, ErrUserNotFound
		}
	}
	if err != nil {
		return nil, storageErr("provision user", err)
	}
	log.Info().Int64("user_id", user.ID).Str("username", username).Msg("user provisioned via sso")
	return user, nil
}

func (s *AuthService) newSession(ctx context.Context, userID int64) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	if err := s.sessions.Create(ctx, userID, token, time.Now().Add(s.sessionTTL)); err != nil {
		return "", storageErr("create session", err)
	}
	return token, nil
}

var (
	dummyMu     sync.Mutex
	dummyHashes = map[int][]byte{}
)

// dummyHashFor returns a hash of a throwaway password at cost, generated
// once per process.
func dummyHashFor(cost int) []byte {
	dummyMu.Lock()
	defer dummyMu.Unlock()
	if h, ok := dummyHashes[cost]; ok {
		return h
	}
	h, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password-1!"), cost)
	if err != nil {
		log.Error().Err(err).Int("cost", cost).Msg("generate dummy hash")
		return nil
	}
	dummyHashes[cost] = h
	return h
}

func generateToken() (string, error) {
	b := make([]byte, 48)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
