// Package auth binds callers to user accounts. Every engine entry point in
// the serving layer requires a Session resolved here first; there is no
// ambient "current user". Credential hashing is pluggable so the scheme
// stays out of this package.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"trade-ledger-go/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrEmailTaken rejects a signup for an already-registered email.
	ErrEmailTaken = errors.New("email already exists")

	// ErrInvalidCredentials rejects a login with a wrong email or password.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrInvalidPIN rejects a wrong PIN during session verification.
	ErrInvalidPIN = errors.New("invalid PIN")

	// ErrUnauthorized means the bearer token does not resolve to a
	// PIN-verified session.
	ErrUnauthorized = errors.New("not authenticated")
)

// HashFunc hashes a secret for storage. The zero value of Manager is not
// usable; NewManager defaults this to the identity function so a real
// scheme can be injected by the wiring layer.
type HashFunc func(secret string) string

// Session is the capability object handed to authenticated callers. Engine
// operations are invoked with the UserID it carries, never with a
// client-supplied ID. PINVerified gates all account operations; a session
// fresh from Login cannot be used until VerifyPIN succeeds.
type Session struct {
	Token       string
	UserID      uint
	PINVerified bool
	CreatedAt   time.Time
}

// Manager registers accounts and issues sessions.
type Manager struct {
	db   *gorm.DB
	hash HashFunc

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager. A nil hash stores secrets verbatim;
// production wiring should supply a real hash.
func NewManager(db *gorm.DB, hash HashFunc) *Manager {
	if hash == nil {
		hash = func(secret string) string { return secret }
	}
	return &Manager{
		db:       db,
		hash:     hash,
		sessions: make(map[string]*Session),
	}
}

// Signup creates a new account with zero funds and returns a logged-in but
// not yet PIN-verified session.
func (m *Manager) Signup(ctx context.Context, email, password, pin string) (*Session, error) {
	user := models.User{
		Email:        email,
		PasswordHash: m.hash(password),
		PINHash:      m.hash(pin),
	}

	err := m.db.WithContext(ctx).Create(&user).Error
	if err != nil {
		var existing models.User
		if m.db.WithContext(ctx).Where("email = ?", email).First(&existing).Error == nil {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return m.issue(user.ID), nil
}

// Login checks the password and issues a session that still needs PIN
// verification before it grants access.
func (m *Manager) Login(ctx context.Context, email, password string) (*Session, error) {
	var user models.User
	err := m.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if user.PasswordHash != m.hash(password) {
		return nil, ErrInvalidCredentials
	}

	return m.issue(user.ID), nil
}

// VerifyPIN completes the two-step login for the session behind token.
// The database query runs outside the session lock so a slow lookup cannot
// stall resolution of other sessions.
func (m *Manager) VerifyPIN(ctx context.Context, token, pin string) error {
	m.mu.RLock()
	session, ok := m.sessions[token]
	m.mu.RUnlock()
	if !ok {
		return ErrUnauthorized
	}
	userID := session.UserID

	var user models.User
	if err := m.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	if user.PINHash != m.hash(pin) {
		return ErrInvalidPIN
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// The session may have been logged out while the lookup ran.
	session, ok = m.sessions[token]
	if !ok {
		return ErrUnauthorized
	}
	session.PINVerified = true
	return nil
}

// Resolve maps a bearer token to a fully verified session.
func (m *Manager) Resolve(token string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[token]
	if !ok || !session.PINVerified {
		return nil, ErrUnauthorized
	}

	// Copy so callers cannot flip PINVerified behind the lock.
	out := *session
	return &out, nil
}

// Logout invalidates the session behind token.
func (m *Manager) Logout(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
}

func (m *Manager) issue(userID uint) *Session {
	session := &Session{
		Token:     uuid.NewString(),
		UserID:    userID,
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	m.sessions[session.Token] = session
	m.mu.Unlock()

	return session
}
