package auth

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"trade-ledger-go/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupManager(t *testing.T) *Manager {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Trade{}))

	return NewManager(db, nil)
}

func TestSignupAndLoginFlow(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()

	session, err := m.Signup(ctx, "a@b.com", "secret", "1234")
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.False(t, session.PINVerified)

	// A fresh session carries no access until the PIN is verified.
	_, err = m.Resolve(session.Token)
	assert.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, m.VerifyPIN(ctx, session.Token, "1234"))

	resolved, err := m.Resolve(session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.UserID, resolved.UserID)
	assert.True(t, resolved.PINVerified)
}

func TestSignup_DuplicateEmail(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()

	_, err := m.Signup(ctx, "a@b.com", "secret", "1234")
	require.NoError(t, err)

	_, err = m.Signup(ctx, "a@b.com", "other", "0000")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestSignup_StartsWithZeroFunds(t *testing.T) {
	m := setupManager(t)

	session, err := m.Signup(context.Background(), "a@b.com", "secret", "1234")
	require.NoError(t, err)

	var user models.User
	require.NoError(t, m.db.First(&user, session.UserID).Error)
	assert.True(t, user.Funds.IsZero(), "funds %s", user.Funds)
}

func TestLogin(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()

	_, err := m.Signup(ctx, "a@b.com", "secret", "1234")
	require.NoError(t, err)

	t.Run("Success", func(t *testing.T) {
		session, err := m.Login(ctx, "a@b.com", "secret")
		require.NoError(t, err)
		assert.False(t, session.PINVerified)
	})

	t.Run("WrongPassword", func(t *testing.T) {
		_, err := m.Login(ctx, "a@b.com", "nope")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("UnknownEmail", func(t *testing.T) {
		_, err := m.Login(ctx, "x@y.com", "secret")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestVerifyPIN_Wrong(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()

	session, err := m.Signup(ctx, "a@b.com", "secret", "1234")
	require.NoError(t, err)

	assert.ErrorIs(t, m.VerifyPIN(ctx, session.Token, "9999"), ErrInvalidPIN)
	assert.ErrorIs(t, m.VerifyPIN(ctx, "no-such-token", "1234"), ErrUnauthorized)
}

func TestVerifyPIN_ConcurrentWithResolve(t *testing.T) {
	// PIN verification must not serialize against resolution of other
	// sessions; everything here has to complete without deadlock and leave
	// both sessions usable.
	m := setupManager(t)
	ctx := context.Background()

	first, err := m.Signup(ctx, "a@b.com", "secret", "1234")
	require.NoError(t, err)
	require.NoError(t, m.VerifyPIN(ctx, first.Token, "1234"))

	second, err := m.Signup(ctx, "c@d.com", "secret", "5678")
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, m.VerifyPIN(ctx, second.Token, "5678"))
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_, err := m.Resolve(first.Token)
			assert.NoError(t, err)
		}
	}()
	wg.Wait()

	_, err = m.Resolve(second.Token)
	assert.NoError(t, err)
}

func TestLogout(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()

	session, err := m.Signup(ctx, "a@b.com", "secret", "1234")
	require.NoError(t, err)
	require.NoError(t, m.VerifyPIN(ctx, session.Token, "1234"))

	m.Logout(session.Token)

	_, err = m.Resolve(session.Token)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestHashFuncIsApplied(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}))

	reverse := func(s string) string {
		b := []byte(s)
		for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
			b[i], b[j] = b[j], b[i]
		}
		return string(b)
	}
	m := NewManager(db, reverse)

	session, err := m.Signup(context.Background(), "a@b.com", "secret", "1234")
	require.NoError(t, err)

	var user models.User
	require.NoError(t, db.First(&user, session.UserID).Error)
	assert.Equal(t, "terces", user.PasswordHash)

	_, err = m.Login(context.Background(), "a@b.com", "secret")
	assert.NoError(t, err)
}
