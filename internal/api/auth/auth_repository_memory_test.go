package auth

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/taskflow-auth/internal/types"
)

func strPtr(s string) *string { return &s }

func seedUser(t *testing.T, s CredentialStore, email string, role types.Role) *types.User {
	t.Helper()
	u, err := s.Create(context.Background(), types.NewUserParams{
		Email:       email,
		DisplayName: "Test",
		SecretHash:  "$2a$04$digest",
		Role:        role,
	})
	require.NoError(t, err)
	return u
}

func TestMemoryCredentialStore_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryCredentialStore()

	u := seedUser(t, s, " Bob@Example.com ", types.RoleUser)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "bob@example.com", u.Email)

	byEmail, err := s.FindByEmail(ctx, "BOB@example.COM")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	byID, err := s.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, byID.Email)

	_, err = s.FindByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, types.ErrNotFound)
	_, err = s.FindByID(ctx, "nope")
	assert.ErrorIs(t, err, types.ErrNotFound)

	t.Run("DuplicateEmailIsConflict", func(t *testing.T) {
		_, err := s.Create(ctx, types.NewUserParams{Email: "BOB@example.com", Role: types.RoleUser})
		assert.ErrorIs(t, err, types.ErrConflict)
	})

	t.Run("ReturnsCopies", func(t *testing.T) {
		got, err := s.FindByID(ctx, u.ID)
		require.NoError(t, err)
		got.DisplayName = "Mallory"
		again, err := s.FindByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "Test", again.DisplayName)
	})
}

func TestMemoryCredentialStore_ConcurrentCreateSameEmail(t *testing.T) {
	s := NewMemoryCredentialStore()
	const workers = 16
	var created, conflicts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Create(context.Background(), types.NewUserParams{
				Email:       "race@example.com",
				DisplayName: fmt.Sprintf("racer-%d", i),
				Role:        types.RoleUser,
			})
			switch {
			case err == nil:
				created.Add(1)
			case assert.ErrorIs(t, err, types.ErrConflict):
				conflicts.Add(1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), created.Load())
	assert.Equal(t, int32(workers-1), conflicts.Load())
}

func TestMemoryCredentialStore_UpdateProfile(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryCredentialStore()
	bob := seedUser(t, s, "bob@example.com", types.RoleUser)
	seedUser(t, s, "alice@example.com", types.RoleAdmin)

	t.Run("ChangesFields", func(t *testing.T) {
		u, err := s.UpdateProfile(ctx, bob.ID, types.UpdateProfileParams{
			DisplayName:     strPtr("Robert"),
			Email:           strPtr("Robert@Example.com"),
			ProfileImageRef: strPtr("http://img/1.png"),
		})
		require.NoError(t, err)
		assert.Equal(t, "Robert", u.DisplayName)
		assert.Equal(t, "robert@example.com", u.Email)
		require.NotNil(t, u.ProfileImageRef)
		assert.Equal(t, "http://img/1.png", *u.ProfileImageRef)

		_, err = s.FindByEmail(ctx, "bob@example.com")
		assert.ErrorIs(t, err, types.ErrNotFound)
		_, err = s.FindByEmail(ctx, "robert@example.com")
		assert.NoError(t, err)
	})

	t.Run("EmailTakenByOther", func(t *testing.T) {
		_, err := s.UpdateProfile(ctx, bob.ID, types.UpdateProfileParams{Email: strPtr("alice@example.com")})
		assert.ErrorIs(t, err, types.ErrConflict)
	})

	t.Run("SameEmailIsFine", func(t *testing.T) {
		_, err := s.UpdateProfile(ctx, bob.ID, types.UpdateProfileParams{Email: strPtr("robert@example.com")})
		assert.NoError(t, err)
	})

	t.Run("UnknownUser", func(t *testing.T) {
		_, err := s.UpdateProfile(ctx, "nope", types.UpdateProfileParams{DisplayName: strPtr("x")})
		assert.ErrorIs(t, err, types.ErrNotFound)
	})
}

func TestMemoryCredentialStore_ResetToken(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryCredentialStore()
	u := seedUser(t, s, "bob@example.com", types.RoleUser)
	expires := time.Date(2026, 1, 1, 13, 0, 0, 0, time.UTC)

	require.NoError(t, s.SetResetToken(ctx, u.ID, "hash-1", expires))
	assert.ErrorIs(t, s.SetResetToken(ctx, "nope", "hash-1", expires), types.ErrNotFound)

	// Not yet expired: left alone.
	require.NoError(t, s.ClearExpiredResetToken(ctx, u.ID, expires.Add(-time.Minute)))
	got, _ := s.FindByID(ctx, u.ID)
	require.NotNil(t, got.ResetToken)

	ok, err := s.ConsumeResetToken(ctx, u.ID, "other-hash")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.ConsumeResetToken(ctx, u.ID, "hash-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ConsumeResetToken(ctx, u.ID, "hash-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetResetToken(ctx, u.ID, "hash-2", expires))
	require.NoError(t, s.ClearExpiredResetToken(ctx, u.ID, expires))
	got, _ = s.FindByID(ctx, u.ID)
	assert.Nil(t, got.ResetToken)
}

func TestMemoryCredentialStore_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryCredentialStore()
	clock := newFakeClock()
	s.now = clock.Now

	first := seedUser(t, s, "first@example.com", types.RoleUser)
	clock.Advance(time.Second)
	second := seedUser(t, s, "second@example.com", types.RoleAdmin)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, first.ID, users[0].ID)
	assert.Equal(t, second.ID, users[1].ID)

	require.NoError(t, s.DeleteUser(ctx, first.ID))
	assert.ErrorIs(t, s.DeleteUser(ctx, first.ID), types.ErrNotFound)
	_, err = s.FindByEmail(ctx, "first@example.com")
	assert.ErrorIs(t, err, types.ErrNotFound)

	// The email is free again.
	seedUser(t, s, "first@example.com", types.RoleUser)
}
