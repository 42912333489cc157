package services

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/matakeeper/internal/bus"
	"github.com/dmitrijs2005/matakeeper/internal/client/models"
	"github.com/dmitrijs2005/matakeeper/internal/common"
	"github.com/dmitrijs2005/matakeeper/internal/keys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWhoami(t *testing.T) {
	ctx := context.Background()

	t.Run("resolved", func(t *testing.T) {
		f := &fakeClient{keys: &models.Keys{Email: "a@b.com", Source: "localStorage", Adopted: true, Bundle: keys.Bundle{}}}
		id, err := NewSessionService(f).Whoami(ctx)
		require.NoError(t, err)
		assert.Equal(t, &Identity{Email: "a@b.com", Source: "localStorage", Adopted: true, HasKeys: true}, id)
	})

	t.Run("isolation lists users", func(t *testing.T) {
		f := &fakeClient{keysErr: &bus.RemoteError{
			Type: "isolation_violation",
			Body: bus.Response{"users": []any{"a@b.com", "c@d.com"}},
		}}
		_, err := NewSessionService(f).Whoami(ctx)
		require.ErrorIs(t, err, ErrNoActiveUser)

		var nu *NoUserError
		require.ErrorAs(t, err, &nu)
		assert.Equal(t, []string{"a@b.com", "c@d.com"}, nu.Users)
		assert.Contains(t, err.Error(), "please log in")
	})

	t.Run("pointer without keys", func(t *testing.T) {
		f := &fakeClient{keysErr: &bus.RemoteError{Type: "not_found", Body: bus.Response{"email": "a@b.com"}}}
		id, err := NewSessionService(f).Whoami(ctx)
		require.NoError(t, err)
		assert.Equal(t, "a@b.com", id.Email)
		assert.False(t, id.HasKeys)
	})

	t.Run("nobody", func(t *testing.T) {
		f := &fakeClient{keysErr: &bus.RemoteError{Type: "not_found", Body: bus.Response{"reason": "no_email"}}}
		_, err := NewSessionService(f).Whoami(ctx)
		require.ErrorIs(t, err, ErrNoActiveUser)
	})

	t.Run("agent down", func(t *testing.T) {
		f := &fakeClient{keysErr: bus.ErrUnavailable}
		_, err := NewSessionService(f).Whoami(ctx)
		require.ErrorIs(t, err, bus.ErrUnavailable)
		require.NotErrorIs(t, err, ErrNoActiveUser)
	})
}

func TestStoreKeysThenUnlock(t *testing.T) {
	ctx := context.Background()
	f := &fakeClient{}
	s := NewSessionService(f)

	pub, err := s.StoreKeys(ctx, " a@b.com ", []byte("hunter2"))
	require.NoError(t, err)

	assert.Equal(t, "a@b.com", f.storedEmail)
	assert.True(t, f.storedActive)
	assert.Equal(t, pub, f.stored.PublicKey())
	assert.Equal(t, "a@b.com", f.stored.Email())
	assert.NotEmpty(t, f.stored.SaltString())
	assert.NotEmpty(t, f.stored.EncryptedPrivateKey())

	u, err := s.Unlock(ctx, []byte("hunter2"))
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", u.Email)
	assert.Equal(t, pub, u.PublicKey)
	assert.Len(t, u.PrivateKey, 32)

	_, err = s.Unlock(ctx, []byte("wrong"))
	require.ErrorIs(t, err, ErrWrongPassword)
}

func TestStoreKeys_Validation(t *testing.T) {
	s := NewSessionService(&fakeClient{})

	_, err := s.StoreKeys(context.Background(), "  ", []byte("pw"))
	require.ErrorIs(t, err, common.ErrInvalidRequest)

	_, err = s.StoreKeys(context.Background(), "a@b.com", nil)
	require.ErrorIs(t, err, common.ErrInvalidRequest)
}

func TestUnlock_BundleWithoutPrivateKey(t *testing.T) {
	f := &fakeClient{keys: &models.Keys{Email: "a@b.com", Bundle: keys.Bundle{"publicKey": "pk"}}}

	_, err := NewSessionService(f).Unlock(context.Background(), []byte("pw"))
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestUseAndLogout(t *testing.T) {
	ctx := context.Background()
	f := &fakeClient{}
	s := NewSessionService(f)

	require.ErrorIs(t, s.Use(ctx, ""), common.ErrInvalidRequest)

	require.NoError(t, s.Use(ctx, "c@d.com"))
	assert.Equal(t, "c@d.com", f.active)

	require.NoError(t, s.Logout(ctx))
	assert.Empty(t, f.active)
}
