package tokenstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "tokens.bin"), "test-passphrase", zerolog.Nop())
	require.NoError(t, err)
	return store
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)

	err := store.Save(Tokens{
		AccessToken:  "access-123",
		RefreshToken: "refresh-456",
		TokenType:    "Bearer",
		Scope:        "api",
		ExpiresIn:    1800,
	})
	require.NoError(t, err)

	loaded, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, "access-123", loaded.AccessToken)
	assert.Equal(t, "refresh-456", loaded.RefreshToken)
	assert.Equal(t, "Bearer", loaded.TokenType)

	// Save stamps the lifecycle timestamps.
	now := time.Now().Unix()
	assert.InDelta(t, now, loaded.SavedAt, 5)
	assert.InDelta(t, now+1800, loaded.AccessExpiresAt, 5)
	assert.InDelta(t, now+7*24*3600, loaded.RefreshExpiresAt, 5)
}

func TestFileIsEncrypted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.bin")
	store, err := New(path, "test-passphrase", zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, store.Save(Tokens{AccessToken: "secret-access-token", RefreshToken: "secret-refresh-token"}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret-access-token")
	assert.NotContains(t, string(raw), "secret-refresh-token")
}

func TestLoadWithWrongKeyFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.bin")

	store, err := New(path, "right-key", zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, store.Save(Tokens{AccessToken: "a", RefreshToken: "r"}))

	wrong, err := New(path, "wrong-key", zerolog.Nop())
	require.NoError(t, err)

	_, err = wrong.Load()
	assert.Error(t, err)
}

func TestLoadMissingFileReturnsNil(t *testing.T) {
	store := newTestStore(t)

	tokens, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, tokens)
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save(Tokens{AccessToken: "a", RefreshToken: "r"}))
	require.NoError(t, store.Delete())

	tokens, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, tokens)

	// Deleting again is not an error.
	assert.NoError(t, store.Delete())
}

func TestIsAccessExpired(t *testing.T) {
	fresh := Tokens{AccessExpiresAt: time.Now().Add(30 * time.Minute).Unix()}
	assert.False(t, fresh.IsAccessExpired())

	// Inside the 5-minute buffer counts as expired.
	nearExpiry := Tokens{AccessExpiresAt: time.Now().Add(2 * time.Minute).Unix()}
	assert.True(t, nearExpiry.IsAccessExpired())

	expired := Tokens{AccessExpiresAt: time.Now().Add(-time.Hour).Unix()}
	assert.True(t, expired.IsAccessExpired())
}

func TestIsRefreshValid(t *testing.T) {
	valid := Tokens{RefreshToken: "r", RefreshExpiresAt: time.Now().Add(24 * time.Hour).Unix()}
	assert.True(t, valid.IsRefreshValid())

	expired := Tokens{RefreshToken: "r", RefreshExpiresAt: time.Now().Add(-time.Hour).Unix()}
	assert.False(t, expired.IsRefreshValid())

	missing := Tokens{RefreshExpiresAt: time.Now().Add(24 * time.Hour).Unix()}
	assert.False(t, missing.IsRefreshValid())
}

func TestHasValidTokens(t *testing.T) {
	store := newTestStore(t)
	assert.False(t, store.HasValidTokens())

	require.NoError(t, store.Save(Tokens{AccessToken: "a", RefreshToken: "r", ExpiresIn: 1800}))
	assert.True(t, store.HasValidTokens())
}

func TestNewRequiresPassphrase(t *testing.T) {
	_, err := New("/tmp/tokens.bin", "", zerolog.Nop())
	assert.Error(t, err)
}
