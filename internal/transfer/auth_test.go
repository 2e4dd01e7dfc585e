package transfer

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeAuthFile(t *testing.T, path string, users map[string]string) {
	t.Helper()
	creds := Credentials{}
	for name, pass := range users {
		creds[name] = HashPassword(pass)
	}
	b, err := json.Marshal(creds)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
}

func TestCredentialStore_Verify(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")
	writeAuthFile(t, path, map[string]string{"alice": "wonderland"})

	s, err := LoadCredentials(path, nil)
	require.NoError(t, err)
	require.Equal(t, 1, s.Len())

	require.True(t, s.Verify("alice", HashPassword("wonderland")))
	require.False(t, s.Verify("alice", HashPassword("nope")))
	require.False(t, s.Verify("bob", HashPassword("")))
	require.False(t, s.Verify("alice", ""))
}

func TestLoadCredentials_Errors(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadCredentials(filepath.Join(dir, "missing.json"), nil)
	require.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o600))
	_, err = LoadCredentials(bad, nil)
	require.Error(t, err)
}

func TestCredentialStore_ReloadKeepsOldOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")
	writeAuthFile(t, path, map[string]string{"alice": "pw"})
	s, err := LoadCredentials(path, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("[]"), 0o600))
	require.Error(t, s.Reload())
	require.True(t, s.Verify("alice", HashPassword("pw")))
}

func TestCredentialStore_WatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")
	writeAuthFile(t, path, map[string]string{"alice": "pw"})
	s, err := LoadCredentials(path, nil)
	require.NoError(t, err)
	s.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx) }()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	// The watch is registered asynchronously; keep rewriting until the
	// change is picked up.
	require.Eventually(t, func() bool {
		writeAuthFile(t, path, map[string]string{"alice": "pw", "bob": "builder"})
		return s.Verify("bob", HashPassword("builder"))
	}, 5*time.Second, 50*time.Millisecond)
	require.Greater(t, s.reloadCount(), 1)
}

func TestNewCredentialStore_WatchWithoutFile(t *testing.T) {
	s := NewCredentialStore(Credentials{"u": HashPassword("p")})
	require.True(t, s.Verify("u", HashPassword("p")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, s.Watch(ctx))
}
