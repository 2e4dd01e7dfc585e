package journal

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/socklab/internal/domain"
)

func openTemp(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournal_MigratesToLatest(t *testing.T) {
	j := openTemp(t)
	version, dirty, err := j.MigrateVersion()
	require.NoError(t, err)
	require.False(t, dirty)
	require.EqualValues(t, 2, version)

	// Opening again is a no-op migration.
	require.NoError(t, j.MigrateUp())
}

func TestJournal_DeliverAndRecent(t *testing.T) {
	j := openTemp(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	remote := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 50000}
	local := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 65000}

	for i := 1; i <= 3; i++ {
		require.NoError(t, j.Deliver(ctx, domain.Message{
			Session:    "s1",
			Transport:  domain.TCP,
			Local:      local,
			Remote:     remote,
			Seq:        i,
			Payload:    []byte{byte('a' + i - 1)},
			ReceivedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, j.Deliver(ctx, domain.Message{
		Session:    "s2",
		Transport:  domain.UDP,
		Seq:        1,
		ReceivedAt: base.Add(time.Minute),
	}))

	got, err := j.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)

	want := []Entry{
		{ID: 4, Session: "s2", Transport: domain.UDP, Seq: 1, Payload: []byte{}, ReceivedAt: base.Add(time.Minute)},
		{ID: 3, Session: "s1", Transport: domain.TCP, Local: "127.0.0.1:65000", Remote: "127.0.0.1:50000", Seq: 3, Payload: []byte("c"), ReceivedAt: base.Add(3 * time.Second)},
	}
	opts := cmp.Options{
		cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) }),
		cmpopts.EquateEmpty(),
	}
	if diff := cmp.Diff(want, got, opts); diff != "" {
		t.Fatalf("Recent() mismatch (-want +got):\n%s", diff)
	}

	sessions, err := j.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	require.Equal(t, "s2", sessions[0].Session)
	require.Equal(t, 3, sessions[1].Messages)
	require.EqualValues(t, 3, sessions[1].Bytes)
	require.True(t, sessions[1].First.Equal(base.Add(time.Second)))
	require.True(t, sessions[1].Last.Equal(base.Add(3*time.Second)))
}

func TestJournal_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, j.Deliver(context.Background(), domain.Message{Session: "s", Transport: domain.TCP, Seq: 1, Payload: []byte("x"), ReceivedAt: time.Now()}))
	require.NoError(t, j.Close())

	j, err = Open(path, nil)
	require.NoError(t, err)
	defer j.Close()
	got, err := j.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "x", string(got[0].Payload))
}
