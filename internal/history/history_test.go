package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/comigor/mentorchat/internal/transcript"
)

func sampleEntries() []transcript.Entry {
	at := time.Date(2026, 5, 4, 14, 5, 9, 0, time.Local)
	return []transcript.Entry{
		{Sender: transcript.SenderUser, Text: "I'm designing a community center", Timestamp: at},
		{Sender: transcript.SenderAgent, AgentLabel: "Design Mentor", Text: "Who is it for?", Route: "socratic_exploration", Game: "detective", Timestamp: at.Add(time.Minute)},
	}
}

func exerciseStore(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()

	for _, e := range sampleEntries() {
		require.NoError(t, s.Save(ctx, "s1", e))
	}
	require.NoError(t, s.Save(ctx, "s2", transcript.Entry{Sender: transcript.SenderUser, Text: "other", Timestamp: time.Now()}))

	got, err := s.List(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	want := sampleEntries()
	for i := range want {
		require.Equal(t, want[i].Sender, got[i].Sender)
		require.Equal(t, want[i].AgentLabel, got[i].AgentLabel)
		require.Equal(t, want[i].Text, got[i].Text)
		require.Equal(t, want[i].Route, got[i].Route)
		require.Equal(t, want[i].Game, got[i].Game)
		require.True(t, want[i].Timestamp.Equal(got[i].Timestamp))
	}
	require.Equal(t, "14:05", transcript.FormatTimestamp(got[0]))

	ids, err := s.Sessions(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"s1", "s2"}, ids)

	require.NoError(t, s.Delete(ctx, "s1"))
	got, err = s.List(ctx, "s1")
	require.NoError(t, err)
	require.Empty(t, got)

	ids, err = s.Sessions(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"s2"}, ids)
}

func TestStore_SQLite(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "history.db"))
	t.Cleanup(func() { s.Close() })
	require.True(t, s.Persistent())
	exerciseStore(t, s)
}

func TestStore_SQLiteSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s := Open(path)
	require.NoError(t, s.Save(context.Background(), "s1", sampleEntries()[0]))
	require.NoError(t, s.Close())

	s = Open(path)
	t.Cleanup(func() { s.Close() })
	got, err := s.List(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestStore_MemoryFallback(t *testing.T) {
	s := Open("")
	require.False(t, s.Persistent())
	exerciseStore(t, s)
	require.NoError(t, s.Close())
}

func TestStore_NormalizesRouteAndGame(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "history.db"))
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	at := time.Now()
	require.NoError(t, s.Save(ctx, "s1", transcript.Entry{Sender: transcript.SenderAgent, Text: "a", Route: "error", Game: "detective", Timestamp: at}))
	require.NoError(t, s.Save(ctx, "s1", transcript.Entry{Sender: transcript.SenderAgent, Text: "b", Route: "shouting", Game: "chess", Timestamp: at}))

	got, err := s.List(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "fallback", got[0].Route)
	require.Equal(t, "detective", got[0].Game)
	require.Empty(t, got[1].Route)
	require.Empty(t, got[1].Game)
}
