package cli

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/soyeahso/xmlbot/internal/domain"
	"github.com/soyeahso/xmlbot/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedTranscript writes one transcript into the default database under home.
func seedTranscript(t *testing.T, home string) {
	t.Helper()
	db, err := store.Open(filepath.Join(home, "data", "xmlbot.db"), silentLog())
	require.NoError(t, err)
	defer db.Close()

	ts := store.NewSQLiteTranscriptStore(db)
	ctx := context.Background()
	at := time.Date(2026, 5, 2, 14, 30, 0, 0, time.UTC)
	require.NoError(t, ts.CreateTranscript(ctx, store.Transcript{ID: "tr-1", Provider: "echo", StartedAt: at}))
	require.NoError(t, ts.AppendMessages(ctx, "tr-1", 0, []domain.Message{
		{Role: domain.RoleAssistant, Content: "Olá!", Timestamp: at},
		{Role: domain.RoleUser, Content: "oi", Timestamp: at.Add(time.Second)},
	}))
	require.NoError(t, ts.SetLastError(ctx, "tr-1", "Failed to get response from Echo. boom"))
}

func TestTranscriptsEmpty(t *testing.T) {
	out, err := execute(t, t.TempDir(), "transcripts")
	require.NoError(t, err)
	assert.Equal(t, "no transcripts recorded\n", out)
}

func TestTranscriptsListAndShow(t *testing.T) {
	home := t.TempDir()
	seedTranscript(t, home)

	out, err := execute(t, home, "transcripts", "-n", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "tr-1")
	assert.Contains(t, out, "echo")
	assert.Contains(t, out, "error: Failed to get response from Echo. boom")

	out, err = execute(t, home, "transcripts", "show", "tr-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Transcript tr-1 (echo")
	assert.Contains(t, out, "bot> Olá!")
	assert.Contains(t, out, "you> oi")
	assert.Contains(t, out, "last error: Failed to get response from Echo. boom")
}

func TestTranscriptShowUnknown(t *testing.T) {
	_, err := execute(t, t.TempDir(), "transcripts", "show", "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
