package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/quickgpt/pkg/relay"
)

func newSQLite(t *testing.T) *SQLiteArchive {
	t.Helper()
	dsn, err := SQLiteDSNForFile(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	a, err := NewSQLiteArchive(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func archives(t *testing.T) map[string]Archive {
	return map[string]Archive{
		"sqlite": newSQLite(t),
		"memory": NewMemoryArchive(0),
	}
}

func TestArchive_RecentIsNewestFirst(t *testing.T) {
	for name, a := range archives(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, a.Record(ctx, Record{RequestID: "a", Status: "complete", Text: "one", CreatedAtMs: 1, FinishedMs: 10}))
			require.NoError(t, a.Record(ctx, Record{RequestID: "b", Status: "error", Error: "boom", CreatedAtMs: 2, FinishedMs: 20}))
			require.NoError(t, a.Record(ctx, Record{RequestID: "c", Status: "aborted", AbortReason: "Cancelled by user.", CreatedAtMs: 3, FinishedMs: 30}))

			recs, err := a.Recent(ctx, 2)
			require.NoError(t, err)
			require.Len(t, recs, 2)
			require.Equal(t, "c", recs[0].RequestID)
			require.Equal(t, "Cancelled by user.", recs[0].AbortReason)
			require.Equal(t, "b", recs[1].RequestID)
			require.Equal(t, "boom", recs[1].Error)
		})
	}
}

func TestArchive_RecordReplacesSameRequest(t *testing.T) {
	for name, a := range archives(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, a.Record(ctx, Record{RequestID: "a", Status: "aborted", CreatedAtMs: 1, FinishedMs: 5}))
			require.NoError(t, a.Record(ctx, Record{RequestID: "a", Status: "complete", Text: "x", CreatedAtMs: 1, FinishedMs: 6}))

			recs, err := a.Recent(ctx, 0)
			require.NoError(t, err)
			require.Len(t, recs, 1)
			require.Equal(t, "complete", recs[0].Status)
		})
	}
}

func TestArchive_RejectsEmptyID(t *testing.T) {
	for name, a := range archives(t) {
		t.Run(name, func(t *testing.T) {
			require.Error(t, a.Record(context.Background(), Record{}))
		})
	}
}

func TestMemoryArchive_IsBounded(t *testing.T) {
	a := NewMemoryArchive(2)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, a.Record(ctx, Record{RequestID: id}))
	}
	recs, err := a.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, "c", recs[0].RequestID)
	require.Equal(t, "b", recs[1].RequestID)
}

func TestSQLiteDSNForFile(t *testing.T) {
	_, err := SQLiteDSNForFile(" ")
	require.Error(t, err)
	dsn, err := SQLiteDSNForFile("/tmp/x.db")
	require.NoError(t, err)
	require.Equal(t, "file:/tmp/x.db?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", dsn)
}

func TestObserver_RecordsOnlyTerminalMessages(t *testing.T) {
	a := NewMemoryArchive(0)
	o := NewObserver(a)
	created := time.UnixMilli(1000)
	req := relay.Request{
		ID:         "r1",
		PromptName: "Explain",
		Query:      "q",
		Params:     relay.Params{Model: "gpt-4o-mini"},
		Status:     relay.StatusStreaming,
		CreatedAt:  created,
	}
	ctx := context.Background()
	o.Observe(ctx, req, relay.StartMessage("r1", "Explain", "q"))
	o.Observe(ctx, req, relay.DeltaMessage("r1", "hi", false))

	recs, err := a.Recent(ctx, 0)
	require.NoError(t, err)
	require.Empty(t, recs)

	req.Status = relay.StatusComplete
	req.Text = "hi"
	req.FinishedAt = time.UnixMilli(2000)
	o.Observe(ctx, req, relay.CompleteMessage("r1", "hi"))

	recs, err = a.Recent(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, []Record{{
		RequestID:   "r1",
		PromptName:  "Explain",
		Query:       "q",
		Model:       "gpt-4o-mini",
		Status:      "complete",
		Text:        "hi",
		CreatedAtMs: 1000,
		FinishedMs:  2000,
	}}, recs)
}
