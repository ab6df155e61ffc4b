package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"tradeflow/internal/types"

	"github.com/stretchr/testify/assert"
)

func newTestJournal(t *testing.T) *SignalJournal {
	t.Helper()
	j, err := NewSignalJournal(filepath.Join(t.TempDir(), "journal.db"))
	assert.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournalAppendAndRecent(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	executed := types.NewSignal("AAPL", types.SideBuy, 10)
	executed.MarkExecuted(150, time.Now())
	executed.Venue = "paper_trading_simulation"
	executed.Metadata["source"] = "webhook"
	assert.NoError(t, j.Append(ctx, executed))

	time.Sleep(2 * time.Millisecond)

	blocked := types.NewSignal("TSLA", types.SideSell, 5)
	blocked.Block("Daily loss $300.00 exceeds limit $250.00")
	assert.NoError(t, j.Append(ctx, blocked))

	entries, err := j.Recent(ctx, 10)
	assert.NoError(t, err)
	assert.Len(t, entries, 2)

	// Newest first.
	assert.Equal(t, blocked.ID, entries[0].SignalID)
	assert.Equal(t, string(types.SignalBlocked), entries[0].Status)
	assert.Equal(t, "Daily loss $300.00 exceeds limit $250.00", entries[0].BlockReason)

	assert.Equal(t, executed.ID, entries[1].SignalID)
	assert.Equal(t, string(types.SignalExecuted), entries[1].Status)
	assert.InDelta(t, 150, entries[1].ExecutionPrice, 1e-9)
	assert.Equal(t, "paper_trading_simulation", entries[1].Venue)
	assert.Contains(t, entries[1].Metadata, "webhook")
}

func TestJournalRecentHonorsLimit(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		sig := types.NewSignal("AAPL", types.SideBuy, float64(i+1))
		sig.Block("rejected")
		assert.NoError(t, j.Append(ctx, sig))
	}

	entries, err := j.Recent(ctx, 3)
	assert.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestJournalRejectsNilSignal(t *testing.T) {
	j := newTestJournal(t)
	assert.Error(t, j.Append(context.Background(), nil))
}
