package queue

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTradeLog_AppendAndRead(t *testing.T) {
	log := NewTradeLog(filepath.Join(t.TempDir(), "trade_log.json"))

	cmd := buyCommand("ANON", 0)
	result := &TradeResult{Success: true, Signature: "sig-1", Timestamp: time.Now().UTC(), SOLSpent: 0.1}

	entry, err := log.Append(cmd, result)
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)

	_, err = log.Append(buyCommand("ANON", 0), &TradeResult{Success: false, ErrorKind: "quote_failed"})
	require.NoError(t, err)

	entries, err := log.Read()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "sig-1", entries[0].Result.Signature)
	assert.False(t, entries[1].Result.Success)
	// ULIDs are lexicographically ordered by creation time.
	assert.Less(t, entries[0].ID, entries[1].ID)
}

func TestTradeLog_ReadMissingFile(t *testing.T) {
	log := NewTradeLog(filepath.Join(t.TempDir(), "missing.json"))
	entries, err := log.Read()
	require.NoError(t, err)
	assert.Nil(t, entries)
}
