package engine

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileJournalAppendsNDJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.ndjson")
	runID := NewRunID()
	journal, err := OpenJournal(path, runID)
	require.NoError(t, err)

	journal.Append(Entry{Kind: EntryProposal, Symbol: "R_75", Stake: ptr(d("1.25"))})
	journal.Append(Entry{Kind: EntryRiskStop, Reason: "drawdown"})
	require.NoError(t, journal.Close())

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var kinds []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var row map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &row))
		assert.Equal(t, runID, row["run_id"])
		kinds = append(kinds, row["kind"].(string))
	}
	assert.Equal(t, []string{"proposal_requested", "risk_stop"}, kinds)
}

func TestNewRunIDHasTimestampPrefix(t *testing.T) {
	id := NewRunID()
	parts := strings.SplitN(id, "-", 2)
	require.Len(t, parts, 2)
	assert.Len(t, parts[0], len("20060102T150405"))
	assert.Len(t, parts[1], 8)
}
