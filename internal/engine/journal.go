package engine

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EntryKind string

const (
	EntryProposal   EntryKind = "proposal_requested"
	EntryBuy        EntryKind = "buy_sent"
	EntrySettlement EntryKind = "settlement"
	EntryRiskStop   EntryKind = "risk_stop"
)

type Entry struct {
	RunID       string           `json:"run_id"`
	Timestamp   time.Time        `json:"timestamp"`
	Kind        EntryKind        `json:"kind"`
	Symbol      string           `json:"symbol,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	SMA         *decimal.Decimal `json:"sma,omitempty"`
	Stake       *decimal.Decimal `json:"stake,omitempty"`
	Contract    string           `json:"contract,omitempty"`
	ProposalID  string           `json:"proposal_id,omitempty"`
	Profit      *decimal.Decimal `json:"profit,omitempty"`
	Balance     *decimal.Decimal `json:"balance,omitempty"`
	LossStreak  int              `json:"loss_streak,omitempty"`
	DrawdownPct *decimal.Decimal `json:"drawdown_pct,omitempty"`
	Reason      string           `json:"reason,omitempty"`
	Error       string           `json:"error,omitempty"`
}

type Journal interface {
	Append(entry Entry)
}

// NewRunID identifies one process run in the journal.
func NewRunID() string {
	return time.Now().UTC().Format("20060102T150405") + "-" + uuid.NewString()[:8]
}

// FileJournal appends entries as NDJSON.
type FileJournal struct {
	runID  string
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex
}

func OpenJournal(path string, runID string) (*FileJournal, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileJournal{
		runID:  runID,
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

func (j *FileJournal) RunID() string {
	return j.runID
}

func (j *FileJournal) Append(entry Entry) {
	j.mu.Lock()
	defer j.mu.Unlock()
	entry.RunID = j.runID
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		slog.Error("journal marshal failed", "kind", entry.Kind, "error", err)
		return
	}
	if _, err := j.writer.Write(append(payload, '\n')); err != nil {
		slog.Error("journal write failed", "kind", entry.Kind, "error", err)
		return
	}
	if err := j.writer.Flush(); err != nil {
		slog.Error("journal flush failed", "kind", entry.Kind, "error", err)
	}
}

func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.writer.Flush(); err != nil {
		_ = j.file.Close()
		return err
	}
	return j.file.Close()
}

type discardJournal struct{}

func (discardJournal) Append(Entry) {}

func ptr(d decimal.Decimal) *decimal.Decimal {
	return &d
}
