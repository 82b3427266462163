package queue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// TradeLogEntry is one audit record: the command as executed and its result.
type TradeLogEntry struct {
	ID       string        `json:"id"`
	LoggedAt time.Time     `json:"logged_at"`
	Command  *TradeCommand `json:"command"`
	Result   *TradeResult  `json:"result"`
}

// TradeLog is the append-only audit log of executed trades, one JSON
// object per line. Entries are never rewritten.
type TradeLog struct {
	mu   sync.Mutex
	path string
	mono *ulid.MonotonicEntropy
}

// NewTradeLog creates a trade log appender backed by the given file path.
func NewTradeLog(path string) *TradeLog {
	// Monotonic entropy keeps IDs ordered even within the same millisecond.
	seed := time.Now().UnixNano()
	return &TradeLog{
		path: path,
		mono: ulid.Monotonic(rand.New(rand.NewSource(seed)), 0),
	}
}

// Append writes one {command, result} pair to the log.
func (l *TradeLog) Append(cmd *TradeCommand, result *TradeResult) (*TradeLogEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(time.Now().UTC()), l.mono)
	if err != nil {
		return nil, fmt.Errorf("failed to generate log entry id: %w", err)
	}

	entry := &TradeLogEntry{
		ID:       id.String(),
		LoggedAt: time.Now().UTC(),
		Command:  cmd,
		Result:   result,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal log entry: %w", err)
	}

	if err := ensureDir(l.path); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open trade log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return nil, fmt.Errorf("failed to append to trade log: %w", err)
	}

	return entry, nil
}

// Read returns all entries in append order.
func (l *TradeLog) Read() ([]*TradeLogEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read trade log: %w", err)
	}

	var entries []*TradeLogEntry
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var entry TradeLogEntry
		if err := dec.Decode(&entry); err != nil {
			return nil, fmt.Errorf("failed to parse trade log: %w", err)
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}
