package queue

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Store is the durable, file-backed trade command queue. The producer
// appends commands to the JSON file; this store reads them in order,
// marks them processed, and prunes old processed entries.
//
// All mutations go through this store and are serialized by its mutex;
// the file is rewritten atomically (temp file + rename) on every change.
type Store struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
}

// NewStore creates a queue store backed by the given file path.
// A missing file is treated as an empty queue.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{path: path, logger: logger}
}

// Load reads all commands from the queue file in producer order.
func (s *Store) Load() ([]*TradeCommand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// NextUnprocessed returns the oldest unprocessed command, or nil when the
// queue is drained. FIFO: producer order, not timestamp order, decides age.
func (s *Store) NextUnprocessed() (*TradeCommand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	commands, err := s.load()
	if err != nil {
		return nil, err
	}
	for _, cmd := range commands {
		if !cmd.Processed {
			return cmd, nil
		}
	}
	return nil, nil
}

// CountUnprocessed returns the number of commands awaiting execution.
func (s *Store) CountUnprocessed() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	commands, err := s.load()
	if err != nil {
		return 0, err
	}
	count := 0
	for _, cmd := range commands {
		if !cmd.Processed {
			count++
		}
	}
	return count, nil
}

// Append adds a command to the tail of the queue. Normally the external
// producer writes the file directly; this exists for the CLI.
func (s *Store) Append(cmd *TradeCommand) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	commands, err := s.load()
	if err != nil {
		return err
	}
	commands = append(commands, cmd)
	return s.save(commands)
}

// MarkProcessed sets the processed flag and attaches the result to the
// pending command matching cmd. The match is by content, not position: a
// trade can be in flight for minutes, and the prune loop or the external
// producer may rewrite the file in the meantime, shifting positions. The
// whole read-locate-write happens under the store mutex.
func (s *Store) MarkProcessed(cmd *TradeCommand, result *TradeResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	commands, err := s.load()
	if err != nil {
		return err
	}
	for _, c := range commands {
		if c.Processed || !sameCommand(c, cmd) {
			continue
		}
		c.Processed = true
		c.Result = result
		return s.save(commands)
	}
	return fmt.Errorf("no pending command for %s queued at %s", cmd.TokenSymbol, cmd.Timestamp.Format(time.RFC3339))
}

// sameCommand reports whether two queue entries describe the same logical
// trade. The producer never emits two commands with the same timestamp,
// token and amount.
func sameCommand(a, b *TradeCommand) bool {
	return a.Timestamp.Equal(b.Timestamp) &&
		a.TokenSymbol == b.TokenSymbol &&
		a.TokenAddress == b.TokenAddress &&
		a.SOLAmount == b.SOLAmount
}

// Prune removes processed commands whose submission timestamp is older than
// the retention window. Unprocessed commands are never pruned regardless of
// age. Returns the number of commands removed.
func (s *Store) Prune(retention time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	commands, err := s.load()
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-retention)
	kept := make([]*TradeCommand, 0, len(commands))
	for _, cmd := range commands {
		if cmd.Processed && cmd.Timestamp.Before(cutoff) {
			continue
		}
		kept = append(kept, cmd)
	}

	removed := len(commands) - len(kept)
	if removed == 0 {
		return 0, nil
	}

	if err := s.save(kept); err != nil {
		return 0, err
	}

	s.logger.Debug("pruned processed commands",
		"removed", removed,
		"remaining", len(kept),
	)
	return removed, nil
}

func (s *Store) load() ([]*TradeCommand, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read queue file: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var commands []*TradeCommand
	if err := json.Unmarshal(data, &commands); err != nil {
		return nil, fmt.Errorf("failed to parse queue file: %w", err)
	}
	return commands, nil
}

func (s *Store) save(commands []*TradeCommand) error {
	if commands == nil {
		commands = []*TradeCommand{}
	}
	data, err := json.MarshalIndent(commands, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal queue: %w", err)
	}

	if err := ensureDir(s.path); err != nil {
		return fmt.Errorf("failed to create queue directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write queue file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace queue file: %w", err)
	}
	return nil
}

// ensureDir creates the parent directory for a store path if needed.
func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
