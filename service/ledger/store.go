package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Store persists a single WalletLedger to a JSON file. Every mutation site
// must call Save so the file always reflects the last committed state; the
// write is a full atomic rewrite, never an in-place patch.
type Store struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
}

func NewStore(path string, logger *slog.Logger) *Store {
	return &Store{path: path, logger: logger}
}

// Load reads the ledger file. A missing file returns (nil, nil) so the
// caller can create a fresh ledger.
func (s *Store) Load() (*WalletLedger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read ledger file: %w", err)
	}
	var ledger WalletLedger
	if err := json.Unmarshal(data, &ledger); err != nil {
		return nil, fmt.Errorf("parse ledger file %s: %w", s.path, err)
	}
	return &ledger, nil
}

// Save writes the full ledger state to disk atomically.
func (s *Store) Save(ledger *WalletLedger) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(ledger, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write ledger tmp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace ledger file: %w", err)
	}
	return nil
}
