package ledger

import (
	"sort"
	"time"
)

// Provenance tags for acquisition records.
const (
	SourceHistorical = "historical_analysis"
	SourceLive       = "live_trading"
)

// AcquisitionRecord is one wallet-observed acquisition: tokens gained in
// exchange for native SOL. The transaction signature is the natural key;
// two records with the same signature are the same event.
type AcquisitionRecord struct {
	Timestamp            time.Time `json:"timestamp"`
	TransactionSignature string    `json:"transaction_signature"`
	SOLSpent             float64   `json:"sol_spent"`
	TokensReceived       float64   `json:"tokens_received"`
	PricePerToken        float64   `json:"price_per_token"`
	BlockTime            int64     `json:"block_time,omitempty"`
	Source               string    `json:"source"`
}

// Position is the wallet's current balance snapshot.
type Position struct {
	SOLBalance   float64   `json:"sol_balance"`
	TokenBalance float64   `json:"token_balance"`
	TokenSymbol  string    `json:"token_symbol,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Performance holds the derived aggregate statistics. Always recomputed
// from the full acquisition set, never maintained incrementally.
type Performance struct {
	TotalSOLSpent       float64 `json:"total_sol_spent"`
	TotalTokensAcquired float64 `json:"total_tokens_acquired"`
	AverageEntryPrice   float64 `json:"average_entry_price"`
	AcquisitionCount    int     `json:"acquisition_count"`
}

// WalletLedger is the singleton per-wallet record of acquisitions and
// derived statistics. It lives for the process's entire operating life and
// is persisted after every mutation.
type WalletLedger struct {
	WalletAddress string    `json:"wallet_address"`
	FirstRecorded time.Time `json:"first_recorded"`

	// InitialSOLBalance is estimated once on the first reconciliation run
	// (current balance plus historical spend) and then fixed. A known
	// approximation with no correction mechanism; changing it would break
	// continuity with previously stored ledgers.
	InitialSOLBalance float64 `json:"initial_sol_balance"`

	acquisitions map[string]*AcquisitionRecord

	LastSeenTxCount  int       `json:"last_seen_tx_count"`
	LastAnalysisAt   time.Time `json:"last_analysis_at"`
	AnalysisComplete bool      `json:"historical_analysis_complete"`

	CurrentPosition Position    `json:"current_position"`
	Performance     Performance `json:"performance"`
}

// NewWalletLedger creates an empty ledger for a wallet.
func NewWalletLedger(address string) *WalletLedger {
	return &WalletLedger{
		WalletAddress: address,
		FirstRecorded: time.Now().UTC(),
		acquisitions:  make(map[string]*AcquisitionRecord),
	}
}

// Merge adds a record to the acquisition set. A record whose signature is
// already present is discarded as a duplicate; it is never overwritten.
// Returns true if the record was added.
func (l *WalletLedger) Merge(record *AcquisitionRecord) bool {
	if l.acquisitions == nil {
		l.acquisitions = make(map[string]*AcquisitionRecord)
	}
	if _, exists := l.acquisitions[record.TransactionSignature]; exists {
		return false
	}
	l.acquisitions[record.TransactionSignature] = record
	return true
}

// Has reports whether an acquisition with this signature is recorded.
func (l *WalletLedger) Has(signature string) bool {
	_, exists := l.acquisitions[signature]
	return exists
}

// AcquisitionCount returns the number of recorded acquisitions.
func (l *WalletLedger) AcquisitionCount() int {
	return len(l.acquisitions)
}

// DiscardAcquisitions drops all derived acquisition records. Used when an
// anomalous history shrink invalidates incremental assumptions.
func (l *WalletLedger) DiscardAcquisitions() {
	l.acquisitions = make(map[string]*AcquisitionRecord)
}

// SortedAcquisitions returns the acquisition set ordered by timestamp
// ascending, with the signature as a deterministic tie-break.
func (l *WalletLedger) SortedAcquisitions() []*AcquisitionRecord {
	records := make([]*AcquisitionRecord, 0, len(l.acquisitions))
	for _, r := range l.acquisitions {
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].TransactionSignature < records[j].TransactionSignature
		}
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
	return records
}

// setAcquisitions replaces the acquisition set. Used by the store when
// loading from disk.
func (l *WalletLedger) setAcquisitions(records []*AcquisitionRecord) {
	l.acquisitions = make(map[string]*AcquisitionRecord, len(records))
	for _, r := range records {
		// Keep the first occurrence; the file should never contain
		// duplicates, but a hand-edited one might.
		if _, exists := l.acquisitions[r.TransactionSignature]; !exists {
			l.acquisitions[r.TransactionSignature] = r
		}
	}
}
