package ledger

import (
	"encoding/json"
	"time"
)

// ledgerFile is the on-disk shape. Acquisitions are stored as an array
// sorted by timestamp so the file diffs cleanly and stays compatible with
// other consumers of the same format.
type ledgerFile struct {
	WalletAddress     string               `json:"wallet_address"`
	FirstRecorded     time.Time            `json:"first_recorded"`
	InitialSOLBalance float64              `json:"initial_sol_balance"`
	TokenAcquisitions []*AcquisitionRecord `json:"token_acquisitions"`
	LastSeenTxCount   int                  `json:"last_seen_tx_count"`
	LastAnalysisAt    time.Time            `json:"last_analysis_at"`
	AnalysisComplete  bool                 `json:"historical_analysis_complete"`
	CurrentPosition   Position             `json:"current_position"`
	Performance       Performance          `json:"performance"`
}

func (l *WalletLedger) MarshalJSON() ([]byte, error) {
	return json.Marshal(ledgerFile{
		WalletAddress:     l.WalletAddress,
		FirstRecorded:     l.FirstRecorded,
		InitialSOLBalance: l.InitialSOLBalance,
		TokenAcquisitions: l.SortedAcquisitions(),
		LastSeenTxCount:   l.LastSeenTxCount,
		LastAnalysisAt:    l.LastAnalysisAt,
		AnalysisComplete:  l.AnalysisComplete,
		CurrentPosition:   l.CurrentPosition,
		Performance:       l.Performance,
	})
}

func (l *WalletLedger) UnmarshalJSON(data []byte) error {
	var f ledgerFile
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	l.WalletAddress = f.WalletAddress
	l.FirstRecorded = f.FirstRecorded
	l.InitialSOLBalance = f.InitialSOLBalance
	l.LastSeenTxCount = f.LastSeenTxCount
	l.LastAnalysisAt = f.LastAnalysisAt
	l.AnalysisComplete = f.AnalysisComplete
	l.CurrentPosition = f.CurrentPosition
	l.Performance = f.Performance
	l.setAcquisitions(f.TokenAcquisitions)
	return nil
}
