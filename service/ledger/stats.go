package ledger

// ComputeStats derives aggregate performance from an acquisition set. It is
// a pure function of its input: totals are summed over every record and the
// average entry price is total spend over total tokens, or zero when no
// tokens were acquired.
func ComputeStats(records []*AcquisitionRecord) Performance {
	var perf Performance
	for _, r := range records {
		perf.TotalSOLSpent += r.SOLSpent
		perf.TotalTokensAcquired += r.TokensReceived
		perf.AcquisitionCount++
	}
	if perf.TotalTokensAcquired > 0 {
		perf.AverageEntryPrice = perf.TotalSOLSpent / perf.TotalTokensAcquired
	}
	return perf
}

// RecomputeStats replaces the ledger's performance block with a fresh
// computation over the full acquisition set.
func (l *WalletLedger) RecomputeStats() {
	l.Performance = ComputeStats(l.SortedAcquisitions())
}
