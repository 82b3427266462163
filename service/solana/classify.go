package solana

import (
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// ExtractBalanceDelta derives the wallet-owned balance movement from a
// confirmed transaction: the largest token balance increase owned by the
// wallet, paired with the wallet's native SOL decrease (fees included).
//
// A transaction with no owned token increase, or with no SOL decrease, yields
// zero fields; deciding whether the movement is large enough to count as an
// acquisition (dust thresholds) is the caller's job.
func ExtractBalanceDelta(signature string, result *rpc.GetTransactionResult, owner solana.PublicKey) (*BalanceDelta, error) {
	if result == nil || result.Meta == nil {
		return nil, fmt.Errorf("transaction %s has no metadata", signature)
	}

	delta := &BalanceDelta{Signature: signature}
	if result.BlockTime != nil {
		delta.BlockTime = result.BlockTime.Time()
	}

	// Token side: diff post vs pre token balances for accounts owned by the wallet.
	// Keyed by mint; multiple token accounts for one mint collapse together.
	pre := make(map[string]float64)
	for _, tb := range result.Meta.PreTokenBalances {
		if tb.Owner != nil && tb.Owner.Equals(owner) {
			pre[tb.Mint.String()] += uiAmount(tb.UiTokenAmount)
		}
	}
	for _, tb := range result.Meta.PostTokenBalances {
		if tb.Owner == nil || !tb.Owner.Equals(owner) {
			continue
		}
		mint := tb.Mint.String()
		gained := uiAmount(tb.UiTokenAmount) - pre[mint]
		delete(pre, mint)
		if gained > delta.TokensGained {
			delta.TokensGained = gained
			delta.TokenMint = mint
		}
	}

	// Native side: diff pre/post lamports at the wallet's account index.
	if result.Transaction == nil {
		return delta, nil
	}
	tx, err := result.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction %s: %w", signature, err)
	}

	ownerIndex := -1
	for i, key := range tx.Message.AccountKeys {
		if key.Equals(owner) {
			ownerIndex = i
			break
		}
	}
	if ownerIndex >= 0 &&
		ownerIndex < len(result.Meta.PreBalances) &&
		ownerIndex < len(result.Meta.PostBalances) {
		preLamports := result.Meta.PreBalances[ownerIndex]
		postLamports := result.Meta.PostBalances[ownerIndex]
		if preLamports > postLamports {
			delta.SOLSpent = float64(preLamports-postLamports) / LamportsPerSOL
		}
	}

	return delta, nil
}

// TokensReceived returns the wallet's UI-amount balance increase for a
// specific mint in a confirmed transaction. Used by the executor to derive
// the actual tokens a swap produced.
func TokensReceived(result *rpc.GetTransactionResult, owner solana.PublicKey, mint solana.PublicKey) (float64, error) {
	if result == nil || result.Meta == nil {
		return 0, fmt.Errorf("transaction has no metadata")
	}

	var preAmount, postAmount float64
	for _, tb := range result.Meta.PreTokenBalances {
		if tb.Owner != nil && tb.Owner.Equals(owner) && tb.Mint.Equals(mint) {
			preAmount += uiAmount(tb.UiTokenAmount)
		}
	}
	for _, tb := range result.Meta.PostTokenBalances {
		if tb.Owner != nil && tb.Owner.Equals(owner) && tb.Mint.Equals(mint) {
			postAmount += uiAmount(tb.UiTokenAmount)
		}
	}

	received := postAmount - preAmount
	if received < 0 {
		received = 0
	}
	return received, nil
}

// uiAmount extracts a UI amount from an RPC token balance, falling back to
// the string representation when the float pointer is absent.
func uiAmount(amount *rpc.UiTokenAmount) float64 {
	if amount == nil {
		return 0
	}
	if amount.UiAmount != nil {
		return *amount.UiAmount
	}
	if amount.UiAmountString != "" {
		if v, err := strconv.ParseFloat(amount.UiAmountString, 64); err == nil {
			return v
		}
	}
	return 0
}
