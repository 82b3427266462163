package solana

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Wallet bundles the key material the executor signs with.
// Key generation and storage belong to an external collaborator; this
// type only loads what that collaborator produced.
type Wallet struct {
	privateKey solana.PrivateKey
	publicKey  solana.PublicKey
}

// LoadWallet reads a solana-keygen style JSON keyfile.
func LoadWallet(path string) (*Wallet, error) {
	privateKey, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load keyfile %s: %w", path, err)
	}
	return &Wallet{
		privateKey: privateKey,
		publicKey:  privateKey.PublicKey(),
	}, nil
}

// WalletFromBase58 builds a wallet from a base58-encoded private key.
// Used by tests and by operators who keep keys in env vars.
func WalletFromBase58(key string) (*Wallet, error) {
	privateKey, err := solana.PrivateKeyFromBase58(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return &Wallet{
		privateKey: privateKey,
		publicKey:  privateKey.PublicKey(),
	}, nil
}

// PublicKey returns the wallet's public key.
func (w *Wallet) PublicKey() solana.PublicKey {
	return w.publicKey
}

// Address returns the wallet's public key as a base58 string.
func (w *Wallet) Address() string {
	return w.publicKey.String()
}

// signerFor returns the private key for the wallet's own public key.
// Other required signers (none for aggregator swaps) are left unsigned.
func (w *Wallet) signerFor(key solana.PublicKey) *solana.PrivateKey {
	if w.publicKey.Equals(key) {
		return &w.privateKey
	}
	return nil
}
