// internal/wallet/wallet.go
package wallet

import (
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
)

// Wallet is the bot's signing keypair with a cache of derived associated
// token accounts. Safe for concurrent use.
type Wallet struct {
	PrivateKey solana.PrivateKey
	PublicKey  solana.PublicKey

	mu       sync.RWMutex
	ataCache map[string]solana.PublicKey
}

// New builds a wallet from a base58-encoded private key.
func New(privateKeyBase58 string) (*Wallet, error) {
	privateKey, err := solana.PrivateKeyFromBase58(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	return &Wallet{
		PrivateKey: privateKey,
		PublicKey:  privateKey.PublicKey(),
		ataCache:   make(map[string]solana.PublicKey),
	}, nil
}

// SignTransaction signs with the wallet's key; it must be the sole signer.
func (w *Wallet) SignTransaction(tx *solana.Transaction) error {
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(w.PublicKey) {
			return &w.PrivateKey
		}
		return nil
	})
	return err
}

// ATA returns the wallet's associated token account for mint under the given
// token program, derived once and cached.
func (w *Wallet) ATA(mint, tokenProgram solana.PublicKey) (solana.PublicKey, error) {
	cacheKey := mint.String() + ":" + tokenProgram.String()

	w.mu.RLock()
	ata, ok := w.ataCache[cacheKey]
	w.mu.RUnlock()
	if ok {
		return ata, nil
	}

	ata, err := deriveATA(w.PublicKey, mint, tokenProgram)
	if err != nil {
		return solana.PublicKey{}, err
	}

	w.mu.Lock()
	w.ataCache[cacheKey] = ata
	w.mu.Unlock()

	return ata, nil
}

// CreateATAIdempotentInstruction builds the associated-token-program
// instruction that creates the wallet's ATA if it does not exist yet.
// The wallet itself pays for the account.
func (w *Wallet) CreateATAIdempotentInstruction(mint, tokenProgram solana.PublicKey) (solana.Instruction, error) {
	ata, err := w.ATA(mint, tokenProgram)
	if err != nil {
		return nil, err
	}

	return solana.NewInstruction(
		solana.SPLAssociatedTokenAccountProgramID,
		[]*solana.AccountMeta{
			solana.Meta(w.PublicKey).WRITE().SIGNER(),
			solana.Meta(ata).WRITE(),
			solana.Meta(w.PublicKey),
			solana.Meta(mint),
			solana.Meta(solana.SystemProgramID),
			solana.Meta(tokenProgram),
		},
		[]byte{1}, // create_idempotent
	), nil
}

func (w *Wallet) String() string {
	return w.PublicKey.String()
}

// deriveATA computes the associated token address for an arbitrary token
// program; the helper in solana-go is hardwired to the canonical one.
func deriveATA(owner, mint, tokenProgram solana.PublicKey) (solana.PublicKey, error) {
	ata, _, err := solana.FindProgramAddress(
		[][]byte{
			owner.Bytes(),
			tokenProgram.Bytes(),
			mint.Bytes(),
		},
		solana.SPLAssociatedTokenAccountProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive ata for mint %s: %w", mint, err)
	}
	return ata, nil
}
