// internal/builder/system.go
package builder

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/rand/v2"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
)

var ComputeBudgetProgramID = solana.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")

// Compute budget instruction tags.
const (
	setComputeUnitLimit uint8 = 2
	setComputeUnitPrice uint8 = 3
)

const (
	// ComputeUnitLimit caps the execution budget of one copy transaction:
	// ATA create + swap + tip fit comfortably below it.
	ComputeUnitLimit uint32 = 140_000

	// TipFeeLamports is the flat landing tip, 0.0001 SOL.
	TipFeeLamports uint64 = 100_000
)

// jitoDontFrontAddress marks the transaction as not-to-be-frontrun for the
// landing service. Raw bytes: the address is not on the base58 curve of any
// generated keypair.
var jitoDontFrontAddress = solana.PublicKeyFromBytes([]byte{
	10, 241, 195, 67, 33, 136, 202, 58, 99, 81, 53, 161, 58, 24, 149, 26,
	206, 189, 41, 230, 172, 45, 174, 103, 255, 219, 6, 215, 64, 0, 0, 0,
})

// tipReceivers are the landing service's tip accounts; one is picked at
// random per transaction.
var tipReceivers = []solana.PublicKey{
	solana.MustPublicKeyFromBase58("Eb2KpSC8uMt9GmzyAEm5Eb1AAAgTjRaXWFjKyFXHZxF3"),
	solana.MustPublicKeyFromBase58("FCjUJZ1qozm1e8romw216qyfQMaaWKxWsuySnumVCCNe"),
	solana.MustPublicKeyFromBase58("ENxTEjSQ1YabmUpXAdCgevnHQ9MHdLv8tzFiuiYJqa13"),
	solana.MustPublicKeyFromBase58("6rYLG55Q9RpsPGvqdPNJs4z5WTxJVatMB8zV3WJhs5EK"),
	solana.MustPublicKeyFromBase58("Cix2bHfqPcKcM233mzxbLk14kSggUUiz2A87fJtGivXr"),
}

// buildComputeUnitLimit builds the limit instruction with the no-front
// marker account attached; the compute budget program ignores accounts, so
// the marker rides along for free.
func buildComputeUnitLimit(units uint32) (solana.Instruction, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, setComputeUnitLimit); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, units); err != nil {
		return nil, err
	}

	return solana.NewInstruction(
		ComputeBudgetProgramID,
		[]*solana.AccountMeta{solana.Meta(jitoDontFrontAddress)},
		buf.Bytes(),
	), nil
}

func buildComputeUnitPrice(microLamports uint64) (solana.Instruction, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, setComputeUnitPrice); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, microLamports); err != nil {
		return nil, err
	}

	return solana.NewInstruction(
		ComputeBudgetProgramID,
		[]*solana.AccountMeta{},
		buf.Bytes(),
	), nil
}

// buildTip transfers the flat tip to a randomly chosen receiver.
func buildTip(from solana.PublicKey) (solana.Instruction, error) {
	receiver := tipReceivers[rand.IntN(len(tipReceivers))]

	ix, err := system.NewTransferInstruction(TipFeeLamports, from, receiver).ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("build tip transfer: %w", err)
	}

	return ix, nil
}
