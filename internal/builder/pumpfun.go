// internal/builder/pumpfun.go
package builder

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/shopspring/decimal"

	"github.com/solmirror/copybot/internal/amounts"
	"github.com/solmirror/copybot/internal/cache"
	"github.com/solmirror/copybot/internal/decoder"
	"github.com/solmirror/copybot/internal/types"
	"github.com/solmirror/copybot/internal/wallet"
)

// Account-slot sources for the swap template. Most slots mirror the target
// instruction verbatim; a few are replaced with our own accounts.
type slotSource int

const (
	fromTarget slotSource = iota
	ownATA
	ownWallet
	volumeAccumulator
)

type accountSlot struct {
	source   slotSource
	writable bool
	signer   bool
}

// Swap account templates. Slot meaning follows the on-chain program's
// account order; the wallet slot is the sole signer.
var (
	pumpFunBuySlots = []accountSlot{
		{},                               // 0 global
		{writable: true},                 // 1 fee recipient
		{},                               // 2 mint
		{writable: true},                 // 3 bonding curve
		{writable: true},                 // 4 associated bonding curve
		{source: ownATA, writable: true}, // 5 user token account
		{source: ownWallet, writable: true, signer: true}, // 6 user
		{},                // 7 system program
		{},                // 8 token program
		{writable: true},  // 9 creator vault
		{},                // 10 event authority
		{},                // 11 program
		{writable: true},  // 12 global volume accumulator
		{source: volumeAccumulator, writable: true}, // 13 user volume accumulator
		{}, // 14 fee config
		{}, // 15 fee program
	}

	pumpFunSellSlots = []accountSlot{
		{},                               // 0 global
		{writable: true},                 // 1 fee recipient
		{},                               // 2 mint
		{writable: true},                 // 3 bonding curve
		{writable: true},                 // 4 associated bonding curve
		{source: ownATA, writable: true}, // 5 user token account
		{source: ownWallet, writable: true, signer: true}, // 6 user
		{},               // 7 system program
		{writable: true}, // 8 creator vault
		{},               // 9 token program
		{},               // 10 event authority
		{},               // 11 program
		{},               // 12 fee config
		{},               // 13 fee program
	}
)

// Token program slots differ between directions.
const (
	buyTokenProgramSlot  = 8
	sellTokenProgramSlot = 9
)

// PumpFunSwapBuilder mirrors a decoded pump.fun trade with our own wallet.
type PumpFunSwapBuilder struct {
	wallet       *wallet.Wallet
	positions    *cache.PositionCache
	calc         *amounts.Calculator
	closePercent decimal.Decimal
}

func NewPumpFunSwapBuilder(
	w *wallet.Wallet,
	positions *cache.PositionCache,
	calc *amounts.Calculator,
	closePercent decimal.Decimal,
) *PumpFunSwapBuilder {
	return &PumpFunSwapBuilder{
		wallet:       w,
		positions:    positions,
		calc:         calc,
		closePercent: closePercent,
	}
}

// BuildSwap dispatches on the decoded trade direction.
func (b *PumpFunSwapBuilder) BuildSwap(parsed *decoder.ParsedInstruction) ([]solana.Instruction, error) {
	switch parsed.Action {
	case types.ActionBuy:
		return b.buildBuy(parsed)
	case types.ActionSell:
		return b.buildSell(parsed)
	default:
		return nil, fmt.Errorf("unknown trade action %q", parsed.Action)
	}
}

// buildBuy creates our token account if needed and emits the swap sized from
// the configured order amount at the target's price.
func (b *PumpFunSwapBuilder) buildBuy(parsed *decoder.ParsedInstruction) ([]solana.Instruction, error) {
	if len(parsed.Accounts) < len(pumpFunBuySlots) {
		return nil, fmt.Errorf("buy instruction has %d accounts, want %d",
			len(parsed.Accounts), len(pumpFunBuySlots))
	}

	tokenProgram := parsed.Accounts[buyTokenProgramSlot]

	baseAmount, quoteAmount, err := b.calc.TokenFromSol(parsed.Price, parsed.TokenDecimals)
	if err != nil {
		return nil, err
	}

	createATA, err := b.wallet.CreateATAIdempotentInstruction(parsed.Mint, tokenProgram)
	if err != nil {
		return nil, err
	}

	swap, err := b.swapInstruction(parsed, pumpFunBuySlots, decoder.PumpFunBuyDiscriminator,
		tokenProgram, baseAmount, quoteAmount)
	if err != nil {
		return nil, err
	}

	return []solana.Instruction{createATA, swap}, nil
}

// buildSell mirrors the target's sell proportionally; when the position is
// about to close, any rounding remainder is burned and the token account
// closed to reclaim rent.
func (b *PumpFunSwapBuilder) buildSell(parsed *decoder.ParsedInstruction) ([]solana.Instruction, error) {
	if len(parsed.Accounts) < len(pumpFunSellSlots) {
		return nil, fmt.Errorf("sell instruction has %d accounts, want %d",
			len(parsed.Accounts), len(pumpFunSellSlots))
	}

	tokenProgram := parsed.Accounts[sellTokenProgramSlot]

	baseAmount, quoteAmount, err := b.calc.SolFromToken(
		parsed.Mint, parsed.Wallet, parsed.TokenAmount, parsed.TokenDecimals)
	if err != nil {
		return nil, err
	}

	swap, err := b.swapInstruction(parsed, pumpFunSellSlots, decoder.PumpFunSellDiscriminator,
		tokenProgram, baseAmount, quoteAmount)
	if err != nil {
		return nil, err
	}

	instructions := []solana.Instruction{swap}

	copyPosition, ok := b.positions.Get(parsed.Mint, parsed.Wallet, true)
	if !ok {
		return nil, fmt.Errorf("copy position not found for close check: mint=%s wallet=%s",
			parsed.Mint, parsed.Wallet)
	}

	amountLeft := copyPosition.AmountLeft.Sub(amounts.ToDecimal(baseAmount, parsed.TokenDecimals))

	if types.PredictPositionStatus(amountLeft, copyPosition.AmountTotal, b.closePercent) == types.PositionClosed {
		ata, err := b.wallet.ATA(parsed.Mint, tokenProgram)
		if err != nil {
			return nil, err
		}

		if amountLeft.IsPositive() {
			remainder, err := amounts.ToLamports(amountLeft, parsed.TokenDecimals)
			if err != nil {
				return nil, err
			}
			instructions = append(instructions, b.burnInstruction(tokenProgram, ata, parsed.Mint, remainder))
		}

		instructions = append(instructions, b.closeAccountInstruction(tokenProgram, ata))
	}

	return instructions, nil
}

// swapInstruction fills the direction's slot template from the target's
// account list, substituting our own accounts where the template says so.
func (b *PumpFunSwapBuilder) swapInstruction(
	parsed *decoder.ParsedInstruction,
	slots []accountSlot,
	discriminator []byte,
	tokenProgram solana.PublicKey,
	baseAmount, quoteAmount uint64,
) (solana.Instruction, error) {
	metas := make([]*solana.AccountMeta, 0, len(slots))

	for i, slot := range slots {
		var pubkey solana.PublicKey

		switch slot.source {
		case fromTarget:
			pubkey = parsed.Accounts[i]
		case ownATA:
			ata, err := b.wallet.ATA(parsed.Mint, tokenProgram)
			if err != nil {
				return nil, err
			}
			pubkey = ata
		case ownWallet:
			pubkey = b.wallet.PublicKey
		case volumeAccumulator:
			pda, err := b.userVolumeAccumulator()
			if err != nil {
				return nil, err
			}
			pubkey = pda
		}

		metas = append(metas, &solana.AccountMeta{
			PublicKey:  pubkey,
			IsWritable: slot.writable,
			IsSigner:   slot.signer,
		})
	}

	data := make([]byte, 0, len(discriminator)+16)
	data = append(data, discriminator...)
	data = binary.LittleEndian.AppendUint64(data, baseAmount)
	data = binary.LittleEndian.AppendUint64(data, quoteAmount)

	return solana.NewInstruction(decoder.PumpFunProgramID, metas, data), nil
}

// userVolumeAccumulator derives our wallet's volume-tracking PDA.
func (b *PumpFunSwapBuilder) userVolumeAccumulator() (solana.PublicKey, error) {
	pda, _, err := solana.FindProgramAddress(
		[][]byte{
			[]byte("user_volume_accumulator"),
			b.wallet.PublicKey.Bytes(),
		},
		decoder.PumpFunProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive user volume accumulator: %w", err)
	}
	return pda, nil
}

// burnInstruction and closeAccountInstruction are built by hand so the
// observed token program carries through; the library builders hardwire the
// canonical one.
func (b *PumpFunSwapBuilder) burnInstruction(tokenProgram, ata, mint solana.PublicKey, amount uint64) solana.Instruction {
	data := make([]byte, 0, 9)
	data = append(data, byte(token.Instruction_Burn))
	data = binary.LittleEndian.AppendUint64(data, amount)

	return solana.NewInstruction(
		tokenProgram,
		[]*solana.AccountMeta{
			solana.Meta(ata).WRITE(),
			solana.Meta(mint).WRITE(),
			solana.Meta(b.wallet.PublicKey).SIGNER(),
		},
		data,
	)
}

func (b *PumpFunSwapBuilder) closeAccountInstruction(tokenProgram, ata solana.PublicKey) solana.Instruction {
	return solana.NewInstruction(
		tokenProgram,
		[]*solana.AccountMeta{
			solana.Meta(ata).WRITE(),
			solana.Meta(b.wallet.PublicKey).WRITE(),
			solana.Meta(b.wallet.PublicKey).SIGNER(),
		},
		[]byte{byte(token.Instruction_CloseAccount)},
	)
}
