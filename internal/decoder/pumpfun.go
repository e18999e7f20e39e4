// internal/decoder/pumpfun.go
package decoder

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/solmirror/copybot/internal/amounts"
	"github.com/solmirror/copybot/internal/stream"
	"github.com/solmirror/copybot/internal/types"
)

// PumpFunProgramID is the on-chain bonding-curve program this venue trades on.
var PumpFunProgramID = solana.MustPublicKeyFromBase58("6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P")

// Instruction discriminators of the pump.fun program.
var (
	PumpFunCreateDiscriminator = []byte{24, 30, 200, 40, 5, 28, 7, 119}
	PumpFunBuyDiscriminator    = []byte{102, 6, 61, 18, 1, 218, 235, 234}
	PumpFunSellDiscriminator   = []byte{51, 230, 133, 164, 1, 127, 131, 173}

	// tradeEventDiscriminator identifies the event payload emitted by the
	// program alongside the swap, 8 bytes into inner-instruction data.
	tradeEventDiscriminator = []byte{189, 219, 127, 211, 78, 230, 97, 238}
)

// Fixed offsets of the little-endian u64 fields inside the trade event.
// The payload layout is a wire-format contract:
// 32+8+8+1+32+8+8+8+8+8+32+8+8+32+8+8 = 217 bytes minimum.
const (
	tradeEventMinLen           = 217
	tradeEventSolOffset        = 32
	tradeEventTokenOffset      = 40
	tradeEventFeeOffset        = 161
	tradeEventCreatorFeeOffset = 209
)

// Well-known account slots of the pump.fun buy/sell instruction.
const (
	pumpFunMintSlot            = 2
	pumpFunWalletSlot          = 6
	pumpFunBuyTokenProgramSlot = 8
)

// PumpFunDecoder filters and parses pump.fun trades. The wallet filter set
// always contains the bot's own wallet; with only that implicit entry the
// filter is considered disabled and every trade passes.
type PumpFunDecoder struct {
	filterWallets map[solana.PublicKey]struct{}
}

func NewPumpFunDecoder(followWallets []solana.PublicKey, ownWallet solana.PublicKey) *PumpFunDecoder {
	filter := make(map[solana.PublicKey]struct{}, len(followWallets)+1)
	for _, wallet := range followWallets {
		filter[wallet] = struct{}{}
	}
	filter[ownWallet] = struct{}{}

	return &PumpFunDecoder{filterWallets: filter}
}

// FilterInstructions scans top-level and inner instructions for exactly one
// pump.fun trade instruction, capturing the trade-event payload on the way.
// Two candidates make the transaction ambiguous and it is rejected whole.
func (d *PumpFunDecoder) FilterInstructions(tx *stream.TransactionUpdate, accountKeys []solana.PublicKey) *FilteredInstruction {
	var (
		count           int
		matchedAccounts []byte
		matchedData     []byte
		capturedEvent   []byte
	)

	check := func(programIdx uint32, accounts, data []byte) {
		if int(programIdx) >= len(accountKeys) {
			return
		}
		if !accountKeys[programIdx].Equals(PumpFunProgramID) {
			return
		}

		if checkPumpFunDiscriminator(data) {
			matchedAccounts = accounts
			matchedData = data
			count++
		}

		if len(data) >= 16 && bytes.Equal(data[8:16], tradeEventDiscriminator) {
			capturedEvent = data[16:]
		}
	}

	for _, ix := range tx.Message.Instructions {
		check(ix.ProgramIDIndex, ix.Accounts, ix.Data)
		if count > 1 {
			return nil
		}
	}

	for _, inner := range tx.Meta.InnerInstructions {
		for _, ix := range inner.Instructions {
			check(ix.ProgramIDIndex, ix.Accounts, ix.Data)
			if count > 1 {
				return nil
			}
		}
	}

	// Pool/asset creation is never a trade.
	if count == 0 || bytes.HasPrefix(matchedData, PumpFunCreateDiscriminator) {
		return nil
	}

	instruction := &FilteredInstruction{Accounts: matchedAccounts, Event: capturedEvent}

	if len(d.filterWallets) == 1 {
		return instruction
	}

	for _, idx := range matchedAccounts {
		if int(idx) >= len(accountKeys) {
			continue
		}
		if _, ok := d.filterWallets[accountKeys[idx]]; ok {
			return instruction
		}
	}

	return nil
}

// ParseInstruction resolves accounts and decodes the trade event. Failed
// transactions carry no meaningful event payload, so all amounts stay zero.
func (d *PumpFunDecoder) ParseInstruction(
	status types.TradeStatus,
	instruction *FilteredInstruction,
	accountKeys []solana.PublicKey,
	preBalances, postBalances []stream.TokenBalance,
) (*ParsedInstruction, error) {
	accounts := make([]solana.PublicKey, 0, len(instruction.Accounts))
	for _, idx := range instruction.Accounts {
		if int(idx) >= len(accountKeys) {
			return nil, fmt.Errorf("account index %d out of range (%d keys)", idx, len(accountKeys))
		}
		accounts = append(accounts, accountKeys[idx])
	}

	if len(accounts) <= pumpFunBuyTokenProgramSlot {
		return nil, fmt.Errorf("swap instruction has %d accounts, want at least %d",
			len(accounts), pumpFunBuyTokenProgramSlot+1)
	}

	mint := accounts[pumpFunMintSlot]

	decimals, err := tokenDecimals(mint.String(), preBalances, postBalances)
	if err != nil {
		return nil, err
	}

	// On a buy the canonical token program sits in slot 8; sells place the
	// associated-token program there instead.
	action := types.ActionSell
	if accounts[pumpFunBuyTokenProgramSlot].Equals(solana.TokenProgramID) {
		action = types.ActionBuy
	}

	solAmount := decimal.Zero
	tokenAmount := decimal.Zero
	tradeFee := decimal.Zero
	price := decimal.Zero

	if status == types.StatusSuccess {
		solAmount, tokenAmount, tradeFee, err = parseTradeEvent(instruction.Event, decimals)
		if err != nil {
			return nil, err
		}

		price, err = amounts.Price(tokenAmount, solAmount)
		if err != nil {
			return nil, err
		}
	}

	return &ParsedInstruction{
		ProgramID:     PumpFunProgramID,
		Wallet:        accounts[pumpFunWalletSlot],
		Mint:          mint,
		Action:        action,
		TokenAmount:   tokenAmount,
		TokenDecimals: decimals,
		SolAmount:     solAmount,
		Price:         price,
		TradeFee:      tradeFee,
		Accounts:      accounts,
	}, nil
}

func checkPumpFunDiscriminator(data []byte) bool {
	return bytes.HasPrefix(data, PumpFunCreateDiscriminator) ||
		bytes.HasPrefix(data, PumpFunBuyDiscriminator) ||
		bytes.HasPrefix(data, PumpFunSellDiscriminator)
}

// parseTradeEvent reads the fixed-offset fields of the trade event. The
// program-level fee and the creator fee combine into one trade-fee figure.
func parseTradeEvent(event []byte, tokenDecimals uint32) (sol, token, fee decimal.Decimal, err error) {
	if len(event) < tradeEventMinLen {
		return decimal.Zero, decimal.Zero, decimal.Zero,
			fmt.Errorf("trade event not found: payload has %d bytes, want %d", len(event), tradeEventMinLen)
	}

	solLamports := binary.LittleEndian.Uint64(event[tradeEventSolOffset:])
	tokenLamports := binary.LittleEndian.Uint64(event[tradeEventTokenOffset:])
	feeLamports := binary.LittleEndian.Uint64(event[tradeEventFeeOffset:])
	creatorFeeLamports := binary.LittleEndian.Uint64(event[tradeEventCreatorFeeOffset:])

	return amounts.ToDecimal(solLamports, amounts.WSOLDecimals),
		amounts.ToDecimal(tokenLamports, tokenDecimals),
		amounts.ToDecimal(feeLamports+creatorFeeLamports, amounts.WSOLDecimals),
		nil
}
