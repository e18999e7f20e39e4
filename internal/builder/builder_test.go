// internal/builder/builder_test.go
package builder

import (
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/solmirror/copybot/internal/amounts"
	"github.com/solmirror/copybot/internal/cache"
	"github.com/solmirror/copybot/internal/decoder"
	"github.com/solmirror/copybot/internal/storage/models"
	"github.com/solmirror/copybot/internal/types"
	"github.com/solmirror/copybot/internal/wallet"
)

var (
	testMint         = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	testTargetWallet = solana.MustPublicKeyFromBase58("Vote111111111111111111111111111111111111111")
	testFiller       = solana.MustPublicKeyFromBase58("SysvarRent111111111111111111111111111111111")
)

func newTestWallet(t *testing.T) *wallet.Wallet {
	t.Helper()

	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	w, err := wallet.New(key.String())
	require.NoError(t, err)
	return w
}

// targetAccounts builds a 16-entry account list shaped like a decoded buy;
// sells read a prefix of the same layout.
func targetAccounts(tokenProgramSlot int) []solana.PublicKey {
	accounts := make([]solana.PublicKey, 16)
	for i := range accounts {
		accounts[i] = testFiller
	}
	accounts[2] = testMint
	accounts[6] = testTargetWallet
	accounts[7] = solana.SystemProgramID
	accounts[tokenProgramSlot] = solana.TokenProgramID
	return accounts
}

func buyInstruction() *decoder.ParsedInstruction {
	return &decoder.ParsedInstruction{
		ProgramID:     decoder.PumpFunProgramID,
		Wallet:        testTargetWallet,
		Mint:          testMint,
		Action:        types.ActionBuy,
		TokenDecimals: 6,
		Price:         decimal.RequireFromString("0.00002"),
		Accounts:      targetAccounts(8),
	}
}

func sellInstruction(tokenAmount string) *decoder.ParsedInstruction {
	return &decoder.ParsedInstruction{
		ProgramID:     decoder.PumpFunProgramID,
		Wallet:        testTargetWallet,
		Mint:          testMint,
		Action:        types.ActionSell,
		TokenAmount:   decimal.RequireFromString(tokenAmount),
		TokenDecimals: 6,
		Accounts:      targetAccounts(9),
	}
}

func seedPositions(positions *cache.PositionCache, targetLeft, copyLeft, copyTotal string) {
	positions.Set(testMint, testTargetWallet, &models.Position{
		Wallet:      testTargetWallet.String(),
		Mint:        testMint.String(),
		AmountTotal: decimal.RequireFromString(targetLeft),
		AmountLeft:  decimal.RequireFromString(targetLeft),
		Status:      types.PositionOpened,
	}, false)
	positions.Set(testMint, testTargetWallet, &models.Position{
		Wallet:      testTargetWallet.String(),
		Mint:        testMint.String(),
		AmountTotal: decimal.RequireFromString(copyTotal),
		AmountLeft:  decimal.RequireFromString(copyLeft),
		Status:      types.PositionOpened,
	}, true)
}

func newSwapBuilder(t *testing.T, w *wallet.Wallet) (*PumpFunSwapBuilder, *cache.PositionCache) {
	t.Helper()

	positions := cache.NewPositionCache(w.PublicKey)
	calc := amounts.NewCalculator(positions,
		decimal.RequireFromString("0.1"), decimal.RequireFromString("10"))

	return NewPumpFunSwapBuilder(w, positions, calc, decimal.NewFromInt(1)), positions
}

func TestBuildBuyInstructions(t *testing.T) {
	w := newTestWallet(t)
	b, _ := newSwapBuilder(t, w)

	instructions, err := b.BuildSwap(buyInstruction())
	require.NoError(t, err)
	require.Len(t, instructions, 2)

	assert.Equal(t, solana.SPLAssociatedTokenAccountProgramID, instructions[0].ProgramID())

	swap := instructions[1]
	assert.Equal(t, decoder.PumpFunProgramID, swap.ProgramID())

	metas := swap.Accounts()
	require.Len(t, metas, 16)

	ata, err := w.ATA(testMint, solana.TokenProgramID)
	require.NoError(t, err)
	assert.Equal(t, ata, metas[5].PublicKey)
	assert.Equal(t, w.PublicKey, metas[6].PublicKey)

	pda, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("user_volume_accumulator"), w.PublicKey.Bytes()},
		decoder.PumpFunProgramID,
	)
	require.NoError(t, err)
	assert.Equal(t, pda, metas[13].PublicKey)

	writable := map[int]bool{1: true, 3: true, 4: true, 5: true, 6: true, 9: true, 12: true, 13: true}
	for i, meta := range metas {
		assert.Equal(t, writable[i], meta.IsWritable, "slot %d writable", i)
		assert.Equal(t, i == 6, meta.IsSigner, "slot %d signer", i)
	}

	data, err := swap.Data()
	require.NoError(t, err)
	require.Len(t, data, 24)
	assert.Equal(t, decoder.PumpFunBuyDiscriminator, data[:8])
	// 0.1 SOL at price 0.00002 is 5000 tokens; slippage cap 0.11 SOL.
	assert.Equal(t, uint64(5_000_000_000), binary.LittleEndian.Uint64(data[8:16]))
	assert.Equal(t, uint64(110_000_000), binary.LittleEndian.Uint64(data[16:24]))
}

func TestBuildSellKeepsPositionOpen(t *testing.T) {
	w := newTestWallet(t)
	b, positions := newSwapBuilder(t, w)
	seedPositions(positions, "1000000", "400000", "400000")

	// Target sells half, copy mirrors half: 200000 left of 400000.
	instructions, err := b.BuildSwap(sellInstruction("500000"))
	require.NoError(t, err)
	require.Len(t, instructions, 1)

	metas := instructions[0].Accounts()
	require.Len(t, metas, 14)

	writable := map[int]bool{1: true, 3: true, 4: true, 5: true, 6: true, 8: true}
	for i, meta := range metas {
		assert.Equal(t, writable[i], meta.IsWritable, "slot %d writable", i)
		assert.Equal(t, i == 6, meta.IsSigner, "slot %d signer", i)
	}

	data, err := instructions[0].Data()
	require.NoError(t, err)
	assert.Equal(t, decoder.PumpFunSellDiscriminator, data[:8])
	assert.Equal(t, uint64(200_000_000_000), binary.LittleEndian.Uint64(data[8:16]))
	assert.Equal(t, uint64(0), binary.LittleEndian.Uint64(data[16:24]))
}

func TestBuildSellFullExitClosesAccount(t *testing.T) {
	w := newTestWallet(t)
	b, positions := newSwapBuilder(t, w)
	seedPositions(positions, "1000000", "400000", "400000")

	// Target exits fully: swap, no remainder to burn, close the account.
	instructions, err := b.BuildSwap(sellInstruction("1000000"))
	require.NoError(t, err)
	require.Len(t, instructions, 2)

	closeIx := instructions[1]
	assert.Equal(t, solana.TokenProgramID, closeIx.ProgramID())

	data, err := closeIx.Data()
	require.NoError(t, err)
	assert.Equal(t, []byte{9}, data)
}

func TestBuildSellDustRemainderBurns(t *testing.T) {
	w := newTestWallet(t)
	b, positions := newSwapBuilder(t, w)
	// Selling 99.7% leaves 0.3% dust, under the 1% close threshold.
	seedPositions(positions, "1000000", "1000000", "1000000")

	instructions, err := b.BuildSwap(sellInstruction("997000"))
	require.NoError(t, err)
	require.Len(t, instructions, 3)

	burnIx := instructions[1]
	burnData, err := burnIx.Data()
	require.NoError(t, err)
	require.Len(t, burnData, 9)
	assert.Equal(t, byte(8), burnData[0])
	assert.Equal(t, uint64(3_000_000_000), binary.LittleEndian.Uint64(burnData[1:]))

	closeData, err := instructions[2].Data()
	require.NoError(t, err)
	assert.Equal(t, []byte{9}, closeData)
}

func TestBuildSellMissingPositions(t *testing.T) {
	w := newTestWallet(t)
	b, _ := newSwapBuilder(t, w)

	_, err := b.BuildSwap(sellInstruction("500000"))
	assert.ErrorContains(t, err, "position not found")
}

func TestTransactionBuilderAssemblesAndSigns(t *testing.T) {
	w := newTestWallet(t)
	swapBuilder, _ := newSwapBuilder(t, w)

	blockhash := cache.NewBlockHashCache()
	require.NoError(t, blockhash.SetFromBase58(testFiller.String()))

	b := New(map[solana.PublicKey]SwapBuilder{
		decoder.PumpFunProgramID: swapBuilder,
	}, blockhash, w, zap.NewNop())

	tx, err := b.Build(&decoder.ParsedTransaction{
		Status:      types.StatusSuccess,
		Instruction: *buyInstruction(),
		PriorityFee: 42_000,
	})
	require.NoError(t, err)

	// limit, price, ata create, swap, tip.
	require.Len(t, tx.Message.Instructions, 5)
	require.Len(t, tx.Signatures, 1)
	assert.NoError(t, tx.VerifySignatures())

	programIDs := make([]solana.PublicKey, 0, len(tx.Message.Instructions))
	for _, ix := range tx.Message.Instructions {
		program, err := tx.Message.Program(ix.ProgramIDIndex)
		require.NoError(t, err)
		programIDs = append(programIDs, program)
	}

	assert.Equal(t, ComputeBudgetProgramID, programIDs[0])
	assert.Equal(t, ComputeBudgetProgramID, programIDs[1])
	assert.Equal(t, solana.SPLAssociatedTokenAccountProgramID, programIDs[2])
	assert.Equal(t, decoder.PumpFunProgramID, programIDs[3])
	assert.Equal(t, solana.SystemProgramID, programIDs[4])
}

func TestTransactionBuilderUnsupportedProgram(t *testing.T) {
	w := newTestWallet(t)

	b := New(map[solana.PublicKey]SwapBuilder{}, cache.NewBlockHashCache(), w, zap.NewNop())

	parsed := buyInstruction()
	parsed.ProgramID = solana.SystemProgramID

	_, err := b.Build(&decoder.ParsedTransaction{Instruction: *parsed})
	assert.ErrorContains(t, err, "unsupported program")
}
