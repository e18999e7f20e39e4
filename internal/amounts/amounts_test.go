package amounts

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solmirror/copybot/internal/storage/models"
)

func TestToLamports(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		decimals uint32
		want     uint64
		wantErr  bool
	}{
		{"whole tokens", "1.5", 6, 1_500_000, false},
		{"nine decimals", "0.1", 9, 100_000_000, false},
		{"truncates below precision", "0.0000015", 6, 1, false},
		{"zero", "0", 9, 0, false},
		{"negative overflows", "-1", 6, 0, true},
		{"too large", "20000000000000", 9, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToLamports(decimal.RequireFromString(tt.amount), tt.decimals)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToDecimal(t *testing.T) {
	assert.True(t, ToDecimal(100_000_000, 9).Equal(decimal.RequireFromString("0.1")))
	assert.True(t, ToDecimal(1_500_000, 6).Equal(decimal.RequireFromString("1.5")))

	// Zero units map to exactly zero whatever the precision.
	assert.True(t, ToDecimal(0, 0).Equal(decimal.Zero))
	assert.True(t, ToDecimal(0, 18).Equal(decimal.Zero))
}

func TestRoundTrip(t *testing.T) {
	// Values representable exactly at the given precision survive the trip.
	for _, s := range []string{"1.500000", "0.000001", "123456.654321"} {
		d := decimal.RequireFromString(s)

		lamports, err := ToLamports(d, 6)
		require.NoError(t, err)
		assert.True(t, ToDecimal(lamports, 6).Equal(d), "round trip mismatch for %s", s)
	}
}

func TestPrice(t *testing.T) {
	price, err := Price(decimal.NewFromInt(1000), decimal.NewFromInt(2))
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("0.002")))

	_, err = Price(decimal.Zero, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrZeroTokens)
}

type stubPositions struct {
	target *models.Position
	copied *models.Position
}

func (s *stubPositions) Get(_, _ solana.PublicKey, isCopy bool) (*models.Position, bool) {
	if isCopy {
		return s.copied, s.copied != nil
	}
	return s.target, s.target != nil
}

func TestTokenFromSol(t *testing.T) {
	calc := NewCalculator(&stubPositions{},
		decimal.RequireFromString("0.1"), // order: 0.1 SOL
		decimal.NewFromInt(10),           // slippage: 10%
	)

	base, quote, err := calc.TokenFromSol(decimal.RequireFromString("0.00002"), 6)
	require.NoError(t, err)

	// 0.1 / 0.00002 = 5000 tokens at 6 decimals.
	assert.Equal(t, uint64(5_000_000_000), base)
	// 0.1 * 1.1 = 0.11 SOL at 9 decimals.
	assert.Equal(t, uint64(110_000_000), quote)
}

func TestTokenFromSolZeroPrice(t *testing.T) {
	calc := NewCalculator(&stubPositions{}, decimal.NewFromInt(1), decimal.NewFromInt(5))

	_, _, err := calc.TokenFromSol(decimal.Zero, 6)
	assert.Error(t, err)
}

func TestSolFromTokenProportional(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	tracked := solana.NewWallet().PublicKey()

	positions := &stubPositions{
		target: &models.Position{AmountLeft: decimal.NewFromInt(1_000_000)},
		copied: &models.Position{AmountLeft: decimal.NewFromInt(400_000)},
	}
	calc := NewCalculator(positions, decimal.NewFromInt(1), decimal.NewFromInt(5))

	// Tracked wallet sells half; the copy sells half of its own holding.
	base, quote, err := calc.SolFromToken(mint, tracked, decimal.NewFromInt(500_000), 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(200_000), base)
	assert.Equal(t, uint64(0), quote)
}

func TestSolFromTokenCappedAtFullPosition(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	tracked := solana.NewWallet().PublicKey()

	positions := &stubPositions{
		target: &models.Position{AmountLeft: decimal.NewFromInt(100)},
		copied: &models.Position{AmountLeft: decimal.NewFromInt(400_000)},
	}
	calc := NewCalculator(positions, decimal.NewFromInt(1), decimal.NewFromInt(5))

	// Tracked sell amount exceeds the target's remaining balance: the
	// proportion is capped at 1 so the copy never oversells.
	base, _, err := calc.SolFromToken(mint, tracked, decimal.NewFromInt(1_000_000), 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(400_000), base)
}

func TestSolFromTokenMissingPositions(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	tracked := solana.NewWallet().PublicKey()
	calc := NewCalculator(&stubPositions{}, decimal.NewFromInt(1), decimal.NewFromInt(5))

	_, _, err := calc.SolFromToken(mint, tracked, decimal.NewFromInt(1), 6)
	assert.ErrorContains(t, err, "target position not found")

	calc = NewCalculator(&stubPositions{
		target: &models.Position{AmountLeft: decimal.NewFromInt(10)},
	}, decimal.NewFromInt(1), decimal.NewFromInt(5))

	_, _, err = calc.SolFromToken(mint, tracked, decimal.NewFromInt(1), 6)
	assert.ErrorContains(t, err, "copy position not found")
}
