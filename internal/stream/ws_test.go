// internal/stream/ws_test.go
package stream

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testProgram = solana.SysVarRentPubkey
	testWallet  = solana.SysVarClockPubkey
	testOther   = solana.SysVarStakeHistoryPubkey
)

func boolPtr(v bool) *bool { return &v }

func testUpdate(keys []solana.PublicKey, failed bool) *TransactionUpdate {
	update := &TransactionUpdate{
		Message: &Message{AccountKeys: rawKeys(keys)},
		Meta:    &Meta{},
	}
	if failed {
		update.Meta.Err = []byte("InstructionError")
	}
	return update
}

func TestMatchesAccountFilters(t *testing.T) {
	filter := TransactionFilter{
		Vote:            boolPtr(false),
		Failed:          boolPtr(false),
		AccountInclude:  []string{testWallet.String()},
		AccountRequired: []string{testProgram.String()},
	}

	assert.True(t, matches(filter, testUpdate([]solana.PublicKey{testWallet, testProgram}, false)))
	assert.False(t, matches(filter, testUpdate([]solana.PublicKey{testWallet, testProgram}, true)), "failed filter")
	assert.False(t, matches(filter, testUpdate([]solana.PublicKey{testWallet, testOther}, false)), "required missing")
	assert.False(t, matches(filter, testUpdate([]solana.PublicKey{testOther, testProgram}, false)), "include missing")
}

func TestMatchesSeesLoadedAddresses(t *testing.T) {
	filter := TransactionFilter{AccountRequired: []string{testProgram.String()}}

	update := testUpdate([]solana.PublicKey{testWallet}, false)
	update.Meta.LoadedReadonlyAddresses = rawKeys([]solana.PublicKey{testProgram})

	assert.True(t, matches(filter, update))
}

func TestMatchesExcludesVotes(t *testing.T) {
	filter := TransactionFilter{Vote: boolPtr(false)}

	assert.False(t, matches(filter, testUpdate([]solana.PublicKey{testWallet, voteProgramID}, false)))
	assert.True(t, matches(filter, testUpdate([]solana.PublicKey{testWallet}, false)))
}

func TestMatchesAnyAcceptsSingleFilter(t *testing.T) {
	filters := map[string]TransactionFilter{
		"failed":  {Failed: boolPtr(true), AccountRequired: []string{testWallet.String()}},
		"success": {Failed: boolPtr(false), AccountRequired: []string{testWallet.String()}},
	}

	assert.True(t, matchesAny(filters, testUpdate([]solana.PublicKey{testWallet}, true)))
	assert.True(t, matchesAny(filters, testUpdate([]solana.PublicKey{testWallet}, false)))
	assert.False(t, matchesAny(filters, testUpdate([]solana.PublicKey{testOther}, false)))
}

func TestMentionAccountPrefersRequired(t *testing.T) {
	req := Request{
		Transactions: map[string]TransactionFilter{
			"filter": {
				AccountInclude:  []string{testWallet.String()},
				AccountRequired: []string{testProgram.String()},
			},
		},
	}

	mention := mentionAccount(req)
	require.NotNil(t, mention)
	assert.Equal(t, testProgram, *mention)

	assert.Nil(t, mentionAccount(Request{BlocksMeta: true}))
}

func TestTokenBalancesSkipsMissingAmounts(t *testing.T) {
	owner := testWallet
	balances := []rpc.TokenBalance{
		{AccountIndex: 1, Mint: testProgram}, // no amount reported
		{
			AccountIndex:  2,
			Mint:          testProgram,
			Owner:         &owner,
			UiTokenAmount: &rpc.UiTokenAmount{Decimals: 6},
		},
	}

	converted := tokenBalances(balances)

	require.Len(t, converted, 1)
	assert.Equal(t, uint32(2), converted[0].AccountIndex)
	assert.Equal(t, uint32(6), converted[0].Decimals)
	assert.Equal(t, owner.String(), converted[0].Owner)
}

func TestCommitmentMapping(t *testing.T) {
	assert.Equal(t, rpc.CommitmentProcessed, commitmentOf(CommitmentProcessed))
	assert.Equal(t, rpc.CommitmentConfirmed, commitmentOf(CommitmentConfirmed))
	assert.Equal(t, rpc.CommitmentFinalized, commitmentOf(CommitmentFinalized))
}
