// internal/stream/ws.go
package stream

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"go.uber.org/zap"
)

var voteProgramID = solana.MustPublicKeyFromBase58("Vote111111111111111111111111111111111111111")

// WSSubscriber implements Subscriber over the node's websocket block
// subscription. The node-side filter narrows blocks to one mentioned
// account; the finer per-transaction filters are applied client-side.
type WSSubscriber struct {
	endpoint string
	logger   *zap.Logger
}

func NewWSSubscriber(endpoint string, logger *zap.Logger) *WSSubscriber {
	return &WSSubscriber{
		endpoint: endpoint,
		logger:   logger.Named("stream"),
	}
}

func (s *WSSubscriber) Subscribe(ctx context.Context, req Request) (<-chan Update, error) {
	client, err := ws.Connect(ctx, s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("connect websocket: %w", err)
	}

	filter := ws.BlockSubscribeFilter(ws.NewBlockSubscribeFilterAll())
	if mention := mentionAccount(req); mention != nil {
		filter = ws.NewBlockSubscribeFilterMentionsAccountOrProgram(*mention)
	}

	maxVersion := uint64(0)
	sub, err := client.BlockSubscribe(
		filter,
		&ws.BlockSubscribeOpts{
			Commitment:                     commitmentOf(req.Commitment),
			Encoding:                       solana.EncodingBase64,
			TransactionDetails:             transactionDetails(req),
			MaxSupportedTransactionVersion: &maxVersion,
		},
	)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("subscribe blocks: %w", err)
	}

	out := make(chan Update, 64)

	// Recv has no context at this client version; closing the client is the
	// only way to unblock it. The watcher closes exactly once, on
	// cancellation or when the read loop exits on its own.
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		client.Close()
	}()

	go func() {
		defer close(out)
		defer close(done)
		defer sub.Unsubscribe()

		for {
			result, err := sub.Recv()
			if err != nil {
				s.logger.Warn("block subscription ended", zap.Error(err))
				return
			}

			for _, update := range s.translate(req, result) {
				select {
				case out <- update:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// mentionAccount picks the single account the node filters blocks by: the
// first required account of any transaction filter, falling back to the
// include list. Block-meta-only subscriptions watch all blocks.
func mentionAccount(req Request) *solana.PublicKey {
	var fallback *solana.PublicKey

	for _, filter := range req.Transactions {
		for _, account := range filter.AccountRequired {
			key := solana.MustPublicKeyFromBase58(account)
			return &key
		}
		for _, account := range filter.AccountInclude {
			if fallback == nil {
				key := solana.MustPublicKeyFromBase58(account)
				fallback = &key
			}
		}
	}

	return fallback
}

func transactionDetails(req Request) rpc.TransactionDetailsType {
	if len(req.Transactions) == 0 {
		return rpc.TransactionDetailsNone
	}
	return rpc.TransactionDetailsFull
}

func commitmentOf(level CommitmentLevel) rpc.CommitmentType {
	switch level {
	case CommitmentFinalized:
		return rpc.CommitmentFinalized
	case CommitmentConfirmed:
		return rpc.CommitmentConfirmed
	default:
		return rpc.CommitmentProcessed
	}
}

// translate converts one block notification into stream updates, applying
// the request's transaction filters.
func (s *WSSubscriber) translate(req Request, result *ws.BlockResult) []Update {
	block := result.Value.Block
	if block == nil {
		return nil
	}

	var updates []Update

	if req.BlocksMeta {
		updates = append(updates, Update{BlockMeta: &BlockMetaUpdate{
			Slot:      result.Value.Slot,
			Blockhash: block.Blockhash.String(),
		}})
	}

	if len(req.Transactions) == 0 {
		return updates
	}

	for i := range block.Transactions {
		update, err := s.translateTransaction(result.Value.Slot, &block.Transactions[i])
		if err != nil {
			s.logger.Debug("skipping transaction", zap.Error(err))
			continue
		}

		if matchesAny(req.Transactions, update) {
			updates = append(updates, Update{Transaction: update})
		}
	}

	return updates
}

func (s *WSSubscriber) translateTransaction(slot uint64, tx *rpc.TransactionWithMeta) (*TransactionUpdate, error) {
	if tx.Meta == nil {
		return nil, fmt.Errorf("transaction without meta")
	}

	parsed, err := tx.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	if len(parsed.Signatures) == 0 {
		return nil, fmt.Errorf("transaction without signatures")
	}

	message := &Message{
		AccountKeys:  rawKeys(parsed.Message.AccountKeys),
		Instructions: compileInstructions(parsed.Message.Instructions),
	}

	meta := &Meta{
		Fee:                     tx.Meta.Fee,
		PreTokenBalances:        tokenBalances(tx.Meta.PreTokenBalances),
		PostTokenBalances:       tokenBalances(tx.Meta.PostTokenBalances),
		LoadedWritableAddresses: rawKeys(tx.Meta.LoadedAddresses.Writable),
		LoadedReadonlyAddresses: rawKeys(tx.Meta.LoadedAddresses.ReadOnly),
	}

	if tx.Meta.Err != nil {
		meta.Err = []byte(fmt.Sprint(tx.Meta.Err))
	}

	for _, inner := range tx.Meta.InnerInstructions {
		meta.InnerInstructions = append(meta.InnerInstructions, InnerInstructions{
			Index:        uint32(inner.Index),
			Instructions: compileInstructions(inner.Instructions),
		})
	}

	return &TransactionUpdate{
		Slot:      slot,
		Signature: parsed.Signatures[0][:],
		Message:   message,
		Meta:      meta,
	}, nil
}

func rawKeys(keys []solana.PublicKey) [][]byte {
	raw := make([][]byte, 0, len(keys))
	for _, key := range keys {
		k := key
		raw = append(raw, k.Bytes())
	}
	return raw
}

func compileInstructions(instructions []solana.CompiledInstruction) []CompiledInstruction {
	compiled := make([]CompiledInstruction, 0, len(instructions))
	for _, ix := range instructions {
		accounts := make([]byte, 0, len(ix.Accounts))
		for _, idx := range ix.Accounts {
			accounts = append(accounts, byte(idx))
		}

		compiled = append(compiled, CompiledInstruction{
			ProgramIDIndex: uint32(ix.ProgramIDIndex),
			Accounts:       accounts,
			Data:           ix.Data,
		})
	}
	return compiled
}

func tokenBalances(balances []rpc.TokenBalance) []TokenBalance {
	converted := make([]TokenBalance, 0, len(balances))
	for _, balance := range balances {
		// Amounts come from external JSON and may be absent; an entry
		// without decimals carries no information the decoder can use.
		if balance.UiTokenAmount == nil {
			continue
		}

		tb := TokenBalance{
			AccountIndex: uint32(balance.AccountIndex),
			Mint:         balance.Mint.String(),
			Decimals:     uint32(balance.UiTokenAmount.Decimals),
		}
		if balance.Owner != nil {
			tb.Owner = balance.Owner.String()
		}
		converted = append(converted, tb)
	}
	return converted
}

// matchesAny reports whether at least one named filter accepts the
// transaction; mirrors the upstream semantics where every matching filter
// delivers the same update once.
func matchesAny(filters map[string]TransactionFilter, tx *TransactionUpdate) bool {
	for _, filter := range filters {
		if matches(filter, tx) {
			return true
		}
	}
	return false
}

func matches(filter TransactionFilter, tx *TransactionUpdate) bool {
	failed := tx.Meta.Err != nil

	if filter.Failed != nil && *filter.Failed != failed {
		return false
	}

	keys := make(map[string]struct{},
		len(tx.Message.AccountKeys)+
			len(tx.Meta.LoadedWritableAddresses)+
			len(tx.Meta.LoadedReadonlyAddresses))

	addKeys := func(raw [][]byte) {
		for _, key := range raw {
			if len(key) == solana.PublicKeyLength {
				keys[solana.PublicKeyFromBytes(key).String()] = struct{}{}
			}
		}
	}
	addKeys(tx.Message.AccountKeys)
	addKeys(tx.Meta.LoadedWritableAddresses)
	addKeys(tx.Meta.LoadedReadonlyAddresses)

	if filter.Vote != nil && !*filter.Vote {
		if _, ok := keys[voteProgramID.String()]; ok {
			return false
		}
	}

	for _, required := range filter.AccountRequired {
		if _, ok := keys[required]; !ok {
			return false
		}
	}

	if len(filter.AccountInclude) > 0 {
		included := false
		for _, include := range filter.AccountInclude {
			if _, ok := keys[include]; ok {
				included = true
				break
			}
		}
		if !included {
			return false
		}
	}

	return true
}
