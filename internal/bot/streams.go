// internal/bot/streams.go
package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/solmirror/copybot/internal/cache"
	"github.com/solmirror/copybot/internal/copier"
	"github.com/solmirror/copybot/internal/decoder"
	"github.com/solmirror/copybot/internal/stream"
	"go.uber.org/zap"
)

const (
	selfResubscribeInterval   = 5 * time.Second
	targetResubscribeInterval = 6 * time.Second
	blockResubscribeInterval  = 5 * time.Second
)

var errStreamClosed = errors.New("stream closed")

// Streams drives the three upstream subscriptions: finalized block metadata
// for the blockhash cell, the own wallet's transactions for confirmation, and
// the tracked wallets' trades for copying.
type Streams struct {
	subscriber    stream.Subscriber
	decoder       *decoder.Decoder
	transactions  *cache.TransactionCache
	blockhash     *cache.BlockHashCache
	copier        *copier.Copier
	ownWallet     solana.PublicKey
	followWallets []string
	logger        *zap.Logger
}

func NewStreams(
	subscriber stream.Subscriber,
	dec *decoder.Decoder,
	transactions *cache.TransactionCache,
	blockhash *cache.BlockHashCache,
	cp *copier.Copier,
	ownWallet solana.PublicKey,
	followWallets []string,
	logger *zap.Logger,
) *Streams {
	return &Streams{
		subscriber:    subscriber,
		decoder:       dec,
		transactions:  transactions,
		blockhash:     blockhash,
		copier:        cp,
		ownWallet:     ownWallet,
		followWallets: followWallets,
		logger:        logger.Named("streams"),
	}
}

// RunBlockMeta keeps the blockhash cache fresh from finalized blocks.
func (s *Streams) RunBlockMeta(ctx context.Context) error {
	req := stream.Request{
		BlocksMeta: true,
		Commitment: stream.CommitmentFinalized,
	}

	return s.runLoop(ctx, "blocks", blockResubscribeInterval, req, s.handleBlockMeta)
}

// RunSelf watches the bot's own wallet so sent transactions land in the
// transaction cache for confirmation and reconciliation. Both outcomes are
// subscribed: a failed copy still closes the trade pair.
func (s *Streams) RunSelf(ctx context.Context) error {
	vote := false
	failed := true
	succeeded := false

	req := stream.Request{
		Transactions: map[string]stream.TransactionFilter{
			"failed": {
				Vote:            &vote,
				Failed:          &failed,
				AccountRequired: []string{s.ownWallet.String()},
			},
			"success": {
				Vote:            &vote,
				Failed:          &succeeded,
				AccountRequired: []string{s.ownWallet.String()},
			},
		},
		Commitment: stream.CommitmentProcessed,
	}

	return s.runLoop(ctx, "self", selfResubscribeInterval, req, s.handleSelf)
}

// RunTarget watches the tracked wallets and mirrors each decoded trade
// inline, one at a time, preserving the order the feed delivered them in.
func (s *Streams) RunTarget(ctx context.Context) error {
	vote := false
	failed := false

	req := stream.Request{
		Transactions: map[string]stream.TransactionFilter{
			"targets": {
				Vote:            &vote,
				Failed:          &failed,
				AccountInclude:  s.followWallets,
				AccountRequired: []string{decoder.PumpFunProgramID.String()},
			},
		},
		Commitment: stream.CommitmentProcessed,
	}

	return s.runLoop(ctx, "target", targetResubscribeInterval, req, s.handleTarget)
}

// runLoop resubscribes at a fixed interval until the context is done.
func (s *Streams) runLoop(
	ctx context.Context,
	name string,
	interval time.Duration,
	req stream.Request,
	handle func(ctx context.Context, update *stream.Update),
) error {
	op := func() (struct{}, error) {
		return struct{}{}, s.consume(ctx, req, handle)
	}

	// Zero elapsed time lifts the default retry budget; the loop runs for
	// the lifetime of the process.
	_, err := backoff.Retry(
		ctx,
		op,
		backoff.WithBackOff(backoff.NewConstantBackOff(interval)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, _ time.Duration) {
			s.logger.Warn("stream interrupted, resubscribing",
				zap.String("stream", name),
				zap.Error(err))
		}),
	)
	return err
}

func (s *Streams) consume(
	ctx context.Context,
	req stream.Request,
	handle func(ctx context.Context, update *stream.Update),
) error {
	updates, err := s.subscriber.Subscribe(ctx, req)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return backoff.Permanent(ctx.Err())
		case update, ok := <-updates:
			if !ok {
				return errStreamClosed
			}
			handle(ctx, &update)
		}
	}
}

func (s *Streams) handleBlockMeta(_ context.Context, update *stream.Update) {
	if update.BlockMeta == nil {
		return
	}

	if err := s.blockhash.SetFromBase58(update.BlockMeta.Blockhash); err != nil {
		s.logger.Warn("invalid blockhash from block stream",
			zap.Uint64("slot", update.BlockMeta.Slot),
			zap.Error(err))
	}
}

func (s *Streams) handleSelf(_ context.Context, update *stream.Update) {
	parsed := s.decode(update)
	if parsed == nil {
		return
	}

	s.transactions.Set(parsed.Signature, parsed.CacheValue())
}

func (s *Streams) handleTarget(ctx context.Context, update *stream.Update) {
	parsed := s.decode(update)
	if parsed == nil {
		return
	}

	s.transactions.Set(parsed.Signature, parsed.CacheValue())

	if err := s.copier.Execute(ctx, parsed); err != nil {
		s.logger.Error("copy trade failed",
			zap.String("signature", solana.SignatureFromBytes(parsed.Signature).String()),
			zap.Error(err))
	}
}

func (s *Streams) decode(update *stream.Update) *decoder.ParsedTransaction {
	if update.Transaction == nil {
		return nil
	}

	parsed, err := s.decoder.Decode(update.Transaction)
	if err != nil {
		s.logger.Debug("skipping transaction", zap.Error(err))
		return nil
	}
	return parsed
}
