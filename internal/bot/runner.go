// internal/bot/runner.go
package bot

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/solmirror/copybot/internal/amounts"
	"github.com/solmirror/copybot/internal/builder"
	"github.com/solmirror/copybot/internal/cache"
	"github.com/solmirror/copybot/internal/config"
	"github.com/solmirror/copybot/internal/copier"
	"github.com/solmirror/copybot/internal/decoder"
	"github.com/solmirror/copybot/internal/sender"
	"github.com/solmirror/copybot/internal/storage/postgres"
	"github.com/solmirror/copybot/internal/stream"
	"github.com/solmirror/copybot/internal/wallet"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Runner wires the whole pipeline together and supervises its long-running
// loops until a shutdown signal arrives.
type Runner struct {
	logger     *zap.Logger
	config     *config.Config
	shutdownCh chan os.Signal
}

func NewRunner(cfg *config.Config, logger *zap.Logger) *Runner {
	return &Runner{
		logger:     logger,
		config:     cfg,
		shutdownCh: make(chan os.Signal, 1),
	}
}

func (r *Runner) Run(ctx context.Context) error {
	signal.Notify(r.shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	shutdownCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		sig := <-r.shutdownCh
		r.logger.Info("signal received: " + sig.String())
		cancel()
	}()

	w, err := wallet.New(r.config.PrivateKey)
	if err != nil {
		return fmt.Errorf("load wallet: %w", err)
	}
	r.logger.Info("wallet loaded", zap.Stringer("pubkey", w.PublicKey))

	store, err := postgres.NewStore(r.config.PostgresURL, r.logger)
	if err != nil {
		return fmt.Errorf("connect storage: %w", err)
	}
	if err := store.RunMigrations(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	followWallets := make([]solana.PublicKey, 0, len(r.config.FollowWallets))
	for _, raw := range r.config.FollowWallets {
		pk, err := solana.PublicKeyFromBase58(raw)
		if err != nil {
			return fmt.Errorf("parse follow wallet %q: %w", raw, err)
		}
		followWallets = append(followWallets, pk)
	}

	blockhash := cache.NewBlockHashCache()
	priorityFee := cache.NewPriorityFeeCache()
	transactions := cache.NewTransactionCache()
	positions := cache.NewPositionCache(w.PublicKey)

	if err := positions.Warm(shutdownCtx, store, r.logger); err != nil {
		return err
	}

	dec := decoder.New(
		map[solana.PublicKey]decoder.ProgramDecoder{
			decoder.PumpFunProgramID: decoder.NewPumpFunDecoder(followWallets, w.PublicKey),
		},
		priorityFee,
		w.PublicKey,
		builder.TipFeeLamports,
		r.logger,
	)

	calc := amounts.NewCalculator(
		positions,
		decimal.NewFromFloat(r.config.OrderSolAmount),
		decimal.NewFromFloat(r.config.SlippagePercent),
	)
	closePercent := decimal.NewFromFloat(r.config.PositionClosePercent)

	txBuilder := builder.New(
		map[solana.PublicKey]builder.SwapBuilder{
			decoder.PumpFunProgramID: builder.NewPumpFunSwapBuilder(w, positions, calc, closePercent),
		},
		blockhash,
		w,
		r.logger,
	)

	node := sender.NewNode(r.config.HeliusURL, r.config.HeliusKey, r.logger)
	landing := sender.NewLanding(r.config.ZeroslotURL, r.config.ZeroslotKey, r.logger)

	cp := copier.New(copier.Config{
		Builder:      txBuilder,
		Sender:       landing,
		Simulator:    node,
		Store:        store,
		Transactions: transactions,
		Positions:    positions,
		ClosePercent: closePercent,
		Simulate:     r.config.SimulateMode,
		FilterActive: len(followWallets) > 0,
	}, r.logger)

	subscriber := stream.NewWSSubscriber(r.config.WebsocketURL, r.logger)
	streams := NewStreams(
		subscriber,
		dec,
		transactions,
		blockhash,
		cp,
		w.PublicKey,
		r.config.FollowWallets,
		r.logger,
	)

	r.logger.Info("starting copy pipeline",
		zap.Int("followWallets", len(followWallets)),
		zap.Bool("simulate", r.config.SimulateMode))

	group, groupCtx := errgroup.WithContext(shutdownCtx)
	group.Go(func() error { return streams.RunBlockMeta(groupCtx) })
	group.Go(func() error { return streams.RunSelf(groupCtx) })
	group.Go(func() error { return streams.RunTarget(groupCtx) })
	group.Go(func() error { return node.PollPriorityFee(groupCtx, priorityFee) })
	if r.config.ZeroslotURL != "" {
		group.Go(func() error { return landing.Heartbeat(groupCtx) })
	}

	err = group.Wait()
	if err != nil && shutdownCtx.Err() != nil {
		return nil
	}
	return err
}

func (r *Runner) Shutdown() {
	r.logger.Info("copy bot shutting down gracefully")

	if err := r.logger.Sync(); err != nil {
		if !os.IsNotExist(err) &&
			err.Error() != "sync /dev/stdout: invalid argument" &&
			err.Error() != "sync /dev/stderr: inappropriate ioctl for device" {
			fmt.Fprintf(os.Stderr, "failed to sync logger during shutdown: %v\n", err)
		}
	}
}
