// internal/sender/node.go
package sender

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/solmirror/copybot/internal/cache"
)

const priorityFeePollInterval = time.Second

// Node talks to a full RPC node: simulation for dry runs and the provider's
// priority-fee estimate extension.
type Node struct {
	client *rpc.Client
	rpc    *rpcClient
	logger *zap.Logger
}

func NewNode(url, apiKey string, logger *zap.Logger) *Node {
	endpoint := url
	if apiKey != "" {
		endpoint = fmt.Sprintf("%s?api-key=%s", url, apiKey)
	}

	return &Node{
		client: rpc.New(endpoint),
		rpc:    newRPCClient(url, apiKey),
		logger: logger.Named("node"),
	}
}

// Simulate dry-runs the transaction and logs the outcome. Used instead of
// sending when simulate mode is on; never retried.
func (n *Node) Simulate(ctx context.Context, tx *solana.Transaction) error {
	start := time.Now()

	resp, err := n.client.SimulateTransaction(ctx, tx)
	if err != nil {
		return fmt.Errorf("simulate transaction: %w", err)
	}

	elapsed := time.Since(start)

	if resp.Value.Err != nil {
		n.logger.Error("simulation failed",
			zap.Any("err", resp.Value.Err),
			zap.Strings("logs", resp.Value.Logs),
			zap.Duration("elapsed", elapsed))
		return nil
	}

	n.logger.Info("simulation ok",
		zap.Uint64("units_consumed", unitsConsumed(resp.Value.UnitsConsumed)),
		zap.Duration("elapsed", elapsed))

	return nil
}

func unitsConsumed(units *uint64) uint64 {
	if units == nil {
		return 0
	}
	return *units
}

type priorityFeeEstimate struct {
	PriorityFeeEstimate float64 `json:"priorityFeeEstimate"`
}

// PollPriorityFee refreshes the fee cache once per second until ctx is
// cancelled. A failed poll keeps the previous value.
func (n *Node) PollPriorityFee(ctx context.Context, feeCache *cache.PriorityFeeCache) error {
	ticker := time.NewTicker(priorityFeePollInterval)
	defer ticker.Stop()

	for {
		var estimate priorityFeeEstimate

		params := []any{
			map[string]any{
				"options": map[string]any{"priorityLevel": "High"},
			},
		}

		if err := n.rpc.call(ctx, "getPriorityFeeEstimate", params, &estimate); err != nil {
			n.logger.Warn("priority fee poll failed", zap.Error(err))
		} else {
			feeCache.Set(uint64(estimate.PriorityFeeEstimate))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
