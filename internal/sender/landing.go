// internal/sender/landing.go
package sender

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

const (
	heartbeatInterval = 60 * time.Second
	heartbeatRetry    = 3 * time.Second
)

// Landing submits signed transactions to the low-latency landing provider.
// The provider handles inclusion; we never retry a send.
type Landing struct {
	rpc    *rpcClient
	logger *zap.Logger

	probeInterval time.Duration
	probeRetry    time.Duration
}

func NewLanding(url, apiKey string, logger *zap.Logger) *Landing {
	return &Landing{
		rpc:           newRPCClient(url, apiKey),
		logger:        logger.Named("landing"),
		probeInterval: heartbeatInterval,
		probeRetry:    heartbeatRetry,
	}
}

// SendTransaction submits base64-encoded with preflight skipped; the landing
// provider must see the transaction immediately or not at all.
func (l *Landing) SendTransaction(ctx context.Context, tx *solana.Transaction) (string, error) {
	start := time.Now()

	encoded, err := tx.ToBase64()
	if err != nil {
		return "", fmt.Errorf("encode transaction: %w", err)
	}

	params := []any{
		encoded,
		map[string]any{
			"encoding":      "base64",
			"skipPreflight": true,
			"maxRetries":    0,
		},
	}

	var signature string
	if err := l.rpc.call(ctx, "sendTransaction", params, &signature); err != nil {
		return "", err
	}

	l.logger.Debug("transaction sent",
		zap.Duration("elapsed", time.Since(start)),
		zap.String("signature", signature))

	return signature, nil
}

// Heartbeat keeps the connection to the landing provider warm: a getHealth
// probe every minute, retried every few seconds while the provider is down.
// Returns when ctx is cancelled.
func (l *Landing) Heartbeat(ctx context.Context) error {
	for {
		// Zero elapsed time lifts the default retry budget; an unhealthy
		// provider is probed until it recovers or we shut down.
		_, err := backoff.Retry(ctx,
			func() (struct{}, error) {
				return struct{}{}, l.rpc.call(ctx, "getHealth", []any{}, nil)
			},
			backoff.WithBackOff(backoff.NewConstantBackOff(l.probeRetry)),
			backoff.WithMaxElapsedTime(0),
			backoff.WithNotify(func(err error, _ time.Duration) {
				l.logger.Warn("landing health check failed", zap.Error(err))
			}),
		)
		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.probeInterval):
		}
	}
}
