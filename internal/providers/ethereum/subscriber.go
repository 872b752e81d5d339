package ethereum

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"github.com/feral-file/ff-ownership-indexer/internal/domain"
	"github.com/feral-file/ff-ownership-indexer/internal/logger"
)

// SubscribeNewBlocks feeds handler with new heads until ctx is done.
// Endpoints without subscription support are polled every PollInterval instead.
func (c *chainClient) SubscribeNewBlocks(ctx context.Context, handler BlockHandler) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.config.ResubscribeInitialInterval
	b.MaxInterval = c.config.ResubscribeMaxInterval
	b.MaxElapsedTime = 0 // never give up while ctx is alive

	operation := func() error {
		err := c.watchHeads(ctx, handler, b)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if errors.Is(err, rpc.ErrNotificationsUnsupported) {
			logger.WarnCtx(ctx, "Endpoint does not support subscriptions, polling new heads",
				zap.Duration("interval", c.config.PollInterval))
			return backoff.Permanent(c.pollHeads(ctx, handler))
		}
		return err
	}

	var attemptCount int
	notifyOnError := func(err error, duration time.Duration) {
		attemptCount++
		logger.WarnCtx(ctx, "New head subscription dropped, resubscribing",
			zap.Error(err),
			zap.Int("attempt", attemptCount),
			zap.Duration("next_retry_in", duration),
		)
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notifyOnError)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// watchHeads runs one subscription until it fails or ctx is done
func (c *chainClient) watchHeads(ctx context.Context, handler BlockHandler, b backoff.BackOff) error {
	heads := make(chan *types.Header)
	sub, err := c.client.SubscribeNewHead(ctx, heads)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrSubscriptionFailed, err)
	}
	defer func() {
		sub.Unsubscribe()
		logger.InfoCtx(ctx, "Unsubscribed from new heads")
	}()

	b.Reset()
	logger.InfoCtx(ctx, "Subscribed to new heads")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			if err == nil {
				err = errors.New("subscription closed")
			}
			return fmt.Errorf("subscription error: %w", err)
		case header := <-heads:
			if header == nil || header.Number == nil {
				continue
			}
			c.handleHead(ctx, handler, header.Number.Uint64())
		}
	}
}

// pollHeads polls the chain head and reports every increase
func (c *chainClient) pollHeads(ctx context.Context, handler BlockHandler) error {
	ticker := c.clock.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	var last uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			head, err := c.GetChainHead(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.WarnCtx(ctx, "Failed to poll chain head", zap.Error(err))
				continue
			}
			if head <= last {
				continue
			}
			last = head
			c.handleHead(ctx, handler, head)
		}
	}
}

func (c *chainClient) handleHead(ctx context.Context, handler BlockHandler, blockNumber uint64) {
	if err := handler(ctx, blockNumber); err != nil {
		logger.ErrorCtx(ctx, err, zap.String("message", "Error handling new head"), zap.Uint64("block_number", blockNumber))
	}
}
