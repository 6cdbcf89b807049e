// Package broker builds the pub/sub connection shared by publishers.
package broker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/go-redis/redis/v8"

	"github.com/qolzam/kinit-dal/internal/database/interfaces"
	"github.com/qolzam/kinit-dal/internal/database/utils"
	"github.com/qolzam/kinit-dal/internal/pkg/log"
	"github.com/qolzam/kinit-dal/internal/platform/config"
)

// NewClient returns a cluster client when more than one address is configured and a
// single-node client otherwise. No connection is made until first use.
func NewClient(cfg *config.RedisConfig) redis.UniversalClient {
	if len(cfg.Addresses) > 1 {
		return redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:    cfg.Addresses,
			Password: cfg.Password,
			PoolSize: cfg.PoolSize,
		})
	}

	addr := "localhost:6379"
	if len(cfg.Addresses) == 1 {
		addr = cfg.Addresses[0]
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// Connect builds the client and pings it, retrying transient failures.
func Connect(ctx context.Context, cfg *config.RedisConfig, policy *utils.RetryPolicy) (redis.UniversalClient, error) {
	client := NewClient(cfg)
	err := utils.ExecuteWithRetry(ctx, policy, "redis ping", func(ctx context.Context) error {
		return MapError("ping", client.Ping(ctx).Err())
	})
	if err != nil {
		client.Close()
		return nil, err
	}
	log.Info("Connected to Redis at %s", strings.Join(cfg.Addresses, ","))
	return client, nil
}

// MapError classifies broker errors; connection-level failures become StoreUnavailable.
func MapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if isUnavailable(err) {
		return interfaces.StoreUnavailable(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) || errors.Is(err, redis.ErrClosed) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := err.Error()
	return strings.HasPrefix(msg, "NOAUTH") || strings.HasPrefix(msg, "WRONGPASS") || strings.HasPrefix(msg, "LOADING")
}
