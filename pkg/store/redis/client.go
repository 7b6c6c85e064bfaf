package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/prodflow/prodflow/pkg/config"
)

var ErrDisabled = errors.New("redis is disabled")

type Client struct {
	rdb redis.UniversalClient
}

// NewClient connects to redis. It returns ErrDisabled when the redis section
// is switched off so callers can run without event publication.
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if len(cfg.Addresses) == 0 {
		return nil, fmt.Errorf("redis enabled without addresses")
	}

	var rdb redis.UniversalClient
	if cfg.ClusterMode {
		rdb = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:    cfg.Addresses,
			Password: cfg.Password,
			PoolSize: cfg.PoolSize,
		})
	} else {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Addresses[0],
			Password: cfg.Password,
			DB:       cfg.DB,
			PoolSize: cfg.PoolSize,
		})
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Wrap adopts an existing client, typically one pointed at a test server.
func Wrap(rdb redis.UniversalClient) *Client {
	return &Client{rdb: rdb}
}

func (c *Client) Client() redis.UniversalClient {
	return c.rdb
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
