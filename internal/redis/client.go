package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type ClientOptions struct {
	Addr     string
	Username string
	Password string
	PoolSize int
}

// NewRedisClient connects to the lock store and pings it within ctx.
func NewRedisClient(ctx context.Context, opts ClientOptions) (*redis.Client, error) {
	poolSize := opts.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Username:     opts.Username,
		Password:     opts.Password,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		PoolSize:     poolSize,
		MinIdleConns: 1,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}

	return rdb, nil
}

// NewSlotLocker picks the slot locker for a process. With no address it
// returns the in-process locker and a nil client. Otherwise the caller owns
// the returned client and closes it on shutdown.
func NewSlotLocker(ctx context.Context, opts ClientOptions, ttl, wait time.Duration) (Locker, *redis.Client, error) {
	if opts.Addr == "" {
		return NewLocalSlotLocker(wait), nil, nil
	}

	rdb, err := NewRedisClient(ctx, opts)
	if err != nil {
		return nil, nil, err
	}
	return NewRedisSlotLocker(rdb, ttl, wait), rdb, nil
}
