package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis"

	"github.com/seenimoa/macrocal/internal/config"
)

// Redis stores values as plain string keys under a common prefix. Values
// never expire.
type Redis struct {
	c      *redis.Client
	prefix string
}

// NewRedis connects and pings the server once.
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*Redis, error) {
	c := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})
	if err := c.WithContext(ctx).Ping().Err(); err != nil {
		c.Close()
		return nil, fmt.Errorf("redis store: connect %s: %w", cfg.Addr, err)
	}
	return &Redis{c: c, prefix: cfg.Prefix}, nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	data, err := r.c.WithContext(ctx).Get(r.prefix + key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis store get %s: %w", key, err)
	}
	return data, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := r.c.WithContext(ctx).Set(r.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis store set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Remove(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := r.c.WithContext(ctx).Del(r.prefix + key).Err(); err != nil {
		return fmt.Errorf("redis store remove %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Close() error { return r.c.Close() }
