// Package redis implements push.Directory on Redis.
//
// Layout, under a configurable prefix:
//
//	{prefix}user:{id}     hash   role, token
//	{prefix}token:{token} string owning user id
//	{prefix}role:{role}   set    user ids
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key the directory writes.
const DefaultPrefix = "fanout:"

// NewClient connects and pings, failing fast if the connection is bad.
func NewClient(addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}
