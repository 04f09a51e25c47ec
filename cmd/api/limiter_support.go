package main

import (
	"context"
	"fmt"
	"log"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/flaskr/internal/config"
	"github.com/yourusername/flaskr/internal/throttle"
)

// setupLoginLimiter はログイン試行制限を構築します。
// LOGIN_THROTTLE_REDIS_URL が設定されていれば Redis に、なければプロセス内に状態を保持します。
func setupLoginLimiter(cfg *config.Config) (throttle.Limiter, func(), error) {
	policy := throttle.Policy{
		MaxAttempts:  cfg.LoginMaxAttempts,
		Window:       cfg.LoginWindow(),
		LockDuration: cfg.LoginLock(),
	}

	if cfg.LoginThrottleRedisURL == "" {
		return throttle.NewMemory(policy), func() {}, nil
	}

	opt, err := redis.ParseURL(cfg.LoginThrottleRedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}

	redisClient := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = redisClient.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("Login throttle state stored in redis %s", opt.Addr)
	closeFn := func() {
		if err := redisClient.Close(); err != nil {
			log.Printf("failed to close redis client: %v", err)
		}
	}
	return throttle.NewRedisStore(redisClient, policy), closeFn, nil
}
