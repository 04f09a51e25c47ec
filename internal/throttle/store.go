package throttle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	attemptKeyPrefix = "login_attempts:"
	maxTxRetries     = 10
)

// RedisStore は試行状態を Redis に保存する Limiter です。
// 複数プロセスで同じ制限を共有する場合に使用します。
type RedisStore struct {
	rdb    *redis.Client
	policy Policy
	now    func() time.Time
}

// NewRedisStore は RedisStore を作成します。
func NewRedisStore(rdb *redis.Client, policy Policy) *RedisStore {
	return &RedisStore{
		rdb:    rdb,
		policy: policy,
		now:    time.Now,
	}
}

// Check は Limiter を実装します。
func (s *RedisStore) Check(ctx context.Context, key string) (time.Duration, error) {
	rec, err := s.get(ctx, s.rdb, attemptKey(key))
	if err != nil {
		return 0, err
	}
	return rec.retryAfter(s.now()), nil
}

// RecordFailure は Limiter を実装します。WATCH による楽観的ロックで更新します。
func (s *RedisStore) RecordFailure(ctx context.Context, key string) (int, error) {
	k := attemptKey(key)
	var remaining int

	update := func(tx *redis.Tx) error {
		rec, err := s.get(ctx, tx, k)
		if err != nil {
			return err
		}
		var next *record
		next, remaining = s.policy.recordFailure(rec, s.now())

		payload, err := json.Marshal(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, payload, s.policy.ttl())
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, update, k)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("record login failure: %w", err)
		}
		return remaining, nil
	}
	return 0, fmt.Errorf("record login failure: too many concurrent updates for %s", key)
}

// Reset は Limiter を実装します。
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, attemptKey(key)).Err()
}

// getter は *redis.Client と *redis.Tx に共通する GET 操作です。
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) get(ctx context.Context, cmd getter, key string) (*record, error) {
	data, err := cmd.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func attemptKey(key string) string {
	return attemptKeyPrefix + key
}
