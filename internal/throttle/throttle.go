// Package throttle はログイン試行回数の制限を提供します。
//
// 状態はプロセス内（Memory）または Redis（RedisStore）に保持できます。
package throttle

import (
	"context"
	"sync"
	"time"
)

// Limiter はキー（通常はクライアントIP）ごとの失敗回数を管理します。
type Limiter interface {
	// Check はロック中であれば残りのロック時間を返します。ロックされていなければ 0 です。
	Check(ctx context.Context, key string) (time.Duration, error)
	// RecordFailure は失敗を記録し、ロックまでの残り回数を返します。
	RecordFailure(ctx context.Context, key string) (int, error)
	// Reset はキーの状態を消去します。
	Reset(ctx context.Context, key string) error
}

// Memory はプロセス内のマップで状態を保持する Limiter です。
type Memory struct {
	policy   Policy
	now      func() time.Time
	lock     sync.Mutex
	attempts map[string]*record
}

// NewMemory は Memory を作成します。
func NewMemory(policy Policy) *Memory {
	return &Memory{
		policy:   policy,
		now:      time.Now,
		attempts: make(map[string]*record),
	}
}

// Check は Limiter を実装します。
func (m *Memory) Check(_ context.Context, key string) (time.Duration, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	return m.attempts[key].retryAfter(m.now()), nil
}

// RecordFailure は Limiter を実装します。
func (m *Memory) RecordFailure(_ context.Context, key string) (int, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	rec, remaining := m.policy.recordFailure(m.attempts[key], m.now())
	m.attempts[key] = rec
	return remaining, nil
}

// Reset は Limiter を実装します。
func (m *Memory) Reset(_ context.Context, key string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.attempts, key)
	return nil
}
