package throttle

import "time"

// Policy はログイン失敗の制限ルールを表します。
type Policy struct {
	MaxAttempts  int           // ロックまでの失敗回数
	Window       time.Duration // 失敗回数を数える期間
	LockDuration time.Duration // ロック期間
}

// DefaultPolicy は 15分間に5回失敗で10分ロックするポリシーです。
var DefaultPolicy = Policy{
	MaxAttempts:  5,
	Window:       15 * time.Minute,
	LockDuration: 10 * time.Minute,
}

// record はキーごとの試行状態です。Redis には JSON で保存します。
type record struct {
	Count        int       `json:"count"`
	FirstAttempt time.Time `json:"firstAttempt"`
	LockedUntil  time.Time `json:"lockedUntil,omitempty"`
}

func (r *record) retryAfter(now time.Time) time.Duration {
	if r == nil || r.LockedUntil.IsZero() || !now.Before(r.LockedUntil) {
		return 0
	}
	return r.LockedUntil.Sub(now)
}

// recordFailure は rec に失敗を1回加算した結果を返します。rec が nil の場合は新規に作成します。
func (p Policy) recordFailure(rec *record, now time.Time) (*record, int) {
	lockExpired := rec != nil && !rec.LockedUntil.IsZero() && !now.Before(rec.LockedUntil)
	if rec == nil || lockExpired || now.Sub(rec.FirstAttempt) > p.Window {
		rec = &record{FirstAttempt: now}
	}

	rec.Count++
	if rec.Count >= p.MaxAttempts {
		rec.LockedUntil = now.Add(p.LockDuration)
		rec.Count = p.MaxAttempts
	}

	remaining := p.MaxAttempts - rec.Count
	if remaining < 0 {
		remaining = 0
	}
	return rec, remaining
}

// ttl は Redis キーの有効期限です。ロック中に期限切れにならない長さを取ります。
func (p Policy) ttl() time.Duration {
	return p.Window + p.LockDuration
}
