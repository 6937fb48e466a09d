package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrLocked is returned by TryLock when the lock is already held.
var ErrLocked = errors.New("lock is already held")

// CheckAllLock guards check-all runs so that two never overlap.
const CheckAllLock = "locks:check-all"

// releaseScript deletes the lock only if the caller still owns it.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`

// TryLock acquires the lock named key with SET NX EX. The returned unlock
// function must be called to release it; the ttl bounds how long a
// crashed holder can keep it.
func TryLock(ctx context.Context, r *Redis, key string, ttl time.Duration) (unlock func(), err error) {
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, Key(key), token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("cache lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return func() {
		// Background context: the request that took the lock may be gone.
		_ = r.client.Eval(context.Background(), releaseScript, []string{Key(key)}, token).Err()
	}, nil
}

// IsLocked reports whether the lock key exists.
func IsLocked(ctx context.Context, r *Redis, key string) bool {
	n, _ := r.client.Exists(ctx, Key(key)).Result()
	return n > 0
}
