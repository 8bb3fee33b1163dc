package database

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"time"
)

// AdvisoryLockKey maps a string key to a stable signed 64-bit advisory lock id.
func AdvisoryLockKey(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64())
}

// LockTimeoutStatement returns a SET LOCAL statement bounding lock waits inside a transaction.
// Zero or negative timeouts disable the bound.
func LockTimeoutStatement(timeout time.Duration) string {
	if timeout <= 0 {
		return "SET LOCAL lock_timeout = 0"
	}
	return fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", timeout.Milliseconds())
}

// AcquireAdvisoryLocks takes transaction-scoped advisory locks for every key.
// Ids are locked in ascending order so concurrent callers cannot deadlock.
func AcquireAdvisoryLocks(ctx context.Context, q Querier, keys []string) error {
	ids := make([]int64, 0, len(keys))
	seen := make(map[int64]struct{}, len(keys))
	for _, key := range keys {
		id := AdvisoryLockKey(key)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if _, err := q.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", id); err != nil {
			return fmt.Errorf("failed to acquire advisory lock: %w", err)
		}
	}
	return nil
}
