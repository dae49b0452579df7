package inventory

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"time"
)

const lockShardCount = 64

// keyLockManager hands out per-key mutexes with a bounded wait. Keys for
// different stock lines proceed in parallel; contending callers for the
// same key either acquire in arrival order or give up with ErrBusy.
type keyLockManager struct {
	shards [lockShardCount]lockShard
}

type lockShard struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	ch   chan struct{}
	refs int
}

func newKeyLockManager() *keyLockManager {
	manager := &keyLockManager{}
	for i := range manager.shards {
		manager.shards[i].entries = make(map[string]*lockEntry)
	}
	return manager
}

func (manager *keyLockManager) shardFor(key string) *lockShard {
	hasher := fnv.New32a()
	_, _ = hasher.Write([]byte(key))
	return &manager.shards[hasher.Sum32()%lockShardCount]
}

func (manager *keyLockManager) retain(key string) (*lockShard, *lockEntry) {
	shard := manager.shardFor(key)
	shard.mu.Lock()
	entry, ok := shard.entries[key]
	if !ok {
		entry = &lockEntry{ch: make(chan struct{}, 1)}
		shard.entries[key] = entry
	}
	entry.refs++
	shard.mu.Unlock()
	return shard, entry
}

func (shard *lockShard) releaseRef(key string, entry *lockEntry) {
	shard.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(shard.entries, key)
	}
	shard.mu.Unlock()
}

// Acquire takes the lock for key, waiting at most wait. The returned
// function releases the lock and must be called exactly once.
func (manager *keyLockManager) Acquire(ctx context.Context, key string, wait time.Duration) (func(), error) {
	shard, entry := manager.retain(key)
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case entry.ch <- struct{}{}:
		return func() {
			<-entry.ch
			shard.releaseRef(key, entry)
		}, nil
	case <-timer.C:
		shard.releaseRef(key, entry)
		return nil, WrapError("lock", "key", "wait_exceeded", ErrBusy)
	case <-ctx.Done():
		shard.releaseRef(key, entry)
		return nil, ctx.Err()
	}
}

// AcquireAll takes locks for every key in deterministic (sorted) order
// so concurrent multi-key operations cannot deadlock. On any failure the
// already-acquired locks are released.
func (manager *keyLockManager) AcquireAll(ctx context.Context, keys []string, wait time.Duration) (func(), error) {
	unique := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, key)
	}
	sort.Strings(unique)

	releases := make([]func(), 0, len(unique))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, key := range unique {
		release, err := manager.Acquire(ctx, key, wait)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}
