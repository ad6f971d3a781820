package syncutil

import (
	"context"
	"sync"
)

// ContextShardedMutex is the context-aware variant of ShardedMutex. The
// moderation workflow holds a station lock across geocoding and store
// writes, so a caller whose request is cancelled must be able to stop
// waiting instead of queueing behind a slow submission.
type ContextShardedMutex struct {
	shards [shardCount]chanMutex
	once   sync.Once
}

// chanMutex is a one-slot channel used as a mutex so acquisition can be
// raced against ctx.Done in a select.
type chanMutex struct {
	ch chan struct{}
}

// NewContextShardedMutex creates a new context-aware sharded mutex.
func NewContextShardedMutex() *ContextShardedMutex {
	m := &ContextShardedMutex{}
	m.init()
	return m
}

func (m *ContextShardedMutex) init() {
	m.once.Do(func() {
		for i := range m.shards {
			m.shards[i].ch = make(chan struct{}, 1)
			m.shards[i].ch <- struct{}{} // starts unlocked
		}
	})
}

// LockContext acquires the mutex owning the key. On success it returns
// an unlock func the caller must invoke; if ctx is cancelled while
// waiting it returns nil and the context error, and the lock is not held.
func (m *ContextShardedMutex) LockContext(ctx context.Context, key string) (func(), error) {
	m.init()
	shard := &m.shards[shardFor(key)]

	select {
	case <-shard.ch:
		return func() { shard.ch <- struct{}{} }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
