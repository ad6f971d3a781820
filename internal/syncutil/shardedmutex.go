// Package syncutil provides per-key locking primitives.
//
// The moderation workflow serializes writes per station ID and the
// reputation ledger per user ID; both key spaces are unbounded, so the
// locks here hash keys onto a fixed shard pool instead of growing a map
// of mutexes forever.
package syncutil

import (
	"hash/fnv"
	"sync"
)

// shardCount is the fixed pool size. Two keys hashing to the same shard
// contend with each other, which is harmless beyond a little latency.
const shardCount = 256

func shardFor(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % shardCount
}

// ShardedMutex is a fixed-size pool of mutexes keyed by string. Memory
// use is constant no matter how many distinct keys are locked.
type ShardedMutex struct {
	shards [shardCount]sync.Mutex
}

// Lock acquires the mutex owning the key and returns its unlock func.
func (s *ShardedMutex) Lock(key string) func() {
	mu := &s.shards[shardFor(key)]
	mu.Lock()
	return mu.Unlock
}
