package cache

import (
	"sync"

	"github.com/IvanBrykalov/linkcache/internal/util"
)

// index is one of the two views of the cache: a string key (id or locator)
// mapped to a Record copy. It is split into power-of-two shards, each with
// its own RWMutex, so unrelated keys never wait on each other.
type index struct {
	shards []*shard
}

// shard is an independent partition of an index.
type shard struct {
	mu sync.RWMutex
	m  map[string]Record // guarded by mu

	// Separate cache line so lock traffic on neighbouring shards
	// doesn't false-share with this one.
	_ util.CacheLinePad
}

func newIndex(shards, capacity int) *index {
	ix := &index{shards: make([]*shard, shards)}
	perShard := (capacity + shards - 1) / shards
	for i := range ix.shards {
		ix.shards[i] = &shard{m: make(map[string]Record, perShard)}
	}
	return ix
}

func (ix *index) shardFor(key string) *shard {
	return ix.shards[util.ShardIndex(util.KeyHash(key), len(ix.shards))]
}

func (ix *index) get(key string) (Record, bool) {
	s := ix.shardFor(key)
	s.mu.RLock()
	rec, ok := s.m[key]
	s.mu.RUnlock()
	return rec, ok
}

// put stores rec under key and returns what it replaced. When the previous
// entry describes the same mapping with a later expiration, that later
// instant is kept: refreshes never move ExpiresAt backwards.
func (ix *index) put(key string, rec Record) (stored, prev Record, hadPrev bool) {
	s := ix.shardFor(key)
	s.mu.Lock()
	prev, hadPrev = s.m[key]
	if hadPrev && prev.sameMapping(rec) && prev.ExpiresAt.After(rec.ExpiresAt) {
		rec.ExpiresAt = prev.ExpiresAt
	}
	s.m[key] = rec
	s.mu.Unlock()
	return rec, prev, hadPrev
}

// removeIf deletes key if its current record satisfies pred. The check and
// the delete happen under one shard lock, so a concurrent fresher write is
// never removed by a stale decision.
func (ix *index) removeIf(key string, pred func(Record) bool) (Record, bool) {
	s := ix.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.m[key]
	if !ok || !pred(rec) {
		return Record{}, false
	}
	delete(s.m, key)
	return rec, true
}

func (ix *index) len() int {
	total := 0
	for _, s := range ix.shards {
		s.mu.RLock()
		total += len(s.m)
		s.mu.RUnlock()
	}
	return total
}

// snapshot copies every record, one shard at a time. The result is not a
// point-in-time view of the whole index.
func (ix *index) snapshot() []Record {
	out := make([]Record, 0, ix.len())
	for _, s := range ix.shards {
		s.mu.RLock()
		for _, rec := range s.m {
			out = append(out, rec)
		}
		s.mu.RUnlock()
	}
	return out
}

// collect returns the records matching pred, one shard at a time.
func (ix *index) collect(pred func(Record) bool) []Record {
	var out []Record
	for _, s := range ix.shards {
		s.mu.RLock()
		for _, rec := range s.m {
			if pred(rec) {
				out = append(out, rec)
			}
		}
		s.mu.RUnlock()
	}
	return out
}
