package util

import "runtime"

// MaxShards caps the shard count; beyond this the per-shard maps get too
// small to be worth the extra lock words.
const MaxShards = 256

// ShardCount resolves a requested shard count to the value an index uses.
// requested <= 0 picks 2*GOMAXPROCS. The result is rounded up to a power of
// two and clamped to [1..MaxShards].
func ShardCount(requested int) int {
	if requested <= 0 {
		p := runtime.GOMAXPROCS(0)
		if p < 1 {
			p = 1
		}
		requested = p * 2
	}
	if requested > MaxShards {
		return MaxShards
	}
	return int(NextPow2(uint64(requested)))
}

// ShardIndex maps a 64-bit hash to a shard index.
// shards must be a power of two.
func ShardIndex(hash uint64, shards int) int {
	if shards <= 1 {
		return 0
	}
	return int(hash & uint64(shards-1))
}

// NextPow2 returns the smallest power of two >= x (x == 0 -> 1).
// Results that would overflow are clamped to 1<<63.
func NextPow2(x uint64) uint64 {
	if x <= 1 {
		return 1
	}
	x--
	x |= x >> 1
	x |= x >> 2
	x |= x >> 4
	x |= x >> 8
	x |= x >> 16
	x |= x >> 32
	x++
	if x == 0 {
		return 1 << 63
	}
	return x
}
