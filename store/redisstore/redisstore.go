// Package redisstore is the Redis Store driver built on go-redis.
//
// Layout:
//
//	link:id:<id>        hash {locator, expires_at (unix ms)}
//	link:loc:<locator>  string <id>
//
// Both keys carry PEXPIREAT at the record's expiration, so Redis reclaims
// expired links itself and DeleteExpired has nothing to do.
package redisstore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/IvanBrykalov/linkcache/cache"
	"github.com/IvanBrykalov/linkcache/store"
)

const (
	idPrefix  = "link:id:"
	locPrefix = "link:loc:"
)

// createScript inserts a mapping unless a live record owns the id or the
// locator. KEYS: id key, locator key. ARGV: id, locator, expires_at ms,
// now ms, id key prefix. Returns 1 on insert, 0 on conflict.
var createScript = redis.NewScript(`
local now = tonumber(ARGV[4])
local function live(key)
  local exp = redis.call('HGET', key, 'expires_at')
  return exp and tonumber(exp) > now
end
if live(KEYS[1]) then
  return 0
end
local owner = redis.call('GET', KEYS[2])
if owner and live(ARGV[5] .. owner) then
  local loc = redis.call('HGET', ARGV[5] .. owner, 'locator')
  if loc == ARGV[2] then
    return 0
  end
end
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1], 'locator', ARGV[2], 'expires_at', ARGV[3])
redis.call('PEXPIREAT', KEYS[1], ARGV[3])
redis.call('SET', KEYS[2], ARGV[1])
redis.call('PEXPIREAT', KEYS[2], ARGV[3])
return 1
`)

// refreshScript moves the expiration of a live record and its locator key.
// KEYS: id key. ARGV: expires_at ms, now ms, locator key prefix.
// Returns 1 on success, 0 when the record is gone or expired.
var refreshScript = redis.NewScript(`
local exp = redis.call('HGET', KEYS[1], 'expires_at')
if not exp or tonumber(exp) <= tonumber(ARGV[2]) then
  return 0
end
local loc = redis.call('HGET', KEYS[1], 'locator')
redis.call('HSET', KEYS[1], 'expires_at', ARGV[1])
redis.call('PEXPIREAT', KEYS[1], ARGV[1])
redis.call('PEXPIREAT', ARGV[3] .. loc, ARGV[1])
return 1
`)

// Store implements store.Store on a Redis client.
type Store struct {
	rdb redis.UniversalClient
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// New wraps rdb. now overrides the clock used to filter expired records;
// nil means time.Now.
func New(rdb redis.UniversalClient, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{rdb: rdb, now: now}
}

// Dial connects to a single Redis node and pings it.
func Dial(ctx context.Context, addr string) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, store.Unavailable(err, "ping redis")
	}
	return New(rdb, nil), nil
}

func (s *Store) FindByID(ctx context.Context, id string) (cache.Record, error) {
	fields, err := s.rdb.HGetAll(ctx, idPrefix+id).Result()
	if err != nil {
		return cache.Record{}, store.Unavailable(err, "find link by id")
	}
	if len(fields) == 0 {
		return cache.Record{}, store.ErrNotFound
	}
	ms, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		// A malformed hash is treated as absent; Create overwrites it.
		return cache.Record{}, store.ErrNotFound
	}
	rec := cache.Record{ID: id, Locator: fields["locator"], ExpiresAt: time.UnixMilli(ms)}
	if !rec.Live(s.now()) {
		return cache.Record{}, store.ErrNotFound
	}
	return rec, nil
}

func (s *Store) FindByLocator(ctx context.Context, locator string) (cache.Record, error) {
	id, err := s.rdb.Get(ctx, locPrefix+locator).Result()
	if errors.Is(err, redis.Nil) {
		return cache.Record{}, store.ErrNotFound
	}
	if err != nil {
		return cache.Record{}, store.Unavailable(err, "find link by locator")
	}
	rec, err := s.FindByID(ctx, id)
	if err != nil {
		return cache.Record{}, err
	}
	if rec.Locator != locator {
		// The id was reused for another locator after this one expired.
		return cache.Record{}, store.ErrNotFound
	}
	return rec, nil
}

func (s *Store) Create(ctx context.Context, rec cache.Record) error {
	n, err := createScript.Run(ctx, s.rdb,
		[]string{idPrefix + rec.ID, locPrefix + rec.Locator},
		rec.ID, rec.Locator, rec.ExpiresAt.UnixMilli(), s.now().UnixMilli(), idPrefix,
	).Int()
	if err != nil {
		return store.Unavailable(err, "create link")
	}
	if n == 0 {
		return store.ErrConflict
	}
	return nil
}

func (s *Store) RefreshExpiration(ctx context.Context, id string, expiresAt time.Time) error {
	n, err := refreshScript.Run(ctx, s.rdb,
		[]string{idPrefix + id},
		expiresAt.UnixMilli(), s.now().UnixMilli(), locPrefix,
	).Int()
	if err != nil {
		return store.Unavailable(err, "refresh link expiration")
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteExpired is a no-op: keys expire natively.
func (s *Store) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (s *Store) Close() error {
	return s.rdb.Close()
}
