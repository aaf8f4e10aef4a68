package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key layout under the configured prefix (default "queue:"):
//
//	{p}waiting       ZSET token -> arrival sequence (FIFO rank)
//	{p}active        ZSET token -> session expiry in ms
//	{p}token:{token} HASH id, user_id, status, created_at_ms, expires_at_ms
//	{p}user:{userId} STRING live token of the user
//	{p}seq           arrival counter
//
// Lapsed sessions are pruned from {p}active by score at the start of every
// script, so no separate sweep is needed to free their slots.

const pruneLua = `
local p = ARGV[1]
local active = p .. 'active'
local waiting = p .. 'waiting'
local now = tonumber(ARGV[2])
redis.call('ZREMRANGEBYSCORE', active, '-inf', now)
`

var issueScript = redis.NewScript(pruneLua + `
local user = ARGV[3]
local userKey = p .. 'user:' .. user
local existing = redis.call('GET', userKey)
if existing then
    local exp = redis.call('ZSCORE', active, existing)
    if exp then
        return {existing, 'ACTIVE', 0, tonumber(exp), 0}
    end
    local rank = redis.call('ZRANK', waiting, existing)
    if rank then
        return {existing, 'WAITING', rank + 1, 0, 0}
    end
end
local token = ARGV[4]
local ttl = tonumber(ARGV[5])
local maxActive = tonumber(ARGV[6])
local retention = tonumber(ARGV[7])
local id = redis.call('INCR', p .. 'seq')
local tk = p .. 'token:' .. token
if redis.call('ZCARD', active) < maxActive then
    local exp = now + ttl
    redis.call('ZADD', active, exp, token)
    redis.call('HSET', tk, 'id', id, 'user_id', user, 'status', 'ACTIVE', 'created_at_ms', now, 'expires_at_ms', exp)
    redis.call('PEXPIRE', tk, ttl + retention)
    redis.call('SET', userKey, token, 'PX', ttl)
    return {token, 'ACTIVE', 0, exp, 1}
end
redis.call('ZADD', waiting, id, token)
redis.call('HSET', tk, 'id', id, 'user_id', user, 'status', 'WAITING', 'created_at_ms', now, 'expires_at_ms', 0)
redis.call('SET', userKey, token)
return {token, 'WAITING', redis.call('ZRANK', waiting, token) + 1, 0, 1}
`)

var admitScript = redis.NewScript(pruneLua + `
local n = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])
local spare = tonumber(ARGV[5]) - redis.call('ZCARD', active)
local retention = tonumber(ARGV[6])
if spare < n then n = spare end
if n <= 0 then return 0 end
local tokens = redis.call('ZRANGE', waiting, 0, n - 1)
local exp = now + ttl
for _, t in ipairs(tokens) do
    redis.call('ZREM', waiting, t)
    redis.call('ZADD', active, exp, t)
    local tk = p .. 'token:' .. t
    redis.call('HSET', tk, 'status', 'ACTIVE', 'expires_at_ms', exp)
    redis.call('PEXPIRE', tk, ttl + retention)
    local uid = redis.call('HGET', tk, 'user_id')
    if uid then
        redis.call('SET', p .. 'user:' .. uid, t, 'PX', ttl)
    end
end
return #tokens
`)

var expireScript = redis.NewScript(`
local p = ARGV[1]
local token = ARGV[2]
local retention = tonumber(ARGV[3])
local tk = p .. 'token:' .. token
if redis.call('EXISTS', tk) == 0 then return 0 end
redis.call('ZREM', p .. 'active', token)
redis.call('ZREM', p .. 'waiting', token)
local uid = redis.call('HGET', tk, 'user_id')
if uid and redis.call('GET', p .. 'user:' .. uid) == token then
    redis.call('DEL', p .. 'user:' .. uid)
end
local prev = redis.call('HGET', tk, 'status')
redis.call('HSET', tk, 'status', 'EXPIRED', 'expires_at_ms', 0)
redis.call('PEXPIRE', tk, retention)
if prev == 'EXPIRED' then return 0 end
return 1
`)

var lookupScript = redis.NewScript(pruneLua + `
local token = ARGV[3]
local uid = redis.call('HGET', p .. 'token:' .. token, 'user_id')
if not uid then return {'', '', 0, 0} end
local exp = redis.call('ZSCORE', active, token)
if exp then return {uid, 'ACTIVE', 0, tonumber(exp)} end
local rank = redis.call('ZRANK', waiting, token)
if rank then return {uid, 'WAITING', rank + 1, 0} end
return {uid, 'EXPIRED', 0, 0}
`)

var countsScript = redis.NewScript(pruneLua + `
return {redis.call('ZCARD', active), redis.call('ZCARD', waiting)}
`)

// RedisStore implements Store with one Lua script per operation.
type RedisStore struct {
	client    redis.Scripter
	prefix    string
	retention time.Duration
}

// NewRedisStore returns a Store under prefix.  Expired tokens stay
// queryable for retention before Redis drops them.
func NewRedisStore(client redis.Scripter, prefix string, retention time.Duration) *RedisStore {
	if retention <= 0 {
		retention = 10 * time.Minute
	}
	return &RedisStore{client: client, prefix: prefix, retention: retention}
}

func ms(t time.Time) int64 { return t.UnixMilli() }

// Issue implements Store.
func (s *RedisStore) Issue(ctx context.Context, userID, candidate string, now time.Time, ttl time.Duration, maxActive int) (Entry, bool, error) {
	res, err := issueScript.Run(ctx, s.client, nil,
		s.prefix, ms(now), userID, candidate, ttl.Milliseconds(), maxActive, s.retention.Milliseconds()).Slice()
	if err != nil {
		return Entry{}, false, fmt.Errorf("issue token: %w", err)
	}
	if len(res) != 5 {
		return Entry{}, false, fmt.Errorf("issue token: unexpected reply %v", res)
	}
	e := Entry{
		Token:    asString(res[0]),
		UserID:   userID,
		Status:   asString(res[1]),
		Position: asInt(res[2]),
	}
	if exp := asInt(res[3]); exp > 0 {
		e.ExpiresAt = time.UnixMilli(exp).UTC()
	}
	return e, asInt(res[4]) == 1, nil
}

// Lookup implements Store.
func (s *RedisStore) Lookup(ctx context.Context, token string, now time.Time) (Entry, error) {
	res, err := lookupScript.Run(ctx, s.client, nil, s.prefix, ms(now), token).Slice()
	if err != nil {
		return Entry{}, fmt.Errorf("lookup token: %w", err)
	}
	if len(res) != 4 {
		return Entry{}, fmt.Errorf("lookup token: unexpected reply %v", res)
	}
	if asString(res[1]) == "" {
		return Entry{}, ErrUnknownToken
	}
	e := Entry{Token: token, UserID: asString(res[0]), Status: asString(res[1]), Position: asInt(res[2])}
	if exp := asInt(res[3]); exp > 0 {
		e.ExpiresAt = time.UnixMilli(exp).UTC()
	}
	return e, nil
}

// Expire implements Store.
func (s *RedisStore) Expire(ctx context.Context, token string) (bool, error) {
	n, err := expireScript.Run(ctx, s.client, nil, s.prefix, token, s.retention.Milliseconds()).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("expire token: %w", err)
	}
	return n == 1, nil
}

// Admit implements Store.
func (s *RedisStore) Admit(ctx context.Context, n int, now time.Time, ttl time.Duration, maxActive int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	got, err := admitScript.Run(ctx, s.client, nil,
		s.prefix, ms(now), n, ttl.Milliseconds(), maxActive, s.retention.Milliseconds()).Int()
	if err != nil {
		return 0, fmt.Errorf("admit waiting: %w", err)
	}
	return got, nil
}

// Counts implements Store.
func (s *RedisStore) Counts(ctx context.Context, now time.Time) (int64, int64, error) {
	res, err := countsScript.Run(ctx, s.client, nil, s.prefix, ms(now)).Int64Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("queue counts: %w", err)
	}
	if len(res) != 2 {
		return 0, 0, fmt.Errorf("queue counts: unexpected reply %v", res)
	}
	return res[0], res[1], nil
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asInt(v interface{}) int64 {
	n, _ := v.(int64)
	return n
}

var _ Store = (*RedisStore)(nil)
