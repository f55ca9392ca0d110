package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SubmissionLock serialises identical registration submissions (two tabs, double clicks)
// for a short window. It narrows the race between the duplicate guard's read and the
// create write; it does not replace a backend uniqueness constraint.
type SubmissionLock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), acquired bool, err error)
}

// NoopSubmissionLock always grants the lock.
type NoopSubmissionLock struct{}

func (NoopSubmissionLock) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	return func() {}, true, nil
}

var releaseSubmissionLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisSubmissionLock implements SubmissionLock with SET NX and a token-checked release.
type RedisSubmissionLock struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisSubmissionLock(client redis.UniversalClient, prefix string) *RedisSubmissionLock {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "camp_portal:submission_lock"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")

	return &RedisSubmissionLock{
		client: client,
		prefix: trimmedPrefix,
	}
}

func (l *RedisSubmissionLock) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	if l == nil || l.client == nil {
		return func() {}, true, nil
	}
	if ttl < time.Second {
		ttl = time.Second
	}

	redisKey := l.redisKey(key)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, redisKey, token, ttl).Result()
	if err != nil {
		return func() {}, false, err
	}
	if !ok {
		return func() {}, false, nil
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseSubmissionLockScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err()
	}
	return release, true, nil
}

// redisKey hashes the submission key so participant details never appear in Redis keys.
func (l *RedisSubmissionLock) redisKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return l.prefix + ":" + hex.EncodeToString(sum[:])
}
