package app

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestRedisSubmissionLockKeyIsHashed(t *testing.T) {
	lock := NewRedisSubmissionLock(nil, " portal:locks: ")
	key := lock.redisKey("user@example.com|c1|jane@example.com|jane doe|555")

	if !strings.HasPrefix(key, "portal:locks:") {
		t.Fatalf("expected custom prefix, got %s", key)
	}
	if strings.Contains(key, "example.com") {
		t.Fatalf("expected participant details to be hashed, got %s", key)
	}
	if len(strings.TrimPrefix(key, "portal:locks:")) != 64 {
		t.Fatalf("expected a sha256 hex digest, got %s", key)
	}

	if NewRedisSubmissionLock(nil, "").prefix != "camp_portal:submission_lock" {
		t.Fatal("expected default prefix")
	}
}

func TestSubmissionLockWithoutClientGrants(t *testing.T) {
	for _, lock := range []SubmissionLock{NoopSubmissionLock{}, NewRedisSubmissionLock(nil, "")} {
		release, acquired, err := lock.Acquire(context.Background(), "k", time.Second)
		if err != nil || !acquired {
			t.Fatalf("%T: expected the lock to be granted, got acquired=%v err=%v", lock, acquired, err)
		}
		release()
	}
}
