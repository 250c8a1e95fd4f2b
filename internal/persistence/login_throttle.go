package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const loginFailuresPrefix = "crm-access:login-failures:"

// LoginThrottle counts failed logins per email in Redis. Counters expire one
// window after the first failure.
type LoginThrottle struct {
	client      redis.Cmdable
	maxFailures int
	window      time.Duration
}

// NewLoginThrottle builds a throttle. maxFailures <= 0 disables it.
func NewLoginThrottle(client redis.Cmdable, maxFailures int, window time.Duration) *LoginThrottle {
	return &LoginThrottle{client: client, maxFailures: maxFailures, window: window}
}

// Blocked reports whether email has reached the failure limit.
func (t *LoginThrottle) Blocked(ctx context.Context, email string) (bool, error) {
	if t.maxFailures <= 0 {
		return false, nil
	}
	count, err := t.client.Get(ctx, failuresKey(email)).Int()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return count >= t.maxFailures, nil
}

// RecordFailure increments the failure counter for email.
func (t *LoginThrottle) RecordFailure(ctx context.Context, email string) error {
	if t.maxFailures <= 0 {
		return nil
	}
	key := failuresKey(email)
	count, err := t.client.Incr(ctx, key).Result()
	if err != nil {
		return err
	}
	if count == 1 {
		return t.client.Expire(ctx, key, t.window).Err()
	}
	return nil
}

// Reset clears the failure counter after a successful login.
func (t *LoginThrottle) Reset(ctx context.Context, email string) error {
	if t.maxFailures <= 0 {
		return nil
	}
	return t.client.Del(ctx, failuresKey(email)).Err()
}

func failuresKey(email string) string {
	return loginFailuresPrefix + strings.ToLower(strings.TrimSpace(email))
}
