package otp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps codes in Redis with key expiry matching the code expiry.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisClient connects and pings Redis.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "otp:", now: time.Now}
}

func (r *RedisStore) codeKey(email string) string     { return r.prefix + "code:" + email }
func (r *RedisStore) attemptsKey(email string) string { return r.prefix + "attempts:" + email }
func (r *RedisStore) verifiedKey(email string) string { return r.prefix + "verified:" + email }

// SaveCode stores the code and resets its failure counter. Attempts live in
// their own key so RecordFailure can use INCR.
func (r *RedisStore) SaveCode(ctx context.Context, email string, e Entry) error {
	ttl := e.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return r.DeleteCode(ctx, email)
	}
	e.Attempts = 0
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.codeKey(email), data, ttl)
		pipe.Del(ctx, r.attemptsKey(email))
		return nil
	})
	return err
}

type multiGetter interface {
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
}

func (r *RedisStore) load(ctx context.Context, c multiGetter, email string) (*Entry, error) {
	vals, err := c.MGet(ctx, r.codeKey(email), r.attemptsKey(email)).Result()
	if err != nil {
		return nil, err
	}
	raw, ok := vals[0].(string)
	if !ok {
		return nil, nil
	}
	var e Entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, err
	}
	if n, ok := vals[1].(string); ok {
		e.Attempts, _ = strconv.Atoi(n)
	}
	return &e, nil
}

func (r *RedisStore) LoadCode(ctx context.Context, email string) (*Entry, error) {
	return r.load(ctx, r.client, email)
}

func (r *RedisStore) DeleteCode(ctx context.Context, email string) error {
	return r.client.Del(ctx, r.codeKey(email), r.attemptsKey(email)).Err()
}

// RecordFailure increments the counter with INCR, so concurrent failures
// each see a distinct count. The counter expires with the code.
func (r *RedisStore) RecordFailure(ctx context.Context, email string) (int, error) {
	ttl, err := r.client.PTTL(ctx, r.codeKey(email)).Result()
	if err != nil {
		return 0, err
	}
	if ttl <= 0 {
		return 0, nil
	}
	var incr *redis.IntCmd
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, r.attemptsKey(email))
		pipe.PExpire(ctx, r.attemptsKey(email), ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(incr.Val()), nil
}

// ConsumeCode deletes the code under WATCH. A concurrent failure or reissue
// aborts the transaction and the code is not consumed.
func (r *RedisStore) ConsumeCode(ctx context.Context, email, code string) (bool, error) {
	consumed := false
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		e, err := r.load(ctx, tx, email)
		if err != nil {
			return err
		}
		if e == nil || e.Code != code || e.Attempts >= MaxAttempts {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, r.codeKey(email), r.attemptsKey(email))
			return nil
		})
		if err != nil {
			return err
		}
		consumed = true
		return nil
	}, r.codeKey(email), r.attemptsKey(email))
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return consumed, nil
}

func (r *RedisStore) MarkVerified(ctx context.Context, email string, until time.Time) error {
	ttl := until.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, r.verifiedKey(email), "1", ttl).Err()
}

func (r *RedisStore) ConsumeVerified(ctx context.Context, email string) (bool, error) {
	_, err := r.client.GetDel(ctx, r.verifiedKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
