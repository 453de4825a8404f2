package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var errPurposeNotFound = errors.New("pending purpose record not found")

// purposeStore keeps the pending side of issued purpose tokens in the
// fast store, which is what makes them single-use: the signed token alone
// proves nothing once its pending record is consumed.
type purposeStore struct {
	redis  redis.UniversalClient
	prefix string
}

func newPurposeStore(redisClient redis.UniversalClient, prefix string) *purposeStore {
	return &purposeStore{redis: redisClient, prefix: prefix}
}

func (s *purposeStore) key(kind, id string) string {
	return s.prefix + ":pt:" + kind + ":" + id
}

func (s *purposeStore) attemptsKey(kind, id string) string {
	return s.prefix + ":pta:" + kind + ":" + id
}

// Save records a freshly issued purpose token. The value is the owning
// account id, cross-checked against the token subject at consumption.
func (s *purposeStore) Save(ctx context.Context, kind, id, accountID string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, s.key(kind, id), accountID, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Peek returns the owning account id without consuming the record. Used
// by the MFA path, where a wrong code must not burn the challenge.
func (s *purposeStore) Peek(ctx context.Context, kind, id string) (string, error) {
	accountID, err := s.redis.Get(ctx, s.key(kind, id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", errPurposeNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return accountID, nil
}

// Consume atomically reads and deletes the record, enforcing single use.
func (s *purposeStore) Consume(ctx context.Context, kind, id string) (string, error) {
	accountID, err := s.redis.GetDel(ctx, s.key(kind, id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", errPurposeNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	_ = s.redis.Del(ctx, s.attemptsKey(kind, id)).Err()
	return accountID, nil
}

// RecordFailure counts one failed presentation. Once the budget is spent
// the pending record itself is destroyed, so no further attempts against
// this challenge are possible.
func (s *purposeStore) RecordFailure(ctx context.Context, kind, id string, maxAttempts int, ttl time.Duration) (bool, error) {
	key := s.attemptsKey(kind, id)
	count, err := s.redis.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if count == 1 {
		if err := s.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	if count >= int64(maxAttempts) {
		if err := s.redis.Del(ctx, s.key(kind, id), key).Err(); err != nil {
			return true, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return true, nil
	}
	return false, nil
}
