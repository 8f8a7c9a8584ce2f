package registration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	draftKeyPrefix   = "registration:draft:"
	maxUpdateRetries = 5
)

// DraftStore はドラフトの保存先です。
type DraftStore interface {
	Create(ctx context.Context, draft *Draft) error
	// Get はドラフトを取得します。存在しない場合は nil を返します。
	Get(ctx context.Context, id string) (*Draft, error)
	// Update は mutate を適用して保存します。mutate がエラーを返した場合は保存しません。
	Update(ctx context.Context, id string, mutate func(*Draft) error) (*Draft, error)
}

// RedisStore はドラフトを Redis に保存します。
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

// NewRedisStore は RedisStore を作成します。
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		rdb: rdb,
		ttl: ttl,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Create はドラフトを新規に保存します。
func (s *RedisStore) Create(ctx context.Context, draft *Draft) error {
	if draft == nil || draft.ID == "" {
		return fmt.Errorf("draft id is required")
	}
	now := s.now()
	draft.CreatedAt = now
	draft.UpdatedAt = now
	if s.ttl > 0 {
		draft.ExpiresAt = now.Add(s.ttl)
	}

	payload, err := json.Marshal(draft)
	if err != nil {
		return err
	}
	ok, err := s.rdb.SetNX(ctx, draftKey(draft.ID), payload, s.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("draft already exists: %s", draft.ID)
	}
	return nil
}

// Get はドラフトを取得します。
func (s *RedisStore) Get(ctx context.Context, id string) (*Draft, error) {
	if id == "" {
		return nil, fmt.Errorf("draft id is required")
	}
	data, err := s.rdb.Get(ctx, draftKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var draft Draft
	if err := json.Unmarshal(data, &draft); err != nil {
		return nil, err
	}
	return &draft, nil
}

// Update は WATCH による楽観的ロックでドラフトを更新します。TTL は作成時のまま維持します。
func (s *RedisStore) Update(ctx context.Context, id string, mutate func(*Draft) error) (*Draft, error) {
	key := draftKey(id)
	var updated *Draft

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return errDraftNotFound
			}
			return err
		}
		var draft Draft
		if err := json.Unmarshal(data, &draft); err != nil {
			return err
		}
		if err := mutate(&draft); err != nil {
			return err
		}
		draft.UpdatedAt = s.now()
		payload, err := json.Marshal(&draft)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, redis.KeepTTL)
			return nil
		})
		if err == nil {
			updated = &draft
		}
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, fmt.Errorf("draft %s: too many concurrent updates", id)
}

func draftKey(id string) string {
	return draftKeyPrefix + id
}
