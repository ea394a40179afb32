package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront-newsletter/internal/model"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// maxTxRetries bounds optimistic-lock retries on a contended email.
const maxTxRetries = 5

type RedisStore struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "newsletter"
	}
	return &RedisStore{rdb: rdb, prefix: prefix, now: time.Now}
}

func (s *RedisStore) subscriberKey(id string) string {
	return fmt.Sprintf("%s:subscriber:%s", s.prefix, id)
}

func (s *RedisStore) emailIndexKey() string {
	return s.prefix + ":subscribers:by_email"
}

func (s *RedisStore) allZKey() string {
	return s.prefix + ":subscribers:all"
}

func (s *RedisStore) statusKey(st model.Status) string {
	return fmt.Sprintf("%s:subscribers:status:%s", s.prefix, st)
}

func (s *RedisStore) settingsKey() string {
	return s.prefix + ":settings"
}

// reader is satisfied by both *redis.Client and *redis.Tx.
type reader interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	HGet(ctx context.Context, key, field string) *redis.StringCmd
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

// load fetches one record through c, which may be the client or a tx.
func (s *RedisStore) load(ctx context.Context, c reader, id string) (model.Subscriber, error) {
	b, err := c.Get(ctx, s.subscriberKey(id)).Bytes()
	if err == redis.Nil {
		return model.Subscriber{}, ErrNotFound
	}
	if err != nil {
		return model.Subscriber{}, err
	}
	var sub model.Subscriber
	if err := json.Unmarshal(b, &sub); err != nil {
		return model.Subscriber{}, err
	}
	return sub, nil
}

// lookup resolves an email to its record, or ErrNotFound.
func (s *RedisStore) lookup(ctx context.Context, c reader, email string) (model.Subscriber, error) {
	id, err := c.HGet(ctx, s.emailIndexKey(), email).Result()
	if err == redis.Nil {
		return model.Subscriber{}, ErrNotFound
	}
	if err != nil {
		return model.Subscriber{}, err
	}
	return s.load(ctx, c, id)
}

// write queues every key update for sub on pipe.
func (s *RedisStore) write(ctx context.Context, pipe redis.Pipeliner, sub model.Subscriber) error {
	b, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	pipe.Set(ctx, s.subscriberKey(sub.ID), b, 0)
	pipe.HSet(ctx, s.emailIndexKey(), sub.Email, sub.ID)
	pipe.ZAdd(ctx, s.allZKey(), redis.Z{Score: score(sub.SubscribedAt), Member: sub.ID})
	for _, st := range []model.Status{model.StatusSubscribed, model.StatusUnsubscribed} {
		if st == sub.Status {
			pipe.SAdd(ctx, s.statusKey(st), sub.ID)
		} else {
			pipe.SRem(ctx, s.statusKey(st), sub.ID)
		}
	}
	return nil
}

// watchEmail runs fn under WATCH on the email index, retrying when another
// client changed it first.
func (s *RedisStore) watchEmail(ctx context.Context, fn func(tx *redis.Tx) error) error {
	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, fn, s.emailIndexKey())
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return redis.TxFailedErr
}

func (s *RedisStore) Subscribe(ctx context.Context, email, source string) (model.Subscriber, model.SubscribeOutcome, error) {
	email, err := model.NormalizeEmail(email)
	if err != nil {
		return model.Subscriber{}, "", err
	}
	var (
		out     model.Subscriber
		outcome model.SubscribeOutcome
	)
	err = s.watchEmail(ctx, func(tx *redis.Tx) error {
		sub, err := s.lookup(ctx, tx, email)
		now := s.now().UTC()
		switch {
		case errors.Is(err, ErrNotFound):
			sub = model.Subscriber{
				ID:           uuid.NewString(),
				Email:        email,
				Status:       model.StatusSubscribed,
				SubscribedAt: now,
				Source:       source,
			}
			outcome = model.Created
		case err != nil:
			return err
		case sub.Status == model.StatusSubscribed:
			out, outcome = sub, model.AlreadySubscribed
			return nil
		default:
			sub.Status = model.StatusSubscribed
			sub.SubscribedAt = now
			sub.UnsubscribedAt = nil
			outcome = model.Reactivated
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return s.write(ctx, pipe, sub)
		})
		out = sub
		return err
	})
	if err != nil {
		return model.Subscriber{}, "", err
	}
	return out, outcome, nil
}

func (s *RedisStore) Unsubscribe(ctx context.Context, email string) (model.Subscriber, model.UnsubscribeOutcome, error) {
	email, err := model.NormalizeEmail(email)
	if err != nil {
		return model.Subscriber{}, "", err
	}
	var (
		out     model.Subscriber
		outcome model.UnsubscribeOutcome
	)
	err = s.watchEmail(ctx, func(tx *redis.Tx) error {
		sub, err := s.lookup(ctx, tx, email)
		if err != nil {
			return err
		}
		if sub.Status == model.StatusUnsubscribed {
			out, outcome = sub, model.AlreadyUnsubscribed
			return nil
		}
		now := s.now().UTC()
		sub.Status = model.StatusUnsubscribed
		sub.UnsubscribedAt = &now
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return s.write(ctx, pipe, sub)
		})
		out, outcome = sub, model.Unsubscribed
		return err
	})
	if err != nil {
		return model.Subscriber{}, "", err
	}
	return out, outcome, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (model.Subscriber, error) {
	return s.load(ctx, s.rdb, id)
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.watchEmail(ctx, func(tx *redis.Tx) error {
		sub, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, s.subscriberKey(id))
			pipe.HDel(ctx, s.emailIndexKey(), sub.Email)
			pipe.ZRem(ctx, s.allZKey(), id)
			pipe.SRem(ctx, s.statusKey(model.StatusSubscribed), id)
			pipe.SRem(ctx, s.statusKey(model.StatusUnsubscribed), id)
			return nil
		})
		return err
	})
}

// loadMany fetches records for ids, skipping ids whose record vanished
// between the index read and the fetch.
func (s *RedisStore) loadMany(ctx context.Context, ids []string) ([]model.Subscriber, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.subscriberKey(id)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]model.Subscriber, 0, len(vals))
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var sub model.Subscriber
		if err := json.Unmarshal([]byte(str), &sub); err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, nil
}

func (s *RedisStore) stats(ctx context.Context) (model.Stats, error) {
	pipe := s.rdb.Pipeline()
	sub := pipe.SCard(ctx, s.statusKey(model.StatusSubscribed))
	unsub := pipe.SCard(ctx, s.statusKey(model.StatusUnsubscribed))
	if _, err := pipe.Exec(ctx); err != nil {
		return model.Stats{}, err
	}
	st := model.Stats{Subscribed: int(sub.Val()), Unsubscribed: int(unsub.Val())}
	st.Total = st.Subscribed + st.Unsubscribed
	return st, nil
}

// List reads the full index and filters in memory. The subscriber list of a
// single storefront stays small enough for that.
func (s *RedisStore) List(ctx context.Context, f model.ListFilter, page, pageSize int) (model.SubscriberPage, error) {
	stats, err := s.stats(ctx)
	if err != nil {
		return model.SubscriberPage{}, err
	}
	var ids []string
	if f.Status != "" {
		ids, err = s.rdb.SMembers(ctx, s.statusKey(f.Status)).Result()
	} else {
		ids, err = s.rdb.ZRange(ctx, s.allZKey(), 0, -1).Result()
	}
	if err != nil {
		return model.SubscriberPage{}, err
	}
	recs, err := s.loadMany(ctx, ids)
	if err != nil {
		return model.SubscriberPage{}, err
	}
	matched := recs[:0]
	for _, r := range recs {
		if f.Match(r) {
			matched = append(matched, r)
		}
	}
	sortNewestFirst(matched)
	return paginate(matched, stats, page, pageSize), nil
}

func (s *RedisStore) Subscribed(ctx context.Context) ([]model.Subscriber, error) {
	ids, err := s.rdb.SMembers(ctx, s.statusKey(model.StatusSubscribed)).Result()
	if err != nil {
		return nil, err
	}
	recs, err := s.loadMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	sortNewestFirst(recs)
	return recs, nil
}

func (s *RedisStore) GetSettings(ctx context.Context) (model.Settings, error) {
	b, err := s.rdb.Get(ctx, s.settingsKey()).Bytes()
	if err == redis.Nil {
		return model.Settings{}, nil
	}
	if err != nil {
		return model.Settings{}, err
	}
	var st model.Settings
	if err := json.Unmarshal(b, &st); err != nil {
		return model.Settings{}, err
	}
	return st, nil
}

func (s *RedisStore) SaveSettings(ctx context.Context, st model.Settings) error {
	st.UpdatedAt = s.now().UTC()
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.settingsKey(), b, 0).Err()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
