package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"storefront-newsletter/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepClock returns a time one second later on every call.
func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	t := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStore(rdb, "test")
	s.now = stepClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestRedisSubscribeLifecycle(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	sub, outcome, err := s.Subscribe(ctx, "  Alice@Example.COM ", "footer-form")
	require.NoError(t, err)
	assert.Equal(t, model.Created, outcome)
	assert.Equal(t, "alice@example.com", sub.Email)
	assert.Equal(t, model.StatusSubscribed, sub.Status)
	assert.Nil(t, sub.UnsubscribedAt)
	assert.True(t, mr.Exists("test:subscriber:"+sub.ID))

	again, outcome, err := s.Subscribe(ctx, "alice@example.com", "popup")
	require.NoError(t, err)
	assert.Equal(t, model.AlreadySubscribed, outcome)
	assert.Equal(t, sub.ID, again.ID)
	assert.Equal(t, "footer-form", again.Source)

	_, _, err = s.Subscribe(ctx, "not-an-email", "x")
	assert.ErrorIs(t, err, model.ErrInvalidEmail)
}

func TestRedisUnsubscribeIdempotent(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()
	_, _, err := s.Subscribe(ctx, "a@example.com", "")
	require.NoError(t, err)

	first, outcome, err := s.Unsubscribe(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, model.Unsubscribed, outcome)
	assert.Equal(t, model.StatusUnsubscribed, first.Status)
	require.NotNil(t, first.UnsubscribedAt)

	second, outcome, err := s.Unsubscribe(ctx, "A@example.com")
	require.NoError(t, err)
	assert.Equal(t, model.AlreadyUnsubscribed, outcome)
	assert.Equal(t, model.StatusUnsubscribed, second.Status)
	require.NotNil(t, second.UnsubscribedAt)
	assert.True(t, first.UnsubscribedAt.Equal(*second.UnsubscribedAt))

	_, _, err = s.Unsubscribe(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisReactivate(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()
	orig, _, err := s.Subscribe(ctx, "b@example.com", "")
	require.NoError(t, err)
	_, _, err = s.Unsubscribe(ctx, "b@example.com")
	require.NoError(t, err)

	sub, outcome, err := s.Subscribe(ctx, "b@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, model.Reactivated, outcome)
	assert.Equal(t, orig.ID, sub.ID)
	assert.Nil(t, sub.UnsubscribedAt)
	assert.True(t, sub.SubscribedAt.After(orig.SubscribedAt))

	page, err := s.List(ctx, model.ListFilter{}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, model.Stats{Total: 1, Subscribed: 1}, page.Stats)
}

func seedRedis(t *testing.T, s *RedisStore, subscribed, unsubscribed int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < subscribed+unsubscribed; i++ {
		email := fmt.Sprintf("user%03d@example.com", i)
		_, _, err := s.Subscribe(ctx, email, "seed")
		require.NoError(t, err)
		if i >= subscribed {
			_, _, err = s.Unsubscribe(ctx, email)
			require.NoError(t, err)
		}
	}
}

func TestRedisListStatsAndPagination(t *testing.T) {
	s, _ := newTestRedisStore(t)
	seedRedis(t, s, 120, 30)

	page, err := s.List(context.Background(), model.ListFilter{Status: model.StatusSubscribed}, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, model.Stats{Total: 150, Subscribed: 120, Unsubscribed: 30}, page.Stats)
	assert.Len(t, page.Records, 50)
	assert.Equal(t, 3, page.Pagination.TotalPages)
	assert.Equal(t, 120, page.Pagination.TotalItems)
	assert.True(t, page.Pagination.HasNext)
	assert.False(t, page.Pagination.HasPrev)
	for _, r := range page.Records {
		assert.Equal(t, model.StatusSubscribed, r.Status)
	}
	// newest first
	assert.Equal(t, "user119@example.com", page.Records[0].Email)
}

func TestRedisListPagesCoverFilter(t *testing.T) {
	s, _ := newTestRedisStore(t)
	seedRedis(t, s, 23, 9)
	ctx := context.Background()

	for _, status := range []model.Status{"", model.StatusSubscribed, model.StatusUnsubscribed} {
		for _, size := range []int{1, 7, 50} {
			seen := map[string]bool{}
			var total int
			var stats model.Stats
			for p := 1; ; p++ {
				page, err := s.List(ctx, model.ListFilter{Status: status}, p, size)
				require.NoError(t, err)
				stats = page.Stats
				for _, r := range page.Records {
					require.False(t, seen[r.ID], "record %s on two pages", r.Email)
					seen[r.ID] = true
					total++
				}
				if !page.Pagination.HasNext {
					break
				}
			}
			assert.Equal(t, stats.Count(status), total, "status=%q size=%d", status, size)
		}
	}
}

func TestRedisListSearch(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()
	for _, e := range []string{"anna@shop.io", "bob@example.com", "joanna@example.com"} {
		_, _, err := s.Subscribe(ctx, e, "")
		require.NoError(t, err)
	}
	page, err := s.List(ctx, model.ListFilter{Search: "ANNA"}, 0, 0)
	require.NoError(t, err)
	require.Len(t, page.Records, 2)
	assert.Equal(t, "joanna@example.com", page.Records[0].Email)
	assert.Equal(t, 3, page.Stats.Total)
	assert.Equal(t, model.DefaultPageSize, page.Pagination.PageSize)

	empty, err := s.List(ctx, model.ListFilter{Search: "zzz"}, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, empty.Records)
	assert.Equal(t, 1, empty.Pagination.TotalPages)
}

func TestRedisDelete(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()
	sub, _, err := s.Subscribe(ctx, "gone@example.com", "")
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, sub.ID))
	assert.False(t, mr.Exists("test:subscriber:"+sub.ID))
	_, err = s.Get(ctx, sub.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, sub.ID), ErrNotFound)

	// the address can subscribe again as a new record
	again, outcome, err := s.Subscribe(ctx, "gone@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, model.Created, outcome)
	assert.NotEqual(t, sub.ID, again.ID)
}

func TestRedisSubscribed(t *testing.T) {
	s, _ := newTestRedisStore(t)
	seedRedis(t, s, 4, 2)
	subs, err := s.Subscribed(context.Background())
	require.NoError(t, err)
	assert.Len(t, subs, 4)
	for _, r := range subs {
		assert.Equal(t, model.StatusSubscribed, r.Status)
	}
}

func TestRedisSettings(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	st, err := s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.Settings{}, st)

	in := model.Settings{CompanyName: "Acme", PrimaryColor: "#ff0000", Social: model.SocialLinks{TikTok: "https://tiktok.com/@acme"}}
	require.NoError(t, s.SaveSettings(ctx, in))
	got, err := s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.CompanyName)
	assert.Equal(t, "https://tiktok.com/@acme", got.Social.TikTok)
	assert.False(t, got.UpdatedAt.IsZero())

	// whole-record replace
	require.NoError(t, s.SaveSettings(ctx, model.Settings{CompanyName: "Other"}))
	got, err = s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Other", got.CompanyName)
	assert.Empty(t, got.PrimaryColor)
}

func TestRedisConcurrentSubscribe(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = s.Subscribe(ctx, "race@example.com", "")
		}()
	}
	wg.Wait()
	page, err := s.List(ctx, model.ListFilter{}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Stats.Total)
}
