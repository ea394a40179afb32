package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"storefront-newsletter/internal/config"
	"storefront-newsletter/internal/model"
	"storefront-newsletter/internal/redisclient"

	_ "github.com/lib/pq"
)

// ErrNotFound is returned when a subscriber id or email does not exist.
var ErrNotFound = errors.New("subscriber not found")

// Store is the subscriber and settings persistence surface. Implementations
// guarantee atomic single-record writes; callers do no locking of their own.
type Store interface {
	// Subscribe creates a subscriber, reactivates an unsubscribed one, or
	// reports that the address is already subscribed.
	Subscribe(ctx context.Context, email, source string) (model.Subscriber, model.SubscribeOutcome, error)
	// Unsubscribe is idempotent; an unknown address returns ErrNotFound.
	Unsubscribe(ctx context.Context, email string) (model.Subscriber, model.UnsubscribeOutcome, error)
	// List returns a filtered page, newest subscriptions first. Stats are
	// always unfiltered.
	List(ctx context.Context, f model.ListFilter, page, pageSize int) (model.SubscriberPage, error)
	Get(ctx context.Context, id string) (model.Subscriber, error)
	Delete(ctx context.Context, id string) error
	// Subscribed returns every currently subscribed record.
	Subscribed(ctx context.Context) ([]model.Subscriber, error)

	// GetSettings returns the zero value when nothing was saved yet.
	GetSettings(ctx context.Context) (model.Settings, error)
	SaveSettings(ctx context.Context, s model.Settings) error

	Ping(ctx context.Context) error
	Close() error
}

// Open builds the store selected by cfg.Store.Driver.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Store.Driver {
	case "", "redis":
		return NewRedisStore(redisclient.New(cfg.Redis), cfg.Redis.Prefix), nil
	case "postgres":
		if cfg.Postgres.DSN == "" {
			return nil, errors.New("postgres.dsn is required for the postgres store")
		}
		db, err := sql.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		s := NewPostgresStore(db)
		if cfg.Postgres.AutoMigrate {
			if err := s.Migrate(ctx); err != nil {
				db.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// sortNewestFirst orders by subscribe time descending, ties by email.
func sortNewestFirst(recs []model.Subscriber) {
	sort.SliceStable(recs, func(i, j int) bool {
		if !recs[i].SubscribedAt.Equal(recs[j].SubscribedAt) {
			return recs[i].SubscribedAt.After(recs[j].SubscribedAt)
		}
		return recs[i].Email < recs[j].Email
	})
}

// paginate slices an already filtered and ordered record set.
func paginate(recs []model.Subscriber, stats model.Stats, page, size int) model.SubscriberPage {
	page, size = model.NormalizePage(page, size)
	p := model.NewPagination(page, size, len(recs))
	start := (page - 1) * size
	if start > len(recs) {
		start = len(recs)
	}
	end := start + size
	if end > len(recs) {
		end = len(recs)
	}
	out := make([]model.Subscriber, end-start)
	copy(out, recs[start:end])
	return model.SubscriberPage{Records: out, Stats: stats, Pagination: p}
}
