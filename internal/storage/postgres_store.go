package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"storefront-newsletter/internal/model"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS newsletter_subscribers (
	id              UUID PRIMARY KEY,
	email           TEXT NOT NULL UNIQUE,
	status          TEXT NOT NULL CHECK (status IN ('subscribed', 'unsubscribed')),
	subscribed_at   TIMESTAMPTZ NOT NULL,
	unsubscribed_at TIMESTAMPTZ,
	source          TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS newsletter_subscribers_subscribed_at_idx
	ON newsletter_subscribers (subscribed_at DESC, email);
CREATE TABLE IF NOT EXISTS newsletter_settings (
	id         SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);`

const subscriberColumns = `id, email, status, subscribed_at, unsubscribed_at, source`

// filterClause selects by optional status ($1) and email substring ($2).
const filterClause = `($1::text = '' OR status = $1::text) AND ($2::text = '' OR email ILIKE '%' || $2::text || '%')`

// uniqueViolation is the postgres SQLSTATE for a duplicate key.
const uniqueViolation = "23505"

// PostgresStore keeps subscribers and settings in postgres via lib/pq.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// Migrate creates the tables when they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscriber(r rowScanner) (model.Subscriber, error) {
	var (
		sub   model.Subscriber
		unsub sql.NullTime
	)
	if err := r.Scan(&sub.ID, &sub.Email, &sub.Status, &sub.SubscribedAt, &unsub, &sub.Source); err != nil {
		return model.Subscriber{}, err
	}
	sub.SubscribedAt = sub.SubscribedAt.UTC()
	if unsub.Valid {
		t := unsub.Time.UTC()
		sub.UnsubscribedAt = &t
	}
	return sub, nil
}

func (s *PostgresStore) Subscribe(ctx context.Context, email, source string) (model.Subscriber, model.SubscribeOutcome, error) {
	email, err := model.NormalizeEmail(email)
	if err != nil {
		return model.Subscriber{}, "", err
	}
	// A concurrent insert of the same address surfaces as a unique
	// violation; the second attempt then finds the row.
	for attempt := 0; ; attempt++ {
		sub, outcome, err := s.subscribeTx(ctx, email, source)
		var pqErr *pq.Error
		if attempt == 0 && errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			continue
		}
		return sub, outcome, err
	}
}

func (s *PostgresStore) subscribeTx(ctx context.Context, email, source string) (model.Subscriber, model.SubscribeOutcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Subscriber{}, "", err
	}
	defer tx.Rollback()

	now := s.now().UTC()
	sub, err := scanSubscriber(tx.QueryRowContext(ctx,
		`SELECT `+subscriberColumns+` FROM newsletter_subscribers WHERE email = $1 FOR UPDATE`, email))
	var outcome model.SubscribeOutcome
	switch {
	case errors.Is(err, sql.ErrNoRows):
		sub = model.Subscriber{
			ID:           uuid.NewString(),
			Email:        email,
			Status:       model.StatusSubscribed,
			SubscribedAt: now,
			Source:       source,
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO newsletter_subscribers (`+subscriberColumns+`) VALUES ($1, $2, $3, $4, NULL, $5)`,
			sub.ID, sub.Email, sub.Status, sub.SubscribedAt, sub.Source)
		outcome = model.Created
	case err != nil:
		return model.Subscriber{}, "", err
	case sub.Status == model.StatusSubscribed:
		return sub, model.AlreadySubscribed, nil
	default:
		sub.Status = model.StatusSubscribed
		sub.SubscribedAt = now
		sub.UnsubscribedAt = nil
		_, err = tx.ExecContext(ctx,
			`UPDATE newsletter_subscribers SET status = $2, subscribed_at = $3, unsubscribed_at = NULL WHERE id = $1`,
			sub.ID, sub.Status, sub.SubscribedAt)
		outcome = model.Reactivated
	}
	if err != nil {
		return model.Subscriber{}, "", err
	}
	if err := tx.Commit(); err != nil {
		return model.Subscriber{}, "", err
	}
	return sub, outcome, nil
}

func (s *PostgresStore) Unsubscribe(ctx context.Context, email string) (model.Subscriber, model.UnsubscribeOutcome, error) {
	email, err := model.NormalizeEmail(email)
	if err != nil {
		return model.Subscriber{}, "", err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Subscriber{}, "", err
	}
	defer tx.Rollback()

	sub, err := scanSubscriber(tx.QueryRowContext(ctx,
		`SELECT `+subscriberColumns+` FROM newsletter_subscribers WHERE email = $1 FOR UPDATE`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Subscriber{}, "", ErrNotFound
	}
	if err != nil {
		return model.Subscriber{}, "", err
	}
	if sub.Status == model.StatusUnsubscribed {
		return sub, model.AlreadyUnsubscribed, nil
	}
	now := s.now().UTC()
	sub.Status = model.StatusUnsubscribed
	sub.UnsubscribedAt = &now
	if _, err := tx.ExecContext(ctx,
		`UPDATE newsletter_subscribers SET status = $2, unsubscribed_at = $3 WHERE id = $1`,
		sub.ID, sub.Status, now); err != nil {
		return model.Subscriber{}, "", err
	}
	if err := tx.Commit(); err != nil {
		return model.Subscriber{}, "", err
	}
	return sub, model.Unsubscribed, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (model.Subscriber, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Subscriber{}, ErrNotFound
	}
	sub, err := scanSubscriber(s.db.QueryRowContext(ctx,
		`SELECT `+subscriberColumns+` FROM newsletter_subscribers WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Subscriber{}, ErrNotFound
	}
	return sub, err
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM newsletter_subscribers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// escapeLike makes search match literally under ILIKE.
func escapeLike(q string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(q)
}

func (s *PostgresStore) List(ctx context.Context, f model.ListFilter, page, pageSize int) (model.SubscriberPage, error) {
	page, pageSize = model.NormalizePage(page, pageSize)
	var stats model.Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*),
		COUNT(*) FILTER (WHERE status = 'subscribed'),
		COUNT(*) FILTER (WHERE status = 'unsubscribed')
		FROM newsletter_subscribers`).Scan(&stats.Total, &stats.Subscribed, &stats.Unsubscribed); err != nil {
		return model.SubscriberPage{}, err
	}

	status := string(f.Status)
	search := escapeLike(strings.ToLower(strings.TrimSpace(f.Search)))
	var matched int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM newsletter_subscribers WHERE `+filterClause,
		status, search).Scan(&matched); err != nil {
		return model.SubscriberPage{}, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+subscriberColumns+` FROM newsletter_subscribers WHERE `+filterClause+
			` ORDER BY subscribed_at DESC, email ASC LIMIT $3 OFFSET $4`,
		status, search, pageSize, (page-1)*pageSize)
	if err != nil {
		return model.SubscriberPage{}, err
	}
	defer rows.Close()
	recs := make([]model.Subscriber, 0, pageSize)
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return model.SubscriberPage{}, err
		}
		recs = append(recs, sub)
	}
	if err := rows.Err(); err != nil {
		return model.SubscriberPage{}, err
	}
	return model.SubscriberPage{
		Records:    recs,
		Stats:      stats,
		Pagination: model.NewPagination(page, pageSize, matched),
	}, nil
}

func (s *PostgresStore) Subscribed(ctx context.Context) ([]model.Subscriber, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+subscriberColumns+` FROM newsletter_subscribers WHERE status = 'subscribed' ORDER BY subscribed_at DESC, email ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetSettings(ctx context.Context) (model.Settings, error) {
	var (
		raw     []byte
		updated time.Time
	)
	err := s.db.QueryRowContext(ctx, `SELECT data, updated_at FROM newsletter_settings WHERE id = 1`).Scan(&raw, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Settings{}, nil
	}
	if err != nil {
		return model.Settings{}, err
	}
	var st model.Settings
	if err := json.Unmarshal(raw, &st); err != nil {
		return model.Settings{}, err
	}
	st.UpdatedAt = updated.UTC()
	return st, nil
}

func (s *PostgresStore) SaveSettings(ctx context.Context, st model.Settings) error {
	st.UpdatedAt = s.now().UTC()
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO newsletter_settings (id, data, updated_at) VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`, b, st.UpdatedAt)
	return err
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
