// Package pg implementa store.Store sobre PostgreSQL usando pgxpool.
package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/starlingpost/starlingpost/internal/domain/social"
	"github.com/starlingpost/starlingpost/internal/store"
	"github.com/starlingpost/starlingpost/migrations"
)

func init() {
	store.RegisterDriver("postgres", func(ctx context.Context, cfg store.Config) (store.Store, error) {
		return Open(ctx, cfg)
	})
}

// Store es el driver Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// Open crea el pool, hace ping y (si cfg.Migrate) aplica migraciones.
func Open(ctx context.Context, cfg store.Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("pg: empty DSN")
	}
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pg: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	pcfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pg: connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping: %w", err)
	}
	s := &Store{pool: pool}
	if cfg.Migrate {
		m := store.NewMigrator(migrations.FS, migrations.PostgresDir, "postgres")
		if _, err := m.Run(ctx, s); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return s, nil
}

// Pool expone el pool (métricas).
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

func (s *Store) ExecSQL(ctx context.Context, query string, args ...any) error {
	_, err := s.pool.Exec(ctx, query, args...)
	return err
}

func (s *Store) QueryInts(ctx context.Context, query string) ([]int, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int])
}

func (s *Store) Accounts() store.AccountRepository { return (*accounts)(s) }
func (s *Store) Metrics() store.MetricsRepository  { return (*metricsRepo)(s) }
func (s *Store) Claims() store.ClaimsRepository    { return (*claimsRepo)(s) }
func (s *Store) Ping(ctx context.Context) error    { return s.pool.Ping(ctx) }
func (s *Store) Driver() string                    { return "postgres" }

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

type accounts Store

const accountCols = `user_id, platform, account_id, account_name, contact_email, access_token, refresh_token,
	expires_at, scopes, needs_relink, last_synced_at, created_at, updated_at`

func scanAccount(row pgx.Row) (*social.LinkedAccount, error) {
	var (
		a        social.LinkedAccount
		platform string
	)
	err := row.Scan(&a.UserID, &platform, &a.AccountID, &a.AccountName, &a.ContactEmail, &a.AccessToken,
		&a.RefreshToken, &a.ExpiresAt, &a.Scopes, &a.NeedsRelink, &a.LastSyncedAt, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.Platform = social.Platform(platform)
	if a.Scopes == nil {
		a.Scopes = []string{}
	}
	return &a, nil
}

func (r *accounts) Get(ctx context.Context, key social.AccountKey) (*social.LinkedAccount, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountCols+` FROM linked_accounts
		WHERE user_id = $1 AND platform = $2 AND account_id = $3`, key.UserID, string(key.Platform), key.AccountID)
	return scanAccount(row)
}

func (r *accounts) Put(ctx context.Context, acc *social.LinkedAccount) error {
	scopes := acc.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO linked_accounts (id, `+accountCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
		ON CONFLICT ON CONSTRAINT linked_accounts_key DO UPDATE SET
			account_name = EXCLUDED.account_name,
			contact_email = EXCLUDED.contact_email,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at,
			scopes = EXCLUDED.scopes,
			needs_relink = EXCLUDED.needs_relink,
			updated_at = NOW()
		RETURNING created_at, updated_at`,
		uuid.New(), acc.UserID, string(acc.Platform), acc.AccountID, acc.AccountName, acc.ContactEmail,
		acc.AccessToken, acc.RefreshToken, acc.ExpiresAt, scopes, acc.NeedsRelink, acc.LastSyncedAt,
	).Scan(&acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("pg: put account: %w", err)
	}
	return nil
}

func (r *accounts) Delete(ctx context.Context, key social.AccountKey) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `DELETE FROM linked_accounts WHERE user_id = $1 AND platform = $2 AND account_id = $3`,
		key.UserID, string(key.Platform), key.AccountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	if _, err := tx.Exec(ctx, `DELETE FROM post_metrics WHERE user_id = $1 AND platform = $2 AND account_id = $3`,
		key.UserID, string(key.Platform), key.AccountID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *accounts) ListByUser(ctx context.Context, userID string) ([]social.LinkedAccount, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+accountCols+` FROM linked_accounts
		WHERE user_id = $1 ORDER BY platform, account_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []social.LinkedAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *accounts) MarkNeedsRelink(ctx context.Context, key social.AccountKey) error {
	tag, err := r.pool.Exec(ctx, `UPDATE linked_accounts SET needs_relink = TRUE, updated_at = NOW()
		WHERE user_id = $1 AND platform = $2 AND account_id = $3`, key.UserID, string(key.Platform), key.AccountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

type metricsRepo Store

func (r *metricsRepo) PutMetrics(ctx context.Context, rec *social.PostMetricsRecord) error {
	m := rec.Metrics
	batch := &pgx.Batch{}
	batch.Queue(`
		INSERT INTO post_metrics (user_id, platform, account_id, post_id, reach, impressions, views, likes,
			comments, saves, shares, fetched_at, stale)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (user_id, platform, account_id, post_id) DO UPDATE SET
			reach = EXCLUDED.reach, impressions = EXCLUDED.impressions, views = EXCLUDED.views,
			likes = EXCLUDED.likes, comments = EXCLUDED.comments, saves = EXCLUDED.saves,
			shares = EXCLUDED.shares, fetched_at = EXCLUDED.fetched_at, stale = EXCLUDED.stale`,
		rec.UserID, string(rec.Platform), rec.AccountID, rec.PostID, m.Reach, m.Impressions, m.Views, m.Likes,
		m.Comments, m.Saves, m.Shares, rec.FetchedAt, rec.Stale)
	batch.Queue(`UPDATE linked_accounts SET last_synced_at = $4
		WHERE user_id = $1 AND platform = $2 AND account_id = $3`,
		rec.UserID, string(rec.Platform), rec.AccountID, rec.FetchedAt)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("pg: put metrics: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *metricsRepo) GetMetrics(ctx context.Context, key social.AccountKey, postID string) (*social.PostMetricsRecord, error) {
	rec := social.PostMetricsRecord{UserID: key.UserID, Platform: key.Platform, AccountID: key.AccountID, PostID: postID}
	m := &rec.Metrics
	err := r.pool.QueryRow(ctx, `SELECT reach, impressions, views, likes, comments, saves, shares, fetched_at, stale
		FROM post_metrics WHERE user_id = $1 AND platform = $2 AND account_id = $3 AND post_id = $4`,
		key.UserID, string(key.Platform), key.AccountID, postID).
		Scan(&m.Reach, &m.Impressions, &m.Views, &m.Likes, &m.Comments, &m.Saves, &m.Shares, &rec.FetchedAt, &rec.Stale)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *metricsRepo) MarkStale(ctx context.Context, key social.AccountKey, postID string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE post_metrics SET stale = TRUE
		WHERE user_id = $1 AND platform = $2 AND account_id = $3 AND post_id = $4`,
		key.UserID, string(key.Platform), key.AccountID, postID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

type claimsRepo Store

func (r *claimsRepo) GetClaims(ctx context.Context, userID string) (map[string]any, error) {
	rows, err := r.pool.Query(ctx, `SELECT claim_key, claim_value FROM user_claims WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]any{}
	for rows.Next() {
		var (
			k   string
			raw []byte
		)
		if err := rows.Scan(&k, &raw); err != nil {
			return nil, err
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("pg: claim %s: %w", k, err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (r *claimsRepo) SetClaim(ctx context.Context, userID, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("pg: marshal claim: %w", err)
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO user_claims (user_id, claim_key, claim_value, updated_at)
		VALUES ($1, $2, $3::jsonb, NOW())
		ON CONFLICT (user_id, claim_key) DO UPDATE SET claim_value = EXCLUDED.claim_value, updated_at = NOW()`,
		userID, key, string(raw))
	return err
}
