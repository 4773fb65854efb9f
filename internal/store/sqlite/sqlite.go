// Package sqlite implementa store.Store sobre SQLite (modernc, sin cgo).
// Pensado para un solo nodo o desarrollo local.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/starlingpost/starlingpost/internal/domain/social"
	"github.com/starlingpost/starlingpost/internal/store"
	"github.com/starlingpost/starlingpost/migrations"
)

func init() {
	store.RegisterDriver("sqlite", func(ctx context.Context, cfg store.Config) (store.Store, error) {
		return Open(ctx, cfg.DSN)
	})
}

// Store es el driver SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open abre (o crea) la base y aplica migraciones. dsn vacío = memoria compartida.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = "file:starling?mode=memory&cache=shared"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// SQLite serializa escrituras; una conexión evita SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: pragmas: %w", err)
	}
	s := &Store{db: db, now: time.Now}
	m := store.NewMigrator(migrations.FS, migrations.SQLiteDir, "sqlite")
	if _, err := m.Run(ctx, s); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ExecSQL(ctx context.Context, query string, args ...any) error {
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *Store) QueryInts(ctx context.Context, query string) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) Accounts() store.AccountRepository { return (*accounts)(s) }
func (s *Store) Metrics() store.MetricsRepository  { return (*metricsRepo)(s) }
func (s *Store) Claims() store.ClaimsRepository    { return (*claimsRepo)(s) }
func (s *Store) Ping(ctx context.Context) error    { return s.db.PingContext(ctx) }
func (s *Store) Close() error                      { return s.db.Close() }
func (s *Store) Driver() string                    { return "sqlite" }

func toNanos(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().UnixNano()
}

func fromNanos(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64).UTC()
	return &t
}

func joinScopes(s []string) string { return strings.Join(s, " ") }

func splitScopes(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Fields(s)
}

type accounts Store

const accountCols = `user_id, platform, account_id, account_name, contact_email, access_token, refresh_token,
	expires_at, scopes, needs_relink, last_synced_at, created_at, updated_at`

type scanner interface{ Scan(dest ...any) error }

func scanAccount(row scanner) (*social.LinkedAccount, error) {
	var (
		a                 social.LinkedAccount
		platform, scopes  string
		expires, lastSync sql.NullInt64
		created, updated  int64
		needsRelink       bool
	)
	err := row.Scan(&a.UserID, &platform, &a.AccountID, &a.AccountName, &a.ContactEmail, &a.AccessToken,
		&a.RefreshToken, &expires, &scopes, &needsRelink, &lastSync, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.Platform = social.Platform(platform)
	a.Scopes = splitScopes(scopes)
	a.ExpiresAt = fromNanos(expires)
	a.LastSyncedAt = fromNanos(lastSync)
	a.NeedsRelink = needsRelink
	a.CreatedAt = time.Unix(0, created).UTC()
	a.UpdatedAt = time.Unix(0, updated).UTC()
	return &a, nil
}

func (r *accounts) Get(ctx context.Context, key social.AccountKey) (*social.LinkedAccount, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountCols+` FROM linked_accounts
		WHERE user_id = ? AND platform = ? AND account_id = ?`, key.UserID, string(key.Platform), key.AccountID)
	return scanAccount(row)
}

func (r *accounts) Put(ctx context.Context, acc *social.LinkedAccount) error {
	now := r.now().UTC()
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO linked_accounts (id, `+accountCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, platform, account_id) DO UPDATE SET
			account_name = excluded.account_name,
			contact_email = excluded.contact_email,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			scopes = excluded.scopes,
			needs_relink = excluded.needs_relink,
			updated_at = excluded.updated_at
		RETURNING created_at, updated_at`,
		uuid.NewString(), acc.UserID, string(acc.Platform), acc.AccountID, acc.AccountName, acc.ContactEmail,
		acc.AccessToken, acc.RefreshToken, toNanos(acc.ExpiresAt), joinScopes(acc.Scopes), acc.NeedsRelink,
		toNanos(acc.LastSyncedAt), now.UnixNano(), now.UnixNano())
	var created, updated int64
	if err := row.Scan(&created, &updated); err != nil {
		return fmt.Errorf("sqlite: put account: %w", err)
	}
	acc.CreatedAt = time.Unix(0, created).UTC()
	acc.UpdatedAt = time.Unix(0, updated).UTC()
	return nil
}

func (r *accounts) Delete(ctx context.Context, key social.AccountKey) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, `DELETE FROM linked_accounts WHERE user_id = ? AND platform = ? AND account_id = ?`,
		key.UserID, string(key.Platform), key.AccountID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM post_metrics WHERE user_id = ? AND platform = ? AND account_id = ?`,
		key.UserID, string(key.Platform), key.AccountID); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *accounts) ListByUser(ctx context.Context, userID string) ([]social.LinkedAccount, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+accountCols+` FROM linked_accounts
		WHERE user_id = ? ORDER BY platform, account_id`, userID)
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
	res, err := r.db.ExecContext(ctx, `UPDATE linked_accounts SET needs_relink = 1, updated_at = ?
		WHERE user_id = ? AND platform = ? AND account_id = ?`,
		r.now().UTC().UnixNano(), key.UserID, string(key.Platform), key.AccountID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

type metricsRepo Store

func (r *metricsRepo) PutMetrics(ctx context.Context, rec *social.PostMetricsRecord) error {
	m := rec.Metrics
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO post_metrics (user_id, platform, account_id, post_id, reach, impressions, views, likes,
			comments, saves, shares, fetched_at, stale)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, platform, account_id, post_id) DO UPDATE SET
			reach = excluded.reach, impressions = excluded.impressions, views = excluded.views,
			likes = excluded.likes, comments = excluded.comments, saves = excluded.saves,
			shares = excluded.shares, fetched_at = excluded.fetched_at, stale = excluded.stale`,
		rec.UserID, string(rec.Platform), rec.AccountID, rec.PostID, m.Reach, m.Impressions, m.Views, m.Likes,
		m.Comments, m.Saves, m.Shares, rec.FetchedAt.UTC().UnixNano(), rec.Stale)
	if err != nil {
		return fmt.Errorf("sqlite: put metrics: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE linked_accounts SET last_synced_at = ?
		WHERE user_id = ? AND platform = ? AND account_id = ?`,
		rec.FetchedAt.UTC().UnixNano(), rec.UserID, string(rec.Platform), rec.AccountID); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *metricsRepo) GetMetrics(ctx context.Context, key social.AccountKey, postID string) (*social.PostMetricsRecord, error) {
	var (
		rec     social.PostMetricsRecord
		fetched int64
		vals    [7]sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, `SELECT reach, impressions, views, likes, comments, saves, shares, fetched_at, stale
		FROM post_metrics WHERE user_id = ? AND platform = ? AND account_id = ? AND post_id = ?`,
		key.UserID, string(key.Platform), key.AccountID, postID).
		Scan(&vals[0], &vals[1], &vals[2], &vals[3], &vals[4], &vals[5], &vals[6], &fetched, &rec.Stale)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	ptr := func(v sql.NullInt64) *int64 {
		if !v.Valid {
			return nil
		}
		return social.Int64(v.Int64)
	}
	rec.UserID, rec.Platform, rec.AccountID, rec.PostID = key.UserID, key.Platform, key.AccountID, postID
	rec.Metrics = social.PostMetrics{
		Reach: ptr(vals[0]), Impressions: ptr(vals[1]), Views: ptr(vals[2]), Likes: ptr(vals[3]),
		Comments: ptr(vals[4]), Saves: ptr(vals[5]), Shares: ptr(vals[6]),
	}
	rec.FetchedAt = time.Unix(0, fetched).UTC()
	return &rec, nil
}

func (r *metricsRepo) MarkStale(ctx context.Context, key social.AccountKey, postID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE post_metrics SET stale = 1
		WHERE user_id = ? AND platform = ? AND account_id = ? AND post_id = ?`,
		key.UserID, string(key.Platform), key.AccountID, postID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

type claimsRepo Store

func (r *claimsRepo) GetClaims(ctx context.Context, userID string) (map[string]any, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT claim_key, claim_value FROM user_claims WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]any{}
	for rows.Next() {
		var k, raw string
		if err := rows.Scan(&k, &raw); err != nil {
			return nil, err
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("sqlite: claim %s: %w", k, err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (r *claimsRepo) SetClaim(ctx context.Context, userID, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("sqlite: marshal claim: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO user_claims (user_id, claim_key, claim_value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, claim_key) DO UPDATE SET claim_value = excluded.claim_value, updated_at = excluded.updated_at`,
		userID, key, string(raw), r.now().UTC().UnixNano())
	return err
}
