// Package memory implementa store.Store en memoria. Para dev y tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/starlingpost/starlingpost/internal/domain/social"
	"github.com/starlingpost/starlingpost/internal/store"
)

func init() {
	store.RegisterDriver("memory", func(context.Context, store.Config) (store.Store, error) {
		return New(), nil
	})
}

type metricsKey struct {
	acct   social.AccountKey
	postID string
}

// Store guarda copias; nunca expone punteros internos.
type Store struct {
	mu       sync.RWMutex
	accounts map[social.AccountKey]social.LinkedAccount
	metrics  map[metricsKey]social.PostMetricsRecord
	claims   map[string]map[string]any
	now      func() time.Time
	writes   int
}

// New crea un store vacío.
func New() *Store {
	return &Store{
		accounts: make(map[social.AccountKey]social.LinkedAccount),
		metrics:  make(map[metricsKey]social.PostMetricsRecord),
		claims:   make(map[string]map[string]any),
		now:      time.Now,
	}
}

func (s *Store) Accounts() store.AccountRepository { return (*accounts)(s) }
func (s *Store) Metrics() store.MetricsRepository  { return (*metricsRepo)(s) }
func (s *Store) Claims() store.ClaimsRepository    { return (*claimsRepo)(s) }
func (s *Store) Ping(context.Context) error        { return nil }
func (s *Store) Close() error                      { return nil }
func (s *Store) Driver() string                    { return "memory" }

// WriteCount cuenta Put/MarkNeedsRelink exitosos.
func (s *Store) WriteCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

func cloneAccount(a social.LinkedAccount) social.LinkedAccount {
	a.Scopes = append([]string(nil), a.Scopes...)
	if a.ExpiresAt != nil {
		t := *a.ExpiresAt
		a.ExpiresAt = &t
	}
	if a.LastSyncedAt != nil {
		t := *a.LastSyncedAt
		a.LastSyncedAt = &t
	}
	return a
}

type accounts Store

func (r *accounts) Get(_ context.Context, key social.AccountKey) (*social.LinkedAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := cloneAccount(a)
	return &cp, nil
}

func (r *accounts) Put(_ context.Context, acc *social.LinkedAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now().UTC()
	key := acc.Key()
	if prev, ok := r.accounts[key]; ok {
		acc.CreatedAt = prev.CreatedAt
	} else if acc.CreatedAt.IsZero() {
		acc.CreatedAt = now
	}
	acc.UpdatedAt = now
	r.accounts[key] = cloneAccount(*acc)
	r.writes++
	return nil
}

func (r *accounts) Delete(_ context.Context, key social.AccountKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[key]; !ok {
		return store.ErrNotFound
	}
	delete(r.accounts, key)
	for k := range r.metrics {
		if k.acct == key {
			delete(r.metrics, k)
		}
	}
	return nil
}

func (r *accounts) ListByUser(_ context.Context, userID string) ([]social.LinkedAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []social.LinkedAccount
	for k, a := range r.accounts {
		if k.UserID == userID {
			out = append(out, cloneAccount(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Platform != out[j].Platform {
			return out[i].Platform < out[j].Platform
		}
		return out[i].AccountID < out[j].AccountID
	})
	return out, nil
}

func (r *accounts) MarkNeedsRelink(_ context.Context, key social.AccountKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[key]
	if !ok {
		return store.ErrNotFound
	}
	a.NeedsRelink = true
	a.UpdatedAt = r.now().UTC()
	r.accounts[key] = a
	r.writes++
	return nil
}

type metricsRepo Store

func (r *metricsRepo) PutMetrics(_ context.Context, rec *social.PostMetricsRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := social.AccountKey{UserID: rec.UserID, Platform: rec.Platform, AccountID: rec.AccountID}
	r.metrics[metricsKey{acct: key, postID: rec.PostID}] = *rec
	if a, ok := r.accounts[key]; ok {
		t := rec.FetchedAt
		a.LastSyncedAt = &t
		r.accounts[key] = a
	}
	return nil
}

func (r *metricsRepo) GetMetrics(_ context.Context, key social.AccountKey, postID string) (*social.PostMetricsRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.metrics[metricsKey{acct: key, postID: postID}]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &rec, nil
}

func (r *metricsRepo) MarkStale(_ context.Context, key social.AccountKey, postID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := metricsKey{acct: key, postID: postID}
	rec, ok := r.metrics[k]
	if !ok {
		return store.ErrNotFound
	}
	rec.Stale = true
	r.metrics[k] = rec
	return nil
}

type claimsRepo Store

func (r *claimsRepo) GetClaims(_ context.Context, userID string) (map[string]any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]any, len(r.claims[userID]))
	for k, v := range r.claims[userID] {
		out[k] = v
	}
	return out, nil
}

func (r *claimsRepo) SetClaim(_ context.Context, userID, key string, value any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.claims[userID]
	if !ok {
		m = make(map[string]any)
		r.claims[userID] = m
	}
	m[key] = value
	return nil
}
