// Package storetest es la suite común que corre contra cada driver de store.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/starlingpost/starlingpost/internal/domain/social"
	"github.com/starlingpost/starlingpost/internal/store"
)

// Run ejecuta la suite. newStore debe devolver un store vacío por llamada.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("AccountUpsert", func(t *testing.T) { testAccountUpsert(t, newStore(t)) })
	t.Run("AccountListDelete", func(t *testing.T) { testAccountListDelete(t, newStore(t)) })
	t.Run("NeedsRelink", func(t *testing.T) { testNeedsRelink(t, newStore(t)) })
	t.Run("Metrics", func(t *testing.T) { testMetrics(t, newStore(t)) })
	t.Run("Claims", func(t *testing.T) { testClaims(t, newStore(t)) })
}

func sampleAccount(user string, p social.Platform, id string) *social.LinkedAccount {
	exp := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	return &social.LinkedAccount{
		UserID:       user,
		Platform:     p,
		AccountID:    id,
		AccountName:  "name-" + id,
		ContactEmail: user + "@example.com",
		AccessToken:  "access-" + id,
		RefreshToken: "refresh-" + id,
		ExpiresAt:    &exp,
		Scopes:       []string{"a", "b"},
	}
}

func testAccountUpsert(t *testing.T, s store.Store) {
	ctx := context.Background()
	repo := s.Accounts()

	acc := sampleAccount("u1", social.YouTube, "c1")
	require.NoError(t, repo.Put(ctx, acc))
	created := acc.CreatedAt
	require.False(t, created.IsZero())

	got, err := repo.Get(ctx, acc.Key())
	require.NoError(t, err)
	require.Equal(t, "access-c1", got.AccessToken)
	require.Equal(t, "refresh-c1", got.RefreshToken)
	require.Equal(t, []string{"a", "b"}, got.Scopes)
	require.NotNil(t, got.ExpiresAt)
	require.True(t, acc.ExpiresAt.Equal(*got.ExpiresAt))

	// upsert: misma clave, tokens nuevos, CreatedAt se conserva
	upd := sampleAccount("u1", social.YouTube, "c1")
	upd.AccessToken = "access-2"
	upd.ExpiresAt = nil
	require.NoError(t, repo.Put(ctx, upd))

	got, err = repo.Get(ctx, acc.Key())
	require.NoError(t, err)
	require.Equal(t, "access-2", got.AccessToken)
	require.Nil(t, got.ExpiresAt)
	require.True(t, created.Equal(got.CreatedAt), "created_at must survive upsert")

	list, err := repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = repo.Get(ctx, social.AccountKey{UserID: "u1", Platform: social.YouTube, AccountID: "nope"})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testAccountListDelete(t *testing.T, s store.Store) {
	ctx := context.Background()
	repo := s.Accounts()
	require.NoError(t, repo.Put(ctx, sampleAccount("u1", social.YouTube, "c1")))
	require.NoError(t, repo.Put(ctx, sampleAccount("u1", social.Twitter, "t1")))
	require.NoError(t, repo.Put(ctx, sampleAccount("u1", social.Twitter, "t2")))
	require.NoError(t, repo.Put(ctx, sampleAccount("u2", social.YouTube, "c9")))

	list, err := repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	for _, a := range list {
		require.Equal(t, "u1", a.UserID)
	}

	key := social.AccountKey{UserID: "u1", Platform: social.Twitter, AccountID: "t1"}
	require.NoError(t, repo.Delete(ctx, key))
	require.ErrorIs(t, repo.Delete(ctx, key), store.ErrNotFound)

	list, err = repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)

	list, err = repo.ListByUser(ctx, "nobody")
	require.NoError(t, err)
	require.Empty(t, list)
}

func testNeedsRelink(t *testing.T, s store.Store) {
	ctx := context.Background()
	repo := s.Accounts()
	acc := sampleAccount("u1", social.Instagram, "ig1")
	require.NoError(t, repo.Put(ctx, acc))
	require.NoError(t, repo.MarkNeedsRelink(ctx, acc.Key()))

	got, err := repo.Get(ctx, acc.Key())
	require.NoError(t, err)
	require.True(t, got.NeedsRelink)

	missing := social.AccountKey{UserID: "u1", Platform: social.Instagram, AccountID: "zzz"}
	require.ErrorIs(t, repo.MarkNeedsRelink(ctx, missing), store.ErrNotFound)
}

func testMetrics(t *testing.T, s store.Store) {
	ctx := context.Background()
	acc := sampleAccount("u1", social.Twitter, "t1")
	require.NoError(t, s.Accounts().Put(ctx, acc))

	fetched := time.Now().UTC().Truncate(time.Second)
	rec := &social.PostMetricsRecord{
		UserID: "u1", Platform: social.Twitter, AccountID: "t1", PostID: "p1",
		Metrics:   social.PostMetrics{Likes: social.Int64(10), Impressions: social.Int64(900)},
		FetchedAt: fetched,
	}
	repo := s.Metrics()
	require.NoError(t, repo.PutMetrics(ctx, rec))

	got, err := repo.GetMetrics(ctx, acc.Key(), "p1")
	require.NoError(t, err)
	require.Equal(t, int64(10), *got.Metrics.Likes)
	require.Equal(t, int64(900), *got.Metrics.Impressions)
	require.Nil(t, got.Metrics.Reach)
	require.False(t, got.Stale)
	require.True(t, fetched.Equal(got.FetchedAt))

	require.NoError(t, repo.MarkStale(ctx, acc.Key(), "p1"))
	got, err = repo.GetMetrics(ctx, acc.Key(), "p1")
	require.NoError(t, err)
	require.True(t, got.Stale)

	_, err = repo.GetMetrics(ctx, acc.Key(), "p2")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.ErrorIs(t, repo.MarkStale(ctx, acc.Key(), "p2"), store.ErrNotFound)

	stored, err := s.Accounts().Get(ctx, acc.Key())
	require.NoError(t, err)
	require.NotNil(t, stored.LastSyncedAt)
}

func testClaims(t *testing.T, s store.Store) {
	ctx := context.Background()
	repo := s.Claims()

	claims, err := repo.GetClaims(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, claims)

	require.NoError(t, repo.SetClaim(ctx, "u1", "admin", true))
	require.NoError(t, repo.SetClaim(ctx, "u1", "role", "editor"))
	require.NoError(t, repo.SetClaim(ctx, "u1", "role", "admin"))

	claims, err = repo.GetClaims(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, true, claims["admin"])
	require.Equal(t, "admin", claims["role"])
}
