package badger_test

import (
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guyuepp/go-feed-engine/domain"
	badgerRepo "github.com/Guyuepp/go-feed-engine/internal/repository/badger"
)

func createTestBadgerDB(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestFeedStore_SetGetDelete(t *testing.T) {
	store := badgerRepo.NewFeedStore(createTestBadgerDB(t))
	ctx := context.Background()

	_, err := store.Get(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrCacheMiss)

	snap := domain.FeedSnapshot{
		UserID:    1,
		PostIDs:   []int64{3, 1},
		Scores:    []float64{2, 1},
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, store.Set(ctx, snap))

	got, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, snap.PostIDs, got.PostIDs)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, store.Delete(ctx, 1))
	_, err = store.Get(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
	require.NoError(t, store.Delete(ctx, 1))
}

func TestFeedStore_DeleteExpired(t *testing.T) {
	store := badgerRepo.NewFeedStore(createTestBadgerDB(t))
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Set(ctx, domain.FeedSnapshot{UserID: 1, ExpiresAt: now.Add(time.Minute)}))
	require.NoError(t, store.Set(ctx, domain.FeedSnapshot{UserID: 2, ExpiresAt: now.Add(time.Hour)}))

	removed, err := store.DeleteExpired(ctx, now.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestFeedStore_SetExpiredSnapshotDeletes(t *testing.T) {
	store := badgerRepo.NewFeedStore(createTestBadgerDB(t))
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, domain.FeedSnapshot{UserID: 1, ExpiresAt: time.Now().Add(time.Hour)}))
	require.NoError(t, store.Set(ctx, domain.FeedSnapshot{UserID: 1, ExpiresAt: time.Now().Add(-time.Second)}))

	_, err := store.Get(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
}
