// Package badger holds the embedded persistent tier of the feed cache.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/Guyuepp/go-feed-engine/domain"
)

const feedKeyPrefix = "feed:recommended:"

// FeedStore implements domain.FeedStore on an embedded BadgerDB.
type FeedStore struct {
	db *badger.DB
}

var _ domain.FeedStore = (*FeedStore)(nil)

func NewFeedStore(db *badger.DB) *FeedStore {
	return &FeedStore{db: db}
}

func feedKey(userID int64) []byte {
	return []byte(feedKeyPrefix + strconv.FormatInt(userID, 10))
}

func (s *FeedStore) Get(ctx context.Context, userID int64) (domain.FeedSnapshot, error) {
	var snap domain.FeedSnapshot
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(feedKey(userID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domain.ErrCacheMiss
		}
		if err != nil {
			return fmt.Errorf("get feed: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &snap)
		})
	})
	if err != nil {
		return domain.FeedSnapshot{}, err
	}
	return snap, nil
}

// Set stores the snapshot; badger drops it on its own once ExpiresAt passes.
func (s *FeedStore) Set(ctx context.Context, snap domain.FeedSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal feed: %w", err)
	}
	ttl := time.Until(snap.ExpiresAt)
	if ttl <= 0 {
		return s.Delete(ctx, snap.UserID)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(feedKey(snap.UserID), data).WithTTL(ttl))
	})
}

func (s *FeedStore) Delete(ctx context.Context, userID int64) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(feedKey(userID)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete feed: %w", err)
		}
		return nil
	})
}

func (s *FeedStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var expired [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(feedKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var snap domain.FeedSnapshot
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &snap)
			}); err != nil {
				return err
			}
			if snap.IsExpired(now) {
				expired = append(expired, item.KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan feeds: %w", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range expired {
		if err := wb.Delete(key); err != nil {
			return 0, fmt.Errorf("delete feed: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, err
	}
	return int64(len(expired)), nil
}

func (s *FeedStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(feedKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}
