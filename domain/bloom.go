package domain

import "context"

type BloomRepository interface {
	// Add puts the ID into the filter
	Add(ctx context.Context, id int64) error

	// Exists reports whether the ID may exist
	// true: maybe present, check the cache or database
	// false: definitely absent
	Exists(ctx context.Context, id int64) (bool, error)

	// BulkAdd adds many IDs in one round trip
	BulkAdd(ctx context.Context, ids []int64) error

	// Cursor returns the highest ID synced into the filter so far
	Cursor(ctx context.Context) (int64, error)

	// SetCursor records the highest ID synced into the filter
	SetCursor(ctx context.Context, id int64) error
}
