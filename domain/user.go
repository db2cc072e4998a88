package domain

import (
	"context"
	"time"
)

// User represents a user entity in the system.
// Creators are users whose posts appear in feeds.
type User struct {
	ID                 int64       // Unique identifier
	Username           string      // Login username (unique)
	FollowersCount     int64       // Number of followers
	PrimaryContentType ContentType // Content type the user mostly publishes
	LastActiveAt       time.Time   // Last authenticated request
}

// UserRepository defines the read-only contract for user data used by this engine.
type UserRepository interface {
	// GetByIDs retrieves users by given IDs, skipping missing ones.
	GetByIDs(ctx context.Context, userIDs []int64) ([]User, error)

	// FetchActiveIDs returns users active since the given time, ascending by ID after cursor.
	FetchActiveIDs(ctx context.Context, since time.Time, cursor int64, limit int) ([]int64, error)
}

// RelationRepository reads durable relationships and aggregates of a user.
type RelationRepository interface {
	// FollowedCreators returns the creators the user follows.
	FollowedCreators(ctx context.Context, userID int64) ([]int64, error)

	// SubscribedCreators returns the creators the user holds an active subscription to.
	SubscribedCreators(ctx context.Context, userID int64) ([]int64, error)

	// BlockedUsers returns users blocked by, or blocking, the user.
	BlockedUsers(ctx context.Context, userID int64) ([]int64, error)

	// InteractionStats counts the user's durable likes, comments, reposts and purchases.
	InteractionStats(ctx context.Context, userID int64) (InteractionStats, error)
}
