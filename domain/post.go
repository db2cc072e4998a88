package domain

import (
	"context"
	"time"
)

// Visibility controls who may see a post
type Visibility string

const (
	VisibilityPublic      Visibility = "public"
	VisibilityFollowers   Visibility = "followers"
	VisibilitySubscribers Visibility = "subscribers"
	VisibilityPrivate     Visibility = "private"
)

// ContentType is the kind of media a post carries
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
	ContentVideo ContentType = "video"
	ContentAudio ContentType = "audio"
)

// Post is representing the Post data struct owned by the content store
type Post struct {
	ID               int64       // Durable identifier
	PublicID         string      // Public string identifier
	CreatorID        int64       // Author
	Visibility       Visibility  // Audience
	ContentType      ContentType // Media kind
	LikesCount       int64       // Durable like counter
	CommentsCount    int64
	RepostsCount     int64
	ImpressionsCount int64
	CreatedAt        time.Time
	CreatorFollowers int64 // Follower count of the creator, joined on read

	// Repost is set when the post was sourced through a repost
	Repost *RepostInfo
}

// RepostInfo tags a candidate that reached the feed through a repost
type RepostInfo struct {
	ReposterID int64
	RepostedAt time.Time
	IsSelf     bool // reposted by the requesting user
}

// AgeHours returns the age of the post at now, never negative
func (p *Post) AgeHours(now time.Time) float64 {
	return hoursSince(p.CreatedAt, now)
}

func hoursSince(t, now time.Time) float64 {
	h := now.Sub(t).Hours()
	if h < 0 {
		return 0
	}
	return h
}

// CandidateQuery carries the filters shared by all candidate pools
type CandidateQuery struct {
	UserID int64

	// CreatorIDs restricts the pool to these creators (preferred and repost pools)
	CreatorIDs []int64
	// FollowedIDs and SubscribedIDs unlock non-public visibility in the preferred pool
	FollowedIDs   []int64
	SubscribedIDs []int64

	ExcludeCreatorIDs []int64 // blocked users
	ExcludePostIDs    []int64 // recently seen

	Since time.Time
	Limit int
}

// PostRepository is the durable content store. Only the like counter and like rows are written.
type PostRepository interface {
	// GetByID retrieves a single post. Returns ErrNotFound if the post doesn't exist.
	GetByID(ctx context.Context, id int64) (Post, error)

	// FetchIDs pages through post IDs greater than cursor, ascending.
	FetchIDs(ctx context.Context, cursor, limit int64) ([]int64, error)

	// FetchByCreators returns the newest posts of the given creators, visibility-aware.
	FetchByCreators(ctx context.Context, q CandidateQuery) ([]Post, error)

	// FetchTrending returns public posts since q.Since ordered by likes, comments, then recency.
	FetchTrending(ctx context.Context, q CandidateQuery) ([]Post, error)

	// FetchRecent returns public posts since q.Since, newest first.
	FetchRecent(ctx context.Context, q CandidateQuery) ([]Post, error)

	// FetchReposts returns posts reposted since q.Since by q.CreatorIDs, tagged with RepostInfo.
	FetchReposts(ctx context.Context, q CandidateQuery) ([]Post, error)

	// GetLikeCount reads the durable like counter. Returns ErrNotFound if the post doesn't exist.
	GetLikeCount(ctx context.Context, postID int64) (int64, error)

	// GetLikeCounts reads durable counters for many posts; missing posts are absent from the map.
	GetLikeCounts(ctx context.Context, postIDs []int64) (map[int64]int64, error)

	// GetLikedUsers returns every user holding a durable like row for the post.
	GetLikedUsers(ctx context.Context, postID int64) ([]int64, error)

	// IsLiked is a durable point lookup.
	IsLiked(ctx context.Context, postID, userID int64) (bool, error)

	// FilterLiked returns the subset of postIDs the user holds durable like rows for.
	FilterLiked(ctx context.Context, userID int64, postIDs []int64) ([]int64, error)

	// ReplaceLikes makes the durable like rows of the post exactly userIDs and overwrites
	// its like counter to match, in one transaction. Returns ErrNotFound if the post is gone
	// (its rows are dropped regardless).
	ReplaceLikes(ctx context.Context, postID int64, userIDs []int64) error
}
