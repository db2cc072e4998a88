package response

import "github.com/Guyuepp/go-feed-engine/domain"

type LikeData struct {
	PostID  int64 `json:"post_id"`
	Count   int64 `json:"count"`
	IsLiked bool  `json:"is_liked"`
}

type LikeToggle struct {
	PostID   int64 `json:"post_id"`
	IsLiked  bool  `json:"is_liked"`
	NewCount int64 `json:"new_count"`
}

func NewLikeToggle(postID int64, res domain.LikeToggleResult) LikeToggle {
	return LikeToggle{PostID: postID, IsLiked: res.IsLiked, NewCount: res.NewCount}
}

// NewLikeDataList keeps the request order and skips posts the service did not report
func NewLikeDataList(postIDs []int64, data map[int64]domain.LikeData) []LikeData {
	out := make([]LikeData, 0, len(postIDs))
	seen := make(map[int64]bool, len(postIDs))
	for _, id := range postIDs {
		d, ok := data[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, LikeData{PostID: id, Count: d.Count, IsLiked: d.IsLiked})
	}
	return out
}

type Feed struct {
	UserID  int64   `json:"user_id"`
	PostIDs []int64 `json:"post_ids"`
	Count   int     `json:"count"`
}

type FeedStatus struct {
	Cached bool                  `json:"cached"`
	Stats  domain.FeedCacheStats `json:"stats"`
}
