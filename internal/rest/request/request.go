package request

import "github.com/Guyuepp/go-feed-engine/domain"

type LikeBatch struct {
	PostIDs []int64 `json:"post_ids" binding:"required,min=1,max=100,dive,gt=0"`
}

type Interaction struct {
	PostID    int64  `json:"post_id" binding:"required,gt=0"`
	CreatorID int64  `json:"creator_id" binding:"gte=0"`
	Type      string `json:"type" binding:"required,interaction_type"`
}

func (r Interaction) ToTask(userID int64) domain.InteractionTask {
	return domain.InteractionTask{
		UserID:    userID,
		PostID:    r.PostID,
		CreatorID: r.CreatorID,
		Type:      domain.InteractionType(r.Type),
	}
}
