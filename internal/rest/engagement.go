package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Guyuepp/go-feed-engine/domain"
	"github.com/Guyuepp/go-feed-engine/internal/rest/middleware"
	"github.com/Guyuepp/go-feed-engine/internal/rest/request"
	"github.com/Guyuepp/go-feed-engine/internal/rest/response"
)

// ResponseError represent the response error struct
type ResponseError struct {
	Message string `json:"message"`
}

// EngagementHandler represent the httphandler for likes
type EngagementHandler struct {
	Service      domain.EngagementUsecase
	Interactions domain.InteractionSink
}

func NewEngagementHandler(svc domain.EngagementUsecase, sink domain.InteractionSink) *EngagementHandler {
	return &EngagementHandler{
		Service:      svc,
		Interactions: sink,
	}
}

// GetLikes returns the like count of the post and whether the caller liked it
func (h *EngagementHandler) GetLikes(c *gin.Context) {
	pid, ok := postID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	count, err := h.Service.GetLikeCount(ctx, pid)
	if err != nil {
		c.JSON(getStatusCode(err), ResponseError{Message: err.Error()})
		return
	}

	liked := false
	if uid, ok := userID(c); ok {
		liked, err = h.Service.HasUserLiked(ctx, pid, uid)
		if err != nil {
			c.JSON(getStatusCode(err), ResponseError{Message: err.Error()})
			return
		}
	}

	c.JSON(http.StatusOK, response.LikeData{PostID: pid, Count: count, IsLiked: liked})
}

// ToggleLike flips the caller's like on the post
func (h *EngagementHandler) ToggleLike(c *gin.Context) {
	pid, ok := postID(c)
	if !ok {
		return
	}
	uid, _ := userID(c)

	res, err := h.Service.ToggleLike(c.Request.Context(), pid, uid)
	if err != nil {
		c.JSON(getStatusCode(err), ResponseError{Message: err.Error()})
		return
	}

	if res.IsLiked {
		h.Interactions.Send(domain.InteractionTask{UserID: uid, PostID: pid, Type: domain.InteractionLike})
	}
	c.JSON(http.StatusOK, response.NewLikeToggle(pid, res))
}

// BatchLikes returns like data for many posts, in request order
func (h *EngagementHandler) BatchLikes(c *gin.Context) {
	var req request.LikeBatch
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	uid, _ := userID(c)

	data, err := h.Service.GetMultiplePostsLikeData(c.Request.Context(), req.PostIDs, uid)
	if err != nil {
		c.JSON(getStatusCode(err), ResponseError{Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, response.NewLikeDataList(req.PostIDs, data))
}

func postID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusNotFound, ResponseError{Message: domain.ErrNotFound.Error()})
		return 0, false
	}
	return id, true
}

func userID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return 0, false
	}
	uid, ok := v.(int64)
	return uid, ok
}

// getStatusCode maps domain errors to HTTP status codes
func getStatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}

	logrus.Error(err)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrBadParamInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrCacheUnavailable), errors.Is(err, domain.ErrHydrationInProgress):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
