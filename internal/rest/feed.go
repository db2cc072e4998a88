package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Guyuepp/go-feed-engine/domain"
	"github.com/Guyuepp/go-feed-engine/internal/rest/response"
)

const (
	DefaultFeedLimit = 20
	FeedLimitMin     = 1
	FeedLimitMax     = 50
)

// FeedHandler represent the httphandler for recommended feeds
type FeedHandler struct {
	Service domain.FeedUsecase
}

func NewFeedHandler(svc domain.FeedUsecase) *FeedHandler {
	return &FeedHandler{
		Service: svc,
	}
}

// GetFeed returns the caller's ranked post IDs
func (h *FeedHandler) GetFeed(c *gin.Context) {
	uid, _ := userID(c)

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(DefaultFeedLimit)))
	if err != nil || limit < FeedLimitMin || limit > FeedLimitMax {
		logrus.Debugf("invalid param 'limit' %q, using default", c.Query("limit"))
		limit = DefaultFeedLimit
	}

	ids, err := h.Service.GetRecommendedFeed(c.Request.Context(), uid, limit)
	if err != nil {
		c.JSON(getStatusCode(err), ResponseError{Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, response.Feed{UserID: uid, PostIDs: ids, Count: len(ids)})
}

// Invalidate drops the caller's cached feed and profile
func (h *FeedHandler) Invalidate(c *gin.Context) {
	uid, _ := userID(c)
	if err := h.Service.InvalidateRecommendations(c.Request.Context(), uid); err != nil {
		c.JSON(getStatusCode(err), ResponseError{Message: err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// Status reports whether the caller has a cached feed, plus cache stats
func (h *FeedHandler) Status(c *gin.Context) {
	uid, _ := userID(c)
	ctx := c.Request.Context()

	cached, err := h.Service.HasCachedRecommendations(ctx, uid)
	if err != nil {
		logrus.Warnf("failed to check cached feed, user: %d, err: %v", uid, err)
	}
	stats, err := h.Service.Stats(ctx)
	if err != nil {
		logrus.Warnf("failed to read feed cache stats: %v", err)
	}
	c.JSON(http.StatusOK, response.FeedStatus{Cached: cached, Stats: stats})
}
