package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Guyuepp/go-feed-engine/domain"
	"github.com/Guyuepp/go-feed-engine/internal/rest"
	"github.com/Guyuepp/go-feed-engine/internal/rest/middleware"
	"github.com/Guyuepp/go-feed-engine/internal/rest/response"
)

type MockEngagement struct {
	mock.Mock
}

func (m *MockEngagement) GetLikeCount(ctx context.Context, postID int64) (int64, error) {
	args := m.Called(ctx, postID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockEngagement) HasUserLiked(ctx context.Context, postID, userID int64) (bool, error) {
	args := m.Called(ctx, postID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockEngagement) GetMultiplePostsLikeData(ctx context.Context, postIDs []int64, userID int64) (map[int64]domain.LikeData, error) {
	args := m.Called(ctx, postIDs, userID)
	return args.Get(0).(map[int64]domain.LikeData), args.Error(1)
}

func (m *MockEngagement) ToggleLike(ctx context.Context, postID, userID int64) (domain.LikeToggleResult, error) {
	args := m.Called(ctx, postID, userID)
	return args.Get(0).(domain.LikeToggleResult), args.Error(1)
}

func (m *MockEngagement) Reconcile(ctx context.Context, postID int64) error {
	return m.Called(ctx, postID).Error(0)
}

func (m *MockEngagement) ReconcileAll(ctx context.Context) domain.ReconcileStats {
	return m.Called(ctx).Get(0).(domain.ReconcileStats)
}

func (m *MockEngagement) InitBloomFilter(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockEngagement) SyncBloomFilter(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type MockFeed struct {
	mock.Mock
}

func (m *MockFeed) GetRecommendedFeed(ctx context.Context, userID int64, limit int) ([]int64, error) {
	args := m.Called(ctx, userID, limit)
	return args.Get(0).([]int64), args.Error(1)
}

func (m *MockFeed) PreComputeFeed(ctx context.Context, userID int64) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *MockFeed) InvalidateRecommendations(ctx context.Context, userID int64) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *MockFeed) HasCachedRecommendations(ctx context.Context, userID int64) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockFeed) Stats(ctx context.Context) (domain.FeedCacheStats, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.FeedCacheStats), args.Error(1)
}

func (m *MockFeed) CleanupExpired(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type MockSink struct {
	mock.Mock
}

func (m *MockSink) Start(ctx context.Context) {
	m.Called(ctx)
}

func (m *MockSink) Send(task domain.InteractionTask) bool {
	return m.Called(task).Bool(0)
}

func newRouter(eng domain.EngagementUsecase, feed domain.FeedUsecase, sink domain.InteractionSink) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Identity())

	eh := rest.NewEngagementHandler(eng, sink)
	fh := rest.NewFeedHandler(feed)
	ih := rest.NewInteractionHandler(sink)

	r.GET("/posts/:id/likes", eh.GetLikes)
	r.POST("/posts/likes/batch", eh.BatchLikes)

	authorized := r.Group("/")
	authorized.Use(middleware.RequireUser())
	authorized.POST("/posts/:id/like", eh.ToggleLike)
	authorized.GET("/feed", fh.GetFeed)
	authorized.POST("/feed/invalidate", fh.Invalidate)
	authorized.GET("/feed/status", fh.Status)
	authorized.POST("/interactions", ih.Track)
	return r
}

func do(r http.Handler, method, path string, uid int64, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if uid > 0 {
		req.Header.Set(middleware.HeaderUserID, fmt.Sprint(uid))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGetLikes(t *testing.T) {
	eng := new(MockEngagement)
	eng.On("GetLikeCount", mock.Anything, int64(7)).Return(int64(3), nil)
	eng.On("HasUserLiked", mock.Anything, int64(7), int64(1)).Return(true, nil).Once()
	r := newRouter(eng, new(MockFeed), new(MockSink))

	t.Run("anonymous", func(t *testing.T) {
		w := do(r, http.MethodGet, "/posts/7/likes", 0, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var got response.LikeData
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, response.LikeData{PostID: 7, Count: 3}, got)
	})

	t.Run("signed in", func(t *testing.T) {
		w := do(r, http.MethodGet, "/posts/7/likes", 1, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var got response.LikeData
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, response.LikeData{PostID: 7, Count: 3, IsLiked: true}, got)
	})

	t.Run("bad id", func(t *testing.T) {
		w := do(r, http.MethodGet, "/posts/abc/likes", 0, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	eng.AssertExpectations(t)
}

func TestToggleLike(t *testing.T) {
	eng := new(MockEngagement)
	sink := new(MockSink)
	r := newRouter(eng, new(MockFeed), sink)

	eng.On("ToggleLike", mock.Anything, int64(7), int64(1)).
		Return(domain.LikeToggleResult{IsLiked: true, NewCount: 4}, nil).Once()
	sink.On("Send", domain.InteractionTask{UserID: 1, PostID: 7, Type: domain.InteractionLike}).Return(true).Once()

	w := do(r, http.MethodPost, "/posts/7/like", 1, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got response.LikeToggle
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, response.LikeToggle{PostID: 7, IsLiked: true, NewCount: 4}, got)

	// unlikes are not affinity signals
	eng.On("ToggleLike", mock.Anything, int64(7), int64(1)).
		Return(domain.LikeToggleResult{IsLiked: false, NewCount: 3}, nil).Once()
	w = do(r, http.MethodPost, "/posts/7/like", 1, nil)
	require.Equal(t, http.StatusOK, w.Code)

	eng.AssertExpectations(t)
	sink.AssertExpectations(t)
}

func TestToggleLike_ErrorStatus(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrBadParamInput, http.StatusBadRequest},
		{domain.ErrHydrationInProgress, http.StatusServiceUnavailable},
		{fmt.Errorf("%w: dial tcp: refused", domain.ErrCacheUnavailable), http.StatusServiceUnavailable},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		eng := new(MockEngagement)
		eng.On("ToggleLike", mock.Anything, int64(9), int64(1)).Return(domain.LikeToggleResult{}, tc.err).Once()
		r := newRouter(eng, new(MockFeed), new(MockSink))

		w := do(r, http.MethodPost, "/posts/9/like", 1, nil)
		assert.Equal(t, tc.code, w.Code, tc.err.Error())
	}
}

func TestToggleLike_RequiresUser(t *testing.T) {
	eng := new(MockEngagement)
	r := newRouter(eng, new(MockFeed), new(MockSink))

	w := do(r, http.MethodPost, "/posts/7/like", 0, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	eng.AssertNotCalled(t, "ToggleLike", mock.Anything, mock.Anything, mock.Anything)
}

func TestBatchLikes(t *testing.T) {
	eng := new(MockEngagement)
	eng.On("GetMultiplePostsLikeData", mock.Anything, []int64{3, 1, 2}, int64(5)).
		Return(map[int64]domain.LikeData{1: {Count: 10}, 3: {Count: 2, IsLiked: true}}, nil).Once()
	r := newRouter(eng, new(MockFeed), new(MockSink))

	w := do(r, http.MethodPost, "/posts/likes/batch", 5, gin.H{"post_ids": []int64{3, 1, 2}})
	require.Equal(t, http.StatusOK, w.Code)

	var got []response.LikeData
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, []response.LikeData{
		{PostID: 3, Count: 2, IsLiked: true},
		{PostID: 1, Count: 10},
	}, got)

	w = do(r, http.MethodPost, "/posts/likes/batch", 5, gin.H{"post_ids": []int64{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/posts/likes/batch", 5, gin.H{"post_ids": []int64{1, -2}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	eng.AssertExpectations(t)
}

func TestGetFeed(t *testing.T) {
	feed := new(MockFeed)
	feed.On("GetRecommendedFeed", mock.Anything, int64(1), rest.DefaultFeedLimit).Return([]int64{9, 8}, nil).Twice()
	feed.On("GetRecommendedFeed", mock.Anything, int64(1), 5).Return([]int64{}, nil).Once()
	r := newRouter(new(MockEngagement), feed, new(MockSink))

	w := do(r, http.MethodGet, "/feed", 1, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got response.Feed
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, response.Feed{UserID: 1, PostIDs: []int64{9, 8}, Count: 2}, got)

	w = do(r, http.MethodGet, "/feed?limit=500", 1, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodGet, "/feed?limit=5", 1, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, []int64{}, got.PostIDs)

	feed.AssertExpectations(t)
}

func TestFeedInvalidateAndStatus(t *testing.T) {
	feed := new(MockFeed)
	feed.On("InvalidateRecommendations", mock.Anything, int64(2)).Return(nil).Once()
	feed.On("HasCachedRecommendations", mock.Anything, int64(2)).Return(true, nil).Once()
	feed.On("Stats", mock.Anything).Return(domain.FeedCacheStats{FastEntries: 1, PersistentEntries: 3}, nil).Once()
	r := newRouter(new(MockEngagement), feed, new(MockSink))

	w := do(r, http.MethodPost, "/feed/invalidate", 2, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(r, http.MethodGet, "/feed/status", 2, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got response.FeedStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.True(t, got.Cached)
	assert.Equal(t, int64(3), got.Stats.PersistentEntries)

	feed.AssertExpectations(t)
}

func TestTrackInteraction(t *testing.T) {
	sink := new(MockSink)
	sink.On("Send", domain.InteractionTask{UserID: 4, PostID: 10, CreatorID: 20, Type: domain.InteractionRepost}).Return(true).Once()
	sink.On("Send", domain.InteractionTask{UserID: 4, PostID: 11, Type: domain.InteractionView}).Return(false).Once()
	r := newRouter(new(MockEngagement), new(MockFeed), sink)

	w := do(r, http.MethodPost, "/interactions", 4, gin.H{"post_id": 10, "creator_id": 20, "type": "repost"})
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"queued":true}`, w.Body.String())

	w = do(r, http.MethodPost, "/interactions", 4, gin.H{"post_id": 11, "type": "view"})
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"queued":false}`, w.Body.String())

	w = do(r, http.MethodPost, "/interactions", 4, gin.H{"post_id": 11, "type": "share"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	sink.AssertExpectations(t)
}
