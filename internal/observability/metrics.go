package observability

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	// RedisErrors counts Redis errors by command name.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_engine_redis_errors_total",
		Help: "Total number of Redis errors by command",
	}, []string{"command"})

	// FeedRequests counts feed reads by the tier that served them.
	FeedRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_engine_feed_requests_total",
		Help: "Feed reads by serving tier (fast, persistent, compute, empty)",
	}, []string{"tier"})

	// ComputeLatency records recommendation computation latency.
	ComputeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "feed_engine_compute_seconds",
		Help:    "Recommendation computation latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// CandidateSourceErrors counts candidate pools that degraded to empty.
	CandidateSourceErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_engine_candidate_source_errors_total",
		Help: "Candidate pool failures by source",
	}, []string{"source"})

	// LikeToggles counts toggle outcomes.
	LikeToggles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_engine_like_toggles_total",
		Help: "Like toggles by result (liked, unliked, error)",
	}, []string{"result"})

	// ReconcileOutcomes counts per-post reconciliation outcomes.
	ReconcileOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_engine_reconcile_total",
		Help: "Per-post reconciliation outcomes",
	}, []string{"outcome"})

	// InteractionsDropped counts interactions dropped by a full queue.
	InteractionsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_engine_interactions_dropped_total",
		Help: "Interactions dropped because the queue was full",
	})

	// HTTPRequestDuration records request latency by route and status.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "feed_engine_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// ObserveCompute records the latency of a computation started at start.
func ObserveCompute(start time.Time) {
	ComputeLatency.Observe(time.Since(start).Seconds())
}

// RedisMetricsHook counts failed Redis commands. redis.Nil is not a failure.
type RedisMetricsHook struct{}

var _ redis.Hook = RedisMetricsHook{}

func (RedisMetricsHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (RedisMetricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		if err != nil && !errors.Is(err, redis.Nil) {
			RedisErrors.WithLabelValues(cmd.Name()).Inc()
		}
		return err
	}
}

func (RedisMetricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		if err != nil && !errors.Is(err, redis.Nil) {
			RedisErrors.WithLabelValues("pipeline").Inc()
		}
		return err
	}
}
