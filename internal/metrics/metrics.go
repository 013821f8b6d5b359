package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tweetsched_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tweetsched_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Delivery metrics
	TweetsPosted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tweetsched_tweets_posted_total",
			Help: "Total tweets confirmed by the posting API",
		},
	)

	TweetsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tweetsched_tweets_failed_total",
			Help: "Total failed delivery attempts",
		},
		[]string{"reason"}, // "validation", "post" or "store"
	)

	TweetsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tweetsched_tweets_skipped_total",
			Help: "Total deliveries skipped because of a receipt or a foreign claim",
		},
		[]string{"reason"}, // "receipt" or "claimed"
	)

	PostLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tweetsched_post_latency_seconds",
			Help:    "Posting API call latency",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	// Reconciler metrics
	ReconcilePasses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tweetsched_reconcile_passes_total",
			Help: "Total reconcile passes",
		},
		[]string{"result"}, // "ok" or "error"
	)

	TimersTracked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tweetsched_timers_tracked",
			Help: "One-shot delivery timers currently owned by the reconciler",
		},
	)
)
