package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	APIRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agentx_api_requests_total",
		Help: "X API requests by endpoint category and response status",
	}, []string{"endpoint", "status"})
	APIRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agentx_api_request_duration_seconds",
		Help:    "X API request latency including retries",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
	APIRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agentx_api_retries_total",
		Help: "Total API retry attempts",
	}, []string{"endpoint"})
	RateLimitDenied = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agentx_ratelimit_denied_total",
		Help: "Requests refused by local admission control",
	}, []string{"endpoint", "identifier"})
	GenerationCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agentx_generation_calls_total",
		Help: "Generation attempts by provider and outcome",
	}, []string{"provider", "outcome"})
	CollectionRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agentx_collection_runs_total",
		Help: "Total keyword collection runs",
	})
	CollectionErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agentx_collection_errors_total",
		Help: "Total failed keyword collection runs",
	})
	CollectionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "agentx_collection_duration_seconds",
		Help:    "Collection run duration seconds",
		Buckets: prometheus.DefBuckets,
	})
	PostsSaved = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agentx_posts_saved_total",
		Help: "Collected posts persisted",
	})
	CommandRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agentx_command_runs_total",
		Help: "CLI command invocations",
	}, []string{"command", "outcome"})
)

func init() {
	prometheus.MustRegister(
		APIRequests, APIRequestDuration, APIRetries, RateLimitDenied,
		GenerationCalls, CollectionRuns, CollectionErrors, CollectionDuration,
		PostsSaved, CommandRuns,
	)
}

// Handler serves /metrics and /health.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	return mux
}

// Serve runs the metrics server on addr until ctx is cancelled.
// An empty addr disables the server.
func Serve(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}
	srv := &http.Server{Addr: addr, Handler: Handler(), ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// ObserveAPIRequest records one completed X API call. status 0 means the
// request never produced a response.
func ObserveAPIRequest(endpoint string, status int, start time.Time) {
	APIRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

// IncAPIRetry increments the retry counter for an endpoint.
func IncAPIRetry(endpoint string) { APIRetries.WithLabelValues(endpoint).Inc() }

func IncRateLimitDenied(endpoint, identifier string) {
	RateLimitDenied.WithLabelValues(endpoint, identifier).Inc()
}

func IncGeneration(provider, outcome string) {
	GenerationCalls.WithLabelValues(provider, outcome).Inc()
}

// ObserveCollectionDuration records a run duration
func ObserveCollectionDuration(start time.Time) {
	CollectionDuration.Observe(time.Since(start).Seconds())
}

func IncCommandRun(command string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	CommandRuns.WithLabelValues(command, outcome).Inc()
}
