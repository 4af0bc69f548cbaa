package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the cloudboard metric vectors
type Collector struct {
	Registry *prometheus.Registry

	apiRequests    *prometheus.CounterVec
	apiLatency     *prometheus.HistogramVec
	syncOperations *prometheus.CounterVec
	syncRuns       *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
	cacheEntries   prometheus.Gauge
}

// NewCollector registers every metric on a fresh registry
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		Registry: reg,
		apiRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cloudboard_api_requests_total",
			Help: "Remote API calls by operation and HTTP status (0 for network failures)",
		}, []string{"operation", "status"}),
		apiLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cloudboard_api_request_duration_seconds",
			Help:    "Remote API call latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		syncOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cloudboard_sync_operations_total",
			Help: "Records touched by sync, by kind (project, resource_group) and outcome",
		}, []string{"kind", "outcome"}),
		syncRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cloudboard_sync_runs_total",
			Help: "Sync workflow runs by workflow and result",
		}, []string{"workflow", "result"}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cloudboard_cache_lookups_total",
			Help: "Query cache lookups by result (hit, miss)",
		}, []string{"result"}),
		cacheEntries: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cloudboard_cache_entries",
			Help: "Entries currently held by the query cache",
		}),
	}
}

// Outcomes recorded for sync operations
const (
	OutcomeCreated   = "created"
	OutcomeUpdated   = "updated"
	OutcomeUnchanged = "unchanged"
	OutcomeFailed    = "failed"
)

// ObserveAPICall records one remote request
func (c *Collector) ObserveAPICall(operation string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.apiRequests.WithLabelValues(operation, strconv.Itoa(status)).Inc()
	c.apiLatency.WithLabelValues(operation).Observe(d.Seconds())
}

// ObserveSyncOperation records one record-level sync outcome
func (c *Collector) ObserveSyncOperation(kind, outcome string) {
	if c == nil {
		return
	}
	c.syncOperations.WithLabelValues(kind, outcome).Inc()
}

// ObserveSyncRun records one workflow run
func (c *Collector) ObserveSyncRun(workflow string, err error) {
	if c == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	c.syncRuns.WithLabelValues(workflow, result).Inc()
}

// ObserveCacheLookup records a cache hit or miss
func (c *Collector) ObserveCacheLookup(hit bool) {
	if c == nil {
		return
	}
	if hit {
		c.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	c.cacheLookups.WithLabelValues("miss").Inc()
}

// SetCacheEntries reports the current cache size
func (c *Collector) SetCacheEntries(n int) {
	if c == nil {
		return
	}
	c.cacheEntries.Set(float64(n))
}
