// Package metrics registers every metric name §6 of the spec lists, using
// promauto the same way the teacher's scheduler observability package
// does: one factory, grouped init*Metrics helpers per category.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the namespace for every metric this package registers.
	Namespace = "corecrawl"
)

// Metrics holds every Prometheus metric named in spec §6.
type Metrics struct {
	PagesFetchedTotal  prometheus.Counter
	FetchErrorsTotal   *prometheus.CounterVec
	FetchLatencySeconds prometheus.Histogram

	ParseLatencySeconds prometheus.Histogram
	ParseQueueDepth     prometheus.Gauge
	ParseQueueBytes     prometheus.Gauge

	FrontierReadySize        *prometheus.GaugeVec
	FrontierEnqueuedTotal    prometheus.Counter
	FrontierDroppedBloomTotal prometheus.Counter

	RobotsCacheHitsTotal   prometheus.Counter
	RobotsCacheMissesTotal prometheus.Counter
	RobotsFetchErrorsTotal prometheus.Counter

	DatastoreRetryTotal     *prometheus.CounterVec
	DatastoreLatencySeconds *prometheus.HistogramVec

	// pagesFetched mirrors PagesFetchedTotal as a plain counter the
	// orchestrator's max-pages stop condition can read without scraping the
	// Prometheus registry.
	pagesFetched atomic.Int64
}

// IncPagesFetched bumps both the Prometheus counter and the in-process
// counter the orchestrator polls for its max-pages stop condition.
func (m *Metrics) IncPagesFetched() {
	m.PagesFetchedTotal.Inc()
	m.pagesFetched.Add(1)
}

// PagesFetched returns the total pages fetched so far in this process.
func (m *Metrics) PagesFetched() int64 {
	return m.pagesFetched.Load()
}

// New creates and registers every metric against reg. Passing a nil
// Registerer registers against prometheus.DefaultRegisterer, matching the
// teacher's NewMetrics(reg) convention.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	m := &Metrics{}
	m.initFetch(factory)
	m.initParse(factory)
	m.initFrontier(factory)
	m.initRobots(factory)
	m.initDatastore(factory)
	return m
}

func (m *Metrics) initFetch(factory promauto.Factory) {
	m.PagesFetchedTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "pages_fetched_total",
		Help:      "Total number of pages successfully fetched.",
	})
	m.FetchErrorsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "fetch_errors_total",
		Help:      "Total number of fetch errors, by kind.",
	}, []string{"kind"})
	m.FetchLatencySeconds = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "fetch_latency_seconds",
		Help:      "HTTP fetch latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	})
}

func (m *Metrics) initParse(factory promauto.Factory) {
	m.ParseLatencySeconds = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "parse_latency_seconds",
		Help:      "Parse (extraction) latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	})
	m.ParseQueueDepth = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "parse_queue_depth",
		Help:      "Current number of items waiting in the parser queue.",
	})
	m.ParseQueueBytes = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "parse_queue_bytes",
		Help:      "Current total body bytes waiting in the parser queue.",
	})
}

func (m *Metrics) initFrontier(factory promauto.Factory) {
	m.FrontierReadySize = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "frontier_ready_size",
		Help:      "Current size of a shard's ready set.",
	}, []string{"shard"})
	m.FrontierEnqueuedTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "frontier_enqueued_total",
		Help:      "Total number of URLs appended to frontier files.",
	})
	m.FrontierDroppedBloomTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "frontier_dropped_bloom_total",
		Help:      "Total number of candidate links dropped by the dedup bloom filter.",
	})
}

func (m *Metrics) initRobots(factory promauto.Factory) {
	m.RobotsCacheHitsTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "robots_cache_hits_total",
		Help:      "Total number of robots.txt cache hits.",
	})
	m.RobotsCacheMissesTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "robots_cache_misses_total",
		Help:      "Total number of robots.txt cache misses.",
	})
	m.RobotsFetchErrorsTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "robots_fetch_errors_total",
		Help:      "Total number of robots.txt fetch errors.",
	})
}

func (m *Metrics) initDatastore(factory promauto.Factory) {
	m.DatastoreRetryTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "datastore_retry_total",
		Help:      "Total number of datastore operation retries, by operation.",
	}, []string{"op"})
	m.DatastoreLatencySeconds = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "datastore_latency_seconds",
		Help:      "Datastore operation latency in seconds, by operation.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})
}
