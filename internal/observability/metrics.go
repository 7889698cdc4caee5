package observability

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/rollup-backend/internal/pkg/logger"
)

type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	runs         *prometheus.CounterVec
	runLatency   *prometheus.HistogramVec
	stageLatency *prometheus.HistogramVec
	stageRecords *prometheus.CounterVec
	upserts      *prometheus.CounterVec
	orphans      *prometheus.CounterVec
	unbalanced   *prometheus.CounterVec

	storeOps       *prometheus.HistogramVec
	storeConflicts *prometheus.CounterVec

	dbStats   *prometheus.GaugeVec
	redisUp   prometheus.Gauge
	redisPing prometheus.Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	v := strings.TrimSpace(os.Getenv("METRICS_ENABLED"))
	if v == "" {
		return false
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func Current() *Metrics {
	return instance
}

func scrapeInterval() time.Duration {
	v := strings.TrimSpace(os.Getenv("METRICS_SCRAPE_INTERVAL_SECONDS"))
	if v == "" {
		return 10 * time.Second
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 10 * time.Second
	}
	return time.Duration(n) * time.Second
}

// Init builds the process-wide metrics set when METRICS_ENABLED is on.
// A nil *Metrics is valid and records nothing.
func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = NewMetrics()
		if log != nil {
			log.Info("metrics enabled")
		}
	})
	return instance
}

// NewMetrics returns a metrics set on its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rollup_api_requests_total",
			Help: "Total API requests by method/route/status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rollup_api_request_duration_seconds",
			Help:    "API request latency in seconds by method/route/status.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"method", "route", "status"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rollup_api_inflight_requests",
			Help: "In-flight API requests.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rollup_runs_total",
			Help: "Pipeline runs by source type and outcome kind.",
		}, []string{"source_type", "status"}),
		runLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rollup_run_duration_seconds",
			Help:    "End-to-end pipeline run latency.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}, []string{"source_type", "status"}),
		stageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rollup_stage_duration_seconds",
			Help:    "Pipeline stage latency.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"source_type", "stage"}),
		stageRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rollup_stage_records_total",
			Help: "Records produced per pipeline stage.",
		}, []string{"source_type", "stage"}),
		upserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rollup_upserts_total",
			Help: "Target writes by outcome.",
		}, []string{"source_type", "outcome"}),
		orphans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rollup_orphans_total",
			Help: "Item or category groups with no matching header.",
		}, []string{"source_type", "view"}),
		unbalanced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rollup_unbalanced_identities_total",
			Help: "Identities whose item and category count sums differ.",
		}, []string{"source_type"}),
		storeOps: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rollup_store_operation_duration_seconds",
			Help:    "Target store operation latency.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"source_type", "operation", "status"}),
		storeConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rollup_store_conflicts_total",
			Help: "Target store conflicts (version or multiple matches).",
		}, []string{"source_type", "operation"}),
		dbStats: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rollup_db_pool",
			Help: "Database pool statistics.",
		}, []string{"stat"}),
		redisUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rollup_redis_up",
			Help: "1 when the last redis ping succeeded.",
		}),
		redisPing: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rollup_redis_ping_seconds",
			Help: "Latency of the last redis ping.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.runs, m.runLatency, m.stageLatency, m.stageRecords,
		m.upserts, m.orphans, m.unbalanced,
		m.storeOps, m.storeConflicts,
		m.dbStats, m.redisUp, m.redisPing,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route, status).Observe(dur.Seconds())
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

// ObserveRun records one finished run. status is "ok" or the error kind.
func (m *Metrics) ObserveRun(sourceType, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(sourceType, status).Inc()
	m.runLatency.WithLabelValues(sourceType, status).Observe(dur.Seconds())
}

func (m *Metrics) ObserveStage(sourceType, stage string, records int, dur time.Duration) {
	if m == nil {
		return
	}
	m.stageLatency.WithLabelValues(sourceType, stage).Observe(dur.Seconds())
	m.stageRecords.WithLabelValues(sourceType, stage).Add(float64(records))
}

func (m *Metrics) AddUpserts(sourceType, outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.upserts.WithLabelValues(sourceType, outcome).Add(float64(n))
}

func (m *Metrics) AddOrphans(sourceType, view string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.orphans.WithLabelValues(sourceType, view).Add(float64(n))
}

func (m *Metrics) AddUnbalanced(sourceType string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.unbalanced.WithLabelValues(sourceType).Add(float64(n))
}

func (m *Metrics) ObserveStoreOperation(sourceType, op, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.storeOps.WithLabelValues(sourceType, op, status).Observe(dur.Seconds())
}

func (m *Metrics) IncStoreConflict(sourceType, op string) {
	if m == nil {
		return
	}
	m.storeConflicts.WithLabelValues(sourceType, op).Inc()
}

func (m *Metrics) StartDBCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sqlDB, err := db.DB()
				if err != nil {
					if log != nil {
						log.Warn("metrics: db stats unavailable", "error", err)
					}
					continue
				}
				stats := sqlDB.Stats()
				m.dbStats.WithLabelValues("open_connections").Set(float64(stats.OpenConnections))
				m.dbStats.WithLabelValues("in_use").Set(float64(stats.InUse))
				m.dbStats.WithLabelValues("idle").Set(float64(stats.Idle))
				m.dbStats.WithLabelValues("wait_count").Set(float64(stats.WaitCount))
				m.dbStats.WithLabelValues("wait_duration_seconds").Set(stats.WaitDuration.Seconds())
			}
		}
	}()
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb redis.UniversalClient) {
	if m == nil || rdb == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}
