// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	DetectOutcomes   *prometheus.CounterVec // label: outcome=started|scheduled|unavailable|error|deduped
	MismatchesFound  prometheus.Counter
	SwapRepairs      prometheus.Counter
	ManualSyncs      prometheus.Counter
	SeeksRejected    *prometheus.CounterVec // label: reason
	VimeoDiscoveries *prometheus.CounterVec // label: result=assigned|empty|error
	ProviderRequests *prometheus.CounterVec // labels: provider, result=hit|miss|error

	// Histograms (seconds)
	MetadataLatency *prometheus.HistogramVec // label: platform

	// Gauges
	ActiveSessions prometheus.Gauge
	DBOpenConns    prometheus.Gauge
	DBInUseConns   prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		DetectOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{Name: "matchjump_autodetect_total", Help: "Auto-detect attempts by outcome"}, []string{"outcome"})
		MismatchesFound = promauto.NewCounter(prometheus.CounterOpts{Name: "matchjump_day_mismatches_total", Help: "Stream/day mismatches reported"})
		SwapRepairs = promauto.NewCounter(prometheus.CounterOpts{Name: "matchjump_swap_repairs_total", Help: "Mismatch repairs applied by swapping slots"})
		ManualSyncs = promauto.NewCounter(prometheus.CounterOpts{Name: "matchjump_manual_syncs_total", Help: "Manual sync and nudge operations"})
		SeeksRejected = promauto.NewCounterVec(prometheus.CounterOpts{Name: "matchjump_seeks_rejected_total", Help: "Seeks blocked by a precondition"}, []string{"reason"})
		VimeoDiscoveries = promauto.NewCounterVec(prometheus.CounterOpts{Name: "matchjump_vimeo_discoveries_total", Help: "Vimeo event page discoveries by result"}, []string{"result"})
		ProviderRequests = promauto.NewCounterVec(prometheus.CounterOpts{Name: "matchjump_provider_requests_total", Help: "Event provider lookups by provider and result"}, []string{"provider", "result"})
		MetadataLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "matchjump_metadata_latency_seconds", Help: "Video metadata lookup latency", Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}}, []string{"platform"})
		ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{Name: "matchjump_active_sessions", Help: "Sessions currently held in memory"})
		DBOpenConns = promauto.NewGauge(prometheus.GaugeOpts{Name: "matchjump_db_open_connections", Help: "Open database connections"})
		DBInUseConns = promauto.NewGauge(prometheus.GaugeOpts{Name: "matchjump_db_in_use_connections", Help: "Database connections in use"})
	})
}

// RecordDetect counts one auto-detect outcome.
func RecordDetect(outcome string) {
	if DetectOutcomes != nil {
		DetectOutcomes.WithLabelValues(outcome).Inc()
	}
}

// RecordMismatches adds n reported mismatches.
func RecordMismatches(n int) {
	if MismatchesFound != nil && n > 0 {
		MismatchesFound.Add(float64(n))
	}
}

// RecordSwap counts a swap repair.
func RecordSwap() {
	if SwapRepairs != nil {
		SwapRepairs.Inc()
	}
}

// RecordManualSync counts a manual sync or nudge.
func RecordManualSync() {
	if ManualSyncs != nil {
		ManualSyncs.Inc()
	}
}

// RecordSeekRejected counts a blocked seek.
func RecordSeekRejected(reason string) {
	if SeeksRejected != nil {
		SeeksRejected.WithLabelValues(reason).Inc()
	}
}

// RecordDiscovery counts a Vimeo event discovery result.
func RecordDiscovery(result string) {
	if VimeoDiscoveries != nil {
		VimeoDiscoveries.WithLabelValues(result).Inc()
	}
}

// RecordProvider counts an event provider lookup.
func RecordProvider(provider, result string) {
	if ProviderRequests != nil {
		ProviderRequests.WithLabelValues(provider, result).Inc()
	}
}

// ObserveMetadata records how long a platform lookup took.
func ObserveMetadata(platform string, d time.Duration) {
	if obs := MetadataObserver(platform); obs != nil {
		obs.Observe(d.Seconds())
	}
}

// MetadataObserver is the latency observer for platform, nil before Init.
func MetadataObserver(platform string) prometheus.Observer {
	if MetadataLatency == nil {
		return nil
	}
	return MetadataLatency.WithLabelValues(platform)
}

// SetActiveSessions records the number of live sessions.
func SetActiveSessions(n int) {
	if ActiveSessions != nil {
		ActiveSessions.Set(float64(n))
	}
}

// UpdateDatabasePoolMetrics records sql.DB pool stats.
func UpdateDatabasePoolMetrics(open, inUse int) {
	if DBOpenConns != nil {
		DBOpenConns.Set(float64(open))
	}
	if DBInUseConns != nil {
		DBInUseConns.Set(float64(inUse))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context carrying the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
