package observability

import (
	"fmt"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

// VaultMetrics tracks node operations and the vault's accounting totals.
type VaultMetrics struct {
	operations   *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	earlyExited  prometheus.Gauge
	totalValue   prometheus.Gauge
	totalShares  prometheus.Gauge
	pairExited   *prometheus.GaugeVec
	feeShares    prometheus.Counter
	invariantErr prometheus.Counter
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	vaultMetricsOnce sync.Once
	vaultRegistry    *VaultMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record
// JSON-RPC method activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "pairvault",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "pairvault",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by module, method, and error code.",
			}, []string{"module", "method", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "pairvault",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "pairvault",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of requests rejected by the rate limiter.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a JSON-RPC call. code is zero on success.
func (m *moduleMetrics) Observe(module, method string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if code != 0 {
		outcome = "error"
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", code)).Inc()
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason.
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// Vault returns the singleton vault metrics registry.
func Vault() *VaultMetrics {
	vaultMetricsOnce.Do(func() {
		vaultRegistry = &VaultMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "pairvault",
				Subsystem: "vault",
				Name:      "operations_total",
				Help:      "Count of node operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "pairvault",
				Subsystem: "vault",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for node operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			earlyExited: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "pairvault",
				Subsystem: "vault",
				Name:      "total_early_exited",
				Help:      "Notional paid out early and not yet reconciled, in collateral base units.",
			}),
			totalValue: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "pairvault",
				Subsystem: "vault",
				Name:      "reported_total_value",
				Help:      "Early-exited notional plus the redeemable reserve position.",
			}),
			totalShares: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "pairvault",
				Subsystem: "vault",
				Name:      "total_shares",
				Help:      "Outstanding vault shares.",
			}),
			pairExited: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "pairvault",
				Subsystem: "vault",
				Name:      "pair_early_exited",
				Help:      "Early-exited notional per pair.",
			}, []string{"pair"}),
			feeShares: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "pairvault",
				Subsystem: "vault",
				Name:      "fee_shares_minted_total",
				Help:      "Vault shares minted to the fee recipient.",
			}),
			invariantErr: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "pairvault",
				Subsystem: "vault",
				Name:      "invariant_violations_total",
				Help:      "Operations aborted because an accounting invariant failed.",
			}),
		}
		prometheus.MustRegister(
			vaultRegistry.operations,
			vaultRegistry.latency,
			vaultRegistry.earlyExited,
			vaultRegistry.totalValue,
			vaultRegistry.totalShares,
			vaultRegistry.pairExited,
			vaultRegistry.feeShares,
			vaultRegistry.invariantErr,
		)
	})
	return vaultRegistry
}

// ObserveOperation records one node operation.
func (m *VaultMetrics) ObserveOperation(operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetTotals publishes the vault-wide accounting totals.
func (m *VaultMetrics) SetTotals(earlyExited, totalValue, totalShares *uint256.Int) {
	if m == nil {
		return
	}
	m.earlyExited.Set(toFloat(earlyExited))
	m.totalValue.Set(toFloat(totalValue))
	m.totalShares.Set(toFloat(totalShares))
}

// SetPairEarlyExited publishes a pair's early-exited notional.
func (m *VaultMetrics) SetPairEarlyExited(pair string, amount *uint256.Int) {
	if m == nil {
		return
	}
	m.pairExited.WithLabelValues(pair).Set(toFloat(amount))
}

// ForgetPair drops the gauge series of a removed pair.
func (m *VaultMetrics) ForgetPair(pair string) {
	if m == nil {
		return
	}
	m.pairExited.DeleteLabelValues(pair)
}

func (m *VaultMetrics) AddFeeShares(shares *uint256.Int) {
	if m == nil || shares == nil {
		return
	}
	m.feeShares.Add(toFloat(shares))
}

func (m *VaultMetrics) RecordInvariantViolation() {
	if m == nil {
		return
	}
	m.invariantErr.Inc()
}

func toFloat(v *uint256.Int) float64 {
	if v == nil {
		return 0
	}
	if v.IsUint64() {
		return float64(v.Uint64())
	}
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	if math.IsInf(f, 0) {
		return math.MaxFloat64
	}
	return f
}
