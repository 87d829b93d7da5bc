package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry so tests can build as many collectors as
// they like without duplicate-registration panics. All record methods are
// nil-safe; engines treat metrics as optional.
type Collector struct {
	registry *prometheus.Registry

	transactions   *prometheus.CounterVec
	actionOutcomes *prometheus.CounterVec
	actionDuration prometheus.Histogram
	priceChanges   *prometheus.CounterVec
	shareTrades    *prometheus.CounterVec
	dividendTokens prometheus.Counter
}

func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	return &Collector{
		registry: registry,
		transactions: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "economy_transactions_total",
			Help: "Ledger transactions appended, by kind",
		}, []string{"kind"}),
		actionOutcomes: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "economy_action_outcomes_total",
			Help: "Action executions by action id and outcome code",
		}, []string{"action", "outcome"}),
		actionDuration: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "economy_action_duration_seconds",
			Help:    "End-to-end action pipeline duration",
			Buckets: prometheus.DefBuckets,
		}),
		priceChanges: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "economy_price_changes_total",
			Help: "Adaptive price changes by cause",
		}, []string{"cause"}),
		shareTrades: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "economy_share_trades_total",
			Help: "Share market trades by type",
		}, []string{"type"}),
		dividendTokens: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "economy_dividend_tokens_total",
			Help: "Tokens distributed to shareholders as dividends",
		}),
	}
}

func (c *Collector) RecordTransaction(kind string) {
	if c == nil {
		return
	}
	c.transactions.WithLabelValues(kind).Inc()
}

func (c *Collector) RecordAction(actionID, outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.actionOutcomes.WithLabelValues(actionID, outcome).Inc()
	c.actionDuration.Observe(duration.Seconds())
}

func (c *Collector) RecordPriceChange(cause string) {
	if c == nil {
		return
	}
	c.priceChanges.WithLabelValues(cause).Inc()
}

func (c *Collector) RecordShareTrade(tradeType string) {
	if c == nil {
		return
	}
	c.shareTrades.WithLabelValues(tradeType).Inc()
}

func (c *Collector) RecordDividends(tokens int64) {
	if c == nil {
		return
	}
	c.dividendTokens.Add(float64(tokens))
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
