package infrastructure

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"banker/service"
)

// Metrics exposes payout cycle counters to Prometheus
type Metrics struct {
	registry *prometheus.Registry

	cycles         *prometheus.CounterVec
	accounts       *prometheus.CounterVec
	interestPaid   *prometheus.CounterVec
	feesCharged    *prometheus.CounterVec
	failures       *prometheus.CounterVec
	failedWrites   *prometheus.CounterVec
	cycleDuration  prometheus.Histogram
	gini           *prometheus.GaugeVec
	revenue        *prometheus.GaugeVec
	lastCycleEpoch *prometheus.GaugeVec
}

// NewMetrics creates and registers the payout collectors on a fresh registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "banker",
			Subsystem: "payout",
			Name:      "cycles_total",
			Help:      "Total number of payout cycles run.",
		}, []string{"bank_id"}),
		accounts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "banker",
			Subsystem: "payout",
			Name:      "accounts_processed_total",
			Help:      "Accounts processed by payout cycles, by outcome.",
		}, []string{"bank_id", "outcome"}),
		interestPaid: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "banker",
			Subsystem: "payout",
			Name:      "interest_paid_total",
			Help:      "Interest deposited to owners.",
		}, []string{"bank_id"}),
		feesCharged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "banker",
			Subsystem: "payout",
			Name:      "fees_charged_total",
			Help:      "Low balance fees collected.",
		}, []string{"bank_id"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "banker",
			Subsystem: "payout",
			Name:      "payment_failures_total",
			Help:      "Payments that failed during payout cycles.",
		}, []string{"bank_id"}),
		failedWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "banker",
			Subsystem: "payout",
			Name:      "persistence_failures_total",
			Help:      "Account, log and bank writes that failed during payout cycles.",
		}, []string{"bank_id", "step"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "banker",
			Subsystem: "payout",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of payout cycles.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		gini: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "banker",
			Subsystem: "bank",
			Name:      "gini",
			Help:      "Gini coefficient of per-owner balances after the last cycle.",
		}, []string{"bank_id"}),
		revenue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "banker",
			Subsystem: "bank",
			Name:      "revenue_estimate",
			Help:      "Bank revenue formula result after the last cycle.",
		}, []string{"bank_id"}),
		lastCycleEpoch: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "banker",
			Subsystem: "payout",
			Name:      "last_cycle_timestamp_seconds",
			Help:      "Scheduled time of the last payout cycle.",
		}, []string{"bank_id"}),
	}

	m.registry.MustRegister(
		m.cycles,
		m.accounts,
		m.interestPaid,
		m.feesCharged,
		m.failures,
		m.failedWrites,
		m.cycleDuration,
		m.gini,
		m.revenue,
		m.lastCycleEpoch,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return m
}

// ObserveCycle records a completed payout cycle
func (m *Metrics) ObserveCycle(report *service.CycleReport) {
	bank := strconv.FormatInt(report.BankID, 10)

	m.cycles.WithLabelValues(bank).Inc()
	m.accounts.WithLabelValues(bank, "paid").Add(float64(report.AccountsPaid))
	m.accounts.WithLabelValues(bank, "skipped").Add(float64(report.AccountsSkipped))
	m.accounts.WithLabelValues(bank, "charged").Add(float64(report.AccountsCharged))
	m.interestPaid.WithLabelValues(bank).Add(report.InterestPaid.InexactFloat64())
	m.feesCharged.WithLabelValues(bank).Add(report.FeesCharged.InexactFloat64())
	m.failures.WithLabelValues(bank).Add(float64(len(report.Failures)))
	for _, f := range report.PersistenceFailures {
		m.failedWrites.WithLabelValues(bank, f.Step).Inc()
	}
	m.cycleDuration.Observe(report.Duration.Seconds())
	m.gini.WithLabelValues(bank).Set(report.Stats.Gini.InexactFloat64())
	m.revenue.WithLabelValues(bank).Set(report.Revenue.InexactFloat64())
	m.lastCycleEpoch.WithLabelValues(bank).Set(float64(report.RunAt.Unix()))
}

// Handler returns an HTTP handler exposing the registered metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
