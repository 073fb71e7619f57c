package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// DiscountRequestTotal counts discount request submissions by outcome.
	DiscountRequestTotal *prometheus.CounterVec
	// DiscountPollTotal counts synchroniser polls by result.
	DiscountPollTotal *prometheus.CounterVec
	// DiscountResolutionSeconds records how long requests stay pending.
	DiscountResolutionSeconds prometheus.Histogram
	// DocumentIssueTotal counts document submissions by kind and outcome.
	DocumentIssueTotal *prometheus.CounterVec
	// CartLinesGauge tracks the live line count of the active cart.
	CartLinesGauge prometheus.Gauge
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		DiscountRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discount_request_total",
			Help:      "Count of discount request submissions by outcome.",
		}, []string{"result"})
		DiscountPollTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discount_poll_total",
			Help:      "Count of authorisation polls by result.",
		}, []string{"result"})
		DiscountResolutionSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "discount_resolution_seconds",
			Help:      "Time between opening a discount request and its terminal state.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		})
		DocumentIssueTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "document_issue_total",
			Help:      "Count of document submissions by kind and outcome.",
		}, []string{"kind", "result"})
		CartLinesGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cart_lines",
			Help:      "Number of lines in the active cart.",
		})

		mustRegisterCollector(reg, DiscountRequestTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				DiscountRequestTotal = v
			}
		})
		mustRegisterCollector(reg, DiscountPollTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				DiscountPollTotal = v
			}
		})
		mustRegisterCollector(reg, DiscountResolutionSeconds, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Histogram); ok {
				DiscountResolutionSeconds = v
			}
		})
		mustRegisterCollector(reg, DocumentIssueTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				DocumentIssueTotal = v
			}
		})
		mustRegisterCollector(reg, CartLinesGauge, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Gauge); ok {
				CartLinesGauge = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
