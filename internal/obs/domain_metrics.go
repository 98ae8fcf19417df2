package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// DemoSessionsTotal counts demo sessions created, by entry stage.
	DemoSessionsTotal *prometheus.CounterVec
	// DemoStageTransitionsTotal counts stage transitions across all sessions.
	DemoStageTransitionsTotal *prometheus.CounterVec
	// LeadSubmissionsTotal counts gate submissions by enqueue outcome.
	LeadSubmissionsTotal *prometheus.CounterVec
	// LeadDeliveriesTotal tracks lead webhook delivery outcomes.
	LeadDeliveriesTotal *prometheus.CounterVec
	// LeadDeliveryLatency records lead webhook delivery latency in milliseconds.
	LeadDeliveryLatency *prometheus.HistogramVec
	// PricebookRefreshTotal counts pricebook loads by source.
	PricebookRefreshTotal *prometheus.CounterVec
	// AttributionCapturesTotal counts attribution capture requests.
	AttributionCapturesTotal prometheus.Counter
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		DemoSessionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "demo_sessions_total",
			Help:      "Count of demo sessions created, by entry stage.",
		}, []string{"stage"})
		DemoStageTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "demo_stage_transitions_total",
			Help:      "Count of demo session stage transitions.",
		}, []string{"stage"})
		LeadSubmissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lead_submissions_total",
			Help:      "Count of gate submissions by enqueue outcome.",
		}, []string{"result"})
		LeadDeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lead_deliveries_total",
			Help:      "Count of lead webhook delivery outcomes.",
		}, []string{"result"})
		LeadDeliveryLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lead_delivery_duration_ms",
			Help:      "Latency for lead webhook deliveries in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"result"})
		PricebookRefreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricebook_refresh_total",
			Help:      "Count of pricebook loads by source.",
		}, []string{"source"})
		AttributionCapturesTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attribution_captures_total",
			Help:      "Count of attribution capture requests.",
		})

		mustRegisterCollector(reg, DemoSessionsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				DemoSessionsTotal = v
			}
		})
		mustRegisterCollector(reg, DemoStageTransitionsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				DemoStageTransitionsTotal = v
			}
		})
		mustRegisterCollector(reg, LeadSubmissionsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				LeadSubmissionsTotal = v
			}
		})
		mustRegisterCollector(reg, LeadDeliveriesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				LeadDeliveriesTotal = v
			}
		})
		mustRegisterCollector(reg, LeadDeliveryLatency, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				LeadDeliveryLatency = v
			}
		})
		mustRegisterCollector(reg, PricebookRefreshTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PricebookRefreshTotal = v
			}
		})
		mustRegisterCollector(reg, AttributionCapturesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				AttributionCapturesTotal = v
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
