package web

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hurricanerix/imggen/internal/events"
)

// metricsCollector exposes the current run's progress as Prometheus gauges,
// updated by observing events rather than polling the orchestrator
// directly, so /metrics stays accurate across runs without coupling to
// Orchestrator internals.
type metricsCollector struct {
	registry *prometheus.Registry

	mu        sync.Mutex
	done      float64
	target    float64
	costSoFar float64

	doneGauge      prometheus.GaugeFunc
	targetGauge    prometheus.GaugeFunc
	costGauge      prometheus.GaugeFunc
	skippedCounter prometheus.Counter
}

func newMetricsCollector() *metricsCollector {
	m := &metricsCollector{registry: prometheus.NewRegistry()}

	m.doneGauge = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "imggen",
		Name:      "run_done_images",
		Help:      "Number of images persisted so far in the active or most recent run.",
	}, func() float64 {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.done
	})
	m.targetGauge = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "imggen",
		Name:      "run_target_images",
		Help:      "Configured target_images for the active or most recent run.",
	}, func() float64 {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.target
	})
	m.costGauge = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "imggen",
		Name:      "run_cost_so_far_usd",
		Help:      "Estimated spend so far in the active or most recent run.",
	}, func() float64 {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.costSoFar
	})
	m.skippedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "imggen",
		Name:      "dedupe_dropped_total",
		Help:      "Total images dropped as perceptual duplicates across all runs observed by this server.",
	})

	m.registry.MustRegister(m.doneGauge, m.targetGauge, m.costGauge, m.skippedCounter)
	return m
}

func (m *metricsCollector) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// observe updates the gauges from a bus event. Called from a subscriber
// goroutine for the server's lifetime.
func (m *metricsCollector) observe(ev events.Event) {
	switch ev.Kind {
	case events.KindStarted:
		m.mu.Lock()
		m.target = float64(ev.Total)
		m.done = 0
		m.mu.Unlock()
	case events.KindProgress:
		m.mu.Lock()
		m.done = float64(ev.Done)
		m.costSoFar = ev.CostSoFar
		m.mu.Unlock()
	case events.KindLog:
		if len(ev.Msg) >= len("dedupe: dropped") && ev.Msg[len(ev.Msg)-len("dedupe: dropped"):] == "dedupe: dropped" {
			m.skippedCounter.Inc()
		}
	}
}

// watch subscribes to bus and feeds every event to observe until bus
// closes. Intended to run in its own goroutine for the server's lifetime.
func (m *metricsCollector) watch(bus *events.Bus) {
	ch, _ := bus.Subscribe()
	for ev := range ch {
		m.observe(ev)
	}
}
