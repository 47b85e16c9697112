// Package metrics exposes Prometheus collectors for the monitor loop and the
// command dispatcher. A nil *Metrics is valid and records nothing.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dmwatch"

// Metrics holds the dmwatch collectors.
type Metrics struct {
	// ticks counts completed poll cycles
	ticks prometheus.Counter
	// tickDuration tracks how long a whole cycle took, refresh to render
	tickDuration prometheus.Histogram
	// refreshes counts collection refreshes by outcome (ok/error)
	refreshes *prometheus.CounterVec
	// refreshDuration tracks fetch latency per collection
	refreshDuration *prometheus.HistogramVec
	// records is the size of each collection after its last successful refresh
	records *prometheus.GaugeVec
	// transfers is the number of rendered transfers per status label
	transfers *prometheus.GaugeVec
	// commands counts dispatched commands by outcome
	commands *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
// Registration panics on duplicate names, as with prometheus.MustRegister.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Completed poll cycles.",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Duration of a poll cycle from refresh to render.",
			Buckets:   prometheus.DefBuckets,
		}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refreshes_total",
			Help:      "Collection refreshes by outcome.",
		}, []string{"collection", "outcome"}),
		refreshDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Collection fetch latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"collection"}),
		records: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records",
			Help:      "Records held by each collection after its last successful refresh.",
		}, []string{"collection"}),
		transfers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transfers",
			Help:      "Rendered transfers by status.",
		}, []string{"status"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Dispatched commands by outcome.",
		}, []string{"command", "outcome"}),
	}

	reg.MustRegister(
		m.ticks,
		m.tickDuration,
		m.refreshes,
		m.refreshDuration,
		m.records,
		m.transfers,
		m.commands,
	)
	return m
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveRefresh records one collection refresh. count is only used on success.
func (m *Metrics) ObserveRefresh(collection string, d time.Duration, count int, err error) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(collection, outcome(err)).Inc()
	m.refreshDuration.WithLabelValues(collection).Observe(d.Seconds())
	if err == nil {
		m.records.WithLabelValues(collection).Set(float64(count))
	}
}

// ObserveTick records a completed poll cycle and the rendered transfer mix.
func (m *Metrics) ObserveTick(d time.Duration, byStatus map[string]int) {
	if m == nil {
		return
	}
	m.ticks.Inc()
	m.tickDuration.Observe(d.Seconds())
	m.transfers.Reset()
	for status, n := range byStatus {
		m.transfers.WithLabelValues(status).Set(float64(n))
	}
}

// ObserveCommand records a dispatched command.
func (m *Metrics) ObserveCommand(command string, err error) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(command, outcome(err)).Inc()
}

// RegisterDroppedEvents exposes the event bus drop counter. dropped is read
// at scrape time.
func RegisterDroppedEvents(reg prometheus.Registerer, dropped func() int64) {
	reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_dropped_total",
		Help:      "Events dropped because a subscriber was not keeping up.",
	}, func() float64 { return float64(dropped()) }))
}

// Handler serves the collectors gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Serve exposes g on addr under /metrics until the server fails or is shut
// down. http.ErrServerClosed is not reported.
func Serve(srv *http.Server, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))
	srv.Handler = mux
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
