package orchestrator

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics aggregates the harvesting counters on a dedicated registry so
// the admin server can expose them without touching the global one.
type Metrics struct {
	registry *prometheus.Registry

	attempts        *prometheus.CounterVec
	listingsFound   prometheus.Counter
	listingsNew     prometheus.Counter
	listingsUpdated prometheus.Counter
	listingsRemoved prometheus.Counter
	scrapeDuration  prometheus.Histogram
	governorWait    prometheus.Histogram
	agenciesFailed  prometheus.Counter
	domainsBlocked  prometheus.Counter
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_scrape_attempts_total",
			Help: "Scrape attempts by outcome class.",
		}, []string{"outcome"}),
		listingsFound: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvester_listings_found_total",
			Help: "Raw listings extracted across all scrapes.",
		}),
		listingsNew: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvester_listings_new_total",
			Help: "New canonical listings created.",
		}),
		listingsUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvester_listings_updated_total",
			Help: "Existing listings updated in place.",
		}),
		listingsRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvester_listings_removed_total",
			Help: "Listings deactivated after the missing streak.",
		}),
		scrapeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "harvester_scrape_duration_seconds",
			Help:    "Wall-clock duration of one agency scrape.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		governorWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "harvester_governor_wait_seconds",
			Help:    "Time spent waiting for a domain slot before fetching.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		agenciesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvester_agencies_failed_total",
			Help: "Agencies parked in failed status.",
		}),
		domainsBlocked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvester_domains_blocked_total",
			Help: "Domain policies escalated to blocked.",
		}),
	}
	reg.MustRegister(m.attempts, m.listingsFound, m.listingsNew,
		m.listingsUpdated, m.listingsRemoved, m.scrapeDuration,
		m.governorWait, m.agenciesFailed, m.domainsBlocked)
	return m
}

// ObserveTransition counts domain policies entering the blocked state.
func (m *Metrics) ObserveTransition(to string) {
	if to == "blocked" {
		m.domainsBlocked.Inc()
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
