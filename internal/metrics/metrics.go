// Package metrics collects and exposes worker metrics for Prometheus.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the worker's Prometheus metrics.
type Collector struct {
	claimsGranted  prometheus.Counter
	claimsDenied   prometheus.Counter
	takeovers      prometheus.Counter
	itemsProcessed prometheus.Counter
	itemsFailed    prometheus.Counter
	blacklisted    prometheus.Counter
	retries        prometheus.Counter

	leasesHeld   prometheus.Gauge
	itemDuration prometheus.Histogram
}

// NewCollector creates the collector and registers its metrics on a private
// registry, so tests can create collectors freely.
func NewCollector() (*Collector, *prometheus.Registry) {
	c := &Collector{
		claimsGranted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cutd_claims_granted_total",
			Help: "Total number of lease claims granted",
		}),
		claimsDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cutd_claims_denied_total",
			Help: "Total number of lease claims denied (item owned elsewhere)",
		}),
		takeovers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cutd_lease_takeovers_total",
			Help: "Total number of stale leases taken over",
		}),
		itemsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cutd_items_processed_total",
			Help: "Total number of items processed successfully",
		}),
		itemsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cutd_items_failed_total",
			Help: "Total number of item attempts that failed",
		}),
		blacklisted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cutd_items_blacklisted_total",
			Help: "Total number of items permanently blacklisted",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cutd_retries_scheduled_total",
			Help: "Total number of items scheduled for retry from the log scan",
		}),
		leasesHeld: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cutd_leases_held",
			Help: "Current number of leases held by this worker",
		}),
		itemDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "cutd_item_duration_seconds",
			Help: "Wall time per item attempt in seconds",
			// Transcodes run minutes to hours.
			Buckets: []float64{60, 300, 600, 1800, 3600, 7200, 14400},
		}),
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(c.claimsGranted, c.claimsDenied, c.takeovers,
		c.itemsProcessed, c.itemsFailed, c.blacklisted, c.retries,
		c.leasesHeld, c.itemDuration)
	return c, reg
}

func (c *Collector) ClaimGranted(takeover bool) {
	c.claimsGranted.Inc()
	if takeover {
		c.takeovers.Inc()
	}
}

func (c *Collector) ClaimDenied()       { c.claimsDenied.Inc() }
func (c *Collector) ItemProcessed()     { c.itemsProcessed.Inc() }
func (c *Collector) ItemFailed()        { c.itemsFailed.Inc() }
func (c *Collector) ItemBlacklisted()   { c.blacklisted.Inc() }
func (c *Collector) RetriesScheduled(n int) {
	c.retries.Add(float64(n))
}
func (c *Collector) SetLeasesHeld(n int) { c.leasesHeld.Set(float64(n)) }
func (c *Collector) ObserveItemDuration(d time.Duration) {
	c.itemDuration.Observe(d.Seconds())
}

// Serve exposes the registry on addr under /metrics. Blocks; intended to run
// in its own goroutine.
func Serve(addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
