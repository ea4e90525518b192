// Package metrics holds the Prometheus collectors of both binaries.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fastprodman/coinsync/internal/breaker"
	"github.com/fastprodman/coinsync/internal/syncqueue"
)

const namespace = "coinsync"

// NewRegistry returns a registry with the process and Go runtime collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	return reg
}

// Handler exposes reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Client instruments the transaction queue and the breaker registry.
type Client struct {
	deliveries       *prometheus.CounterVec
	deliveryDuration *prometheus.HistogramVec
	breakerChanges   *prometheus.CounterVec
	breakerOpen      *prometheus.GaugeVec
	pending          prometheus.Gauge
	failed           prometheus.Gauge
	lastSync         prometheus.Gauge
}

func NewClient(reg prometheus.Registerer) *Client {
	c := &Client{
		deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "queue",
				Name:      "deliveries_total",
				Help:      "Delivery attempts by endpoint and outcome.",
			},
			[]string{"endpoint", "outcome"},
		),
		deliveryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "queue",
				Name:      "delivery_duration_seconds",
				Help:      "Duration of delivery attempts.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
			},
			[]string{"endpoint"},
		),
		breakerChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "breaker",
				Name:      "transitions_total",
				Help:      "Breaker state transitions by endpoint and target state.",
			},
			[]string{"endpoint", "to"},
		),
		breakerOpen: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "breaker",
				Name:      "open",
				Help:      "1 while the endpoint's breaker is not closed.",
			},
			[]string{"endpoint"},
		),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "pending",
			Help:      "Transactions awaiting delivery.",
		}),
		failed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "failed",
			Help:      "Transactions that exhausted their attempts or were rejected.",
		}),
		lastSync: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "last_sync_timestamp_seconds",
			Help:      "Unix time of the last confirmed delivery.",
		}),
	}

	reg.MustRegister(c.deliveries, c.deliveryDuration, c.breakerChanges, c.breakerOpen, c.pending, c.failed, c.lastSync)

	return c
}

// ObserveDelivery has the shape of syncqueue.DeliveryObserver.
func (c *Client) ObserveDelivery(endpoint string, outcome syncqueue.Outcome, took time.Duration) {
	c.deliveries.WithLabelValues(endpoint, string(outcome)).Inc()
	c.deliveryDuration.WithLabelValues(endpoint).Observe(took.Seconds())
}

// ObserveBreaker has the shape of breaker.Observer.
func (c *Client) ObserveBreaker(endpoint string, _, to breaker.State) {
	c.breakerChanges.WithLabelValues(endpoint, to.String()).Inc()

	open := 0.0
	if to != breaker.StateClosed {
		open = 1
	}

	c.breakerOpen.WithLabelValues(endpoint).Set(open)
}

// SetSyncStatus mirrors the queue's status into gauges.
func (c *Client) SetSyncStatus(st syncqueue.SyncStatus) {
	c.pending.Set(float64(st.Pending))
	c.failed.Set(float64(st.Failed))

	if !st.LastSync.IsZero() {
		c.lastSync.Set(float64(st.LastSync.Unix()))
	}
}
