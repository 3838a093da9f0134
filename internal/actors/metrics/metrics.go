// Package metrics exposes the use-case counters as prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rbroggi/recyclo/internal/core/ports"
)

// Collector is the prometheus implementation of ports.Metrics.
type Collector struct {
	contacts      *prometheus.CounterVec
	messages      prometheus.Counter
	notifications prometheus.Counter
	storeRetries  *prometheus.CounterVec
	staleReads    prometheus.Counter
}

// NewCollector creates a Collector and registers its metrics in reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		contacts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recyclo_contacts_total",
			Help: "Contact calls, by whether the conversation was created",
		}, []string{"created"}),
		messages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recyclo_messages_total",
			Help: "Messages appended to conversations",
		}),
		notifications: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recyclo_notifications_total",
			Help: "Notifications raised or published",
		}),
		storeRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recyclo_store_retries_total",
			Help: "Retried conversation store operations",
		}, []string{"operation"}),
		staleReads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recyclo_stale_reads_total",
			Help: "Reads served from the last-known view while the store was unavailable",
		}),
	}
	reg.MustRegister(c.contacts, c.messages, c.notifications, c.storeRetries, c.staleReads)
	return c
}

func (c *Collector) RecordContact(created bool) {
	label := "false"
	if created {
		label = "true"
	}
	c.contacts.WithLabelValues(label).Inc()
}

func (c *Collector) RecordMessage() {
	c.messages.Inc()
}

func (c *Collector) RecordNotification() {
	c.notifications.Inc()
}

func (c *Collector) RecordStoreRetry(operation string) {
	c.storeRetries.WithLabelValues(operation).Inc()
}

func (c *Collector) RecordStaleRead() {
	c.staleReads.Inc()
}

// Handler returns the scrape handler of gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var _ ports.Metrics = (*Collector)(nil)
