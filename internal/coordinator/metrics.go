package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/maulanalegowo31-cloud/tvri-equipment-system/internal/core"
)

// Inventory read tiers.
const (
	tierCache = "cache"
	tierLive  = "live"
	tierStale = "stale"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "invtracker_requests_total",
		Help: "Total number of coordinator requests, by action and outcome",
	}, []string{"action", "outcome"})

	attemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "invtracker_request_attempts_total",
		Help: "Total number of network attempts made against the endpoint",
	})

	inventoryReads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "invtracker_inventory_reads_total",
		Help: "Total number of inventory reads, by serving tier",
	}, []string{"tier"})

	queueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "invtracker_queue_length",
		Help: "Number of write requests waiting in the offline queue",
	})

	onlineGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "invtracker_online",
		Help: "1 when the endpoint is considered reachable, 0 otherwise",
	})
)

func outcomeOf(err error) string {
	if err == nil {
		return "success"
	}
	if t := core.TypeOf(err); t != "" {
		return string(t)
	}
	return "error"
}
