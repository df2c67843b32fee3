// Package metrics holds the Prometheus collectors exported by the relay.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "socksrelay"

var (
	// ConnectionsActive is the number of accepted connections not yet closed.
	ConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "connections_active",
		Help:      "Current number of accepted SOCKS5 connections",
	})

	// ConnectionsTotal counts accepted connections.
	ConnectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "connections_total",
		Help:      "Total number of accepted SOCKS5 connections",
	})

	// Replies counts SOCKS5 replies by status.
	Replies = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "replies_total",
		Help:      "SOCKS5 replies sent, by status",
	}, []string{"status"})

	// RelayedBytes counts payload bytes copied, by direction ("upload" is
	// client to remote).
	RelayedBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "relayed_bytes_total",
		Help:      "Payload bytes relayed, by direction",
	}, []string{"direction"})
)

func init() {
	prometheus.MustRegister(ConnectionsActive, ConnectionsTotal, Replies, RelayedBytes)
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
