// Package metrics provides Prometheus instrumentation for the roulette chat
// server. It exposes gauges for connection, pool, and session counts,
// counters for relay throughput, and histograms for moderation latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "roulette_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// WaitingPoolSize tracks the current number of connections seeking a partner.
	WaitingPoolSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "roulette_waiting_pool_size",
		Help: "Current number of connections in the waiting pool",
	})

	// ActiveSessions tracks the current number of active pairings, counted
	// once per pair.
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "roulette_active_sessions",
		Help: "Current number of active one-to-one sessions",
	})

	// MatchesTotal counts the total number of sessions established.
	MatchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roulette_matches_total",
		Help: "Total number of sessions established",
	})

	// MessagesTotal counts relayed payloads, labeled by outcome:
	// "relayed", "blocked", "dropped", or "signal".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roulette_messages_total",
		Help: "Total number of messages processed",
	}, []string{"outcome"})

	// ReportsTotal counts abuse reports received.
	ReportsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roulette_reports_total",
		Help: "Total number of abuse reports received",
	})

	// BansTotal counts forced disconnections past the report threshold.
	BansTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roulette_bans_total",
		Help: "Total number of connections banned",
	})

	// ModerationLatency records end-to-end moderation check latency in seconds,
	// including the remote classifier round trip when one is configured.
	ModerationLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "roulette_moderation_latency_seconds",
		Help:    "Moderation check latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2},
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		WaitingPoolSize,
		ActiveSessions,
		MatchesTotal,
		MessagesTotal,
		ReportsTotal,
		BansTotal,
		ModerationLatency,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
