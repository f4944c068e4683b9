package main

import (
	"net/http"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	"github.com/numbleroot/handoff/node"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Functions

// NewReplicaMetrics returns Prometheus-backed metrics
// if an address to expose them on is configured and
// metrics discarding every observation otherwise.
func NewReplicaMetrics(prometheusAddr string) *node.Metrics {

	if prometheusAddr == "" {
		return &node.Metrics{
			Increments:     discard.NewCounter(),
			Merges:         discard.NewCounter(),
			GossipFailures: discard.NewCounter(),
			Value:          discard.NewGauge(),
			Pending:        discard.NewGauge(),
			Slots:          discard.NewGauge(),
			Tokens:         discard.NewGauge(),
		}
	}

	return &node.Metrics{
		Increments: prometheus.NewCounterFrom(prom.CounterOpts{
			Namespace: "handoff",
			Subsystem: "replica",
			Name:      "increments_total",
			Help:      "Number of increments applied at this replica",
		}, nil),
		Merges: prometheus.NewCounterFrom(prom.CounterOpts{
			Namespace: "handoff",
			Subsystem: "replica",
			Name:      "merges_total",
			Help:      "Number of snapshots of other replicas merged",
		}, nil),
		GossipFailures: prometheus.NewCounterFrom(prom.CounterOpts{
			Namespace: "handoff",
			Subsystem: "replica",
			Name:      "gossip_failures_total",
			Help:      "Number of failed exchanges per peer",
		}, []string{"peer"}),
		Value: prometheus.NewGaugeFrom(prom.GaugeOpts{
			Namespace: "handoff",
			Subsystem: "replica",
			Name:      "value",
			Help:      "Value reported by this replica",
		}, nil),
		Pending: prometheus.NewGaugeFrom(prom.GaugeOpts{
			Namespace: "handoff",
			Subsystem: "replica",
			Name:      "pending",
			Help:      "Value accumulated but not handed off yet",
		}, nil),
		Slots: prometheus.NewGaugeFrom(prom.GaugeOpts{
			Namespace: "handoff",
			Subsystem: "replica",
			Name:      "slots",
			Help:      "Number of open slots",
		}, nil),
		Tokens: prometheus.NewGaugeFrom(prom.GaugeOpts{
			Namespace: "handoff",
			Subsystem: "replica",
			Name:      "tokens",
			Help:      "Number of tokens held, cached ones included",
		}, nil),
	}
}

func runPromHTTP(logger log.Logger, addr string) {

	if addr == "" {
		level.Debug(logger).Log("msg", "prometheus addr is empty, not exposing prometheus metrics")
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	level.Info(logger).Log("msg", "prometheus handler listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		level.Warn(logger).Log("msg", "failed to serve prometheus metrics", "err", err)
	}
}
