package main

import (
	"testing"

	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestNewReplicaMetrics(t *testing.T) {

	metrics := NewReplicaMetrics("")
	assert.Equal(t, discard.NewCounter(), metrics.Increments)
	assert.NotNil(t, metrics.Tokens)

	metrics = NewReplicaMetrics(":9099")
	assert.IsType(t, &prometheus.Counter{}, metrics.Increments)
	assert.IsType(t, &prometheus.Gauge{}, metrics.Value)

	// Labelled per peer.
	metrics.GossipFailures.With("peer", "root-2").Add(1)
	metrics.Value.Set(3)
}
