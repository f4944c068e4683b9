package node

import (
	"github.com/go-kit/kit/metrics"
	"github.com/numbleroot/handoff/comm"
	"github.com/numbleroot/handoff/crdt"
	"golang.org/x/net/context"
)

// Structs

// Metrics bundles the instruments a replica reports to.
type Metrics struct {
	Increments     metrics.Counter
	Merges         metrics.Counter
	GossipFailures metrics.Counter
	Value          metrics.Gauge
	Pending        metrics.Gauge
	Slots          metrics.Gauge
	Tokens         metrics.Gauge
}

type metricsService struct {
	service Service
	metrics *Metrics
}

// Functions

// NewMetricsService wraps s and reports its activity to m.
func NewMetricsService(s Service, m *Metrics) Service {

	return &metricsService{
		service: s,
		metrics: m,
	}
}

// observe sets all gauges from the current state.
func (s *metricsService) observe() {

	stats := s.service.Stats()

	s.metrics.Value.Set(float64(stats.Value))
	s.metrics.Pending.Set(float64(stats.Pending))
	s.metrics.Slots.Set(float64(stats.Slots))
	s.metrics.Tokens.Set(float64(stats.Tokens))
}

func (s *metricsService) Exchange(ctx context.Context, remote *comm.Snapshot) (*comm.Snapshot, error) {

	snap, err := s.service.Exchange(ctx, remote)

	if err == nil {
		s.metrics.Merges.Add(1)
		s.observe()
	}

	return snap, err
}

func (s *metricsService) Fetch(ctx context.Context) (*comm.FetchReply, error) {
	return s.service.Fetch(ctx)
}

func (s *metricsService) Increment(ctx context.Context, times uint32) (int64, error) {

	value, err := s.service.Increment(ctx, times)

	if err == nil {
		s.metrics.Increments.Add(float64(times))
		s.observe()
	}

	return value, err
}

func (s *metricsService) Snapshot() *crdt.Snapshot[string] {
	return s.service.Snapshot()
}

func (s *metricsService) Merge(remote *crdt.Snapshot[string]) error {

	err := s.service.Merge(remote)

	if err == nil {
		s.metrics.Merges.Add(1)
		s.observe()
	}

	return err
}

func (s *metricsService) Stats() Stats {
	return s.service.Stats()
}

func (s *metricsService) Peers() []string {
	return s.service.Peers()
}

func (s *metricsService) Gossip(ctx context.Context, peer string) error {

	err := s.service.Gossip(ctx, peer)

	if err != nil {
		s.metrics.GossipFailures.With("peer", peer).Add(1)
	} else {
		s.metrics.Merges.Add(1)
		s.observe()
	}

	return err
}

func (s *metricsService) Persist() error {
	return s.service.Persist()
}

func (s *metricsService) Close() error {
	return s.service.Close()
}
