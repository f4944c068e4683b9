package node

import (
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/numbleroot/handoff/comm"
	"github.com/numbleroot/handoff/crdt"
	"golang.org/x/net/context"
)

// Structs

type loggingService struct {
	logger  log.Logger
	service Service

	// siblings remembers peers of the same non-root
	// tier that were already warned about.
	lock     sync.Mutex
	siblings map[string]bool
}

// Functions

// NewLoggingService wraps a provided existing
// service with the provided logger.
func NewLoggingService(s Service, logger log.Logger) Service {

	return &loggingService{
		logger:   logger,
		service:  s,
		siblings: make(map[string]bool),
	}
}

// Exchange wraps this service's Exchange method
// with added logging capabilities.
func (s *loggingService) Exchange(ctx context.Context, remote *comm.Snapshot) (*comm.Snapshot, error) {

	snap, err := s.service.Exchange(ctx, remote)

	logger := log.With(s.logger, "method", "Exchange")
	if remote != nil {
		logger = log.With(logger, "peer", remote.ID, "peerTier", remote.Tier)
	}

	if err != nil {
		level.Info(logger).Log("msg", "failed to merge snapshot of peer", "err", err)
		return snap, err
	}

	level.Debug(logger).Log("val", snap.Val)

	if remote.Tier == snap.Tier && snap.Tier != 0 && s.firstSibling(remote.ID) {
		level.Warn(logger).Log("msg", "peer lives in the same non-root tier, merging siblings may overcount until an ancestor caps the value")
	}

	return snap, nil
}

// firstSibling reports whether peer is seen as a
// sibling for the first time.
func (s *loggingService) firstSibling(peer string) bool {

	s.lock.Lock()
	defer s.lock.Unlock()

	if s.siblings[peer] {
		return false
	}
	s.siblings[peer] = true

	return true
}

func (s *loggingService) Fetch(ctx context.Context) (*comm.FetchReply, error) {
	return s.service.Fetch(ctx)
}

// Increment wraps this service's Increment method
// with added logging capabilities.
func (s *loggingService) Increment(ctx context.Context, times uint32) (int64, error) {

	value, err := s.service.Increment(ctx, times)

	logger := log.With(s.logger,
		"method", "Increment",
		"times", times,
	)

	if err != nil {
		level.Info(logger).Log("msg", "failed to increment counter", "err", err)
	} else {
		level.Debug(logger).Log("val", value)
	}

	return value, err
}

func (s *loggingService) Snapshot() *crdt.Snapshot[string] {
	return s.service.Snapshot()
}

// Merge wraps this service's Merge method
// with added logging capabilities.
func (s *loggingService) Merge(remote *crdt.Snapshot[string]) error {

	err := s.service.Merge(remote)

	if err != nil {
		level.Info(s.logger).Log(
			"method", "Merge",
			"msg", "failed to merge snapshot",
			"err", err,
		)
	}

	return err
}

func (s *loggingService) Stats() Stats {
	return s.service.Stats()
}

func (s *loggingService) Peers() []string {
	return s.service.Peers()
}

// Gossip wraps this service's Gossip method
// with added logging capabilities.
func (s *loggingService) Gossip(ctx context.Context, peer string) error {

	start := time.Now()
	err := s.service.Gossip(ctx, peer)

	logger := log.With(s.logger,
		"method", "Gossip",
		"peer", peer,
		"took", time.Since(start),
	)

	if err != nil {
		level.Warn(logger).Log("msg", "failed to gossip with peer", "err", err)
	} else {
		stats := s.service.Stats()
		level.Debug(logger).Log(
			"val", stats.Value,
			"pending", stats.Pending,
			"slots", stats.Slots,
			"tokens", stats.Tokens,
		)
	}

	return err
}

// Persist wraps this service's Persist method
// with added logging capabilities.
func (s *loggingService) Persist() error {

	err := s.service.Persist()
	if err != nil {
		level.Error(s.logger).Log(
			"method", "Persist",
			"msg", "failed to persist replica",
			"err", err,
		)
	}

	return err
}

// Close wraps this service's Close method
// with added logging capabilities.
func (s *loggingService) Close() error {

	err := s.service.Close()
	if err != nil {
		level.Warn(s.logger).Log(
			"method", "Close",
			"msg", "failed to close peer connections",
			"err", err,
		)
	}

	return err
}
