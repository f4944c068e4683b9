package node

import (
	"sort"
	"sync"
	"time"

	"github.com/numbleroot/handoff/comm"
	"github.com/numbleroot/handoff/config"
	"github.com/numbleroot/handoff/crdt"
	"github.com/numbleroot/handoff/storage"
	"github.com/pkg/errors"
	"golang.org/x/net/context"
)

// Structs

// Peer is the remote end of a gossip exchange.
// comm.Client implements it.
type Peer interface {
	Addr() string
	Exchange(ctx context.Context, local *comm.Snapshot) (*comm.Snapshot, error)
	Close() error
}

// Stats summarizes the state of a replica.
type Stats struct {
	Value   int64
	Pending int64
	Slots   int
	Tokens  int
}

// Service defines the interface a replica
// process provides.
type Service interface {

	// Exchange, Fetch and Increment serve the
	// gossip endpoint of this replica.
	comm.Replica

	// Snapshot returns the current state.
	Snapshot() *crdt.Snapshot[string]

	// Merge joins a snapshot of another replica
	// into the local one.
	Merge(remote *crdt.Snapshot[string]) error

	// Stats summarizes the current state.
	Stats() Stats

	// Peers lists the names of all configured peers.
	Peers() []string

	// Gossip exchanges state with the named peer
	// and merges its answer.
	Gossip(ctx context.Context, peer string) error

	// Persist saves the current state to the store.
	Persist() error

	// Close releases the connections to all peers.
	Close() error
}

type service struct {
	lock    sync.Mutex
	handoff *crdt.Handoff[string]
	store   storage.Store
	peers   map[string]Peer
	timeout time.Duration
}

// Functions

// NewService restores the replica configured in cfg
// from store or creates it if store holds no state
// for it yet. store may be nil, which disables
// persistence.
func NewService(cfg config.Node, store storage.Store, peers map[string]Peer) (Service, error) {

	var handoff *crdt.Handoff[string]

	if store != nil {

		snap, err := store.Load(cfg.Name)
		if err == nil {

			handoff, err = crdt.FromSnapshot(snap)
			if err != nil {
				return nil, errors.Wrapf(err, "[node.NewService] stored state of %s is broken", cfg.Name)
			}

			if handoff.ID() != cfg.Name {
				return nil, errors.Errorf("[node.NewService] stored state belongs to %s, not %s", handoff.ID(), cfg.Name)
			}

			if handoff.Tier() != cfg.Tier {
				return nil, errors.Errorf("[node.NewService] stored state of %s lives in tier %d, configured tier is %d", cfg.Name, handoff.Tier(), cfg.Tier)
			}

		} else if errors.Cause(err) != storage.ErrNotFound {
			return nil, errors.Wrapf(err, "[node.NewService] loading state of %s failed", cfg.Name)
		}
	}

	if handoff == nil {
		handoff = crdt.New(cfg.Name, cfg.Tier,
			crdt.WithSourceClock(cfg.SourceClock),
			crdt.WithDestinationClock(cfg.DestinationClock),
		)
	}

	timeout := time.Duration(cfg.GossipTimeout) * time.Millisecond
	if timeout <= 0 {
		timeout = time.Duration(config.DefaultGossipInterval/2) * time.Millisecond
	}

	if peers == nil {
		peers = make(map[string]Peer)
	}

	return &service{
		handoff: handoff,
		store:   store,
		peers:   peers,
		timeout: timeout,
	}, nil
}

// merge decodes remote into a private replica and
// merges it. The caller holds the lock. If the merge took
// part in a handoff, the new state is saved before any
// snapshot of it can leave the process. Otherwise a restart
// would hand off a token's value again or forget a filled
// slot. If saving fails, the replica is rolled back to its
// state before the merge.
func (s *service) merge(remote *crdt.Snapshot[string]) error {

	peer, err := crdt.FromSnapshot(remote)
	if err != nil {
		return errors.Wrap(comm.ErrInvalidSnapshot, err.Error())
	}

	if peer.ID() == s.handoff.ID() {
		return errors.Wrapf(comm.ErrInvalidSnapshot, "snapshot carries own id %s", peer.ID())
	}

	before := s.handoff.Clone()
	s.handoff.Merge(peer)

	if s.store == nil || !handedOff(before, s.handoff) {
		return nil
	}

	err = s.store.Save(s.handoff.Snapshot())
	if err != nil {
		s.handoff = before
		return errors.Wrapf(err, "[node.merge] saving handoff with %s failed", peer.ID())
	}

	return nil
}

// handedOff reports whether a slot or token was created
// or a slot was filled between before and after.
func handedOff(before *crdt.Handoff[string], after *crdt.Handoff[string]) bool {

	return before.SourceClock() != after.SourceClock() ||
		before.DestinationClock() != after.DestinationClock() ||
		before.Pending() != after.Pending() ||
		len(before.Slots()) != len(after.Slots())
}

func (s *service) Exchange(ctx context.Context, remote *comm.Snapshot) (*comm.Snapshot, error) {

	s.lock.Lock()
	defer s.lock.Unlock()

	err := s.merge(remote)
	if err != nil {
		return nil, err
	}

	return s.handoff.Snapshot(), nil
}

func (s *service) Fetch(ctx context.Context) (*comm.FetchReply, error) {

	s.lock.Lock()
	defer s.lock.Unlock()

	return &comm.FetchReply{
		ID:    s.handoff.ID(),
		Tier:  s.handoff.Tier(),
		Value: s.handoff.Fetch(),
	}, nil
}

func (s *service) Increment(ctx context.Context, times uint32) (int64, error) {

	s.lock.Lock()
	defer s.lock.Unlock()

	for i := uint32(0); i < times; i++ {
		s.handoff.Inc()
	}

	return s.handoff.Fetch(), nil
}

func (s *service) Snapshot() *crdt.Snapshot[string] {

	s.lock.Lock()
	defer s.lock.Unlock()

	return s.handoff.Snapshot()
}

func (s *service) Merge(remote *crdt.Snapshot[string]) error {

	s.lock.Lock()
	defer s.lock.Unlock()

	return s.merge(remote)
}

func (s *service) Stats() Stats {

	s.lock.Lock()
	defer s.lock.Unlock()

	return Stats{
		Value:   s.handoff.Fetch(),
		Pending: s.handoff.Pending(),
		Slots:   len(s.handoff.Slots()),
		Tokens:  len(s.handoff.Tokens()),
	}
}

func (s *service) Peers() []string {

	names := make([]string, 0, len(s.peers))
	for name := range s.peers {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Gossip does not hold the lock during the remote
// call. Increments and exchanges arriving meanwhile
// are kept, merging the answer only adds to them.
func (s *service) Gossip(ctx context.Context, peer string) error {

	p, ok := s.peers[peer]
	if !ok {
		return errors.Errorf("[node.Gossip] unknown peer %s", peer)
	}

	local := s.Snapshot()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	remote, err := p.Exchange(ctx, local)
	if err != nil {
		return err
	}

	err = s.Merge(remote)
	if err != nil {
		return errors.Wrapf(err, "[node.Gossip] merging answer of %s failed", peer)
	}

	return nil
}

// Persist saves under the lock, so an older state can
// never overwrite one saved by a concurrent merge.
func (s *service) Persist() error {

	if s.store == nil {
		return nil
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	return s.store.Save(s.handoff.Snapshot())
}

func (s *service) Close() error {

	var first error

	for name, p := range s.peers {
		err := p.Close()
		if err != nil && first == nil {
			first = errors.Wrapf(err, "[node.Close] closing connection to %s failed", name)
		}
	}

	return first
}
