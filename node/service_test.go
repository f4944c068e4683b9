package node

import (
	"bytes"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/generic"
	"github.com/numbleroot/handoff/comm"
	"github.com/numbleroot/handoff/config"
	"github.com/numbleroot/handoff/crdt"
	"github.com/numbleroot/handoff/storage"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/context"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

// Structs

// localPeer forwards exchanges to a service in the
// same process or fails with err if set.
type localPeer struct {
	target Service
	err    error
	closed bool
}

// brokenStore loads from and saves to store until
// broken is set, then every Save fails.
type brokenStore struct {
	storage.Store
	broken bool
}

// recordingCounter sums everything added to it,
// regardless of labels.
type recordingCounter struct {
	lock   sync.Mutex
	total  float64
	labels []string
}

// Functions

func (p *localPeer) Addr() string { return "local" }

func (p *localPeer) Exchange(ctx context.Context, local *comm.Snapshot) (*comm.Snapshot, error) {

	if p.err != nil {
		return nil, p.err
	}

	return p.target.Exchange(ctx, local)
}

func (p *localPeer) Close() error {
	p.closed = true
	return nil
}

func (b *brokenStore) Save(snap *crdt.Snapshot[string]) error {

	if b.broken {
		return errors.New("disk full")
	}

	return b.Store.Save(snap)
}

func (c *recordingCounter) With(labelValues ...string) metrics.Counter {

	c.lock.Lock()
	defer c.lock.Unlock()

	c.labels = append(c.labels, labelValues...)

	return c
}

func (c *recordingCounter) Add(delta float64) {

	c.lock.Lock()
	defer c.lock.Unlock()

	c.total += delta
}

func nodeConfig(name string, tier uint32) config.Node {

	return config.Node{
		Name:          name,
		Tier:          tier,
		GossipTimeout: 1000,
	}
}

func newService(t *testing.T, cfg config.Node, store storage.Store, peers map[string]Peer) Service {

	s, err := NewService(cfg, store, peers)
	require.NoError(t, err)

	return s
}

func TestNewService(t *testing.T) {

	cfg := nodeConfig("leaf-1", 2)
	cfg.SourceClock = 4
	cfg.DestinationClock = 7

	s := newService(t, cfg, nil, nil)

	snap := s.Snapshot()
	assert.Equal(t, "leaf-1", snap.ID)
	assert.Equal(t, uint32(2), snap.Tier)
	assert.Equal(t, uint32(4), snap.SCK)
	assert.Equal(t, uint32(7), snap.DCK)

	reply, err := s.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &comm.FetchReply{ID: "leaf-1", Tier: 2, Value: 0}, reply)

	value, err := s.Increment(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), value)
	assert.Equal(t, Stats{Value: 3, Pending: 3}, s.Stats())

	assert.Empty(t, s.Peers())
	assert.NoError(t, s.Persist())
}

func TestRestoreFromStore(t *testing.T) {

	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	first := newService(t, nodeConfig("leaf-1", 1), store, nil)

	_, err = first.Increment(context.Background(), 6)
	require.NoError(t, err)
	require.NoError(t, first.Persist())

	// Configured clocks are ignored once state exists.
	cfg := nodeConfig("leaf-1", 1)
	cfg.SourceClock = 9

	second := newService(t, cfg, store, nil)
	assert.Equal(t, first.Snapshot(), second.Snapshot())
	assert.Equal(t, int64(6), second.Stats().Pending)
}

func TestRestoreRejectsTierMismatch(t *testing.T) {

	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Save(crdt.New("mid-1", uint32(1)).Snapshot()))

	_, err = NewService(nodeConfig("mid-1", 2), store, nil)
	assert.Error(t, err)

	_, err = NewService(nodeConfig("mid-1", 1), store, nil)
	assert.NoError(t, err)
}

func TestMergeRejectsInvalidSnapshots(t *testing.T) {

	s := newService(t, nodeConfig("root-1", 0), nil, nil)

	// Own entry missing.
	err := s.Merge(&crdt.Snapshot[string]{ID: "leaf-1", Tier: 1})
	assert.Equal(t, comm.ErrInvalidSnapshot, errors.Cause(err))

	// Snapshot of itself.
	err = s.Merge(crdt.New("root-1", uint32(0)).Snapshot())
	assert.Equal(t, comm.ErrInvalidSnapshot, errors.Cause(err))

	_, err = s.Exchange(context.Background(), crdt.New("root-1", uint32(0)).Snapshot())
	assert.Equal(t, comm.ErrInvalidSnapshot, errors.Cause(err))
}

func TestGossipUnknownPeer(t *testing.T) {

	s := newService(t, nodeConfig("leaf-1", 1), nil, nil)
	assert.Error(t, s.Gossip(context.Background(), "root-9"))
}

func TestRoundHandsOffToRoot(t *testing.T) {

	root := newService(t, nodeConfig("root-1", 0), nil, nil)
	leaf := newService(t, nodeConfig("leaf-1", 1), nil, map[string]Peer{
		"root-1": &localPeer{target: root},
	})

	_, err := leaf.Increment(context.Background(), 4)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		failed, err := Round(context.Background(), leaf)
		require.NoError(t, err)
		assert.Equal(t, 0, failed)
	}

	// Delivered values end up in the root's own entry.
	assert.Equal(t, Stats{Value: 4, Pending: 4}, root.Stats())
	assert.Equal(t, Stats{Value: 4}, leaf.Stats())
}

func TestGossipOverGRPC(t *testing.T) {

	root := newService(t, nodeConfig("root-1", 0), nil, nil)

	listener := bufconn.Listen(1024 * 1024)
	server := comm.NewServer(root, log.NewNopLogger(), comm.ServerOptions(nil)...)
	go server.Serve(listener)
	defer server.Stop()

	opts := append(comm.ClientOptions(nil), grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return listener.DialContext(ctx)
	}))

	client, err := comm.Dial("passthrough:///root-1", opts...)
	require.NoError(t, err)

	leaf := newService(t, nodeConfig("leaf-1", 1), nil, map[string]Peer{"root-1": client})
	defer leaf.Close()

	_, err = leaf.Increment(context.Background(), 11)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, leaf.Gossip(context.Background(), "root-1"))
	}

	reply, err := root.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(11), reply.Value)
	assert.Equal(t, int64(0), leaf.Stats().Pending)
}

func TestRunPersistsOnShutdown(t *testing.T) {

	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	peer := &localPeer{err: errors.New("unreachable")}

	s := newService(t, nodeConfig("leaf-1", 1), store, map[string]Peer{"root-1": peer})

	_, err = s.Increment(context.Background(), 2)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error)
	go func() {
		done <- Run(ctx, s, 5*time.Millisecond)
	}()

	time.Sleep(30 * time.Millisecond)

	_, err = s.Increment(context.Background(), 1)
	require.NoError(t, err)

	cancel()
	require.NoError(t, <-done)

	snap, err := store.Load("leaf-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), snap.Val)

	require.NoError(t, s.Close())
	assert.True(t, peer.closed)
}

func TestMetricsService(t *testing.T) {

	increments := new(recordingCounter)
	merges := new(recordingCounter)
	failures := new(recordingCounter)

	m := &Metrics{
		Increments:     increments,
		Merges:         merges,
		GossipFailures: failures,
		Value:          generic.NewGauge("value"),
		Pending:        generic.NewGauge("pending"),
		Slots:          generic.NewGauge("slots"),
		Tokens:         generic.NewGauge("tokens"),
	}

	root := newService(t, nodeConfig("root-1", 0), nil, nil)
	leaf := NewMetricsService(newService(t, nodeConfig("leaf-1", 1), nil, map[string]Peer{
		"root-1": &localPeer{target: root},
		"root-2": &localPeer{err: errors.New("unreachable")},
	}), m)

	_, err := leaf.Increment(context.Background(), 5)
	require.NoError(t, err)

	assert.Equal(t, float64(5), increments.total)
	assert.Equal(t, float64(5), m.Value.(*generic.Gauge).Value())
	assert.Equal(t, float64(5), m.Pending.(*generic.Gauge).Value())

	failed, err := Round(context.Background(), leaf)
	require.NoError(t, err)
	assert.Equal(t, 1, failed)

	assert.Equal(t, float64(1), merges.total)
	assert.Equal(t, float64(1), failures.total)
	assert.Equal(t, []string{"peer", "root-2"}, failures.labels)

	// The root opened a slot for the leaf during the exchange
	// and the leaf answered it with a token.
	assert.Equal(t, float64(1), m.Tokens.(*generic.Gauge).Value())
	assert.Equal(t, float64(0), m.Pending.(*generic.Gauge).Value())
}

func TestLoggingService(t *testing.T) {

	var buf bytes.Buffer

	root := newService(t, nodeConfig("root-1", 0), nil, nil)
	leaf := NewLoggingService(newService(t, nodeConfig("leaf-1", 1), nil, map[string]Peer{
		"root-1": &localPeer{err: errors.New("unreachable")},
	}), log.NewLogfmtLogger(&buf))

	_, err := leaf.Increment(context.Background(), 1)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "method=Increment")

	assert.Error(t, leaf.Gossip(context.Background(), "root-1"))
	assert.Contains(t, buf.String(), "method=Gossip")
	assert.Contains(t, buf.String(), "unreachable")

	assert.NoError(t, leaf.Merge(root.Snapshot()))

	assert.Error(t, leaf.Merge(&crdt.Snapshot[string]{ID: "root-2"}))
	assert.Contains(t, buf.String(), "method=Merge")
}

// exchangeWith lets root start an exchange with s and
// merges the answer at root, as the gossip loop of
// root would do.
func exchangeWith(t *testing.T, root Service, s Service) error {

	reply, err := s.Exchange(context.Background(), root.Snapshot())
	if err != nil {
		return err
	}

	require.NoError(t, root.Merge(reply))

	return nil
}

func TestRestartDoesNotHandOffTwice(t *testing.T) {

	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	root := newService(t, nodeConfig("root-1", 0), nil, nil)
	leaf := newService(t, nodeConfig("leaf-1", 1), store, nil)

	_, err = leaf.Increment(context.Background(), 5)
	require.NoError(t, err)
	require.NoError(t, leaf.Persist())

	for i := 0; i < 3; i++ {
		require.NoError(t, exchangeWith(t, root, leaf))
	}
	assert.Equal(t, int64(5), root.Stats().Value)

	// Crash without persisting, restart from the store.
	leaf = newService(t, nodeConfig("leaf-1", 1), store, nil)
	assert.Equal(t, int64(0), leaf.Stats().Pending)

	for i := 0; i < 5; i++ {
		require.NoError(t, exchangeWith(t, root, leaf))
	}
	assert.Equal(t, int64(5), root.Stats().Value)
}

func TestRestartKeepsFilledSlot(t *testing.T) {

	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	root := newService(t, nodeConfig("root-1", 0), store, nil)
	leaf := newService(t, nodeConfig("leaf-1", 1), nil, nil)

	_, err = leaf.Increment(context.Background(), 3)
	require.NoError(t, err)

	// Leaf exchanges with the root until the token was filled.
	for i := 0; i < 3; i++ {
		reply, err := root.Exchange(context.Background(), leaf.Snapshot())
		require.NoError(t, err)
		require.NoError(t, leaf.Merge(reply))
	}
	assert.Equal(t, int64(3), root.Stats().Value)

	// Crash without persisting, restart from the store.
	root = newService(t, nodeConfig("root-1", 0), store, nil)
	assert.Equal(t, int64(3), root.Stats().Value)
}

func TestExchangeFailsIfHandoffCannotBeSaved(t *testing.T) {

	inner, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	store := &brokenStore{Store: inner}

	root := newService(t, nodeConfig("root-1", 0), nil, nil)
	leaf := newService(t, nodeConfig("leaf-1", 1), store, nil)

	_, err = leaf.Increment(context.Background(), 5)
	require.NoError(t, err)

	// Root opens a slot for the leaf.
	require.NoError(t, exchangeWith(t, root, leaf))

	store.broken = true

	before := leaf.Snapshot()

	// Answering the slot would create a token.
	err = exchangeWith(t, root, leaf)
	require.Error(t, err)
	assert.Equal(t, before, leaf.Snapshot())
	assert.Equal(t, int64(0), root.Stats().Value)

	store.broken = false

	for i := 0; i < 2; i++ {
		require.NoError(t, exchangeWith(t, root, leaf))
	}
	assert.Equal(t, int64(5), root.Stats().Value)
}

func TestRunStopsIfPersistingFails(t *testing.T) {

	inner, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	store := &brokenStore{Store: inner, broken: true}

	s := newService(t, nodeConfig("leaf-1", 1), store, map[string]Peer{
		"root-1": &localPeer{err: errors.New("unreachable")},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = Run(ctx, s, 5*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, ctx.Err())
}

func TestLoggingServiceWarnsAboutSiblings(t *testing.T) {

	var buf bytes.Buffer

	mid := NewLoggingService(newService(t, nodeConfig("mid-1", 1), nil, nil), log.NewLogfmtLogger(&buf))

	_, err := mid.Exchange(context.Background(), crdt.New("mid-2", uint32(1)).Snapshot())
	require.NoError(t, err)
	_, err = mid.Exchange(context.Background(), crdt.New("mid-2", uint32(1)).Snapshot())
	require.NoError(t, err)

	// Only once per peer.
	assert.Equal(t, 1, strings.Count(buf.String(), "same non-root tier"))

	_, err = mid.Exchange(context.Background(), crdt.New("leaf-1", uint32(2)).Snapshot())
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(buf.String(), "same non-root tier"))

	var rootBuf bytes.Buffer

	root := NewLoggingService(newService(t, nodeConfig("root-1", 0), nil, nil), log.NewLogfmtLogger(&rootBuf))

	_, err = root.Exchange(context.Background(), crdt.New("root-2", uint32(0)).Snapshot())
	require.NoError(t, err)
	assert.NotContains(t, rootBuf.String(), "same non-root tier")
}
