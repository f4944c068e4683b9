package simulation

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/numbleroot/handoff/crdt"
)

// Structs

// Topology bundles all replicas of a simulated
// deployment together with their parent links.
type Topology struct {
	replicas map[string]*crdt.Handoff[string]
	parents  map[string]string
	roots    []string
	order    []string
	total    int64
}

// Functions

// NewTopology creates a topology with the supplied
// replicas as servers in tier 0.
func NewTopology(roots ...string) (*Topology, error) {

	t := &Topology{
		replicas: make(map[string]*crdt.Handoff[string]),
		parents:  make(map[string]string),
	}

	for _, id := range roots {

		if _, exists := t.replicas[id]; exists {
			return nil, fmt.Errorf("[simulation.NewTopology] duplicate replica '%s'", id)
		}

		t.replicas[id] = crdt.New(id, 0)
		t.roots = append(t.roots, id)
		t.order = append(t.order, id)
	}

	return t, nil
}

// AddChild adds a replica below parent, one tier
// further away from the roots.
func (t *Topology) AddChild(parent string, id string) error {

	p, ok := t.replicas[parent]
	if !ok {
		return fmt.Errorf("[simulation.AddChild] unknown parent '%s'", parent)
	}

	if _, exists := t.replicas[id]; exists {
		return fmt.Errorf("[simulation.AddChild] duplicate replica '%s'", id)
	}

	t.replicas[id] = crdt.New(id, p.Tier()+1)
	t.parents[id] = parent
	t.order = append(t.order, id)

	return nil
}

// Inc increments replica id n times.
func (t *Topology) Inc(id string, n int) error {

	r, ok := t.replicas[id]
	if !ok {
		return fmt.Errorf("[simulation.Inc] unknown replica '%s'", id)
	}

	for i := 0; i < n; i++ {
		r.Inc()
	}
	t.total += int64(n)

	return nil
}

// Round performs one synchronization round. Edges are
// visited from the leaves toward the roots, so a value
// can travel one tier per round at least.
func (t *Topology) Round() {

	for i := len(t.order) - 1; i >= 0; i-- {

		id := t.order[i]
		parent, ok := t.parents[id]
		if !ok {
			continue
		}

		t.exchange(parent, id)
	}

	for _, a := range t.roots {
		for _, b := range t.roots {
			if a != b {
				t.replicas[a].Merge(t.replicas[b].Clone())
			}
		}
	}
}

// Settle runs rounds until one round leaves all
// replicas untouched or maxRounds is reached. It returns
// the number of rounds performed.
func (t *Topology) Settle(maxRounds int) (int, error) {

	for round := 1; round <= maxRounds; round++ {

		before := t.snapshots()
		t.Round()

		if reflect.DeepEqual(before, t.snapshots()) {
			return round, nil
		}
	}

	return maxRounds, fmt.Errorf("[simulation.Settle] topology did not settle within %d rounds", maxRounds)
}

// Total returns the number of increments applied
// anywhere in the topology.
func (t *Topology) Total() int64 {
	return t.total
}

// Values returns the reported value of every replica.
func (t *Topology) Values() map[string]int64 {

	values := make(map[string]int64, len(t.replicas))
	for id, r := range t.replicas {
		values[id] = r.Fetch()
	}

	return values
}

// Roots returns the names of all tier 0 replicas.
func (t *Topology) Roots() []string {

	roots := make([]string, len(t.roots))
	copy(roots, t.roots)
	sort.Strings(roots)

	return roots
}

// Replica returns a clone of replica id.
func (t *Topology) Replica(id string) (*crdt.Handoff[string], bool) {

	r, ok := t.replicas[id]
	if !ok {
		return nil, false
	}

	return r.Clone(), true
}

// Neighbours returns the number of replicas id merges with.
func (t *Topology) Neighbours(id string) int {

	n := 0
	if _, ok := t.parents[id]; ok {
		n++
	}

	for _, parent := range t.parents {
		if parent == id {
			n++
		}
	}

	return n
}

func (t *Topology) exchange(parent string, child string) {
	t.replicas[parent].Merge(t.replicas[child].Clone())
	t.replicas[child].Merge(t.replicas[parent].Clone())
}

func (t *Topology) snapshots() map[string]*crdt.Snapshot[string] {

	snaps := make(map[string]*crdt.Snapshot[string], len(t.replicas))
	for id, r := range t.replicas {
		snaps[id] = r.Snapshot()
	}

	return snaps
}
