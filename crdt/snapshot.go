package crdt

import (
	"fmt"
	"sort"
)

// Structs

// Snapshot is the serializable form of a Handoff replica.
// It carries every field of the replica. Maps are flattened
// into lists of entries so that identifiers of any
// comparable type can be encoded.
type Snapshot[K comparable] struct {
	ID     K               `json:"id"`
	Tier   uint32          `json:"tier"`
	Val    int64           `json:"val"`
	Below  int64           `json:"below"`
	SCK    uint32          `json:"sck"`
	DCK    uint32          `json:"dck"`
	Vals   []ValEntry[K]   `json:"vals"`
	Slots  []SlotEntry[K]  `json:"slots"`
	Tokens []TokenEntry[K] `json:"tokens"`
}

// ValEntry is one element of the value vector.
type ValEntry[K comparable] struct {
	ID  K     `json:"id"`
	Val int64 `json:"val"`
}

// SlotEntry is one open slot, keyed by the invited replica.
type SlotEntry[K comparable] struct {
	ID  K      `json:"id"`
	SCK uint32 `json:"sck"`
	DCK uint32 `json:"dck"`
}

// TokenEntry is one token in flight from Src to Dst.
type TokenEntry[K comparable] struct {
	Src K      `json:"src"`
	Dst K      `json:"dst"`
	SCK uint32 `json:"sck"`
	DCK uint32 `json:"dck"`
	N   int64  `json:"n"`
}

// Functions

// Snapshot returns a materialized copy of the replica's
// complete state. Entries are ordered by the printed form
// of their keys to keep encodings stable.
func (h *Handoff[K]) Snapshot() *Snapshot[K] {

	s := &Snapshot[K]{
		ID:     h.id,
		Tier:   h.tier,
		Val:    h.val,
		Below:  h.below,
		SCK:    h.sck,
		DCK:    h.dck,
		Vals:   make([]ValEntry[K], 0, len(h.vals)),
		Slots:  make([]SlotEntry[K], 0, len(h.slots)),
		Tokens: make([]TokenEntry[K], 0, len(h.tokens)),
	}

	for id, v := range h.vals {
		s.Vals = append(s.Vals, ValEntry[K]{ID: id, Val: v})
	}

	for id, slot := range h.slots {
		s.Slots = append(s.Slots, SlotEntry[K]{ID: id, SCK: slot.SCK, DCK: slot.DCK})
	}

	for link, token := range h.tokens {
		s.Tokens = append(s.Tokens, TokenEntry[K]{
			Src: link.Src,
			Dst: link.Dst,
			SCK: token.Slot.SCK,
			DCK: token.Slot.DCK,
			N:   token.N,
		})
	}

	sort.Slice(s.Vals, func(i, j int) bool {
		return fmt.Sprint(s.Vals[i].ID) < fmt.Sprint(s.Vals[j].ID)
	})
	sort.Slice(s.Slots, func(i, j int) bool {
		return fmt.Sprint(s.Slots[i].ID) < fmt.Sprint(s.Slots[j].ID)
	})
	sort.Slice(s.Tokens, func(i, j int) bool {
		a, b := s.Tokens[i], s.Tokens[j]
		if fmt.Sprint(a.Src) != fmt.Sprint(b.Src) {
			return fmt.Sprint(a.Src) < fmt.Sprint(b.Src)
		}
		return fmt.Sprint(a.Dst) < fmt.Sprint(b.Dst)
	})

	return s
}

// FromSnapshot rebuilds a replica from its serialized
// form. Snapshots arrive from other processes or from
// disk, so malformed ones are reported as errors.
func FromSnapshot[K comparable](s *Snapshot[K]) (*Handoff[K], error) {

	if s == nil {
		return nil, fmt.Errorf("[crdt.FromSnapshot] snapshot is nil")
	}

	h := &Handoff[K]{
		id:     s.ID,
		tier:   s.Tier,
		val:    s.Val,
		below:  s.Below,
		vals:   make(map[K]int64, len(s.Vals)),
		sck:    s.SCK,
		dck:    s.DCK,
		slots:  make(map[K]Slot, len(s.Slots)),
		tokens: make(map[Link[K]]Token, len(s.Tokens)),
	}

	for _, e := range s.Vals {

		if e.Val < 0 {
			return nil, fmt.Errorf("[crdt.FromSnapshot] negative value %d for replica %v", e.Val, e.ID)
		}

		if _, dup := h.vals[e.ID]; dup {
			return nil, fmt.Errorf("[crdt.FromSnapshot] duplicate value entry for replica %v", e.ID)
		}

		h.vals[e.ID] = e.Val
	}

	if _, ok := h.vals[h.id]; !ok {
		return nil, fmt.Errorf("[crdt.FromSnapshot] value vector misses own replica %v", h.id)
	}

	for _, e := range s.Slots {

		if _, dup := h.slots[e.ID]; dup {
			return nil, fmt.Errorf("[crdt.FromSnapshot] duplicate slot for replica %v", e.ID)
		}

		h.slots[e.ID] = Slot{SCK: e.SCK, DCK: e.DCK}
	}

	for _, e := range s.Tokens {

		if e.N < 0 {
			return nil, fmt.Errorf("[crdt.FromSnapshot] negative amount %d in token %v->%v", e.N, e.Src, e.Dst)
		}

		link := Link[K]{Src: e.Src, Dst: e.Dst}
		if _, dup := h.tokens[link]; dup {
			return nil, fmt.Errorf("[crdt.FromSnapshot] duplicate token %v->%v", e.Src, e.Dst)
		}

		h.tokens[link] = Token{
			Slot: Slot{SCK: e.SCK, DCK: e.DCK},
			N:    e.N,
		}
	}

	if h.val < 0 || h.below < 0 {
		return nil, fmt.Errorf("[crdt.FromSnapshot] negative totals val=%d below=%d", h.val, h.below)
	}

	return h, nil
}
