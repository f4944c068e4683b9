package crdt

import (
	"fmt"
)

// Structs

// Slot records the source clock of the replica that is
// invited to hand off its value and the destination clock
// of the inviting replica at the time of invitation.
type Slot struct {
	SCK uint32
	DCK uint32
}

// Link names the two ends of a handoff.
type Link[K comparable] struct {
	Src K
	Dst K
}

// Token is a packaged handoff on its way from Src to Dst
// of its Link. It carries the clocks of the slot that
// solicited it and the handed off amount.
type Token struct {
	Slot Slot
	N    int64
}

// Handoff is one replica of a handoff counter. The zero
// value is not usable, create replicas via New.
type Handoff[K comparable] struct {
	id     K
	tier   uint32
	val    int64
	below  int64
	vals   map[K]int64
	sck    uint32
	dck    uint32
	slots  map[K]Slot
	tokens map[Link[K]]Token
}

// Option adjusts a replica during New.
type Option func(*options)

type options struct {
	sck uint32
	dck uint32
}

// Functions

// WithSourceClock starts the replica at the supplied
// source clock instead of 0.
func WithSourceClock(sck uint32) Option {
	return func(o *options) {
		o.sck = sck
	}
}

// WithDestinationClock starts the replica at the supplied
// destination clock instead of 0.
func WithDestinationClock(dck uint32) Option {
	return func(o *options) {
		o.dck = dck
	}
}

// New returns an empty replica named id living in tier.
// Clocks default to 0 and may be set via options, which
// allows restoring a replica from persisted clocks.
func New[K comparable](id K, tier uint32, opts ...Option) *Handoff[K] {

	o := new(options)
	for _, opt := range opts {
		opt(o)
	}

	return &Handoff[K]{
		id:     id,
		tier:   tier,
		vals:   map[K]int64{id: 0},
		sck:    o.sck,
		dck:    o.dck,
		slots:  make(map[K]Slot),
		tokens: make(map[Link[K]]Token),
	}
}

// Inc increments the counter by one at this replica.
func (h *Handoff[K]) Inc() {
	h.val++
	h.vals[h.id] = h.own() + 1
}

// Fetch returns the value this replica reports.
func (h *Handoff[K]) Fetch() int64 {
	return h.val
}

// Merge joins the state of peer into this replica. peer
// is only read. The phases run in a fixed order because
// the garbage collection phases depend on slots and tokens
// created or filled earlier in the same call.
func (h *Handoff[K]) Merge(peer *Handoff[K]) {
	h.FillSlots(peer)
	h.discardSlot(peer)
	h.CreateSlot(peer)
	h.mergeVectors(peer)
	h.aggregate(peer)
	h.DiscardTokens(peer)
	h.CreateToken(peer)
	h.cacheTokens(peer)
}

// FillSlots credits every token of peer that is addressed
// to this replica and matches one of its open slots to the
// own pending value. The filled slot is removed, so the
// same token cannot be delivered a second time.
func (h *Handoff[K]) FillSlots(peer *Handoff[K]) {

	for link, token := range peer.tokens {

		if link.Dst != h.id {
			continue
		}

		slot, ok := h.slots[link.Src]
		if !ok || slot != token.Slot {
			continue
		}

		h.vals[h.id] = h.own() + token.N
		delete(h.slots, link.Src)
	}
}

// discardSlot removes the slot for peer once peer's source
// clock has moved past the recorded one. Such a slot can
// never be filled anymore.
func (h *Handoff[K]) discardSlot(peer *Handoff[K]) {

	slot, ok := h.slots[peer.id]
	if ok && peer.sck > slot.SCK {
		delete(h.slots, peer.id)
	}
}

// CreateSlot invites peer to hand off its pending value
// if peer lives in a higher tier, has something pending
// and was not invited yet. Every slot consumes a fresh
// destination clock tick.
func (h *Handoff[K]) CreateSlot(peer *Handoff[K]) {

	if h.tier >= peer.tier || peer.own() <= 0 {
		return
	}

	if _, exists := h.slots[peer.id]; exists {
		return
	}

	h.slots[peer.id] = Slot{SCK: peer.sck, DCK: h.dck}
	h.dck++
}

// mergeVectors takes the pointwise maximum of both value
// vectors. Only servers (tier 0) hold full vectors, so it
// is a no-op unless both replicas live in tier 0.
func (h *Handoff[K]) mergeVectors(peer *Handoff[K]) {

	if h.tier != 0 || peer.tier != 0 {
		return
	}

	for id, val := range peer.vals {
		if cur, ok := h.vals[id]; !ok || val > cur {
			h.vals[id] = val
		}
	}
}

func (h *Handoff[K]) aggregate(peer *Handoff[K]) {
	h.updateBelow(peer)
	h.updateVal(peer)
}

// updateBelow learns the largest total already accounted
// for by a lower tier, either directly from an ancestor or
// indirectly from a sibling that saw one.
func (h *Handoff[K]) updateBelow(peer *Handoff[K]) {

	if h.tier == peer.tier {
		h.below = max(h.below, peer.below)
	} else if h.tier > peer.tier {
		h.below = max(h.below, peer.val)
	}
}

func (h *Handoff[K]) updateVal(peer *Handoff[K]) {

	switch {
	case h.tier == 0:

		// Servers report the sum over the full vector.
		var sum int64
		for _, v := range h.vals {
			sum += v
		}
		h.val = sum

	case h.tier == peer.tier:
		h.val = max(h.val, peer.val, h.below+h.val+peer.val)

	default:
		h.val = max(h.val, h.below+h.own())
	}
}

// DiscardTokens drops tokens addressed to peer that peer
// will never accept: either peer holds a newer slot for
// the token's source, or peer holds none and its
// destination clock already moved past the token's.
func (h *Handoff[K]) DiscardTokens(peer *Handoff[K]) {

	for link, token := range h.tokens {

		if link.Dst != peer.id {
			continue
		}

		stale := false
		if slot, ok := peer.slots[link.Src]; ok {
			stale = slot.DCK > token.Slot.DCK
		} else {
			stale = peer.dck > token.Slot.DCK
		}

		if stale {
			delete(h.tokens, link)
		}
	}
}

// CreateToken answers a slot peer holds for this replica
// by packaging the own pending value into a token. Only a
// slot recorded at the current source clock is answered,
// which rules out replying twice to the same invitation.
func (h *Handoff[K]) CreateToken(peer *Handoff[K]) {

	slot, ok := peer.slots[h.id]
	if !ok || slot.SCK != h.sck {
		return
	}

	h.tokens[Link[K]{Src: h.id, Dst: peer.id}] = Token{
		Slot: slot,
		N:    h.own(),
	}

	// Value now travels inside the token.
	h.vals[h.id] = 0
	h.sck++
}

// cacheTokens keeps copies of tokens peer created for
// other destinations, so they can travel further down the
// tiers. A cached copy is only replaced by one of at least
// the same source clock.
func (h *Handoff[K]) cacheTokens(peer *Handoff[K]) {

	if h.tier >= peer.tier {
		return
	}

	for link, token := range peer.tokens {

		if link.Src != peer.id || link.Dst == h.id {
			continue
		}

		cached, ok := h.tokens[link]
		if !ok || token.Slot.SCK >= cached.Slot.SCK {
			h.tokens[link] = token
		}
	}
}

// own returns vals[id]. Every replica carries its own id
// in vals from construction on, so a missing entry means
// the state is corrupted.
func (h *Handoff[K]) own() int64 {

	v, ok := h.vals[h.id]
	if !ok {
		panic(fmt.Sprintf("[crdt.Handoff] replica %v lost its own entry in vals", h.id))
	}

	return v
}

// Accessors

// ID returns the identifier of this replica.
func (h *Handoff[K]) ID() K { return h.id }

// Tier returns the tier this replica lives in.
func (h *Handoff[K]) Tier() uint32 { return h.tier }

// Below returns the largest lower-tier total known to
// account for this replica's history.
func (h *Handoff[K]) Below() int64 { return h.below }

// SourceClock returns the number of tokens created so far.
func (h *Handoff[K]) SourceClock() uint32 { return h.sck }

// DestinationClock returns the number of slots created so far.
func (h *Handoff[K]) DestinationClock() uint32 { return h.dck }

// Pending returns the value accumulated at this replica
// that was not handed off yet.
func (h *Handoff[K]) Pending() int64 { return h.own() }

// Vals returns a copy of the value vector.
func (h *Handoff[K]) Vals() map[K]int64 {

	vals := make(map[K]int64, len(h.vals))
	for id, v := range h.vals {
		vals[id] = v
	}

	return vals
}

// Slots returns a copy of the open slots.
func (h *Handoff[K]) Slots() map[K]Slot {

	slots := make(map[K]Slot, len(h.slots))
	for id, s := range h.slots {
		slots[id] = s
	}

	return slots
}

// Tokens returns a copy of the tokens held.
func (h *Handoff[K]) Tokens() map[Link[K]]Token {

	tokens := make(map[Link[K]]Token, len(h.tokens))
	for link, t := range h.tokens {
		tokens[link] = t
	}

	return tokens
}

// Clone returns a deep copy of h that shares no state
// with it and can therefore be passed to Merge safely.
func (h *Handoff[K]) Clone() *Handoff[K] {

	return &Handoff[K]{
		id:     h.id,
		tier:   h.tier,
		val:    h.val,
		below:  h.below,
		vals:   h.Vals(),
		sck:    h.sck,
		dck:    h.dck,
		slots:  h.Slots(),
		tokens: h.Tokens(),
	}
}
