package comm

import (
	"github.com/numbleroot/handoff/crdt"
)

// Structs

// Snapshot is the replica state moved between
// processes. Replicas are named by strings.
type Snapshot = crdt.Snapshot[string]

// ExchangeRequest carries the caller's snapshot.
type ExchangeRequest struct {
	Snapshot *Snapshot `json:"snapshot"`
}

// ExchangeReply carries the receiver's snapshot taken
// after it merged the one of the caller.
type ExchangeReply struct {
	Snapshot *Snapshot `json:"snapshot"`
}

// FetchRequest asks a replica for its value.
type FetchRequest struct{}

// FetchReply describes a replica and its value.
type FetchReply struct {
	ID    string `json:"id"`
	Tier  uint32 `json:"tier"`
	Value int64  `json:"value"`
}

// IncrementRequest asks a replica to increment
// its counter Times times.
type IncrementRequest struct {
	Times uint32 `json:"times"`
}

// IncrementReply carries the replica's value after
// applying the increments.
type IncrementReply struct {
	Value int64 `json:"value"`
}
