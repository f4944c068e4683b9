/*
Package crdt implements the state-based handoff counter upon that the replicas
of this system are built.

CAUTION! Consider these two requirements:
* Merge expects the peer argument to be an immutable snapshot of a remote
  replica, e.g. obtained via Clone, FromSnapshot or the transport in package
  comm. Merge never modifies its argument, but concurrent modification of the
  argument by someone else during a merge is not supported.
* Access to the functions this package provides is expected to be synchronized
  explicitly by some outside measures, e.g. by wrapping calls to this package
  with a mutex lock if concurrent access is possible. This package does not(!)
  synchronize access by itself.

Replicas are arranged in tiers. Tier 0 holds the servers that report the true
aggregate, higher tiers lie further toward the leaves. A replica in a higher
tier hands its locally accumulated value off to a replica in a lower tier by
means of a slot (the invitation created by the receiver) and a token (the
packaged value created by the sender). Both are garbage collected once the
involved clocks show they can never be used again, which keeps the state of
every replica bounded by the number of its live neighbours.

The handoff counter was introduced by Almeida and Baquero in "Scalable
Eventually Consistent Counters over Unreliable Networks", available under:
https://arxiv.org/abs/1307.3207
*/
package crdt
