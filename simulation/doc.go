/*
Package simulation drives a population of handoff counter replicas in memory.
Replicas are arranged in a tree: roots live in tier 0 and every child lives one
tier below its parent. One round merges every replica with its parent in both
directions and lets all roots gossip among each other. Every merge operates on
a clone of the peer, following the snapshot discipline package crdt demands.
The package is used to check convergence and boundedness of the protocol.
*/
package simulation
