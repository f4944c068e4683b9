/*
Package comm implements the gossip transport that moves immutable snapshots of
handoff counter replicas between processes. Replicas talk gRPC to each other.
The service descriptor is defined by hand and messages are plain Go structs
encoded by a JSON codec registered under its own content-subtype, so no code
generation step is involved.

One Exchange call performs a merge in both directions: the receiving replica
merges the caller's snapshot and answers with a snapshot of its own state,
which the caller merges in turn. Edge clients may additionally read a
replica's value via Fetch and increment it remotely via Increment.
*/
package comm
