/*
Package node runs one replica of a handoff counter
as a long-lived process.

A Service owns the replica and serializes every access
to it. It answers gossip exchanges of other replicas,
exchanges its own state with configured peers and
persists the replica to a storage backend. Logging and
metrics are added by wrapping a Service with the
decorators of this package.
*/
package node
