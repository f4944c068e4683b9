/*
Package crypto provides the basis for secure gossip between replicas. Other than
making a proper mutual TLS configuration available, it also provides the means
to set up the internal PKI needed for secure and authenticated communication
between the replicas of a deployment.
*/
package crypto
