/*
Command evaluation measures a running handoff replica.
It sends a series of increment calls to the replica,
records the round-trip time of each call in an output
file and finally reports the value the replica fetches.
Run it against replicas of different tiers to compare
how fast increments become visible across the tree.
*/
package main
