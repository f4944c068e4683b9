/*
Package storage persists replica snapshots between
restarts of a node.

Two backends exist: a directory of JSON files, one per
replica, and a PostgreSQL table accessed through gorm.
Both store the snapshot format of package crdt, so a
replica can be moved from one backend to the other by
loading and saving it once.
*/
package storage
