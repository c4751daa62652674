// Package replication contains the domain model for mirroring local business
// records into an independently owned remote system.
//
// Local records are the system of record. Every synchronized entity type is
// described by a Schema that lists the fields the remote model accepts, the
// relational fields that must be rewritten from local to remote identifiers,
// the one-to-many collections carried as line commands, and the natural key
// used to deduplicate against the remote side.
//
// The Identity Map binds a (type, local id) pair to at most one remote id and
// a remote id to at most one local entity of the same type.
package replication
