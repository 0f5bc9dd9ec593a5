// Package store provides the SQLite storage collaborator for deferred
// relationship collections.
//
// The store holds two tables:
//   - records: entities on either side of a relationship, with a unique
//     external key and canonical JSON attributes
//   - links: the join table shared by every declared relationship
//
// A Relationship binds one relationship name to the store and implements
// relation.Storage and relation.Destroyer for *Record.
//
// # Critical Patterns
//
// Uniqueness: PRIMARY KEY(relationship, parent_id, child_id). Linking a child
// twice under the same parent fails, which is why collections write unlinks
// before links.
//
// Capacity: a Relationship may bound its links per parent. The bound is
// checked inside the write transaction.
//
// Deterministic order: members load ORDER BY position ASC, child_id ASC.
//
// Canonical attributes: attrs are stored as canonical JSON (sorted keys, NFC
// strings, no HTML escaping) so identical attributes always produce identical
// bytes.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Links cascade when a record is deleted
package store
