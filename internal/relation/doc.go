// Package relation implements deferred to-many relationship collections.
//
// A Collection wraps one declared relationship of a parent record. Instead of
// writing each link or unlink to storage as it happens, the collection keeps
// two sequences in memory:
//
//   - Baseline: the persisted membership, captured lazily on first access
//   - Working set: the membership the caller is editing
//
// The difference between the two is the pending work. Links are the members of
// the working set missing from the baseline; unlinks are the baseline members
// missing from the working set. Nothing is written until the parent is saved,
// at which point AfterSave replays the difference against the Storage
// collaborator: all unlinks first, then all links.
//
// ARCHITECTURE:
//
//	caller -> Collection -> Snapshot (baseline / working set)
//	               |
//	               +-> dispatcher (before/after link, unlink, add, remove)
//	               |
//	parent save -> AfterSave -> Storage.PersistUnlinks, Storage.PersistLinks
//
// Load cycle:
//
//	Unloaded --(any read, Set)--> Loaded --(Reload, Reset, Create, AfterSave)--> Unloaded
//
// Identity:
// Persisted entities compare by ID. Entities that have not been saved yet
// compare by Go equality, so entity types are expected to be pointers.
//
// Concurrency:
// A Collection is not safe for concurrent use. One collection belongs to one
// parent instance inside one edit; callers serialize access.
//
// Events:
// Membership events (BeforeLink, AfterLink, BeforeUnlink, AfterUnlink) fire
// synchronously inside the mutating call. Storage events (BeforeAdd, AfterAdd,
// BeforeRemove, AfterRemove) fire when a membership change is written, which
// happens in AfterSave and in Create.
package relation
