// Package harness runs relationship scenarios against a real collection.
//
// A scenario seeds records and links into a fresh in-memory store, binds one
// declared relationship of a parent record, applies a sequence of collection
// operations, and checks the outcome: the working set, the pending links and
// unlinks, what storage holds after the last step, and the audit trace.
//
// The audit trace records every callback that fired, in order, as
// "<event> <kind> <name>" lines. Records deleted under the destroy policy add
// a "destroy <kind> <name>" line. Traces are compared against golden files
// with RunWithGolden.
//
// Scenarios reference seeded records by key. In ids and nested attributes,
// a string equal to a seeded key is replaced by that record's id.
package harness
