// Package schema compiles relationship declarations written in CUE.
//
// A declaration names the parent and child kinds of one to-many relationship
// and the behavior of its collection:
//
//	relationship: teams: {
//		parent:     "person"
//		child:      "team"
//		inverse_of: "people"
//		dependent:  "destroy"
//		autosave:   true
//		capacity:   10
//		nested: {allow_destroy: true, reject_if: "all_blank", limit: 5}
//		callbacks: {before_link: "audit", after_unlink: "audit"}
//	}
//
// Compile reads one declaration, Validate checks it, and Config turns it into
// a relation.Config with handlers bound by name.
package schema
