package harness

import (
	"fmt"
	"slices"
	"sort"
)

// evaluateExpect compares the result against every set field of e and
// returns one message per mismatch.
func evaluateExpect(e Expect, r *Result) []string {
	var msgs []string
	check := func(what string, want, got []string) {
		if want == nil {
			return
		}
		if !slices.Equal(want, got) {
			msgs = append(msgs, fmt.Sprintf("%s: expected %q, got %q", what, want, got))
		}
	}

	check("members", e.Members, r.State.Members)
	check("links", e.Links, r.State.Links)
	check("unlinks", e.Unlinks, r.State.Unlinks)
	check("persisted", e.Persisted, r.State.Persisted)
	check("audit", e.Audit, r.AuditLines())

	if e.Errors != nil {
		fields := make([]string, 0, len(e.Errors)+len(r.State.Errors))
		for f := range e.Errors {
			fields = append(fields, f)
		}
		for f := range r.State.Errors {
			if _, ok := e.Errors[f]; !ok {
				fields = append(fields, f)
			}
		}
		sort.Strings(fields)
		for _, f := range fields {
			want, got := e.Errors[f], r.State.Errors[f]
			if !slices.Equal(want, got) {
				msgs = append(msgs, fmt.Sprintf("errors on %s: expected %q, got %q", f, want, got))
			}
		}
	}
	return msgs
}
