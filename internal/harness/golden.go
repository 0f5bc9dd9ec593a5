package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/deferring/internal/store"
)

// Snapshot renders a scenario's trace and final state as canonical JSON.
func Snapshot(name string, r *Result) ([]byte, error) {
	trace := make([]any, len(r.Trace))
	for i, e := range r.Trace {
		trace[i] = map[string]any{
			"seq":  e.Seq,
			"step": e.Step,
			"line": e.Line,
		}
	}
	state := map[string]any{
		"members":   r.State.Members,
		"links":     r.State.Links,
		"unlinks":   r.State.Unlinks,
		"persisted": r.State.Persisted,
	}
	if len(r.State.Errors) > 0 {
		errs := make(map[string]any, len(r.State.Errors))
		for f, msgs := range r.State.Errors {
			errs[f] = msgs
		}
		state["errors"] = errs
	}
	return store.MarshalCanonical(map[string]any{
		"scenario_name": name,
		"trace":         trace,
		"state":         state,
	})
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...RunOption) (*Result, error) {
	t.Helper()

	result, err := Run(scenario, opts...)
	if err != nil {
		return nil, err
	}
	data, err := Snapshot(scenario.Name, result)
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)
	return result, nil
}
