package schema

import (
	"fmt"

	"github.com/roach88/deferring/internal/relation"
)

// Handler receives the event and the member it fired for.
type Handler[P any, R relation.Entity] func(event relation.Event, owner P, r R)

// Config builds the collection configuration for rel. Callback handler names
// resolve through handlers; every listener is registered on owner.
//
// The declaration must be valid; an unknown handler name is an error.
func Config[P any, R relation.Entity](rel *Relationship, owner P, handlers map[string]Handler[P, R]) (relation.Config[P, R], error) {
	cfg := relation.Config[P, R]{
		Name:           rel.Name,
		InverseOf:      rel.InverseOf,
		SkipValidation: !rel.Validate,
		Autosave:       rel.Autosave,
	}

	policy, err := relation.ParseDependentPolicy(rel.Dependent)
	if err != nil {
		return cfg, fmt.Errorf("relationship %s: %w", rel.Name, err)
	}
	cfg.Dependent = policy

	if n := rel.Nested; n != nil {
		cfg.Nested = relation.NestedConfig{
			AllowDestroy: n.AllowDestroy,
			Limit:        n.Limit,
		}
		if n.RejectIf != "" {
			if cfg.Nested.RejectIf, err = relation.CompileRejectIf(n.RejectIf); err != nil {
				return cfg, fmt.Errorf("relationship %s: %w", rel.Name, err)
			}
		}
	}

	for _, cb := range rel.Callbacks {
		event, err := relation.ParseEvent(cb.Event)
		if err != nil {
			return cfg, fmt.Errorf("relationship %s: %w", rel.Name, err)
		}
		h, ok := handlers[cb.Handler]
		if !ok {
			return cfg, fmt.Errorf("relationship %s: no handler named %q for %s", rel.Name, cb.Handler, event)
		}
		cfg.Listeners = append(cfg.Listeners, relation.Listener[P, R]{
			Event: event,
			Owner: owner,
			Handler: func(o P, r R) {
				h(event, o, r)
			},
		})
	}

	return cfg, nil
}
