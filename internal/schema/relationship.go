package schema

import (
	"fmt"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/deferring/internal/relation"
)

// Relationship is a compiled relationship declaration. Values are kept as
// declared; Validate reports the ones the collection cannot use.
type Relationship struct {
	Name      string     `json:"name"`
	Parent    string     `json:"parent"`
	Child     string     `json:"child"`
	InverseOf string     `json:"inverse_of,omitempty"`
	Dependent string     `json:"dependent,omitempty"`
	Validate  bool       `json:"validate"`
	Autosave  bool       `json:"autosave,omitempty"`
	Capacity  int        `json:"capacity,omitempty"`
	Nested    *Nested    `json:"nested,omitempty"`
	Callbacks []Callback `json:"callbacks,omitempty"`
	Pos       token.Pos  `json:"-"`
}

// Nested declares nested-attribute assignment.
type Nested struct {
	AllowDestroy bool   `json:"allow_destroy,omitempty"`
	RejectIf     string `json:"reject_if,omitempty"`
	Limit        int    `json:"limit,omitempty"`
}

// Callback binds a named handler to an event.
type Callback struct {
	Event   string `json:"event"`
	Handler string `json:"handler"`
}

// Compile parses a CUE value into a Relationship.
//
// The value should be the declaration struct itself:
//
//	v := cuecontext.New().CompileString(src)
//	rel, err := Compile(v.LookupPath(cue.ParsePath("relationship.teams")))
func Compile(v cue.Value) (*Relationship, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	rel := &Relationship{Validate: true, Pos: v.Pos()}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		rel.Name = labels[len(labels)-1].String()
	}

	var err error
	if rel.Parent, err = requireString(v, "parent"); err != nil {
		return nil, err
	}
	if rel.Child, err = requireString(v, "child"); err != nil {
		return nil, err
	}
	if rel.InverseOf, _, err = lookupString(v, "inverse_of"); err != nil {
		return nil, err
	}
	if rel.Dependent, _, err = lookupString(v, "dependent"); err != nil {
		return nil, err
	}
	if b, ok, err := lookupBool(v, "validate"); err != nil {
		return nil, err
	} else if ok {
		rel.Validate = b
	}
	if rel.Autosave, _, err = lookupBool(v, "autosave"); err != nil {
		return nil, err
	}
	if rel.Capacity, _, err = lookupInt(v, "capacity"); err != nil {
		return nil, err
	}

	if nv := v.LookupPath(cue.ParsePath("nested")); nv.Exists() {
		if rel.Nested, err = parseNested(nv); err != nil {
			return nil, err
		}
	}

	if cv := v.LookupPath(cue.ParsePath("callbacks")); cv.Exists() {
		if rel.Callbacks, err = parseCallbacks(cv); err != nil {
			return nil, err
		}
	}

	return rel, nil
}

// CompileAll compiles every declaration under the top-level "relationship"
// field of v, in declaration order. A missing field yields no relationships.
func CompileAll(v cue.Value) ([]*Relationship, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	rv := v.LookupPath(cue.ParsePath("relationship"))
	if !rv.Exists() {
		return nil, nil
	}
	iter, err := rv.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var rels []*Relationship
	for iter.Next() {
		rel, err := Compile(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("relationship %s: %w", iter.Label(), err)
		}
		rels = append(rels, rel)
	}
	return rels, nil
}

func parseNested(v cue.Value) (*Nested, error) {
	n := &Nested{}
	var err error
	if n.AllowDestroy, _, err = lookupBool(v, "allow_destroy"); err != nil {
		return nil, err
	}
	if n.RejectIf, _, err = lookupString(v, "reject_if"); err != nil {
		return nil, err
	}
	if n.Limit, _, err = lookupInt(v, "limit"); err != nil {
		return nil, err
	}
	return n, nil
}

// parseCallbacks reads {event: handler} or {event: [handler, ...]}. Callbacks
// are returned in event declaration order, handlers in the order written.
func parseCallbacks(v cue.Value) ([]Callback, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	byEvent := make(map[string][]string)
	var unknown []string
	for iter.Next() {
		event := iter.Label()
		hv := iter.Value()

		var handlers []string
		if s, err := hv.String(); err == nil {
			handlers = []string{s}
		} else {
			list, err := hv.List()
			if err != nil {
				return nil, &CompileError{
					Field:   "callbacks." + event,
					Message: "must be a handler name or a list of handler names",
					Pos:     hv.Pos(),
				}
			}
			for list.Next() {
				s, err := list.Value().String()
				if err != nil {
					return nil, formatCUEError(err)
				}
				handlers = append(handlers, s)
			}
		}

		if _, err := relation.ParseEvent(event); err != nil {
			unknown = append(unknown, event)
		}
		byEvent[event] = append(byEvent[event], handlers...)
	}

	var out []Callback
	for _, e := range relation.Events {
		for _, h := range byEvent[string(e)] {
			out = append(out, Callback{Event: string(e), Handler: h})
		}
	}
	// Unknown events are kept so Validate can report them.
	sort.Strings(unknown)
	for _, e := range unknown {
		for _, h := range byEvent[e] {
			out = append(out, Callback{Event: e, Handler: h})
		}
	}
	return out, nil
}

func requireString(v cue.Value, field string) (string, error) {
	s, ok, err := lookupString(v, field)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &CompileError{
			Field:   field,
			Message: field + " is required",
			Pos:     v.Pos(),
		}
	}
	return s, nil
}

func lookupString(v cue.Value, field string) (string, bool, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", false, nil
	}
	s, err := fv.String()
	if err != nil {
		return "", false, formatCUEError(err)
	}
	return s, true, nil
}

func lookupBool(v cue.Value, field string) (bool, bool, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return false, false, nil
	}
	b, err := fv.Bool()
	if err != nil {
		return false, false, formatCUEError(err)
	}
	return b, true, nil
}

func lookupInt(v cue.Value, field string) (int, bool, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return 0, false, nil
	}
	n, err := fv.Int64()
	if err != nil {
		return 0, false, formatCUEError(err)
	}
	return int(n), true, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
