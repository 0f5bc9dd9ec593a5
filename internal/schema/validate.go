package schema

import (
	"fmt"
	"strings"

	"github.com/roach88/deferring/internal/relation"
)

// Validation error codes (E100-E199)
const (
	ErrParentEmpty       = "E101" // parent kind is required
	ErrChildEmpty        = "E102" // child kind is required
	ErrInvalidDependent  = "E103" // unknown dependent policy
	ErrInvalidEvent      = "E104" // unknown callback event
	ErrHandlerEmpty      = "E105" // callback handler name is empty
	ErrInvalidLimit      = "E106" // nested limit is negative
	ErrInvalidRejectIf   = "E107" // reject_if does not compile
	ErrInvalidCapacity   = "E108" // capacity is negative
	ErrDuplicateName     = "E109" // duplicate relationship name
	ErrDuplicateCallback = "E110" // same handler bound twice to one event
)

// ValidationError represents a declaration validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled declaration. It returns every error found.
func Validate(rel *Relationship) []ValidationError {
	var errs []ValidationError
	add := func(field, code, msg string) {
		ve := ValidationError{
			Field:   "relationship." + rel.Name + "." + field,
			Message: msg,
			Code:    code,
		}
		if rel.Pos.IsValid() {
			ve.Line = rel.Pos.Line()
		}
		errs = append(errs, ve)
	}

	if strings.TrimSpace(rel.Parent) == "" {
		add("parent", ErrParentEmpty, "parent is required and must be non-empty")
	}
	if strings.TrimSpace(rel.Child) == "" {
		add("child", ErrChildEmpty, "child is required and must be non-empty")
	}
	if _, err := relation.ParseDependentPolicy(rel.Dependent); err != nil {
		add("dependent", ErrInvalidDependent,
			fmt.Sprintf("must be one of none, destroy, delete_all, got %q", rel.Dependent))
	}
	if rel.Capacity < 0 {
		add("capacity", ErrInvalidCapacity, fmt.Sprintf("must not be negative, got %d", rel.Capacity))
	}

	if n := rel.Nested; n != nil {
		if n.Limit < 0 {
			add("nested.limit", ErrInvalidLimit, fmt.Sprintf("must not be negative, got %d", n.Limit))
		}
		if n.RejectIf != "" {
			if _, err := relation.CompileRejectIf(n.RejectIf); err != nil {
				add("nested.reject_if", ErrInvalidRejectIf, err.Error())
			}
		}
	}

	seen := make(map[Callback]bool)
	for i, cb := range rel.Callbacks {
		field := fmt.Sprintf("callbacks[%d]", i)
		if _, err := relation.ParseEvent(cb.Event); err != nil {
			add(field, ErrInvalidEvent, fmt.Sprintf("unknown event %q", cb.Event))
		}
		if strings.TrimSpace(cb.Handler) == "" {
			add(field, ErrHandlerEmpty, fmt.Sprintf("handler for %s must be non-empty", cb.Event))
			continue
		}
		if seen[cb] {
			add(field, ErrDuplicateCallback,
				fmt.Sprintf("handler %q is bound to %s more than once", cb.Handler, cb.Event))
		}
		seen[cb] = true
	}

	return errs
}

// ValidateAll validates every declaration and reports names declared more
// than once.
func ValidateAll(rels []*Relationship) []ValidationError {
	var errs []ValidationError
	names := make(map[string]bool)
	for _, rel := range rels {
		if names[rel.Name] {
			errs = append(errs, ValidationError{
				Field:   "relationship." + rel.Name,
				Message: fmt.Sprintf("duplicate relationship name: %q", rel.Name),
				Code:    ErrDuplicateName,
			})
		}
		names[rel.Name] = true
		errs = append(errs, Validate(rel)...)
	}
	return errs
}
