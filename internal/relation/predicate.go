package relation

import (
	"fmt"
	"strings"

	exprlang "github.com/expr-lang/expr"
)

// RejectAllBlank rejects records whose values, ignoring the destroy flag, are
// all blank.
func RejectAllBlank(attrs Attrs) bool {
	for k, v := range attrs {
		if k == DestroyKey {
			continue
		}
		if !isBlank(v) {
			return false
		}
	}
	return true
}

// CompileRejectIf compiles a boolean expr-lang expression into a reject
// predicate for NestedConfig.RejectIf. The record's attributes are the
// expression environment; attributes missing from a record evaluate to nil.
//
// The special expression "all_blank" selects RejectAllBlank.
//
// A record for which the expression fails at run time is not rejected.
func CompileRejectIf(expression string) (func(Attrs) bool, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, fmt.Errorf("reject_if: expression must not be empty")
	}
	if expression == "all_blank" {
		return RejectAllBlank, nil
	}
	program, err := exprlang.Compile(expression,
		exprlang.Env(map[string]any{}),
		exprlang.AllowUndefinedVariables(),
		exprlang.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("reject_if %q: %w", expression, err)
	}
	return func(attrs Attrs) bool {
		out, err := exprlang.Run(program, map[string]any(attrs.Clone()))
		if err != nil {
			return false
		}
		rejected, _ := out.(bool)
		return rejected
	}, nil
}
