package relation

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Reserved keys in nested attribute records.
const (
	IDKey      = "id"
	DestroyKey = "_destroy"
)

// NestedConfig controls AssignNested.
type NestedConfig struct {
	// AllowDestroy lets records flagged with _destroy leave the collection.
	AllowDestroy bool

	// RejectIf skips records for which it returns true. The predicate sees
	// the full record including id and _destroy.
	RejectIf func(Attrs) bool

	// Limit caps the number of records per call. Zero means no limit.
	Limit int
}

// AssignNested applies a batch of attribute records to the collection.
//
// input is a sequence ([]Attrs, []map[string]any, []any of maps) or a keyed
// mapping (map[string]Attrs, map[string]map[string]any, map[string]any of
// maps). Mapping keys are discarded; records are taken in ascending key order,
// numerically when keys are numbers. Other input is an *ArgumentError.
//
// Each record, in order:
//   - no id: built as a new member unless flagged for destruction or rejected
//   - id of a current member: attributes updated unless rejected; with
//     _destroy and AllowDestroy the member is destroyed
//   - id of a non-member: fetched from storage and appended unless flagged
//     or rejected
func (c *Collection[P, R]) AssignNested(ctx context.Context, input any) error {
	records, err := normalizeNested(c.cfg.Name, input)
	if err != nil {
		return err
	}
	if limit := c.cfg.Nested.Limit; limit > 0 && len(records) > limit {
		return &ArgumentError{
			Relationship: c.cfg.Name,
			Message:      fmt.Sprintf("maximum %d records are allowed, got %d", limit, len(records)),
		}
	}
	if err := c.load(ctx); err != nil {
		return err
	}
	for i, attrs := range records {
		if err := c.assignNestedRecord(ctx, attrs); err != nil {
			return fmt.Errorf("nested %s[%d]: %w", c.cfg.Name, i, err)
		}
	}
	return nil
}

func (c *Collection[P, R]) assignNestedRecord(ctx context.Context, attrs Attrs) error {
	rawID := attrs[IDKey]
	destroy := Truthy(attrs[DestroyKey])
	fields := attrs.Without(IDKey, DestroyKey)

	if isBlank(rawID) {
		if destroy || c.rejects(attrs) {
			return nil
		}
		_, err := c.Build(ctx, fields)
		return err
	}

	id, ok := ParseID(rawID)
	if !ok {
		return &ArgumentError{Relationship: c.cfg.Name, Message: fmt.Sprintf("invalid id %v", rawID)}
	}

	if i := indexOfID(c.snap.working, id); i >= 0 {
		member := c.snap.working[i]
		if destroy && !c.cfg.Nested.AllowDestroy {
			// A blocked destroy leaves the member untouched.
			return nil
		}
		if !destroy && c.rejects(attrs) {
			return nil
		}
		if err := assignAttributes(member, fields); err != nil {
			return err
		}
		if destroy {
			return c.Destroy(ctx, member)
		}
		return nil
	}

	if destroy || c.rejects(attrs) {
		return nil
	}
	found, err := c.find(ctx, []ID{id})
	if err != nil {
		return err
	}
	if err := assignAttributes(found[0], fields); err != nil {
		return err
	}
	return c.Append(ctx, found[0])
}

func (c *Collection[P, R]) rejects(attrs Attrs) bool {
	return c.cfg.Nested.RejectIf != nil && c.cfg.Nested.RejectIf(attrs)
}

func assignAttributes[R Entity](r R, fields Attrs) error {
	if len(fields) == 0 {
		return nil
	}
	if aa, ok := any(r).(AttributeAssigner); ok {
		return aa.AssignAttributes(fields)
	}
	return nil
}

// Truthy reports whether a form-style flag value is set: true, non-zero
// numbers, and "1", "t", "true", "yes", "on" in any case.
func Truthy(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case int:
		return val != 0
	case int64:
		return val != 0
	case float64:
		return val != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		}
	}
	return false
}

func normalizeNested(name string, input any) ([]Attrs, error) {
	switch v := input.(type) {
	case nil:
		return nil, nil
	case []Attrs:
		return slices.Clone(v), nil
	case []map[string]any:
		out := make([]Attrs, len(v))
		for i, m := range v {
			out[i] = Attrs(m)
		}
		return out, nil
	case []any:
		out := make([]Attrs, 0, len(v))
		for i, elem := range v {
			attrs, ok := asAttrs(elem)
			if !ok {
				return nil, &ArgumentError{Relationship: name, Message: fmt.Sprintf("record %d is %T, expected attributes", i, elem)}
			}
			out = append(out, attrs)
		}
		return out, nil
	case map[string]Attrs:
		return valuesByKey(v), nil
	case map[string]map[string]any:
		m := make(map[string]Attrs, len(v))
		for k, attrs := range v {
			m[k] = Attrs(attrs)
		}
		return valuesByKey(m), nil
	case map[string]any:
		m := make(map[string]Attrs, len(v))
		for k, elem := range v {
			attrs, ok := asAttrs(elem)
			if !ok {
				return nil, &ArgumentError{Relationship: name, Message: fmt.Sprintf("record %q is %T, expected attributes", k, elem)}
			}
			m[k] = attrs
		}
		return valuesByKey(m), nil
	default:
		return nil, &ArgumentError{Relationship: name, Message: fmt.Sprintf("nested attributes must be a sequence or mapping, got %T", input)}
	}
}

func asAttrs(v any) (Attrs, bool) {
	switch val := v.(type) {
	case Attrs:
		return val, true
	case map[string]any:
		return Attrs(val), true
	default:
		return nil, false
	}
}

// valuesByKey flattens a keyed mapping. Numeric keys sort numerically and
// before other keys; the rest sort lexically.
func valuesByKey(m map[string]Attrs) []Attrs {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		na, errA := strconv.ParseInt(a, 10, 64)
		nb, errB := strconv.ParseInt(b, 10, 64)
		switch {
		case errA == nil && errB == nil:
			return cmp.Compare(na, nb)
		case errA == nil:
			return -1
		case errB == nil:
			return 1
		default:
			return strings.Compare(a, b)
		}
	})
	out := make([]Attrs, len(keys))
	for i, k := range keys {
		out[i] = m[k]
	}
	return out
}
