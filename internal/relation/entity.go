package relation

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ID is the primary key of a persisted entity.
type ID int64

// NoID is reported for entities that have not been persisted.
const NoID ID = 0

// String implements fmt.Stringer.
func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Entity is the constraint satisfied by related records.
//
// Identity reports the primary key and whether the entity has been persisted.
// Implementations are expected to be pointer types: the zero value (nil) is
// treated as an absent entry and unpersisted entities compare with ==.
type Entity interface {
	comparable
	Identity() (ID, bool)
}

// Attrs holds attribute values for building or updating an entity.
type Attrs map[string]any

// Clone returns a shallow copy of the attributes.
func (a Attrs) Clone() Attrs {
	if a == nil {
		return Attrs{}
	}
	out := make(Attrs, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Without returns a copy of the attributes with the given keys removed.
func (a Attrs) Without(keys ...string) Attrs {
	out := a.Clone()
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// InverseAssigner is implemented by entities that expose the inverse side of
// a relationship. AssignInverse returns false when the entity has no relation
// with the given name.
type InverseAssigner[P any] interface {
	AssignInverse(name string, parent P) bool
}

// AttributeAssigner is implemented by entities whose attributes can be
// updated in place by nested attribute assignment.
type AttributeAssigner interface {
	AssignAttributes(attrs Attrs) error
}

// Destructible is implemented by entities that can be flagged for deletion
// when they leave a relationship with a dependent policy.
type Destructible interface {
	MarkForDestruction()
	MarkedForDestruction() bool
}

// Validatable is implemented by entities that can validate themselves.
type Validatable interface {
	Validate() error
}

// ParseID converts a raw identity value into an ID.
//
// Accepted inputs are ID, signed and unsigned integers, integral floats (as
// produced by JSON decoding) and decimal strings. Blank values (nil, "",
// whitespace) and NoID report false.
func ParseID(v any) (ID, bool) {
	switch val := v.(type) {
	case nil:
		return NoID, false
	case ID:
		return val, val != NoID
	case int:
		return ID(val), val != 0
	case int32:
		return ID(val), val != 0
	case int64:
		return ID(val), val != 0
	case uint:
		return ID(val), val != 0
	case uint32:
		return ID(val), val != 0
	case uint64:
		if val > math.MaxInt64 {
			return NoID, false
		}
		return ID(val), val != 0
	case float64:
		if val != math.Trunc(val) || val == 0 {
			return NoID, false
		}
		return ID(val), true
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return NoID, false
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n == 0 {
			return NoID, false
		}
		return ID(n), true
	case fmt.Stringer:
		return ParseID(val.String())
	default:
		return NoID, false
	}
}

// isBlank reports whether a raw value counts as absent input.
func isBlank(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case []any:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	default:
		return false
	}
}

// Same reports whether a and b denote the same record.
func Same[R Entity](a, b R) bool {
	ida, oka := a.Identity()
	idb, okb := b.Identity()
	if oka && okb {
		return ida == idb
	}
	return a == b
}

// isZero reports whether r is the zero value of its type.
func isZero[R Entity](r R) bool {
	var zero R
	return r == zero
}

func indexOf[R Entity](rs []R, r R) int {
	for i, candidate := range rs {
		if Same(candidate, r) {
			return i
		}
	}
	return -1
}

func indexOfID[R Entity](rs []R, id ID) int {
	for i, candidate := range rs {
		if got, ok := candidate.Identity(); ok && got == id {
			return i
		}
	}
	return -1
}

// subtract returns the members of from that are not in other, in from order.
func subtract[R Entity](from, other []R) []R {
	var out []R
	for _, r := range from {
		if indexOf(other, r) < 0 {
			out = append(out, r)
		}
	}
	return out
}

// normalize drops zero entries and duplicates, keeping first occurrences.
func normalize[R Entity](rs []R) []R {
	out := make([]R, 0, len(rs))
	for _, r := range rs {
		if isZero(r) || indexOf(out, r) >= 0 {
			continue
		}
		out = append(out, r)
	}
	return out
}

func identities[R Entity](rs []R) []ID {
	ids := make([]ID, 0, len(rs))
	for _, r := range rs {
		if id, ok := r.Identity(); ok {
			ids = append(ids, id)
		}
	}
	return ids
}
