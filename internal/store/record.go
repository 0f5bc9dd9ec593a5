package store

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/roach88/deferring/internal/relation"
)

// MaxNameLength bounds Record.Name.
const MaxNameLength = 200

var recordValidate *validator.Validate

func init() {
	recordValidate = validator.New()
}

// Record is a row of the records table. It is the entity type on both sides
// of every relationship the store serves.
type Record struct {
	ID    relation.ID
	Key   string
	Kind  string `validate:"required"`
	Name  string `validate:"required,max=200"`
	Attrs relation.Attrs

	inverse map[string]*Record
	marked  bool
}

var (
	_ relation.InverseAssigner[*Record] = (*Record)(nil)
	_ relation.AttributeAssigner        = (*Record)(nil)
	_ relation.Destructible             = (*Record)(nil)
	_ relation.Validatable              = (*Record)(nil)
)

// NewRecord creates an unpersisted record of kind from attrs. The "name"
// attribute becomes Name.
func NewRecord(kind string, attrs relation.Attrs) (*Record, error) {
	r := &Record{Kind: kind}
	if err := r.AssignAttributes(attrs); err != nil {
		return nil, err
	}
	return r, nil
}

// Identity implements relation.Entity.
func (r *Record) Identity() (relation.ID, bool) {
	if r == nil || r.ID == relation.NoID {
		return relation.NoID, false
	}
	return r.ID, true
}

// AssignAttributes sets Name from "name" and merges every other attribute
// into Attrs. A nil value deletes the attribute.
func (r *Record) AssignAttributes(attrs relation.Attrs) error {
	for k, v := range attrs {
		if k == "name" {
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("record name must be a string, got %T", v)
			}
			r.Name = s
			continue
		}
		if v == nil {
			delete(r.Attrs, k)
			continue
		}
		if _, err := marshalCanonical(v); err != nil {
			return fmt.Errorf("attribute %q: %w", k, err)
		}
		if r.Attrs == nil {
			r.Attrs = relation.Attrs{}
		}
		r.Attrs[k] = v
	}
	return nil
}

// AssignInverse records parent as the inverse side named name. Records carry
// no declared relations, so any name is accepted.
func (r *Record) AssignInverse(name string, parent *Record) bool {
	if r.inverse == nil {
		r.inverse = make(map[string]*Record)
	}
	r.inverse[name] = parent
	return true
}

// Inverse returns the parent assigned under name, or nil.
func (r *Record) Inverse(name string) *Record {
	return r.inverse[name]
}

// MarkForDestruction implements relation.Destructible.
func (r *Record) MarkForDestruction() { r.marked = true }

// MarkedForDestruction implements relation.Destructible.
func (r *Record) MarkedForDestruction() bool { return r.marked }

// Validate checks the struct tags. Failures are validator.ValidationErrors.
func (r *Record) Validate() error {
	return recordValidate.Struct(r)
}

// Label renders the record as "kind name" ("kind #id" when unnamed).
func (r *Record) Label() string {
	if r.Name != "" {
		return r.Kind + " " + r.Name
	}
	return fmt.Sprintf("%s #%d", r.Kind, r.ID)
}
