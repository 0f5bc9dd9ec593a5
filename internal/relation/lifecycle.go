package relation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldError is one validation message attached to a field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e FieldError) Error() string {
	return e.Field + " " + e.Message
}

// Errors is the error set of a parent record being saved.
type Errors struct {
	list []FieldError
}

// Add appends a message for field.
func (e *Errors) Add(field, message string) {
	e.list = append(e.list, FieldError{Field: field, Message: message})
}

// On returns the messages recorded for field.
func (e *Errors) On(field string) []string {
	var out []string
	for _, fe := range e.list {
		if fe.Field == field {
			out = append(out, fe.Message)
		}
	}
	return out
}

// All returns a copy of every recorded error in insertion order.
func (e *Errors) All() []FieldError {
	return append([]FieldError(nil), e.list...)
}

// Len returns the number of recorded errors.
func (e *Errors) Len() int {
	return len(e.list)
}

// Empty reports whether no errors were recorded.
func (e *Errors) Empty() bool {
	return len(e.list) == 0
}

// Clear removes every recorded error.
func (e *Errors) Clear() {
	e.list = nil
}

// Lifecycle is the set of hooks a parent runs around its own save.
// *Collection implements it.
type Lifecycle interface {
	BeforeValidate(ctx context.Context) error
	AfterValidate(errs *Errors) bool
	AfterSave(ctx context.Context) error
	Changed() bool
}

// BeforeValidate validates the working set. It does nothing when the
// collection was never loaded or validation is disabled. Members marked for
// destruction are not validated.
func (c *Collection[P, R]) BeforeValidate(ctx context.Context) error {
	c.memberErrs = nil
	if c.cfg.SkipValidation || c.snap.State() == Unloaded {
		return nil
	}
	for _, r := range c.snap.working {
		if err := ctx.Err(); err != nil {
			return err
		}
		if d, ok := any(r).(Destructible); ok && d.MarkedForDestruction() {
			continue
		}
		v, ok := any(r).(Validatable)
		if !ok {
			continue
		}
		if err := v.Validate(); err != nil {
			c.memberErrs = append(c.memberErrs, fieldErrors(err)...)
		}
	}
	if len(c.memberErrs) > 0 {
		c.logger.Debug("members invalid", "errors", len(c.memberErrs))
	}
	return nil
}

// AfterValidate attaches the errors found by BeforeValidate and the failures
// recorded by TryCreate to errs, and reports whether the collection is valid.
//
// With Autosave each member error is attached as "<name>.<field>"; without it
// the collection contributes a single "<name>: is invalid".
func (c *Collection[P, R]) AfterValidate(errs *Errors) bool {
	valid := true
	for _, fe := range c.errs {
		errs.Add(fe.Field, fe.Message)
		valid = false
	}
	c.errs = nil

	if len(c.memberErrs) == 0 {
		return valid
	}
	if c.cfg.Autosave {
		for _, fe := range c.memberErrs {
			errs.Add(c.cfg.Name+"."+fe.Field, fe.Message)
		}
	} else {
		errs.Add(c.cfg.Name, "is invalid")
	}
	return false
}

// fieldErrors converts a member validation error into field errors.
func fieldErrors(err error) []FieldError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		out := make([]FieldError, len(verrs))
		for i, fe := range verrs {
			out[i] = FieldError{Field: fieldName(fe), Message: tagMessage(fe)}
		}
		return out
	}
	var fes interface{ FieldErrors() []FieldError }
	if errors.As(err, &fes) {
		return fes.FieldErrors()
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return append([]FieldError(nil), ve.Errors...)
	}
	return []FieldError{{Field: "base", Message: err.Error()}}
}

func fieldName(fe validator.FieldError) string {
	name := fe.Field()
	if name == "" {
		return "base"
	}
	return strings.ToLower(name[:1]) + name[1:]
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "can't be blank"
	case "max":
		return fmt.Sprintf("is too long (maximum is %s)", fe.Param())
	case "min":
		return fmt.Sprintf("is too short (minimum is %s)", fe.Param())
	case "oneof":
		return "is not included in the list"
	default:
		return "is invalid"
	}
}

// Save runs the parent save lifecycle around persist.
//
//  1. BeforeValidate on every hook.
//  2. AfterValidate on every hook. If errs is non-empty afterwards, Save
//     returns a *ValidationError and nothing is persisted.
//  3. persist writes the parent record.
//  4. AfterSave on every hook, in order. The first failure is returned.
//
// errs may carry the parent's own validation errors; nil means none.
func Save(ctx context.Context, errs *Errors, persist func(ctx context.Context) error, hooks ...Lifecycle) error {
	if errs == nil {
		errs = &Errors{}
	}
	for _, h := range hooks {
		if err := h.BeforeValidate(ctx); err != nil {
			return fmt.Errorf("before validate: %w", err)
		}
	}
	valid := errs.Empty()
	for _, h := range hooks {
		if !h.AfterValidate(errs) {
			valid = false
		}
	}
	if !valid {
		return &ValidationError{Errors: errs.All()}
	}
	if persist != nil {
		if err := persist(ctx); err != nil {
			return fmt.Errorf("save parent: %w", err)
		}
	}
	for _, h := range hooks {
		if err := h.AfterSave(ctx); err != nil {
			return err
		}
	}
	return nil
}

// AnyChanged reports whether any hook has pending changes.
func AnyChanged(hooks ...Lifecycle) bool {
	for _, h := range hooks {
		if h.Changed() {
			return true
		}
	}
	return false
}
