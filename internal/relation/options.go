package relation

import (
	"fmt"
	"log/slog"
	"time"
)

// DependentPolicy decides whether members leaving the relationship through
// Destroy are also deleted.
type DependentPolicy int

const (
	// DependentNone leaves destroyed members in storage.
	DependentNone DependentPolicy = iota
	// DependentDestroy deletes destroyed members, running their callbacks.
	DependentDestroy
	// DependentDeleteAll deletes destroyed members without callbacks.
	DependentDeleteAll
)

// String implements fmt.Stringer.
func (p DependentPolicy) String() string {
	switch p {
	case DependentNone:
		return "none"
	case DependentDestroy:
		return "destroy"
	case DependentDeleteAll:
		return "delete_all"
	default:
		return fmt.Sprintf("DependentPolicy(%d)", int(p))
	}
}

// ParseDependentPolicy parses the declaration form of a policy. The empty
// string means DependentNone.
func ParseDependentPolicy(s string) (DependentPolicy, error) {
	switch s {
	case "", "none":
		return DependentNone, nil
	case "destroy":
		return DependentDestroy, nil
	case "delete_all":
		return DependentDeleteAll, nil
	default:
		return DependentNone, fmt.Errorf("unknown dependent policy %q", s)
	}
}

// Config declares one relationship.
type Config[P any, R Entity] struct {
	// Name identifies the relationship in errors and logs (e.g. "teams").
	Name string

	// InverseOf names the relation on the related type pointing back to the
	// parent. Empty disables inverse assignment.
	InverseOf string

	Dependent DependentPolicy

	// SkipValidation disables member validation in BeforeValidate.
	SkipValidation bool

	// Autosave reports member errors per field as "<name>.<field>" instead
	// of one collection-level error.
	Autosave bool

	Listeners []Listener[P, R]

	Nested NestedConfig
}

// Observer receives reconciliation outcomes.
type Observer interface {
	Loaded(relationship string, size int)
	Reconciled(relationship string, links, unlinks int, elapsed time.Duration)
	ReconcileFailed(relationship string, op Op, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) Loaded(string, int)                         {}
func (nopObserver) Reconciled(string, int, int, time.Duration) {}
func (nopObserver) ReconcileFailed(string, Op, time.Duration)  {}

type settings struct {
	logger   *slog.Logger
	observer Observer
}

// Option configures a Collection.
type Option func(*settings)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithObserver sets the reconciliation observer.
func WithObserver(o Observer) Option {
	return func(s *settings) {
		if o != nil {
			s.observer = o
		}
	}
}
