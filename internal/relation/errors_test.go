package relation

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			"validation",
			&ValidationError{Errors: []FieldError{{Field: "items", Message: "is invalid"}, {Field: "title", Message: "can't be blank"}}},
			"VALIDATION_FAILED: items is invalid; title can't be blank",
		},
		{
			"persistence",
			&PersistenceError{Relationship: "teams", Op: OpLink, Err: errors.New("boom")},
			"PERSISTENCE_FAILED: link teams: boom",
		},
		{
			"partial persistence",
			&PersistenceError{Relationship: "teams", Op: OpLink, Applied: []ID{1, 2}, Err: errors.New("boom")},
			"PERSISTENCE_FAILED: link teams (2 unlinks already applied): boom",
		},
		{
			"argument",
			&ArgumentError{Relationship: "teams", Message: "bad input"},
			"INVALID_ARGUMENT: teams: bad input",
		},
		{
			"not found",
			&NotFoundError{Relationship: "teams", IDs: []ID{4, 5}},
			"NOT_FOUND: teams: no record with id 4, 5",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestErrorPredicatesUnwrap(t *testing.T) {
	wrap := func(err error) error { return fmt.Errorf("outer: %w", err) }

	assert.True(t, IsValidationError(wrap(&ValidationError{})))
	assert.True(t, IsPersistenceError(wrap(&PersistenceError{})))
	assert.True(t, IsArgumentError(wrap(&ArgumentError{})))
	assert.True(t, IsNotFoundError(wrap(&NotFoundError{})))

	plain := errors.New("plain")
	assert.False(t, IsValidationError(plain))
	assert.False(t, IsPersistenceError(plain))
	assert.False(t, IsArgumentError(plain))
	assert.False(t, IsNotFoundError(plain))
}

type team struct {
	Name  string `validate:"required"`
	Size  int    `validate:"min=1"`
	Color string `validate:"omitempty,oneof=red blue"`
}

type customFieldErrors []FieldError

func (c customFieldErrors) Error() string             { return "custom" }
func (c customFieldErrors) FieldErrors() []FieldError { return c }

func TestFieldErrors(t *testing.T) {
	v := validator.New()
	err := v.Struct(team{Color: "green"})
	require.Error(t, err)

	assert.Equal(t, []FieldError{
		{Field: "name", Message: "can't be blank"},
		{Field: "size", Message: "is too short (minimum is 1)"},
		{Field: "color", Message: "is not included in the list"},
	}, fieldErrors(err))

	custom := customFieldErrors{{Field: "rank", Message: "is taken"}}
	assert.Equal(t, []FieldError(custom), fieldErrors(fmt.Errorf("wrapped: %w", custom)))

	assert.Equal(t, []FieldError{{Field: "base", Message: "nope"}}, fieldErrors(errors.New("nope")))
}

func TestDependentPolicy(t *testing.T) {
	for _, p := range []DependentPolicy{DependentNone, DependentDestroy, DependentDeleteAll} {
		got, err := ParseDependentPolicy(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
	got, err := ParseDependentPolicy("")
	require.NoError(t, err)
	assert.Equal(t, DependentNone, got)

	_, err = ParseDependentPolicy("nullify")
	assert.Error(t, err)
}

func TestTruthy(t *testing.T) {
	for _, v := range []any{true, 1, int64(2), 1.0, "1", "t", "TRUE", " yes ", "on"} {
		assert.True(t, Truthy(v), "%v", v)
	}
	for _, v := range []any{nil, false, 0, 0.0, "", "0", "false", "no", "off", "x", []any{1}} {
		assert.False(t, Truthy(v), "%v", v)
	}
}
