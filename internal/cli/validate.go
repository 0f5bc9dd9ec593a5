package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/deferring/internal/schema"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid         bool                     `json:"valid"`
	Relationships []string                 `json:"relationships,omitempty"`
	Errors        []schema.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <schema-dir>",
		Short: "Validate relationship declarations",
		Long: `Load the CUE package in schema-dir and check every relationship
declaration: required kinds, dependent policy, callback events and
handlers, nested attribute options, capacity and name uniqueness.

Exit codes:
  0 - All declarations valid
  1 - One or more validation errors
  2 - Command error (missing directory, CUE that does not build, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, schemaDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	loadResult, loadErrors := schema.LoadDir(schemaDir)
	if loadResult == nil && len(loadErrors) > 0 {
		var loadErr *schema.LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Message, nil)
		}
		return outputValidateError(formatter, schema.ErrCodeGeneric, loadErrors[0].Error(), nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, schemaDir)

	var validationErrors []schema.ValidationError
	for _, err := range loadErrors {
		validationErrors = append(validationErrors, loadValidationError(err))
	}
	for _, rel := range loadResult.Relationships {
		formatter.VerboseLog("Validating relationship: %s", rel.Name)
	}
	validationErrors = append(validationErrors, schema.ValidateAll(loadResult.Relationships)...)

	if len(validationErrors) > 0 {
		return outputValidationErrors(formatter, validationErrors)
	}
	return outputValidateSuccess(formatter, loadResult.Relationships)
}

// loadValidationError reports a declaration that failed to compile next to
// the validation errors of the ones that did.
func loadValidationError(err error) schema.ValidationError {
	var loadErr *schema.LoadError
	if !errors.As(err, &loadErr) {
		return schema.ValidationError{Field: "load", Message: err.Error(), Code: schema.ErrCodeGeneric}
	}
	line := 0
	if loadErr.Pos.IsValid() {
		line = loadErr.Pos.Line()
	}
	return schema.ValidationError{
		Field:   "load",
		Message: loadErr.Message,
		Code:    loadErr.Code,
		Line:    line,
	}
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, rels []*schema.Relationship) error {
	names := make([]string, len(rels))
	for i, rel := range rels {
		names[i] = rel.Name
	}
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Relationships: names})
	}

	fmt.Fprintf(formatter.Writer, "✓ All relationships valid (%d)\n", len(rels))
	return nil
}

// outputValidateError outputs a single load error.
func outputValidateError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []schema.ValidationError) error {
	failed := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if formatter.Format == "json" {
		err := formatter.Response(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		})
		if err != nil {
			return err
		}
		return failed
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}
	return failed
}
