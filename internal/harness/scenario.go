package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/deferring/internal/relation"
)

// Scenario defines one relationship scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Schema is a CUE file or directory of relationship declarations.
	// Relative paths resolve against the scenario file.
	Schema string `yaml:"schema,omitempty"`

	// SchemaSource holds inline CUE declarations. Used when Schema is empty.
	SchemaSource string `yaml:"schema_source,omitempty"`

	// Relationship names the declaration under test.
	Relationship string `yaml:"relationship"`

	// Records are inserted before the steps run.
	Records []RecordSeed `yaml:"records"`

	// Links are persisted under Relationship before the steps run.
	Links []LinkSeed `yaml:"links,omitempty"`

	// Parent is the key of the record owning the collection.
	Parent string `yaml:"parent"`

	Steps []Step `yaml:"steps"`

	Expect Expect `yaml:"expect"`
}

// RecordSeed is a record inserted before the steps run.
type RecordSeed struct {
	Key   string         `yaml:"key"`
	Kind  string         `yaml:"kind"`
	Name  string         `yaml:"name"`
	Attrs map[string]any `yaml:"attrs,omitempty"`
}

// LinkSeed links children to a parent, all by key.
type LinkSeed struct {
	Parent   string   `yaml:"parent"`
	Children []string `yaml:"children"`
}

// Step is one collection operation.
type Step struct {
	Op string `yaml:"op"`

	// Records are seeded keys (append, remove, destroy, set).
	Records []string `yaml:"records,omitempty"`

	// IDs are raw identities (set_ids, destroy).
	IDs []any `yaml:"ids,omitempty"`

	// Attrs feed build and create.
	Attrs map[string]any `yaml:"attrs,omitempty"`

	// Nested is the input of a nested step: a list or a keyed map of
	// attribute sets.
	Nested any `yaml:"nested,omitempty"`

	// Error is the expected error kind: validation, persistence, argument or
	// not_found. Empty expects success.
	Error string `yaml:"error,omitempty"`
}

// Expect lists the checks made after the last step. Nil fields are not
// checked; an empty list expects nothing.
type Expect struct {
	// Members are the names of the working set, in order.
	Members []string `yaml:"members,omitempty"`

	// Links and Unlinks are the names of the pending changes.
	Links   []string `yaml:"links,omitempty"`
	Unlinks []string `yaml:"unlinks,omitempty"`

	// Persisted are the names of the stored members, in link order.
	Persisted []string `yaml:"persisted,omitempty"`

	// Audit are the trace lines, in order.
	Audit []string `yaml:"audit,omitempty"`

	// Errors are the parent's validation messages by field after the last
	// save.
	Errors map[string][]string `yaml:"errors,omitempty"`
}

// Step operations.
const (
	OpAppend  = "append"
	OpRemove  = "remove"
	OpDestroy = "destroy"
	OpSet     = "set"
	OpSetIDs  = "set_ids"
	OpBuild   = "build"
	OpCreate  = "create"
	OpNested  = "nested"
	OpReload  = "reload"
	OpReset   = "reset"
	OpSave    = "save"
)

// Expected error kinds.
const (
	ErrorValidation  = "validation"
	ErrorPersistence = "persistence"
	ErrorArgument    = "argument"
	ErrorNotFound    = "not_found"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected. A relative Schema path is resolved against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Schema != "" && !filepath.IsAbs(scenario.Schema) {
		scenario.Schema = filepath.Join(filepath.Dir(path), scenario.Schema)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// LoadScenarios loads every .yaml file in dir, ordered by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Schema == "" && s.SchemaSource == "" {
		return fmt.Errorf("schema or schema_source is required")
	}
	if s.Relationship == "" {
		return fmt.Errorf("relationship is required")
	}
	if s.Parent == "" {
		return fmt.Errorf("parent is required")
	}

	keys := make(map[string]bool, len(s.Records))
	for i, r := range s.Records {
		if r.Key == "" {
			return fmt.Errorf("records[%d]: key is required", i)
		}
		if keys[r.Key] {
			return fmt.Errorf("records[%d]: duplicate key %q", i, r.Key)
		}
		if r.Kind == "" {
			return fmt.Errorf("records[%d]: kind is required", i)
		}
		keys[r.Key] = true
	}
	if !keys[s.Parent] {
		return fmt.Errorf("parent %q is not a seeded record", s.Parent)
	}
	for i, l := range s.Links {
		if !keys[l.Parent] {
			return fmt.Errorf("links[%d]: unknown parent %q", i, l.Parent)
		}
		for _, c := range l.Children {
			if !keys[c] {
				return fmt.Errorf("links[%d]: unknown child %q", i, c)
			}
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(step, keys); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step, keys map[string]bool) error {
	switch step.Op {
	case OpAppend, OpRemove, OpSet:
	case OpDestroy:
		if len(step.Records) == 0 && len(step.IDs) == 0 {
			return fmt.Errorf("destroy needs records or ids")
		}
	case OpSetIDs, OpBuild, OpCreate, OpNested, OpReload, OpReset, OpSave:
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
	for _, k := range step.Records {
		if !keys[k] {
			return fmt.Errorf("%s: unknown record %q", step.Op, k)
		}
	}
	switch step.Error {
	case "", ErrorValidation, ErrorPersistence, ErrorArgument, ErrorNotFound:
	default:
		return fmt.Errorf("unknown error kind %q", step.Error)
	}
	// String ids that are not seeded keys must parse as numbers unless the
	// step expects the argument error.
	if step.Error != ErrorArgument {
		for _, v := range step.IDs {
			s, ok := v.(string)
			if !ok || keys[s] || strings.TrimSpace(s) == "" {
				continue
			}
			if _, ok := relation.ParseID(s); !ok {
				return fmt.Errorf("%s: unknown id %q", step.Op, s)
			}
		}
	}
	return nil
}
