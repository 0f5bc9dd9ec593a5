package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/roach88/deferring/internal/relation"
	"github.com/roach88/deferring/internal/schema"
	"github.com/roach88/deferring/internal/store"
)

// Handler names callback declarations may bind.
const (
	// HandlerAudit appends "<event> <kind> <name>" to the trace.
	HandlerAudit = "audit"
	// HandlerTouch sets the member's "touched" attribute to the event name.
	HandlerTouch = "touch"
)

type recordCollection = relation.Collection[*store.Record, *store.Record]

// Harness executes one scenario.
type Harness struct {
	store   *store.Store
	decl    *schema.Relationship
	rel     *store.Relationship
	parent  *store.Record
	records map[string]*store.Record
	coll    *recordCollection
	result  *Result
	step    int
	saved   *relation.Errors
	logger  *slog.Logger
}

type runConfig struct {
	logger   *slog.Logger
	observer relation.Observer
}

// RunOption configures Run.
type RunOption func(*runConfig)

// WithLogger sets the logger passed to the store and the collection.
// Default: discard.
func WithLogger(l *slog.Logger) RunOption {
	return func(c *runConfig) {
		c.logger = l
	}
}

// WithObserver sets the collection's reconciliation observer.
func WithObserver(o relation.Observer) RunOption {
	return func(c *runConfig) {
		c.observer = o
	}
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database with sequential record
// keys, so traces are reproducible.
//
// Execution flow:
// 1. Load and validate the relationship declaration
// 2. Seed records and links
// 3. Bind the collection to the parent
// 4. Apply steps, checking each step's expected error
// 5. Collect the final state and evaluate expectations
//
// The returned error reports a scenario that could not be set up; step and
// expectation failures are recorded in the result.
func Run(scenario *Scenario, opts ...RunOption) (*Result, error) {
	cfg := runConfig{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&cfg)
	}

	decl, err := loadDeclaration(scenario)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:",
		store.WithKeyGenerator(store.NewSequenceGenerator("rec")),
		store.WithLogger(cfg.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:   st,
		decl:    decl,
		records: make(map[string]*store.Record),
		result:  NewResult(),
		logger:  cfg.logger,
	}

	ctx := context.Background()
	if err := h.seed(ctx, scenario); err != nil {
		return nil, fmt.Errorf("failed to seed: %w", err)
	}

	handlers := map[string]schema.Handler[*store.Record, *store.Record]{
		HandlerAudit: h.audit,
		HandlerTouch: h.touch,
	}
	collCfg, err := schema.Config(decl, h.parent, handlers)
	if err != nil {
		return nil, err
	}
	h.coll = relation.New[*store.Record, *store.Record](h.parent, h.rel, collCfg,
		relation.WithLogger(cfg.logger),
		relation.WithObserver(cfg.observer),
	)

	for i, step := range scenario.Steps {
		h.step = i + 1
		h.checkStepError(i, step, h.apply(ctx, step))
	}

	state, err := h.collectState(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to collect state: %w", err)
	}
	h.result.State = state

	for _, msg := range evaluateExpect(scenario.Expect, h.result) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

func loadDeclaration(s *Scenario) (*schema.Relationship, error) {
	var (
		result *schema.LoadResult
		errs   []error
	)
	switch {
	case s.Schema != "":
		info, err := os.Stat(s.Schema)
		if err != nil {
			return nil, fmt.Errorf("schema: %w", err)
		}
		if info.IsDir() {
			result, errs = schema.LoadDir(s.Schema)
		} else {
			data, err := os.ReadFile(s.Schema)
			if err != nil {
				return nil, fmt.Errorf("schema: %w", err)
			}
			result, errs = schema.LoadString(string(data), s.Schema)
		}
	default:
		result, errs = schema.LoadString(s.SchemaSource, s.Name+".cue")
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("schema: %w", errors.Join(errs...))
	}

	decl, ok := result.Lookup(s.Relationship)
	if !ok {
		return nil, fmt.Errorf("schema: relationship %q is not declared", s.Relationship)
	}
	if verrs := schema.Validate(decl); len(verrs) > 0 {
		joined := make([]error, len(verrs))
		for i, ve := range verrs {
			joined[i] = ve
		}
		return nil, fmt.Errorf("schema: %w", errors.Join(joined...))
	}
	return decl, nil
}

func (h *Harness) seed(ctx context.Context, s *Scenario) error {
	for _, seed := range s.Records {
		attrs := relation.Attrs(seed.Attrs).Clone()
		attrs["name"] = seed.Name
		rec, err := store.NewRecord(seed.Kind, attrs)
		if err != nil {
			return fmt.Errorf("record %s: %w", seed.Key, err)
		}
		rec.Key = seed.Key
		if err := h.store.InsertRecord(ctx, rec); err != nil {
			return fmt.Errorf("record %s: %w", seed.Key, err)
		}
		h.records[seed.Key] = rec
	}
	h.parent = h.records[s.Parent]

	h.rel = h.store.Relationship(h.decl.Name, h.decl.Child,
		store.WithCapacity(h.decl.Capacity),
		store.WithDestroyHook(h.destroyed),
	)
	for _, l := range s.Links {
		if err := h.rel.PersistLinks(ctx, h.records[l.Parent], h.lookup(l.Children)); err != nil {
			return err
		}
	}
	return nil
}

func (h *Harness) apply(ctx context.Context, step Step) error {
	switch step.Op {
	case OpAppend:
		return h.coll.Append(ctx, h.lookup(step.Records)...)
	case OpRemove:
		return h.coll.Remove(ctx, h.lookup(step.Records)...)
	case OpDestroy:
		targets := make([]any, 0, len(step.Records)+len(step.IDs))
		for _, r := range h.lookup(step.Records) {
			targets = append(targets, r)
		}
		for _, id := range step.IDs {
			targets = append(targets, h.resolveID(id))
		}
		return h.coll.Destroy(ctx, targets...)
	case OpSet:
		return h.coll.Set(ctx, h.lookup(step.Records))
	case OpSetIDs:
		ids := make([]any, len(step.IDs))
		for i, id := range step.IDs {
			ids[i] = h.resolveID(id)
		}
		return h.coll.SetIDs(ctx, ids...)
	case OpBuild:
		_, err := h.coll.Build(ctx, relation.Attrs(step.Attrs))
		return err
	case OpCreate:
		_, err := h.coll.Create(ctx, relation.Attrs(step.Attrs))
		return err
	case OpNested:
		return h.coll.AssignNested(ctx, h.resolveNested(step.Nested))
	case OpReload:
		h.coll.Reload()
		return nil
	case OpReset:
		h.coll.Reset()
		return nil
	case OpSave:
		errs := &relation.Errors{}
		h.saved = errs
		return relation.Save(ctx, errs, h.persistParent, h.coll)
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
}

// persistParent writes the parent and, for autosave relationships, every
// persisted member.
func (h *Harness) persistParent(ctx context.Context) error {
	if err := h.store.SaveRecord(ctx, h.parent); err != nil {
		return err
	}
	if !h.decl.Autosave || !h.coll.Loaded() {
		return nil
	}
	members, err := h.coll.All(ctx)
	if err != nil {
		return err
	}
	for _, m := range members {
		if _, ok := m.Identity(); !ok {
			continue
		}
		if err := h.store.SaveRecord(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (h *Harness) checkStepError(i int, step Step, err error) {
	got := errorKind(err)
	if err != nil {
		h.result.AddTrace(h.step, "error "+got)
	}
	switch {
	case step.Error == "" && err != nil:
		h.result.AddError(fmt.Sprintf("steps[%d] %s: unexpected error: %v", i, step.Op, err))
	case step.Error != "" && err == nil:
		h.result.AddError(fmt.Sprintf("steps[%d] %s: expected %s error, got none", i, step.Op, step.Error))
	case step.Error != got:
		h.result.AddError(fmt.Sprintf("steps[%d] %s: expected %s error, got %v", i, step.Op, step.Error, err))
	}
}

func errorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case relation.IsValidationError(err):
		return ErrorValidation
	case relation.IsNotFoundError(err):
		return ErrorNotFound
	case relation.IsArgumentError(err):
		return ErrorArgument
	case relation.IsPersistenceError(err):
		return ErrorPersistence
	default:
		return "unknown"
	}
}

func (h *Harness) audit(event relation.Event, _ *store.Record, r *store.Record) {
	h.result.AddTrace(h.step, string(event)+" "+r.Label())
}

func (h *Harness) touch(event relation.Event, _ *store.Record, r *store.Record) {
	if err := r.AssignAttributes(relation.Attrs{"touched": string(event)}); err != nil {
		h.logger.Warn("touch failed", "record", r.Label(), "error", err)
	}
}

func (h *Harness) destroyed(_ context.Context, r *store.Record) error {
	h.result.AddTrace(h.step, "destroy "+r.Label())
	return nil
}

func (h *Harness) lookup(keys []string) []*store.Record {
	out := make([]*store.Record, len(keys))
	for i, k := range keys {
		out[i] = h.records[k]
	}
	return out
}

// resolveID replaces a seeded key with its record's id.
func (h *Harness) resolveID(v any) any {
	if s, ok := v.(string); ok {
		if rec, ok := h.records[s]; ok {
			return int64(rec.ID)
		}
	}
	return v
}

// resolveNested resolves the "id" of every attribute set in a list or keyed
// map input.
func (h *Harness) resolveNested(v any) any {
	switch val := v.(type) {
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = h.resolveAttrs(elem)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = h.resolveAttrs(elem)
		}
		return out
	default:
		return v
	}
}

func (h *Harness) resolveAttrs(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	out := make(map[string]any, len(m))
	for k, elem := range m {
		out[k] = elem
	}
	if id, ok := out[relation.IDKey]; ok {
		out[relation.IDKey] = h.resolveID(id)
	}
	return out
}

func (h *Harness) collectState(ctx context.Context) (State, error) {
	members, err := h.coll.All(ctx)
	if err != nil {
		return State{}, err
	}
	persisted, err := h.rel.Load(ctx, h.parent)
	if err != nil {
		return State{}, err
	}
	state := State{
		Members:   names(members),
		Links:     names(h.coll.Links()),
		Unlinks:   names(h.coll.Unlinks()),
		Persisted: names(persisted),
	}
	if h.saved != nil && !h.saved.Empty() {
		state.Errors = make(map[string][]string)
		for _, fe := range h.saved.All() {
			state.Errors[fe.Field] = append(state.Errors[fe.Field], fe.Message)
		}
	}
	return state, nil
}

func names(recs []*store.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Name
	}
	return out
}
