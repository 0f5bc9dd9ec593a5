package relation

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
)

// Collection is the deferred handle on one relationship of one parent.
//
// Reads trigger a lazy load of the persisted membership. Mutations change the
// working set only; AfterSave writes the difference.
type Collection[P any, R Entity] struct {
	parent   P
	storage  Storage[P, R]
	cfg      Config[P, R]
	snap     Snapshot[R]
	events   *dispatcher[P, R]
	logger   *slog.Logger
	observer Observer

	// memberErrs holds errors found by the last BeforeValidate.
	memberErrs []FieldError
	// errs holds collection-level errors recorded by TryCreate.
	errs []FieldError
}

// New creates a collection for parent backed by storage.
//
// Listeners in cfg are registered in order; that order is the invocation
// order for each event.
func New[P any, R Entity](parent P, storage Storage[P, R], cfg Config[P, R], opts ...Option) *Collection[P, R] {
	s := settings{logger: slog.Default(), observer: nopObserver{}}
	for _, opt := range opts {
		opt(&s)
	}
	return &Collection[P, R]{
		parent:   parent,
		storage:  storage,
		cfg:      cfg,
		events:   newDispatcher(cfg.Listeners),
		logger:   s.logger.With("relationship", cfg.Name),
		observer: s.observer,
	}
}

// Name returns the relationship name.
func (c *Collection[P, R]) Name() string {
	return c.cfg.Name
}

// Parent returns the owning record.
func (c *Collection[P, R]) Parent() P {
	return c.parent
}

// State returns the load state of the current cycle.
func (c *Collection[P, R]) State() LoadState {
	return c.snap.State()
}

// Loaded reports whether the baseline has been captured.
func (c *Collection[P, R]) Loaded() bool {
	return c.snap.State() == Loaded
}

func (c *Collection[P, R]) fetch(ctx context.Context) ([]R, error) {
	rs, err := c.storage.Load(ctx, c.parent)
	if err != nil {
		return nil, &PersistenceError{Relationship: c.cfg.Name, Op: OpLoad, Err: err}
	}
	return rs, nil
}

func (c *Collection[P, R]) load(ctx context.Context) error {
	fetched, err := c.snap.load(ctx, c.fetch)
	if err != nil {
		return err
	}
	if fetched {
		c.logger.Debug("relationship loaded", "size", len(c.snap.working))
		c.observer.Loaded(c.cfg.Name, len(c.snap.working))
	}
	return nil
}

// All returns a copy of the working set.
func (c *Collection[P, R]) All(ctx context.Context) ([]R, error) {
	if err := c.load(ctx); err != nil {
		return nil, err
	}
	return slices.Clone(c.snap.working), nil
}

// Len returns the size of the working set.
func (c *Collection[P, R]) Len(ctx context.Context) (int, error) {
	if err := c.load(ctx); err != nil {
		return 0, err
	}
	return len(c.snap.working), nil
}

// At returns the working-set member at index i.
func (c *Collection[P, R]) At(ctx context.Context, i int) (R, error) {
	var zero R
	if err := c.load(ctx); err != nil {
		return zero, err
	}
	if i < 0 || i >= len(c.snap.working) {
		return zero, &ArgumentError{Relationship: c.cfg.Name, Message: fmt.Sprintf("index %d out of range [0,%d)", i, len(c.snap.working))}
	}
	return c.snap.working[i], nil
}

// Contains reports whether r is a member of the working set.
func (c *Collection[P, R]) Contains(ctx context.Context, r R) (bool, error) {
	if isZero(r) {
		return false, nil
	}
	if err := c.load(ctx); err != nil {
		return false, err
	}
	return c.snap.contains(r), nil
}

// Set replaces the working set with rs.
//
// Records leaving the set fire BeforeUnlink/AfterUnlink, then records
// entering it fire BeforeLink/AfterLink. Inverse pointers are assigned before
// the link callbacks run. Events compare rs with the previous working set,
// while Links and Unlinks always compare the working set with the loaded
// baseline.
func (c *Collection[P, R]) Set(ctx context.Context, rs []R) error {
	added, removed, err := c.snap.replace(ctx, c.fetch, rs)
	if err != nil {
		return err
	}
	for _, r := range removed {
		c.events.notify(BeforeUnlink, r)
		c.events.notify(AfterUnlink, r)
	}
	for _, r := range added {
		c.assignInverse(r)
		c.events.notify(BeforeLink, r)
		c.events.notify(AfterLink, r)
	}
	c.logger.Debug("relationship replaced", "linked", len(added), "unlinked", len(removed))
	return nil
}

// Append adds records to the working set. Zero entries and records already
// present are skipped without callbacks.
func (c *Collection[P, R]) Append(ctx context.Context, rs ...R) error {
	if err := c.load(ctx); err != nil {
		return err
	}
	for _, r := range rs {
		if isZero(r) || c.snap.contains(r) {
			continue
		}
		c.events.notify(BeforeLink, r)
		c.snap.insert(r)
		c.assignInverse(r)
		c.events.notify(AfterLink, r)
	}
	return nil
}

// Remove drops records from the working set. Zero entries and records that
// are not members are skipped.
func (c *Collection[P, R]) Remove(ctx context.Context, rs ...R) error {
	if err := c.load(ctx); err != nil {
		return err
	}
	for _, r := range rs {
		if isZero(r) {
			continue
		}
		if i := indexOf(c.snap.working, r); i >= 0 {
			c.unlink(c.snap.working[i], false)
		}
	}
	return nil
}

// Destroy drops members from the working set and, when the dependent policy
// deletes members, marks them for destruction.
//
// Targets are entities or raw identities. Blank targets and entities that
// are not members are skipped; an identity matching no member is a
// *NotFoundError and nothing is changed.
func (c *Collection[P, R]) Destroy(ctx context.Context, targets ...any) error {
	if err := c.load(ctx); err != nil {
		return err
	}
	var (
		resolved []R
		missing  []ID
	)
	for _, t := range targets {
		if r, ok := t.(R); ok {
			if isZero(r) {
				continue
			}
			if i := indexOf(c.snap.working, r); i >= 0 {
				resolved = append(resolved, c.snap.working[i])
			}
			continue
		}
		if isBlank(t) {
			continue
		}
		id, ok := ParseID(t)
		if !ok {
			return &ArgumentError{Relationship: c.cfg.Name, Message: fmt.Sprintf("cannot destroy %v: not a record or identity", t)}
		}
		i := indexOfID(c.snap.working, id)
		if i < 0 {
			missing = append(missing, id)
			continue
		}
		resolved = append(resolved, c.snap.working[i])
	}
	if len(missing) > 0 {
		return &NotFoundError{Relationship: c.cfg.Name, IDs: missing}
	}
	for _, r := range normalize(resolved) {
		c.unlink(r, true)
	}
	return nil
}

// unlink removes the working-set instance r.
func (c *Collection[P, R]) unlink(r R, destroy bool) {
	c.events.notify(BeforeUnlink, r)
	c.snap.delete(r)
	if destroy && c.cfg.Dependent != DependentNone {
		if d, ok := any(r).(Destructible); ok {
			d.MarkForDestruction()
		}
	}
	c.events.notify(AfterUnlink, r)
}

// Build constructs a new unpersisted record and links it. It stays in Links
// until the parent is saved.
func (c *Collection[P, R]) Build(ctx context.Context, attrs Attrs) (R, error) {
	var zero R
	if err := c.load(ctx); err != nil {
		return zero, err
	}
	r, err := c.storage.New(attrs.Clone())
	if err != nil {
		return zero, fmt.Errorf("build %s: %w", c.cfg.Name, err)
	}
	c.assignInverse(r)
	c.events.notify(BeforeLink, r)
	c.snap.insert(r)
	c.events.notify(AfterLink, r)
	return r, nil
}

// Create constructs a record and persists it linked to the parent
// immediately, then resets the load cycle so the next access reads a baseline
// that includes it. The record never appears in Links. Pending changes made
// before Create are discarded with the cycle.
//
// Only the storage events BeforeAdd and AfterAdd fire.
func (c *Collection[P, R]) Create(ctx context.Context, attrs Attrs) (R, error) {
	var zero R
	r, err := c.storage.New(attrs.Clone())
	if err != nil {
		return zero, &PersistenceError{Relationship: c.cfg.Name, Op: OpCreate, Err: err}
	}
	c.assignInverse(r)
	c.events.notify(BeforeAdd, r)
	if err := c.storage.Create(ctx, c.parent, r); err != nil {
		c.logger.Warn("create failed", "error", err)
		return r, &PersistenceError{Relationship: c.cfg.Name, Op: OpCreate, Err: err}
	}
	c.events.notify(AfterAdd, r)
	c.snap.reset()
	c.logger.Debug("record created")
	return r, nil
}

// TryCreate is Create that records a failure as a collection-level error,
// reported by the next AfterValidate, instead of returning it.
func (c *Collection[P, R]) TryCreate(ctx context.Context, attrs Attrs) (R, bool) {
	r, err := c.Create(ctx, attrs)
	if err != nil {
		c.errs = append(c.errs, FieldError{Field: c.cfg.Name, Message: err.Error()})
		return r, false
	}
	return r, true
}

// Reload discards the working set and all pending changes. The next access
// reads the baseline from storage again.
func (c *Collection[P, R]) Reload() {
	c.snap.reset()
	c.memberErrs = nil
	c.logger.Debug("relationship reset")
}

// Reset is an alias for Reload.
func (c *Collection[P, R]) Reset() {
	c.Reload()
}

// IDs returns the identities of the working set, NoID for records that have
// not been persisted.
func (c *Collection[P, R]) IDs(ctx context.Context) ([]ID, error) {
	if err := c.load(ctx); err != nil {
		return nil, err
	}
	ids := make([]ID, len(c.snap.working))
	for i, r := range c.snap.working {
		if id, ok := r.Identity(); ok {
			ids[i] = id
		}
	}
	return ids, nil
}

// SetIDs replaces the working set with the records identified by ids. Blank
// entries are dropped; the order of ids is kept.
func (c *Collection[P, R]) SetIDs(ctx context.Context, ids ...any) error {
	wanted, err := c.parseIDs(ids)
	if err != nil {
		return err
	}
	found, err := c.find(ctx, wanted)
	if err != nil {
		return err
	}
	return c.Set(ctx, found)
}

func (c *Collection[P, R]) parseIDs(raw []any) ([]ID, error) {
	var out []ID
	for _, v := range raw {
		if isBlank(v) {
			continue
		}
		id, ok := ParseID(v)
		if !ok {
			return nil, &ArgumentError{Relationship: c.cfg.Name, Message: fmt.Sprintf("invalid id %v", v)}
		}
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out, nil
}

// find resolves ids through storage and returns them in ids order.
func (c *Collection[P, R]) find(ctx context.Context, ids []ID) ([]R, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rs, err := c.storage.FindByIDs(ctx, ids)
	if err != nil {
		return nil, &PersistenceError{Relationship: c.cfg.Name, Op: OpFind, Err: err}
	}
	out := make([]R, 0, len(ids))
	var missing []ID
	for _, id := range ids {
		i := indexOfID(rs, id)
		if i < 0 {
			missing = append(missing, id)
			continue
		}
		out = append(out, rs[i])
	}
	if len(missing) > 0 {
		return nil, &NotFoundError{Relationship: c.cfg.Name, IDs: missing}
	}
	return out, nil
}

// Links returns records to be linked on save. It never forces a load.
func (c *Collection[P, R]) Links() []R {
	links, _ := c.snap.diff()
	return links
}

// Unlinks returns records to be unlinked on save. It never forces a load.
func (c *Collection[P, R]) Unlinks() []R {
	_, unlinks := c.snap.diff()
	return unlinks
}

// PendingCreates is an alias for Links.
func (c *Collection[P, R]) PendingCreates() []R {
	return c.Links()
}

// PendingDeletes is an alias for Unlinks.
func (c *Collection[P, R]) PendingDeletes() []R {
	return c.Unlinks()
}

// Changed reports whether the working set differs from the baseline.
func (c *Collection[P, R]) Changed() bool {
	return c.snap.changed()
}

func (c *Collection[P, R]) assignInverse(r R) {
	if c.cfg.InverseOf == "" {
		return
	}
	if ia, ok := any(r).(InverseAssigner[P]); ok {
		ia.AssignInverse(c.cfg.InverseOf, c.parent)
	}
}
