package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/deferring/internal/relation"
)

// ErrCapacityExceeded is returned when a write would exceed a relationship's
// capacity.
var ErrCapacityExceeded = errors.New("relationship capacity exceeded")

// ErrParentNotPersisted is returned when a write names a parent without an id.
var ErrParentNotPersisted = errors.New("parent record is not persisted")

// Relationship serves one declared relationship from the links table.
//
// Thread-safety: Relationship holds no mutable state; concurrency is that of
// the underlying Store.
type Relationship struct {
	store     *Store
	name      string
	childKind string
	capacity  int
	onDestroy func(ctx context.Context, r *Record) error
	logger    *slog.Logger
}

var (
	_ relation.Storage[*Record, *Record]   = (*Relationship)(nil)
	_ relation.Destroyer[*Record, *Record] = (*Relationship)(nil)
)

// RelationshipOption configures a Relationship.
type RelationshipOption func(*Relationship)

// WithCapacity bounds the number of children per parent. Zero means unbounded.
func WithCapacity(n int) RelationshipOption {
	return func(r *Relationship) {
		r.capacity = n
	}
}

// WithDestroyHook runs fn for every record deleted under DependentDestroy,
// inside the deleting transaction. DependentDeleteAll skips it. The store
// holds its only connection while fn runs, so fn must not call the Store.
func WithDestroyHook(fn func(ctx context.Context, r *Record) error) RelationshipOption {
	return func(r *Relationship) {
		r.onDestroy = fn
	}
}

// Relationship binds the relationship name, whose children are of childKind.
func (s *Store) Relationship(name, childKind string, opts ...RelationshipOption) *Relationship {
	r := &Relationship{
		store:     s,
		name:      name,
		childKind: childKind,
		logger:    s.logger.With("relationship", name),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name returns the relationship name.
func (r *Relationship) Name() string {
	return r.name
}

// Load implements relation.Storage.
func (r *Relationship) Load(ctx context.Context, parent *Record) ([]*Record, error) {
	if _, ok := parent.Identity(); !ok {
		// A parent that was never saved has no links.
		return nil, nil
	}
	recs, err := queryRecords(ctx, r.store.db, `
		SELECT c.id, c.key, c.kind, c.name, c.attrs
		FROM links l
		JOIN records c ON c.id = l.child_id
		WHERE l.relationship = ? AND l.parent_id = ?
		ORDER BY l.position ASC, l.child_id ASC
	`, r.name, int64(parent.ID))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", r.name, err)
	}
	return recs, nil
}

// FindByIDs implements relation.Storage. Records of other kinds are omitted.
func (r *Relationship) FindByIDs(ctx context.Context, ids []relation.ID) ([]*Record, error) {
	return r.store.FindRecords(ctx, r.childKind, ids)
}

// PersistLinks implements relation.Storage. Children that were never saved
// are inserted; the others have their attributes saved. All writes happen in
// one transaction.
func (r *Relationship) PersistLinks(ctx context.Context, parent *Record, children []*Record) error {
	if _, ok := parent.Identity(); !ok {
		return fmt.Errorf("link %s: %w", r.name, ErrParentNotPersisted)
	}
	var inserted []*Record
	err := r.store.inTx(ctx, func(tx *sql.Tx) error {
		if err := r.checkCapacity(ctx, tx, parent, len(children)); err != nil {
			return err
		}
		for _, child := range children {
			if _, ok := child.Identity(); ok {
				if err := r.store.saveRecord(ctx, tx, child); err != nil {
					return err
				}
			} else {
				if err := r.store.insertRecord(ctx, tx, child); err != nil {
					return err
				}
				inserted = append(inserted, child)
			}
			if err := r.insertLink(ctx, tx, parent, child); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		// The transaction rolled back; so did the ids assigned to inserts.
		for _, child := range inserted {
			child.ID = relation.NoID
		}
		return fmt.Errorf("link %s: %w", r.name, err)
	}
	r.logger.Debug("links written", "parent", parent.ID, "count", len(children))
	return nil
}

// PersistUnlinks implements relation.Storage.
func (r *Relationship) PersistUnlinks(ctx context.Context, parent *Record, children []*Record) error {
	err := r.store.inTx(ctx, func(tx *sql.Tx) error {
		for _, child := range children {
			if _, err := tx.ExecContext(ctx, `
				DELETE FROM links
				WHERE relationship = ? AND parent_id = ? AND child_id = ?
			`, r.name, int64(parent.ID), int64(child.ID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("unlink %s: %w", r.name, err)
	}
	r.logger.Debug("links removed", "parent", parent.ID, "count", len(children))
	return nil
}

// New implements relation.Storage.
func (r *Relationship) New(attrs relation.Attrs) (*Record, error) {
	return NewRecord(r.childKind, attrs)
}

// Create implements relation.Storage. The child is inserted and linked in
// one transaction.
func (r *Relationship) Create(ctx context.Context, parent *Record, child *Record) error {
	if _, ok := parent.Identity(); !ok {
		return fmt.Errorf("create %s: %w", r.name, ErrParentNotPersisted)
	}
	err := r.store.inTx(ctx, func(tx *sql.Tx) error {
		if err := r.checkCapacity(ctx, tx, parent, 1); err != nil {
			return err
		}
		if err := r.store.insertRecord(ctx, tx, child); err != nil {
			return err
		}
		return r.insertLink(ctx, tx, parent, child)
	})
	if err != nil {
		child.ID = relation.NoID
		return fmt.Errorf("create %s: %w", r.name, err)
	}
	return nil
}

// DestroyEntities implements relation.Destroyer. Deleting a record cascades
// to every link that references it.
func (r *Relationship) DestroyEntities(ctx context.Context, _ *Record, children []*Record, policy relation.DependentPolicy) error {
	ids := make([]relation.ID, 0, len(children))
	for _, child := range children {
		if id, ok := child.Identity(); ok {
			ids = append(ids, id)
		}
	}
	err := r.store.inTx(ctx, func(tx *sql.Tx) error {
		if policy == relation.DependentDestroy && r.onDestroy != nil {
			for _, child := range children {
				if err := r.onDestroy(ctx, child); err != nil {
					return err
				}
			}
		}
		_, err := deleteRecords(ctx, tx, ids)
		return err
	})
	if err != nil {
		return fmt.Errorf("destroy %s: %w", r.name, err)
	}
	r.logger.Debug("records destroyed", "count", len(ids), "policy", policy)
	return nil
}

// Count returns the number of children linked under parent.
func (r *Relationship) Count(ctx context.Context, parent *Record) (int, error) {
	var n int
	err := r.store.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM links WHERE relationship = ? AND parent_id = ?
	`, r.name, int64(parent.ID)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", r.name, err)
	}
	return n, nil
}

func (r *Relationship) checkCapacity(ctx context.Context, q execer, parent *Record, adding int) error {
	if r.capacity <= 0 {
		return nil
	}
	var n int
	if err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM links WHERE relationship = ? AND parent_id = ?
	`, r.name, int64(parent.ID)).Scan(&n); err != nil {
		return err
	}
	if n+adding > r.capacity {
		return fmt.Errorf("%w: %d + %d > %d", ErrCapacityExceeded, n, adding, r.capacity)
	}
	return nil
}

func (r *Relationship) insertLink(ctx context.Context, q execer, parent, child *Record) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO links (relationship, parent_id, child_id, position)
		VALUES (?, ?, ?, (
			SELECT COALESCE(MAX(position), 0) + 1
			FROM links WHERE relationship = ? AND parent_id = ?
		))
	`, r.name, int64(parent.ID), int64(child.ID), r.name, int64(parent.ID))
	if err != nil {
		return fmt.Errorf("link %d -> %d: %w", parent.ID, child.ID, err)
	}
	return nil
}
