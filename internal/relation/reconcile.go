package relation

import (
	"context"
	"time"
)

// AfterSave writes the pending difference to storage. It must run after the
// parent itself was persisted.
//
// Execution order:
//  1. Nothing happens while Unloaded: the collection was never touched.
//  2. Unlinks: BeforeRemove each, PersistUnlinks, AfterRemove each.
//  3. Unlinked members marked for destruction are destroyed when storage
//     implements Destroyer and the dependent policy asks for it.
//  4. Links: BeforeAdd each, PersistLinks, AfterAdd each.
//  5. The load cycle is reset so the next access sees storage's state.
//
// Unlinks always precede links so storage-level uniqueness and capacity
// constraints see the final membership. A failure leaves the collection
// Loaded with its pending changes intact.
func (c *Collection[P, R]) AfterSave(ctx context.Context) error {
	if c.snap.State() == Unloaded {
		return nil
	}
	start := time.Now()
	links, unlinks := c.snap.diff()

	if len(unlinks) > 0 {
		c.events.notifyAll(BeforeRemove, unlinks)
		if err := c.storage.PersistUnlinks(ctx, c.parent, unlinks); err != nil {
			return c.reconcileFailed(OpUnlink, nil, err, start)
		}
		c.events.notifyAll(AfterRemove, unlinks)

		if err := c.destroyMarked(ctx, unlinks); err != nil {
			return c.reconcileFailed(OpDestroy, identities(unlinks), err, start)
		}
	}

	if len(links) > 0 {
		c.events.notifyAll(BeforeAdd, links)
		if err := c.storage.PersistLinks(ctx, c.parent, links); err != nil {
			return c.reconcileFailed(OpLink, identities(unlinks), err, start)
		}
		c.events.notifyAll(AfterAdd, links)
	}

	elapsed := time.Since(start)
	c.logger.Info("relationship reconciled",
		"linked", len(links),
		"unlinked", len(unlinks),
		"elapsed", elapsed,
	)
	c.observer.Reconciled(c.cfg.Name, len(links), len(unlinks), elapsed)
	c.snap.reset()
	return nil
}

func (c *Collection[P, R]) destroyMarked(ctx context.Context, unlinks []R) error {
	if c.cfg.Dependent == DependentNone {
		return nil
	}
	d, ok := c.storage.(Destroyer[P, R])
	if !ok {
		return nil
	}
	var marked []R
	for _, r := range unlinks {
		if m, ok := any(r).(Destructible); ok && m.MarkedForDestruction() {
			marked = append(marked, r)
		}
	}
	if len(marked) == 0 {
		return nil
	}
	if err := d.DestroyEntities(ctx, c.parent, marked, c.cfg.Dependent); err != nil {
		return err
	}
	c.logger.Debug("dependent records destroyed", "count", len(marked), "policy", c.cfg.Dependent)
	return nil
}

func (c *Collection[P, R]) reconcileFailed(op Op, applied []ID, err error, start time.Time) error {
	elapsed := time.Since(start)
	c.logger.Error("relationship reconciliation failed",
		"op", op,
		"applied_unlinks", len(applied),
		"error", err,
	)
	c.observer.ReconcileFailed(c.cfg.Name, op, elapsed)
	return &PersistenceError{Relationship: c.cfg.Name, Op: op, Applied: applied, Err: err}
}
