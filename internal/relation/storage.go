package relation

import "context"

// Storage is the persistence collaborator behind a Collection.
//
// All calls are synchronous. Load returns members in their stored order.
// PersistLinks receives entities that may not be persisted yet; the
// implementation inserts them before linking.
type Storage[P any, R Entity] interface {
	// Load returns the persisted members related to parent.
	Load(ctx context.Context, parent P) ([]R, error)

	// FindByIDs returns the entities with the given identities. Missing
	// identities are omitted; order is not significant.
	FindByIDs(ctx context.Context, ids []ID) ([]R, error)

	// PersistLinks writes membership of rs under parent.
	PersistLinks(ctx context.Context, parent P, rs []R) error

	// PersistUnlinks removes membership of rs under parent.
	PersistUnlinks(ctx context.Context, parent P, rs []R) error

	// New constructs an unpersisted entity.
	New(attrs Attrs) (R, error)

	// Create persists a freshly constructed entity and links it to parent
	// in one step.
	Create(ctx context.Context, parent P, r R) error
}

// Destroyer is implemented by storage that can delete entities which left a
// relationship with a dependent policy.
type Destroyer[P any, R Entity] interface {
	DestroyEntities(ctx context.Context, parent P, rs []R, policy DependentPolicy) error
}
