package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/deferring/internal/relation"
)

// teamsFixture returns a person with teams alpha and beta linked, plus an
// unlinked gamma.
func teamsFixture(t *testing.T, s *Store, opts ...RelationshipOption) (*Relationship, *Record, []*Record) {
	t.Helper()
	ctx := context.Background()
	rel := s.Relationship("teams", "team", opts...)
	person := insertTestRecord(t, s, "person", "pat")
	alpha := insertTestRecord(t, s, "team", "alpha")
	beta := insertTestRecord(t, s, "team", "beta")
	gamma := insertTestRecord(t, s, "team", "gamma")
	require.NoError(t, rel.PersistLinks(ctx, person, []*Record{alpha, beta}))
	return rel, person, []*Record{alpha, beta, gamma}
}

func TestRelationship_LoadKeepsLinkOrder(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	rel, person, teams := teamsFixture(t, s)
	require.NoError(t, rel.PersistLinks(ctx, person, []*Record{teams[2]}))
	require.NoError(t, rel.PersistUnlinks(ctx, person, []*Record{teams[0]}))
	require.NoError(t, rel.PersistLinks(ctx, person, []*Record{teams[0]}))

	got, err := rel.Load(ctx, person)
	require.NoError(t, err)
	assert.Equal(t, []string{"beta", "gamma", "alpha"}, []string{got[0].Name, got[1].Name, got[2].Name})
}

func TestRelationship_LoadUnsavedParent(t *testing.T) {
	s := createTestStore(t)
	rel := s.Relationship("teams", "team")

	got, err := rel.Load(context.Background(), &Record{Kind: "person", Name: "new"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRelationship_RelationshipsAreIndependent(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	teams, person, recs := teamsFixture(t, s)
	clubs := s.Relationship("clubs", "team")

	require.NoError(t, clubs.PersistLinks(ctx, person, []*Record{recs[0]}))

	n, err := teams.Count(ctx, person)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = clubs.Count(ctx, person)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRelationship_PersistLinksRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	rel, person, teams := teamsFixture(t, s)

	err := rel.PersistLinks(ctx, person, []*Record{teams[2], teams[0]})
	require.Error(t, err)

	// The transaction rolled back, gamma was not linked either.
	n, err := rel.Count(ctx, person)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRelationship_PersistLinksInsertsNewRecords(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	rel, person, _ := teamsFixture(t, s)

	fresh, err := rel.New(relation.Attrs{"name": "delta", "color": "blue"})
	require.NoError(t, err)
	require.NoError(t, rel.PersistLinks(ctx, person, []*Record{fresh}))

	_, ok := fresh.Identity()
	require.True(t, ok)
	found, err := rel.FindByIDs(ctx, []relation.ID{fresh.ID})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "blue", found[0].Attrs["color"])
}

func TestRelationship_PersistLinksRollsBackIdentities(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	rel, person, teams := teamsFixture(t, s)

	fresh := &Record{Kind: "team", Name: "delta"}
	err := rel.PersistLinks(ctx, person, []*Record{fresh, teams[0]})
	require.Error(t, err)

	_, ok := fresh.Identity()
	assert.False(t, ok)
	all, err := s.ListRecords(ctx, "team")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRelationship_ParentMustBePersisted(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	rel := s.Relationship("teams", "team")
	unsaved := &Record{Kind: "person", Name: "new"}

	err := rel.PersistLinks(ctx, unsaved, []*Record{{Kind: "team", Name: "x"}})
	assert.ErrorIs(t, err, ErrParentNotPersisted)

	err = rel.Create(ctx, unsaved, &Record{Kind: "team", Name: "x"})
	assert.ErrorIs(t, err, ErrParentNotPersisted)
}

func TestRelationship_Capacity(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	rel, person, teams := teamsFixture(t, s, WithCapacity(2))

	err := rel.PersistLinks(ctx, person, []*Record{teams[2]})
	assert.ErrorIs(t, err, ErrCapacityExceeded)

	err = rel.Create(ctx, person, &Record{Kind: "team", Name: "delta"})
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestRelationship_Create(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	rel, person, _ := teamsFixture(t, s)

	child, err := rel.New(relation.Attrs{"name": "delta"})
	require.NoError(t, err)
	require.NoError(t, rel.Create(ctx, person, child))

	got, err := rel.Load(ctx, person)
	require.NoError(t, err)
	assert.Equal(t, child.ID, got[2].ID)
}

func TestRelationship_FindByIDsFiltersKind(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	rel, person, teams := teamsFixture(t, s)

	found, err := rel.FindByIDs(ctx, []relation.ID{person.ID, teams[1].ID})
	require.NoError(t, err)
	assert.Equal(t, []relation.ID{teams[1].ID}, recordIDs(found))
}

func TestRelationship_DestroyEntities(t *testing.T) {
	tests := []struct {
		name      string
		policy    relation.DependentPolicy
		wantHooks []string
	}{
		{"destroy runs hook", relation.DependentDestroy, []string{"alpha"}},
		{"delete_all skips hook", relation.DependentDeleteAll, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := createTestStore(t)
			var hooked []string
			rel, person, teams := teamsFixture(t, s, WithDestroyHook(func(_ context.Context, r *Record) error {
				hooked = append(hooked, r.Name)
				return nil
			}))

			require.NoError(t, rel.DestroyEntities(ctx, person, []*Record{teams[0]}, tt.policy))

			assert.Equal(t, tt.wantHooks, hooked)
			found, err := s.FindRecords(ctx, "", []relation.ID{teams[0].ID})
			require.NoError(t, err)
			assert.Empty(t, found)
			n, err := rel.Count(ctx, person)
			require.NoError(t, err)
			assert.Equal(t, 1, n, "links cascade with the record")
		})
	}
}

func TestRelationship_DestroyHookFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	boom := errors.New("refused")
	rel, person, teams := teamsFixture(t, s, WithDestroyHook(func(context.Context, *Record) error { return boom }))

	err := rel.DestroyEntities(ctx, person, []*Record{teams[0]}, relation.DependentDestroy)
	assert.ErrorIs(t, err, boom)

	found, err := s.FindRecords(ctx, "", []relation.ID{teams[0].ID})
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

// Collection integration: the store is a real relation.Storage.

func newTeams(rel *Relationship, person *Record, cfg relation.Config[*Record, *Record]) *relation.Collection[*Record, *Record] {
	cfg.Name = rel.Name()
	return relation.New[*Record, *Record](person, rel, cfg)
}

func TestCollection_ReplaceAtCapacity(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	rel, person, teams := teamsFixture(t, s, WithCapacity(2))
	c := newTeams(rel, person, relation.Config[*Record, *Record]{})

	require.NoError(t, c.Set(ctx, []*Record{teams[0], teams[2]}))
	require.NoError(t, c.AfterSave(ctx))

	got, err := rel.Load(ctx, person)
	require.NoError(t, err)
	assert.Equal(t, []relation.ID{teams[0].ID, teams[2].ID}, recordIDs(got))
}

func TestCollection_NestedAttributesAgainstSQLite(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	rel, person, teams := teamsFixture(t, s)
	c := newTeams(rel, person, relation.Config[*Record, *Record]{
		InverseOf: "people",
		Dependent: relation.DependentDestroy,
		Nested:    relation.NestedConfig{AllowDestroy: true},
	})

	err := c.AssignNested(ctx, []relation.Attrs{
		{"id": teams[0].ID, "name": "alpha prime"},
		{"id": teams[1].ID, "_destroy": "1"},
		{"id": teams[2].ID},
		{"name": "delta"},
	})
	require.NoError(t, err)
	require.NoError(t, relation.Save(ctx, nil, nil, c))

	got, err := rel.Load(ctx, person)
	require.NoError(t, err)
	names := make([]string, len(got))
	for i, r := range got {
		names[i] = r.Name
	}
	assert.Equal(t, []string{"alpha", "gamma", "delta"}, names,
		"attribute updates of unchanged members are saved by the parent, not the relationship")

	beta, err := s.FindRecords(ctx, "", []relation.ID{teams[1].ID})
	require.NoError(t, err)
	assert.Empty(t, beta)
}

func TestCollection_InvalidBuiltRecordBlocksSave(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	rel, person, _ := teamsFixture(t, s)
	c := newTeams(rel, person, relation.Config[*Record, *Record]{Autosave: true})

	_, err := c.Build(ctx, relation.Attrs{"color": "red"})
	require.NoError(t, err)

	var errs relation.Errors
	err = relation.Save(ctx, &errs, nil, c)
	require.True(t, relation.IsValidationError(err))
	assert.Equal(t, []string{"can't be blank"}, errs.On("teams.name"))
}
