package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/deferring/internal/relation"
	"github.com/roach88/deferring/internal/store"
)

// seedTeams creates a database where person pat is linked to beta then
// alpha under teams, and a club record is linked under teams as well.
func seedTeams(t *testing.T) (string, *store.Record) {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "app.db")
	st, err := store.Open(path, store.WithKeyGenerator(store.NewSequenceGenerator("rec")))
	require.NoError(t, err)
	defer st.Close()

	insert := func(kind, name string, attrs relation.Attrs) *store.Record {
		r := &store.Record{Kind: kind, Name: name, Attrs: attrs}
		require.NoError(t, st.InsertRecord(ctx, r))
		return r
	}
	pat := insert("person", "pat", nil)
	alpha := insert("team", "alpha", relation.Attrs{"color": "red"})
	beta := insert("team", "beta", nil)
	chess := insert("club", "chess", nil)

	rel := st.Relationship("teams", "team")
	require.NoError(t, rel.PersistLinks(ctx, pat, []*store.Record{beta, alpha, chess}))
	return path, pat
}

func executeInspect(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewInspectCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestInspectByKey(t *testing.T) {
	db, _ := seedTeams(t)

	out, err := executeInspect(t, "text", "--db", db, "--relationship", "teams", "--parent", "rec-1")
	require.NoError(t, err)
	assert.Contains(t, out, "teams of person pat (3)")
	assert.Less(t, bytes.Index([]byte(out), []byte("team beta")), bytes.Index([]byte(out), []byte("team alpha")),
		"members are listed in link order")
}

func TestInspectByIDJSON(t *testing.T) {
	db, pat := seedTeams(t)

	out, err := executeInspect(t, "json",
		"--db", db, "--relationship", "teams", "--parent", pat.ID.String(), "--child-kind", "team")
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   InspectResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "pat", resp.Data.Parent.Name)
	require.Len(t, resp.Data.Members, 2, "the club is filtered by child kind")
	assert.Equal(t, "beta", resp.Data.Members[0].Name)
	assert.Equal(t, "alpha", resp.Data.Members[1].Name)
	assert.Equal(t, "red", resp.Data.Members[1].Attrs["color"])
}

func TestInspectChildKindFromSchema(t *testing.T) {
	db, _ := seedTeams(t)

	out, err := executeInspect(t, "text",
		"--db", db, "--relationship", "teams", "--parent", "rec-1", "--schema", schemaDir)
	require.NoError(t, err)
	assert.Contains(t, out, "teams of person pat (2)")
	assert.NotContains(t, out, "chess")
}

func TestInspectUndeclaredRelationship(t *testing.T) {
	db, _ := seedTeams(t)

	_, err := executeInspect(t, "text",
		"--db", db, "--relationship", "clubs", "--parent", "rec-1", "--schema", schemaDir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "not declared")
}

func TestInspectDatabaseFromEnv(t *testing.T) {
	db, _ := seedTeams(t)
	t.Setenv(EnvDatabase, db)

	out, err := executeInspect(t, "text", "--relationship", "teams", "--parent", "rec-1")
	require.NoError(t, err)
	assert.Contains(t, out, "teams of person pat")
}

func TestInspectErrors(t *testing.T) {
	db, _ := seedTeams(t)
	t.Setenv(EnvDatabase, "")

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"no database", []string{"--relationship", "teams", "--parent", "rec-1"}, "no database"},
		{"missing database", []string{"--db", filepath.Join(t.TempDir(), "nope.db"), "--relationship", "teams", "--parent", "rec-1"}, "database not found"},
		{"unknown parent", []string{"--db", db, "--relationship", "teams", "--parent", "nobody"}, "no record with id or key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeInspect(t, "text", tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestInspectRequiresRelationshipAndParent(t *testing.T) {
	db, _ := seedTeams(t)

	_, err := executeInspect(t, "text", "--db", db, "--relationship", "teams")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "required unless --kind")
}

func TestInspectCount(t *testing.T) {
	db, _ := seedTeams(t)

	out, err := executeInspect(t, "text", "--db", db, "--relationship", "teams", "--parent", "rec-1", "--count")
	require.NoError(t, err)
	assert.Equal(t, "teams of person pat: 3 linked\n", out)

	out, err = executeInspect(t, "json", "--db", db, "--relationship", "teams", "--parent", "rec-1", "--count")
	require.NoError(t, err)
	var resp struct {
		Status string      `json:"status"`
		Data   CountResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 3, resp.Data.Count)
	assert.Equal(t, "pat", resp.Data.Parent.Name)
}

func TestInspectKind(t *testing.T) {
	db, _ := seedTeams(t)

	out, err := executeInspect(t, "text", "--db", db, "--kind", "team")
	require.NoError(t, err)
	assert.Contains(t, out, "team records (2)")
	assert.Contains(t, out, "#2 alpha [rec-2]")
	assert.NotContains(t, out, "chess")

	out, err = executeInspect(t, "json", "--db", db, "--kind", "club")
	require.NoError(t, err)
	var resp struct {
		Data []RecordView `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "chess", resp.Data[0].Name)
}

func TestInspectKindExcludesRelationship(t *testing.T) {
	db, _ := seedTeams(t)

	_, err := executeInspect(t, "text", "--db", db, "--kind", "team", "--relationship", "teams")
	require.Error(t, err)
}
