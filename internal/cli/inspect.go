package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/deferring/internal/relation"
	"github.com/roach88/deferring/internal/schema"
	"github.com/roach88/deferring/internal/store"
)

// EnvDatabase names the environment variable holding the default --db path.
const EnvDatabase = "DEFERRING_DB"

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	Database     string
	Relationship string
	Parent       string // record key, or numeric id
	ChildKind    string
	SchemaDir    string
	Count        bool   // print the link count only
	Kind         string // list every record of this kind instead
}

// RecordView is the JSON rendering of a stored record.
type RecordView struct {
	ID    int64          `json:"id"`
	Key   string         `json:"key"`
	Kind  string         `json:"kind"`
	Name  string         `json:"name"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// CountResult is the link count of one parent's relationship.
type CountResult struct {
	Relationship string     `json:"relationship"`
	Parent       RecordView `json:"parent"`
	Count        int        `json:"count"`
}

// InspectResult lists the persisted members of one parent's relationship.
type InspectResult struct {
	Relationship string       `json:"relationship"`
	Parent       RecordView   `json:"parent"`
	Members      []RecordView `json:"members"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "List the persisted members of a relationship",
		Long: `Open a store and list the children linked to one parent under a
relationship, in link order.

The parent is given by record key or numeric id. With --schema the
child kind is taken from the relationship's declaration; otherwise
--child-kind names it. --count prints the number of links, counting
children of every kind. --kind lists every stored record of a kind and
needs neither --relationship nor --parent.

Examples:
  deferring inspect --db ./app.db --relationship teams --parent pat
  DEFERRING_DB=./app.db deferring inspect --relationship teams --parent 1 --schema ./schema
  deferring inspect --db ./app.db --relationship teams --parent pat --count
  deferring inspect --db ./app.db --kind team`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", os.Getenv(EnvDatabase), "path to SQLite database (default $"+EnvDatabase+")")
	cmd.Flags().StringVar(&opts.Relationship, "relationship", "", "relationship name")
	cmd.Flags().StringVar(&opts.Parent, "parent", "", "parent record key or id")
	cmd.Flags().StringVar(&opts.ChildKind, "child-kind", "", "child record kind")
	cmd.Flags().StringVar(&opts.SchemaDir, "schema", "", "schema directory declaring the relationship")
	cmd.Flags().BoolVar(&opts.Count, "count", false, "print the number of linked children")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "list every record of this kind")
	cmd.MarkFlagsMutuallyExclusive("kind", "relationship")

	return cmd
}

func runInspect(ctx context.Context, opts *InspectOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)

	if opts.Database == "" {
		return NewExitError(ExitCommandError, "no database: pass --db or set "+EnvDatabase)
	}
	if _, err := os.Stat(opts.Database); err != nil {
		return NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", opts.Database))
	}
	if opts.Kind == "" && (opts.Relationship == "" || opts.Parent == "") {
		return NewExitError(ExitCommandError, "--relationship and --parent are required unless --kind is given")
	}

	childKind := opts.ChildKind
	if opts.SchemaDir != "" && opts.Kind == "" {
		kind, err := declaredChildKind(opts.SchemaDir, opts.Relationship)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load schema", err)
		}
		childKind = kind
	}

	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	st, err := store.Open(opts.Database, store.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if opts.Kind != "" {
		return inspectKind(ctx, formatter, st, opts.Kind)
	}

	parent, err := findParent(ctx, st, opts.Parent)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find parent", err)
	}
	formatter.VerboseLog("Parent %s (#%d)", parent.Label(), parent.ID)

	rel := st.Relationship(opts.Relationship, childKind)
	if opts.Count {
		n, err := rel.Count(ctx, parent)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to count links", err)
		}
		if opts.Format == "json" {
			return formatter.Response(CLIResponse{Status: "ok", Data: CountResult{
				Relationship: opts.Relationship,
				Parent:       newRecordView(parent),
				Count:        n,
			}})
		}
		fmt.Fprintf(formatter.Writer, "%s of %s: %d linked\n", opts.Relationship, parent.Label(), n)
		return nil
	}

	members, err := rel.Load(ctx, parent)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load relationship", err)
	}

	result := InspectResult{
		Relationship: opts.Relationship,
		Parent:       newRecordView(parent),
		Members:      make([]RecordView, 0, len(members)),
	}
	for _, m := range members {
		if childKind != "" && m.Kind != childKind {
			continue
		}
		result.Members = append(result.Members, newRecordView(m))
	}

	if opts.Format == "json" {
		return formatter.Response(CLIResponse{Status: "ok", Data: result})
	}
	return outputInspectText(formatter, parent, result)
}

// inspectKind lists every stored record of kind in id order.
func inspectKind(ctx context.Context, formatter *OutputFormatter, st *store.Store, kind string) error {
	recs, err := st.ListRecords(ctx, kind)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list records", err)
	}
	views := make([]RecordView, len(recs))
	for i, r := range recs {
		views[i] = newRecordView(r)
	}
	if formatter.Format == "json" {
		return formatter.Response(CLIResponse{Status: "ok", Data: views})
	}
	fmt.Fprintf(formatter.Writer, "%s records (%d)\n", kind, len(views))
	for _, v := range views {
		fmt.Fprintf(formatter.Writer, "  #%d %s [%s]\n", v.ID, v.Name, v.Key)
	}
	return nil
}

// declaredChildKind returns the child kind declared for name in dir.
func declaredChildKind(dir, name string) (string, error) {
	loaded, errs := schema.LoadDir(dir)
	if loaded == nil {
		return "", errs[0]
	}
	rel, ok := loaded.Lookup(name)
	if !ok {
		if len(errs) > 0 {
			return "", errs[0]
		}
		return "", fmt.Errorf("relationship %q is not declared in %s", name, dir)
	}
	return rel.Child, nil
}

// findParent resolves ref as a numeric id, then as a record key.
func findParent(ctx context.Context, st *store.Store, ref string) (*store.Record, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		recs, err := st.FindRecords(ctx, "", []relation.ID{relation.ID(id)})
		if err != nil {
			return nil, err
		}
		if len(recs) == 1 {
			return recs[0], nil
		}
	}
	rec, ok, err := st.FindRecordByKey(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("no record with id or key %q", ref)
	}
	return rec, nil
}

func newRecordView(r *store.Record) RecordView {
	return RecordView{
		ID:    int64(r.ID),
		Key:   r.Key,
		Kind:  r.Kind,
		Name:  r.Name,
		Attrs: r.Attrs,
	}
}

func outputInspectText(formatter *OutputFormatter, parent *store.Record, result InspectResult) error {
	w := formatter.Writer
	fmt.Fprintf(w, "%s of %s (%d)\n", result.Relationship, parent.Label(), len(result.Members))
	for _, m := range result.Members {
		fmt.Fprintf(w, "  #%d %s %s [%s]\n", m.ID, m.Kind, m.Name, m.Key)
	}
	return nil
}
