package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/spf13/cobra"

	"github.com/jacentio/lattice/jsonval"
	"github.com/jacentio/lattice/mapper"
	"github.com/jacentio/lattice/schema"
	"github.com/jacentio/lattice/store"
	"github.com/jacentio/lattice/transform"
)

// options are the flags shared by every command.
type options struct {
	model   string
	table   string
	index   string
	profile string
	verbose bool
}

func newRootCmd(level *slog.LevelVar) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "lattice",
		Short:        "Map JSON documents to an object graph",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.verbose {
				level.Set(slog.LevelDebug)
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.model, "model", "model.yaml", "YAML model file")
	flags.StringVar(&opts.table, "table", "", "DynamoDB object table; in-memory when empty")
	flags.StringVar(&opts.index, "index", store.DefaultConfig().IdentityIndex, "identity_key index of the object table; scan when empty")
	flags.StringVar(&opts.profile, "profile", "", "AWS shared config profile")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(newImportCmd(opts))
	root.AddCommand(newExportCmd(opts))
	root.AddCommand(newCheckCmd(opts))
	return root
}

// env is what a command works with once the flags are resolved.
type env struct {
	model  *schema.Model
	mapper *mapper.Mapper
	ctx    *store.Context
}

func (o *options) open(ctx context.Context) (*env, error) {
	model, err := schema.LoadFile(o.model)
	if err != nil {
		return nil, err
	}
	registry := transform.NewRegistry()
	transform.RegisterBuiltins(registry)

	var ctxOpts []store.Option
	if o.table != "" {
		backend, err := o.backend(ctx)
		if err != nil {
			return nil, err
		}
		ctxOpts = append(ctxOpts, store.WithBackend(backend))
	}
	return &env{
		model:  model,
		mapper: mapper.New(registry, mapper.WithLogger(slog.Default())),
		ctx:    store.NewContext(model, ctxOpts...),
	}, nil
}

func (o *options) backend(ctx context.Context) (*store.Store, error) {
	var loadOpts []func(*config.LoadOptions) error
	if o.profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(o.profile))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	sc := store.DefaultConfig()
	sc.ObjectTable = o.table
	sc.IdentityIndex = o.index
	return store.New(dynamodb.NewFromConfig(cfg), sc), nil
}

func newImportCmd(opts *options) *cobra.Command {
	var entity string
	var merge, dryRun bool
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import a JSON document; - reads stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			e, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			mode := mapper.Insert
			if merge {
				mode = mapper.Merge
			}
			objs, err := e.mapper.ImportData(cmd.Context(), e.ctx, entity, data, mode)
			if err != nil {
				return err
			}
			if opts.table != "" && !dryRun {
				if err := e.ctx.Save(cmd.Context()); err != nil {
					return fmt.Errorf("failed to save: %w", err)
				}
				slog.Info("saved", "table", opts.table, "objects", len(e.ctx.Objects(entity)))
			}
			return writeJSON(cmd.OutOrStdout(), e.mapper, objs)
		},
	}
	cmd.Flags().StringVarP(&entity, "entity", "e", "", "entity to import into")
	cmd.Flags().BoolVar(&merge, "merge", false, "update objects with the same identity instead of inserting")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "don't save to the table")
	_ = cmd.MarkFlagRequired("entity")
	return cmd
}

func newExportCmd(opts *options) *cobra.Command {
	var entity string
	cmd := &cobra.Command{
		Use:   "export IDENTITY...",
		Short: "Export the objects with the given identities from the table",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.table == "" {
				return errors.New("export needs --table")
			}
			e, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			ids := make(jsonval.Array, len(args))
			for i, a := range args {
				ids[i] = jsonval.String(a)
			}
			objs, err := e.mapper.Find(cmd.Context(), e.ctx, entity, ids.Value())
			if err != nil {
				return err
			}
			slog.Debug("found objects", "entity", entity, "requested", len(args), "found", len(objs))
			return writeJSON(cmd.OutOrStdout(), e.mapper, objs)
		},
	}
	cmd.Flags().StringVarP(&entity, "entity", "e", "", "entity to export")
	_ = cmd.MarkFlagRequired("entity")
	return cmd
}

func newCheckCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the model and print its entities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := schema.LoadFile(opts.model)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, e := range model.Entities() {
				fmt.Fprintf(w, "%s", e.Name)
				if p := e.ParentEntity(); p != nil {
					fmt.Fprintf(w, " : %s", p.Name)
				}
				if e.Abstract {
					fmt.Fprint(w, " (abstract)")
				}
				fmt.Fprintln(w)
				if ids := e.IdentityAttributes(); len(ids) > 0 {
					names := make([]string, len(ids))
					for i, a := range ids {
						names[i] = a.Name
					}
					fmt.Fprintf(w, "  identity: %v\n", names)
				}
				fmt.Fprintf(w, "  attributes: %d, relationships: %d\n", len(e.AllAttributes()), len(e.AllRelationships()))
			}
			return nil
		},
	}
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return data, nil
}

func writeJSON(w io.Writer, m *mapper.Mapper, objs []*store.Object) error {
	data, err := m.ExportData(objs)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}
