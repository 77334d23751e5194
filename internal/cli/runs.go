package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/banshee-data/lidarfeatures/internal/errs"
	"github.com/banshee-data/lidarfeatures/internal/pointcloud"
	"github.com/banshee-data/lidarfeatures/internal/runstore"
)

// runDetail is one run with its recorded provenance.
type runDetail struct {
	runstore.Run `yaml:",inline"`
	Provenance   []pointcloud.ProvenanceRecord `json:"provenance" yaml:"provenance"`
}

func newRunsCmd(app *App) *cobra.Command {
	var (
		limit  int
		id     string
		format string
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show the run history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if app.Runs == nil {
				return errs.New(errs.InvalidInput, "runs needs --history-db or history_db in the config")
			}
			ctx := cmd.Context()
			var v any
			if id != "" {
				r, err := app.Runs.Get(ctx, id)
				if err != nil {
					return err
				}
				prov, err := app.Runs.Provenance(ctx, id)
				if err != nil {
					return err
				}
				v = runDetail{Run: *r, Provenance: prov}
			} else {
				runs, err := app.Runs.List(ctx, limit)
				if err != nil {
					return err
				}
				if runs == nil {
					runs = []*runstore.Run{}
				}
				v = runs
			}
			return encode(cmd.OutOrStdout(), format, v)
		},
	}
	f := cmd.Flags()
	f.IntVarP(&limit, "limit", "n", 20, "most recent runs to show; 0 shows all")
	f.StringVar(&id, "id", "", "show one run with its provenance")
	f.StringVarP(&format, "output", "o", "yaml", "output format (yaml, json)")
	cmd.AddCommand(newMigrateCmd(app))
	return cmd
}

func newMigrateCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate up|down|status",
		Short:     "Manage the run-history schema",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Runs == nil {
				return errs.New(errs.InvalidInput, "migrate needs --history-db or history_db in the config")
			}
			out := cmd.OutOrStdout()
			switch args[0] {
			case "up":
				if err := app.Runs.MigrateUp(); err != nil {
					return err
				}
				fmt.Fprintln(out, "all migrations applied")
			case "down":
				if err := app.Runs.MigrateDown(); err != nil {
					return err
				}
				fmt.Fprintln(out, "rolled back the latest migration")
			case "status":
				v, dirty, err := app.Runs.SchemaVersion()
				if err != nil {
					return errs.Wrap(err, errs.IOError, "reading schema version")
				}
				fmt.Fprintf(out, "schema version %d", v)
				if dirty {
					fmt.Fprint(out, " (dirty)")
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
}

func encode(w io.Writer, format string, v any) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return errs.Wrap(err, errs.IOError, "writing yaml")
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return errs.Wrap(err, errs.IOError, "writing json")
		}
		return nil
	}
	return errs.New(errs.InvalidInput, "unknown output format %q", format)
}
