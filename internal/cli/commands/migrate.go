package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/VForWaTer/metacatalog-api/internal/cli/ui"
	"github.com/VForWaTer/metacatalog-api/internal/orm/migrate"
	"github.com/spf13/cobra"
)

type migrateOptions struct {
	to          int
	stepTimeout time.Duration
}

func newMigrateCommand(root *rootOptions) *cobra.Command {
	opts := &migrateOptions{}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Upgrade the catalog schema",
		Long: `Apply pending schema migrations, each in its own transaction.
Migrations only move forward. A failed migration leaves the schema at
the last version that was applied successfully.`,
		Example: `  metacatalog migrate
  metacatalog migrate --to 2
  metacatalog migrate --step-timeout 10m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd, root, opts)
		},
	}

	cmd.Flags().IntVar(&opts.to, "to", 0, "target version (default latest)")
	cmd.Flags().DurationVar(&opts.stepTimeout, "step-timeout", 5*time.Minute, "bound for a single migration, 0 disables it")

	return cmd
}

func runMigrate(cmd *cobra.Command, root *rootOptions, opts *migrateOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	a, err := bootstrap(ctx, root)
	if err != nil {
		return err
	}
	defer a.close()

	st, err := readStatus(ctx, a.runner)
	if err != nil {
		return err
	}
	if !st.Installed {
		return errNotInstalled
	}

	target := opts.to
	if target == 0 {
		target = st.Latest
	}
	if target == st.Current {
		ui.Infof(out, "schema is up to date at version %d", st.Current)
		return nil
	}

	a.runner.SetStepTimeout(opts.stepTimeout)
	if err := a.runner.MigrateTo(ctx, target); err != nil {
		return err
	}

	ui.Successf(out, "migrated schema %q from version %d to %d", a.cfg.Schema().Name(), st.Current, target)
	return nil
}

func newStatusCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the installed schema version and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := bootstrap(ctx, root)
			if err != nil {
				return err
			}
			defer a.close()

			st, err := readStatus(ctx, a.runner)
			if err != nil {
				return err
			}
			renderStatus(cmd.OutOrStdout(), redact(a.cfg.Database.URL), a.cfg.Schema().Name(), st, a.runner.Migrations(), root.noColor)
			return nil
		},
	}
}

func renderStatus(w io.Writer, database, schema string, st schemaStatus, migrations []*migrate.Migration, noColor bool) {
	kv := ui.NewKeyValueTable(w, noColor)
	kv.AddRow("Database", database)
	kv.AddRow("Schema", schema)
	if st.Installed {
		kv.AddRow("Installed version", fmt.Sprint(st.Current))
	} else {
		kv.AddRow("Installed version", "not installed")
	}
	kv.AddRow("Latest version", fmt.Sprint(st.Latest))
	kv.Render()
	fmt.Fprintln(w)

	table := ui.NewTable(w, noColor, "VERSION", "NAME", "STATUS")
	table.AddRow(fmt.Sprint(migrate.InstallVersion), "install", versionState(st, migrate.InstallVersion))
	for _, m := range migrations {
		table.AddRow(fmt.Sprint(m.Version), m.Name, versionState(st, m.Version))
	}
	table.Render()
}

func versionState(st schemaStatus, version int) string {
	if st.Installed && version <= st.Current {
		return "applied"
	}
	return "pending"
}
