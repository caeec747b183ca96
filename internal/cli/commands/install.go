package commands

import (
	"fmt"

	"github.com/AlecAivazis/survey/v2"
	"github.com/VForWaTer/metacatalog-api/internal/cli/ui"
	"github.com/spf13/cobra"
)

type installOptions struct {
	noDefaults bool
	yes        bool
}

func newInstallCommand(root *rootOptions) *cobra.Command {
	opts := &installOptions{}

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install the catalog schema",
		Long: `Create the catalog tables in the configured schema and upgrade them to
the latest version. Default reference data (licenses, units, variables,
datasource types and person roles) is loaded unless --no-defaults is set.

Installing into a database that already holds the schema does nothing.`,
		Example: `  metacatalog install
  metacatalog install --yes --no-defaults`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstall(cmd, root, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.noDefaults, "no-defaults", false, "skip the default reference data")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "do not ask for confirmation")

	return cmd
}

func runInstall(cmd *cobra.Command, root *rootOptions, opts *installOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	a, err := bootstrap(ctx, root)
	if err != nil {
		return err
	}
	defer a.close()

	schema := a.cfg.Schema()
	st, err := readStatus(ctx, a.runner)
	if err != nil {
		return err
	}
	if st.Installed {
		ui.Infof(out, "schema %q is already installed at version %d", schema.Name(), st.Current)
		return nil
	}

	if !opts.yes {
		confirmed := false
		prompt := &survey.Confirm{
			Message: fmt.Sprintf("Install the catalog into schema %q of %s?", schema.Name(), redact(a.cfg.Database.URL)),
			Default: false,
		}
		if err := survey.AskOne(prompt, &confirmed); err != nil {
			return err
		}
		if !confirmed {
			ui.Infof(out, "installation cancelled")
			return nil
		}
	}

	if err := a.runner.Install(ctx, !opts.noDefaults); err != nil {
		return err
	}
	if err := a.runner.Migrate(ctx); err != nil {
		return err
	}

	ui.Successf(out, "installed schema %q at version %d", schema.Name(), a.runner.LatestVersion())
	return nil
}
