package commands

import (
	"fmt"
	"runtime"

	"github.com/VForWaTer/metacatalog-api/internal/cli/ui"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

// rootOptions are the persistent flags shared by every command
type rootOptions struct {
	configFile string
	noColor    bool
}

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "metacatalog",
		Short: "Metacatalog API server and schema tooling",
		Long: color.CyanString(`Metacatalog - environmental data catalog

Serves catalog entries, authors, licenses and variables over HTTP
and installs or upgrades the catalog schema in PostgreSQL.

Configuration is read from metacatalog.yaml, a .env file and
METACATALOG_* environment variables. METACATALOG_URI names the database.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.noColor {
				color.NoColor = true
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "path to a metacatalog.yaml file")
	rootCmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(newServeCommand(opts))
	rootCmd.AddCommand(newInstallCommand(opts))
	rootCmd.AddCommand(newMigrateCommand(opts))
	rootCmd.AddCommand(newStatusCommand(opts))

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			goVer := GoVersion
			if goVer == "unknown" {
				goVer = runtime.Version()
			}

			kv := ui.NewKeyValueTable(cmd.OutOrStdout(), color.NoColor)
			kv.AddRow("Metacatalog version", Version)
			kv.AddRow("Git commit", GitCommit)
			kv.AddRow("Build date", BuildDate)
			kv.AddRow("Go version", goVer)
			kv.Render()
		},
	}
}

// Execute runs the root command
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		ui.Message{Level: ui.LevelError, Text: fmt.Sprintf("Error: %v", err), Hints: hintsFor(err)}.
			Write(rootCmd.ErrOrStderr())
		return err
	}
	return nil
}
