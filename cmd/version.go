package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	goVersion "go.hein.dev/go-version"
)

// Build metadata, injected with -ldflags "-X evalgo.org/dataflowmigrator/cmd.buildVersion=..."
var (
	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the migrator build",
	Long: `Print the build of this dataflowmigrator binary.

Run records and audit entries do not carry the binary version, so include
this output when reporting a migration that went wrong.

Examples:
  # Full build information as JSON
  dataflowmigrator version

  # Same as YAML
  dataflowmigrator version -o yaml

  # Only the version number, e.g. for scripts
  dataflowmigrator version --short

Release builds set the values with:

  go build -ldflags "-X evalgo.org/dataflowmigrator/cmd.buildVersion=v1.2.0 \
    -X evalgo.org/dataflowmigrator/cmd.buildCommit=$(git rev-parse HEAD) \
    -X evalgo.org/dataflowmigrator/cmd.buildDate=$(date -u +%Y-%m-%dT%H:%M:%SZ)"`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		short, _ := cmd.Flags().GetBool("short")
		format, _ := cmd.Flags().GetString("output")
		return writeVersion(cmd, short, format)
	},
}

func init() {
	versionCmd.Flags().BoolP("short", "s", false, "print only the version number")
	versionCmd.Flags().StringP("output", "o", outputJSON, "output format: json or yaml")
	rootCmd.AddCommand(versionCmd)
}

func writeVersion(cmd *cobra.Command, short bool, format string) error {
	if format != outputJSON && format != outputYAML {
		return fmt.Errorf("unknown output format %q, use json or yaml", format)
	}
	if short {
		fmt.Fprintln(cmd.OutOrStdout(), buildVersion)
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), goVersion.FuncWithOutput(false, buildVersion, buildCommit, buildDate, format))
	return nil
}
