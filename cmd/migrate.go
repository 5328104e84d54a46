package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Retarget every dataflow of a workspace to another lakehouse",
	Long: `Rewrite the destination of every dataflow in the target workspace.

The source workspace and source lakehouse ids found in each dataflow script
are replaced by the ids of the target workspace and target lakehouse. Each
rewritten dataflow gets the marker "Destination set to <target workspace>"
in its description; an earlier marker is replaced, never repeated.

Dataflows that hold no source id are left untouched, so the command can be
re-run safely. A failing dataflow never stops the others.

Examples:
  # Point every dataflow of "Sales PROD" at the PROD lakehouse
  dataflowmigrator migrate \
    --target-workspace "Sales PROD" --target-lakehouse Sales \
    --source-workspace "Sales DEV"

  # Same, with a differently named source lakehouse and JSON output
  dataflowmigrator migrate \
    --target-workspace "Sales PROD" --target-lakehouse Sales \
    --source-workspace "Sales DEV" --source-lakehouse SalesDev -o json`,
	Args:    cobra.NoArgs,
	PreRunE: bindConcurrency,
	RunE:    runMigrate,
}

func init() {
	migrateCmd.Flags().String("target-workspace", "", "workspace whose dataflows are rewritten (required)")
	migrateCmd.Flags().String("target-lakehouse", "", "lakehouse in the target workspace to point at (required)")
	migrateCmd.Flags().String("source-workspace", "", "workspace the dataflows currently point at (required)")
	migrateCmd.Flags().String("source-lakehouse", "", "lakehouse in the source workspace (default: same as --target-lakehouse)")
	migrateCmd.Flags().IntP("concurrency", "c", 1, "number of dataflows processed at once")
	migrateCmd.Flags().StringP("output", "o", outputText, "output format: text, json or yaml")

	_ = migrateCmd.MarkFlagRequired("target-workspace")
	_ = migrateCmd.MarkFlagRequired("target-lakehouse")
	_ = migrateCmd.MarkFlagRequired("source-workspace")

	rootCmd.AddCommand(migrateCmd)
}

// bindConcurrency binds migrate.concurrency to the --concurrency flag of the
// running command; migrate and serve share the key.
func bindConcurrency(cmd *cobra.Command, _ []string) error {
	return viper.BindPFlag("migrate.concurrency", cmd.Flags().Lookup("concurrency"))
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	format, _ := cmd.Flags().GetString("output")
	if err := validateOutput(format); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	targetWorkspace, _ := cmd.Flags().GetString("target-workspace")
	targetLakehouse, _ := cmd.Flags().GetString("target-lakehouse")
	sourceLakehouse, _ := cmd.Flags().GetString("source-lakehouse")
	sourceWorkspace, _ := cmd.Flags().GetString("source-workspace")
	runCfg := cfg.RunConfig(targetWorkspace, targetLakehouse, sourceLakehouse, sourceWorkspace)

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, nil)
	if err != nil {
		return err
	}

	summary, err := a.migrator.Run(ctx, runCfg)
	if err != nil {
		return err
	}

	return writeSummary(cmd.OutOrStdout(), summary, format)
}
