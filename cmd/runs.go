package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"evalgo.org/dataflowmigrator/auth"
	"evalgo.org/dataflowmigrator/internal/domain"
	"evalgo.org/dataflowmigrator/internal/ledger"
)

const dateLayout = "2006-01-02"

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect the run ledger",
	Long: `Inspect and maintain the local ledger of migration runs.

Every migrate invocation and every run started through the API is recorded
with its resolved ids and the outcome of each dataflow.`,
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		date, _ := cmd.Flags().GetString("date")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		format, _ := cmd.Flags().GetString("output")
		if err := validateOutput(format); err != nil {
			return err
		}

		ldg, err := ledgerFromConfig()
		if err != nil {
			return err
		}
		runs, err := listRuns(ldg, date, status, limit)
		if err != nil {
			return err
		}

		if format != outputText {
			return writeStructured(cmd.OutOrStdout(), runs, format)
		}
		return writeRunTable(cmd.OutOrStdout(), runs)
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run with its items",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("output")
		if err := validateOutput(format); err != nil {
			return err
		}

		ldg, err := ledgerFromConfig()
		if err != nil {
			return err
		}
		run, err := ldg.GetRun(args[0])
		if err != nil {
			return err
		}

		if format != outputText {
			return writeStructured(cmd.OutOrStdout(), run, format)
		}
		return writeRunDetail(cmd.OutOrStdout(), run)
	},
}

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Aggregate statistics over a date range",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		format, _ := cmd.Flags().GetString("output")
		if format == outputText {
			format = outputYAML
		}
		if err := validateOutput(format); err != nil {
			return err
		}

		start, end, err := dateRange(from, to, time.Now())
		if err != nil {
			return err
		}
		ldg, err := ledgerFromConfig()
		if err != nil {
			return err
		}
		stats, err := ldg.GetStatistics(start, end)
		if err != nil {
			return err
		}
		return writeStructured(cmd.OutOrStdout(), stats, format)
	},
}

var runsRotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Compress old daily summaries and drop expired records",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ldg, err := openLedger(cfg)
		if err != nil {
			return err
		}
		report, err := ldg.RotateOldLogs()
		if err != nil {
			return err
		}
		audit, err := auth.NewAuditLogger(cfg.Ledger.Dir)
		if err != nil {
			return err
		}
		removedAudit, err := audit.RotateOldLogs(cfg.Ledger.RetentionDays)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Compressed daily summaries: %d\n", len(report.Compressed))
		fmt.Fprintf(cmd.OutOrStdout(), "Removed weekly archives:    %d\n", len(report.RemovedArchives))
		fmt.Fprintf(cmd.OutOrStdout(), "Removed run records:        %d\n", report.RemovedRuns)
		fmt.Fprintf(cmd.OutOrStdout(), "Removed audit logs:         %d\n", removedAudit)
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("date", "", "day to list (YYYY-MM-DD, default today)")
	runsListCmd.Flags().String("status", "", "only runs with this status (running, completed, partial, failed)")
	runsListCmd.Flags().Int("limit", 50, "maximum number of runs")
	runsListCmd.Flags().StringP("output", "o", outputText, "output format: text, json or yaml")

	runsShowCmd.Flags().StringP("output", "o", outputText, "output format: text, json or yaml")

	runsStatsCmd.Flags().String("from", "", "first day (YYYY-MM-DD, default 7 days ago)")
	runsStatsCmd.Flags().String("to", "", "last day (YYYY-MM-DD, default today)")
	runsStatsCmd.Flags().StringP("output", "o", outputYAML, "output format: json or yaml")

	runsCmd.AddCommand(runsListCmd, runsShowCmd, runsStatsCmd, runsRotateCmd)
	rootCmd.AddCommand(runsCmd)
}

func ledgerFromConfig() (*ledger.Ledger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return openLedger(cfg)
}

// listRuns returns the runs of date (today when empty) newest first,
// including runs still in progress
func listRuns(ldg *ledger.Ledger, date, status string, limit int) ([]ledger.Run, error) {
	if date == "" {
		date = time.Now().Format(dateLayout)
	} else if _, err := time.Parse(dateLayout, date); err != nil {
		return nil, domain.NewValidationError("date", fmt.Sprintf("%q is not YYYY-MM-DD", date))
	}

	summary, err := ldg.GetDailySummary(date)
	if err != nil {
		return nil, err
	}

	runs := make([]ledger.Run, 0, len(summary.Runs))
	for _, run := range ldg.GetActiveRuns() {
		if run.StartTime.Format(dateLayout) == date {
			runs = append(runs, *run)
		}
	}
	for i := len(summary.Runs) - 1; i >= 0; i-- {
		runs = append(runs, summary.Runs[i])
	}

	filtered := runs[:0]
	for _, run := range runs {
		if status == "" || run.Status == status {
			filtered = append(filtered, run)
		}
	}
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered, nil
}

// dateRange parses the stats range; the default is the last seven days
func dateRange(from, to string, now time.Time) (time.Time, time.Time, error) {
	end := now
	start := now.AddDate(0, 0, -7)
	var err error
	if to != "" {
		if end, err = time.Parse(dateLayout, to); err != nil {
			return time.Time{}, time.Time{}, domain.NewValidationError("to", fmt.Sprintf("%q is not YYYY-MM-DD", to))
		}
	}
	if from != "" {
		if start, err = time.Parse(dateLayout, from); err != nil {
			return time.Time{}, time.Time{}, domain.NewValidationError("from", fmt.Sprintf("%q is not YYYY-MM-DD", from))
		}
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, domain.NewValidationError("from", "must not be after --to")
	}
	return start, end, nil
}

func writeRunTable(w io.Writer, runs []ledger.Run) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tSTATUS\tTARGET\tUPDATED\tUNCHANGED\tFAILED")
	for _, run := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
			run.ID, run.StartTime.Format(time.RFC3339), run.Status, run.TargetWorkspace,
			run.UpdatedItems, run.UnchangedItems, run.FailedItems)
	}
	return tw.Flush()
}

func writeRunDetail(w io.Writer, run *ledger.Run) error {
	fmt.Fprintf(w, "Run:       %s\n", run.ID)
	fmt.Fprintf(w, "Status:    %s\n", run.Status)
	fmt.Fprintf(w, "Started:   %s\n", run.StartTime.Format(time.RFC3339))
	if run.EndTime != nil {
		fmt.Fprintf(w, "Finished:  %s (%dms)\n", run.EndTime.Format(time.RFC3339), run.Duration)
	}
	if run.Principal != "" {
		fmt.Fprintf(w, "Principal: %s\n", run.Principal)
	}
	fmt.Fprintf(w, "Source:    %s / %s\n", run.SourceWorkspace, run.SourceLakehouse)
	fmt.Fprintf(w, "Target:    %s / %s\n", run.TargetWorkspace, run.TargetLakehouse)
	fmt.Fprintf(w, "Marker:    %s\n", run.Marker)
	if run.ErrorMessage != "" {
		fmt.Fprintf(w, "Error:     %s\n", run.ErrorMessage)
	}
	fmt.Fprintf(w, "Items updated: %d\n", run.UpdatedItems)
	fmt.Fprintf(w, "Items skipped: %d\n", run.UnchangedItems+run.FailedItems)

	if len(run.Items) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ITEM\tNAME\tSTATUS\tREPLACEMENTS\tERROR")
	for _, item := range run.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", item.ItemID, item.DisplayName, item.Status, item.Replacements, item.ErrorMessage)
	}
	return tw.Flush()
}
