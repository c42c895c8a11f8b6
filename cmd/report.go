package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/kozaktomas/class-attendance/internal/report"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize attendance per student and subject",
	Long: `Compute attendance percentages from the ledger.

Without --out the overall table is printed. With --out a workbook is written
holding the overall, per subject, per student and daily sheets.

Examples:
  # Print the overall table
  class-attendance report

  # Write the full workbook for one subject
  class-attendance report --subject Math --out math-report.xlsx`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	addFilterFlags(reportCmd.Flags())
	reportCmd.Flags().String("out", "", "Write the report workbook to this xlsx file")
	reportCmd.Flags().Float64("minimum", 0, "Minimum attendance percentage (overrides the policy)")
	reportCmd.Flags().Bool("json", false, "Output as JSON")
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	students, err := a.registry.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list students: %w", err)
	}
	records, err := a.ledger.Records(ctx, filterFromFlags(cmd))
	if err != nil {
		return fmt.Errorf("failed to read ledger: %w", err)
	}

	opts := report.Options{
		MinimumAttendance: a.cfg.Policy.Report.MinimumAttendance,
		GoodLabel:         a.cfg.Policy.Report.GoodLabel,
		LowLabel:          a.cfg.Policy.Report.LowLabel,
	}
	if minimum := mustGetFloat64(cmd, "minimum"); minimum > 0 {
		opts.MinimumAttendance = minimum
	}
	rep := report.Build(students, records, opts)

	if out := mustGetString(cmd, "out"); out != "" {
		if err := report.WriteFile(out, rep); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		fmt.Printf("Report for %d students written to %s\n", len(rep.Overall), out)
		return nil
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(rep)
	}

	if len(rep.Overall) == 0 {
		fmt.Println("No students found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ROLL\tNAME\tATTENDED\tTOTAL\tPERCENT\tSTATUS")
	fmt.Fprintln(w, "----\t----\t--------\t-----\t-------\t------")
	low := 0
	for i := range rep.Overall {
		row := &rep.Overall[i]
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.2f\t%s\n", row.RollNo, row.Name, row.Attended, row.Total, row.Percentage, row.Status)
		if row.Low {
			low++
		}
	}
	w.Flush()

	fmt.Printf("\nMinimum attendance: %.0f%%, %d of %d students below\n", rep.Minimum, low, len(rep.Overall))
	return nil
}
