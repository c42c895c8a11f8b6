package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/kozaktomas/class-attendance/internal/registry"
	"github.com/spf13/cobra"
)

var absenteesCmd = &cobra.Command{
	Use:   "absentees",
	Short: "List students of a subject not marked present on a day",
	Long: `List the students enrolled in a subject who have no Present row for the day.

With --mark every listed student is recorded as Absent. Students that already
have a row for the day are left untouched, so the sweep can be repeated.

Examples:
  # Who missed today's Math lecture
  class-attendance absentees --subject Math

  # Record them as absent
  class-attendance absentees --subject Math --mark`,
	RunE: runAbsentees,
}

func init() {
	rootCmd.AddCommand(absenteesCmd)

	absenteesCmd.Flags().String("subject", "", "Subject to check (required)")
	absenteesCmd.Flags().Bool("mark", false, "Record every absentee as Absent")
	absenteesCmd.Flags().Bool("json", false, "Output as JSON")
	addDateFlag(absenteesCmd.Flags(), "date", "Day to check (YYYY-MM-DD), defaults to today")
	_ = absenteesCmd.MarkFlagRequired("subject")
}

func runAbsentees(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	subject := mustGetString(cmd, "subject")
	date := mustGetDate(cmd, "date")
	jsonOutput := mustGetBool(cmd, "json")

	if mustGetBool(cmd, "mark") {
		result, err := a.ledger.SweepAbsentees(ctx, subject, date)
		if err != nil {
			return fmt.Errorf("failed to mark absentees: %w", err)
		}
		if jsonOutput {
			return outputJSON(result)
		}
		fmt.Printf("Marked %d absent in %s on %s\n", len(result.Marked), result.Subject, result.Date)
		printEnrollees(result.Marked)
		if len(result.Skipped) > 0 {
			fmt.Printf("\nSkipped %d already recorded\n", len(result.Skipped))
		}
		return nil
	}

	absentees, err := a.ledger.Absentees(ctx, subject, date)
	if err != nil {
		return fmt.Errorf("failed to compute absentees: %w", err)
	}
	if jsonOutput {
		if absentees == nil {
			absentees = []registry.Enrollee{}
		}
		return outputJSON(absentees)
	}
	if len(absentees) == 0 {
		fmt.Printf("No absentees in %s on %s.\n", subject, a.ledger.Day(date))
		return nil
	}
	fmt.Printf("Absent in %s on %s:\n\n", subject, a.ledger.Day(date))
	printEnrollees(absentees)
	fmt.Printf("\nTotal: %d absentees\n", len(absentees))
	return nil
}

func printEnrollees(list []registry.Enrollee) {
	if len(list) == 0 {
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ROLL\tNAME")
	fmt.Fprintln(w, "----\t----")
	for _, e := range list {
		fmt.Fprintf(w, "%s\t%s\n", e.RollNo, e.Name)
	}
	w.Flush()
}
