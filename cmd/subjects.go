package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var subjectsCmd = &cobra.Command{
	Use:   "subjects [subject]",
	Short: "List subjects or the students enrolled in one",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSubjects,
}

func init() {
	rootCmd.AddCommand(subjectsCmd)

	subjectsCmd.Flags().Bool("json", false, "Output as JSON")
}

func runSubjects(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	jsonOutput := mustGetBool(cmd, "json")

	if len(args) == 1 {
		enrolled, err := a.registry.Enrolled(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to list enrolled students: %w", err)
		}
		if jsonOutput {
			return outputJSON(enrolled)
		}
		if len(enrolled) == 0 {
			fmt.Printf("No students enrolled in %s.\n", args[0])
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ROLL\tNAME")
		fmt.Fprintln(w, "----\t----")
		for _, e := range enrolled {
			fmt.Fprintf(w, "%s\t%s\n", e.RollNo, e.Name)
		}
		w.Flush()
		fmt.Printf("\nTotal: %d students in %s\n", len(enrolled), args[0])
		return nil
	}

	subjects, err := a.registry.AllSubjects(ctx)
	if err != nil {
		return fmt.Errorf("failed to list subjects: %w", err)
	}
	if jsonOutput {
		return outputJSON(subjects)
	}
	if len(subjects) == 0 {
		fmt.Println("No subjects found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SUBJECT\tSTUDENTS")
	fmt.Fprintln(w, "-------\t--------")
	for _, subject := range subjects {
		enrolled, err := a.registry.Enrolled(ctx, subject)
		if err != nil {
			return fmt.Errorf("failed to list enrolled students: %w", err)
		}
		fmt.Fprintf(w, "%s\t%d\n", subject, len(enrolled))
	}
	w.Flush()

	fmt.Printf("\nTotal: %d subjects\n", len(subjects))
	return nil
}
