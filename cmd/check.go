package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/class-attendance/internal/database"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the student registry and storage backend",
	Long: `Check that every enrolled student has a roll number, a name and an
embedding, that roll numbers are unique and that every embedding has the
dimension configured by EMBEDDING_DIM.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
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
	rows, err := a.attendance.CountRecords(ctx)
	if err != nil {
		return fmt.Errorf("failed to count ledger rows: %w", err)
	}

	fmt.Printf("Backend:  %s\n", database.BackendName())
	fmt.Printf("Students: %d\n", len(students))
	fmt.Printf("Rows:     %d\n", rows)

	var problems []error
	if err := a.registry.Verify(ctx); err != nil {
		problems = append(problems, err)
	}
	for i := range students {
		if n := len(students[i].Embedding); n != 0 && n != a.cfg.Embedding.Dim {
			problems = append(problems, fmt.Errorf("student %s: embedding has %d dimensions, expected %d",
				students[i].RollNo, n, a.cfg.Embedding.Dim))
		}
	}

	if len(problems) > 0 {
		fmt.Println("\nRegistry check failed:")
		for _, p := range problems {
			fmt.Printf("  %v\n", p)
		}
		return errors.New("registry check failed")
	}
	fmt.Println("\nRegistry OK")
	return nil
}
