package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/kozaktomas/class-attendance/internal/database"
	"github.com/kozaktomas/class-attendance/internal/ledgerio"
	"github.com/spf13/cobra"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Attendance ledger commands",
	Long:  `Commands for exporting, importing and maintaining the attendance ledger.`,
}

var ledgerExportCmd = &cobra.Command{
	Use:   "export <file.xlsx>",
	Short: "Export ledger rows to a spreadsheet",
	Long: `Export ledger rows to an xlsx workbook with the columns
Name, Roll No, Date, Time, Subject and Status.

Examples:
  # Everything
  class-attendance ledger export attendance.xlsx

  # One subject in March
  class-attendance ledger export math-march.xlsx --subject Math --from 2026-03-01 --to 2026-03-31`,
	Args: cobra.ExactArgs(1),
	RunE: runLedgerExport,
}

var ledgerImportCmd = &cobra.Command{
	Use:   "import <file.xlsx>",
	Short: "Import rows from an attendance spreadsheet",
	Long: `Import rows from an attendance workbook.

Rows for a (name, subject, date) that is already recorded are skipped, so the
same workbook can be imported repeatedly. Invalid rows are reported and skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runLedgerImport,
}

var ledgerCompactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Fold the ledger log into a snapshot",
	Long:  `Write a compressed snapshot of every ledger row and truncate the append log (file backend only).`,
	RunE:  runLedgerCompact,
}

func init() {
	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.AddCommand(ledgerExportCmd, ledgerImportCmd, ledgerCompactCmd)

	addFilterFlags(ledgerExportCmd.Flags())
	ledgerImportCmd.Flags().Bool("dry-run", false, "Validate the workbook without writing rows")
}

func runLedgerExport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	records, err := a.ledger.Records(ctx, filterFromFlags(cmd))
	if err != nil {
		return fmt.Errorf("failed to read ledger: %w", err)
	}
	if err := ledgerio.ExportFile(args[0], records); err != nil {
		return fmt.Errorf("failed to export ledger: %w", err)
	}
	fmt.Printf("Exported %d rows to %s\n", len(records), args[0])
	return nil
}

func runLedgerImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	parsed, err := ledgerio.Import(f)
	if err != nil {
		return fmt.Errorf("failed to read workbook: %w", err)
	}
	for _, rowErr := range parsed.Errors {
		fmt.Printf("  Skipping %v\n", rowErr)
	}

	if mustGetBool(cmd, "dry-run") {
		fmt.Printf("%d valid rows, %d invalid rows\n", len(parsed.Records), len(parsed.Errors))
		return nil
	}

	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	added, skipped, err := ledgerio.Apply(ctx, a.attendance, parsed.Records)
	if err != nil {
		return fmt.Errorf("failed to import rows: %w", err)
	}

	fmt.Println("Import complete!")
	fmt.Printf("  Added:   %d\n", added)
	fmt.Printf("  Skipped: %d\n", skipped)
	if len(parsed.Errors) > 0 {
		fmt.Printf("  Invalid: %d\n", len(parsed.Errors))
	}
	return nil
}

func runLedgerCompact(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	compactor := database.GetCompactor()
	if compactor == nil {
		return errors.New("the " + database.BackendName() + " backend does not support compaction")
	}
	if err := compactor.Compact(ctx); err != nil {
		return fmt.Errorf("failed to compact ledger: %w", err)
	}

	count, err := a.attendance.CountRecords(ctx)
	if err != nil {
		return fmt.Errorf("failed to count rows: %w", err)
	}
	fmt.Printf("Ledger compacted (%d rows)\n", count)
	return nil
}
