package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "class-attendance",
	Short: "Face recognition attendance for classrooms",
	Long: `Class Attendance enrolls students with a reference photo, recognizes
them in classroom frames and keeps a per-subject attendance ledger that can be
exported to spreadsheets and summarized in reports.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
