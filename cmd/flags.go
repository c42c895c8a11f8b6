package cmd

import (
	"fmt"
	"time"

	"github.com/kozaktomas/class-attendance/internal/attendance"
	"github.com/kozaktomas/class-attendance/internal/constants"
	"github.com/kozaktomas/class-attendance/internal/database"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// mustGetBool gets a bool flag value or panics if the flag doesn't exist.
// This is appropriate for flags defined in init() - errors indicate programming bugs.
func mustGetBool(cmd *cobra.Command, name string) bool {
	val, err := cmd.Flags().GetBool(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetInt gets an int flag value or panics if the flag doesn't exist.
func mustGetInt(cmd *cobra.Command, name string) int {
	val, err := cmd.Flags().GetInt(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetString gets a string flag value or panics if the flag doesn't exist.
func mustGetString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetFloat64 gets a float64 flag value or panics if the flag doesn't exist.
func mustGetFloat64(cmd *cobra.Command, name string) float64 {
	val, err := cmd.Flags().GetFloat64(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetStringSlice gets a string slice flag value or panics if the flag doesn't exist.
func mustGetStringSlice(cmd *cobra.Command, name string) []string {
	val, err := cmd.Flags().GetStringSlice(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// dateValue is a YYYY-MM-DD flag. Unset means today.
type dateValue struct {
	t time.Time
}

var _ pflag.Value = (*dateValue)(nil)

func (d *dateValue) String() string {
	if d.t.IsZero() {
		return ""
	}
	return d.t.Format(constants.DateLayout)
}

func (d *dateValue) Set(s string) error {
	t, err := attendance.ParseDate(s)
	if err != nil {
		return err
	}
	d.t = t
	return nil
}

func (d *dateValue) Type() string {
	return "date"
}

// addDateFlag registers a date flag on fs.
func addDateFlag(fs *pflag.FlagSet, name, usage string) {
	fs.Var(&dateValue{}, name, usage)
}

// mustGetDate gets a date flag value or panics if the flag doesn't exist.
// The zero time is returned when the flag was not given.
func mustGetDate(cmd *cobra.Command, name string) time.Time {
	f := cmd.Flags().Lookup(name)
	if f == nil {
		panic(fmt.Sprintf("flag error for --%s: flag accessed but not defined", name))
	}
	d, ok := f.Value.(*dateValue)
	if !ok {
		panic(fmt.Sprintf("flag error for --%s: not a date flag", name))
	}
	return d.t
}

// addFilterFlags registers the ledger filter flags shared by export and report.
func addFilterFlags(fs *pflag.FlagSet) {
	fs.String("subject", "", "Only rows of this subject")
	fs.String("name", "", "Only rows of this student name")
	fs.String("status", "", "Only rows with this status (Present or Absent)")
	addDateFlag(fs, "date", "Only rows of this day (YYYY-MM-DD)")
	addDateFlag(fs, "from", "First day to include (YYYY-MM-DD)")
	addDateFlag(fs, "to", "Last day to include (YYYY-MM-DD)")
}

// filterFromFlags builds a ledger filter from the flags added by addFilterFlags.
func filterFromFlags(cmd *cobra.Command) database.AttendanceFilter {
	day := func(name string) string {
		if t := mustGetDate(cmd, name); !t.IsZero() {
			return t.Format(constants.DateLayout)
		}
		return ""
	}
	return database.AttendanceFilter{
		Name:    mustGetString(cmd, "name"),
		Subject: mustGetString(cmd, "subject"),
		Status:  mustGetString(cmd, "status"),
		Date:    day("date"),
		From:    day("from"),
		To:      day("to"),
	}
}
