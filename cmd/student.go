package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/kozaktomas/class-attendance/internal/constants"
	"github.com/kozaktomas/class-attendance/internal/database"
	"github.com/kozaktomas/class-attendance/internal/detector"
	"github.com/kozaktomas/class-attendance/internal/registry"
	"github.com/spf13/cobra"
)

var studentCmd = &cobra.Command{
	Use:   "student",
	Short: "Manage enrolled students",
	Long:  `Commands for enrolling, listing and removing students.`,
}

var studentAddCmd = &cobra.Command{
	Use:   "add <roll-no>",
	Short: "Enroll a student from a reference photo",
	Long: `Enroll a student from a reference photo.

The photo must show exactly one face. Its embedding becomes the student's
reference and a resized copy of the photo is stored under FACES_DIR.

Examples:
  # Enroll a student in two subjects
  class-attendance student add 42 --name "Alice Smith" --photo alice.jpg --subject Math --subject Physics

  # Replace the photo and details of an enrolled student
  class-attendance student add 42 --name "Alice Smith" --photo alice-new.jpg --overwrite`,
	Args: cobra.ExactArgs(1),
	RunE: runStudentAdd,
}

var studentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled students",
	RunE:  runStudentList,
}

var studentDeleteCmd = &cobra.Command{
	Use:   "delete <roll-no>",
	Short: "Remove a student and their reference photo",
	Args:  cobra.ExactArgs(1),
	RunE:  runStudentDelete,
}

func init() {
	rootCmd.AddCommand(studentCmd)
	studentCmd.AddCommand(studentAddCmd, studentListCmd, studentDeleteCmd)

	studentAddCmd.Flags().String("name", "", "Student name (required)")
	studentAddCmd.Flags().String("photo", "", "Reference photo with exactly one face (required)")
	studentAddCmd.Flags().String("semester", "", "Semester")
	studentAddCmd.Flags().String("year", "", "Year")
	studentAddCmd.Flags().StringSlice("subject", nil, "Enrolled subject (repeatable or comma separated)")
	studentAddCmd.Flags().Bool("overwrite", false, "Replace an already enrolled roll number")
	_ = studentAddCmd.MarkFlagRequired("name")
	_ = studentAddCmd.MarkFlagRequired("photo")

	studentListCmd.Flags().String("subject", "", "Only students enrolled in this subject")
	studentListCmd.Flags().Bool("json", false, "Output as JSON")
}

func runStudentAdd(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	data, err := os.ReadFile(mustGetString(cmd, "photo"))
	if err != nil {
		return fmt.Errorf("failed to read photo: %w", err)
	}

	faces, err := a.detector().DetectImage(ctx, data)
	if err != nil {
		return fmt.Errorf("face detection failed: %w", err)
	}
	photo, err := detector.ResizeImage(data, constants.MaxImageSize)
	if err != nil {
		return fmt.Errorf("failed to resize photo: %w", err)
	}

	rec := registry.Record{
		Name:     mustGetString(cmd, "name"),
		Semester: mustGetString(cmd, "semester"),
		Year:     mustGetString(cmd, "year"),
		Subjects: mustGetStringSlice(cmd, "subject"),
	}
	student, err := a.registry.AddWithPhoto(ctx, args[0], rec, faces, photo, a.cfg.Storage.FacesDir, mustGetBool(cmd, "overwrite"))
	if err != nil {
		return fmt.Errorf("failed to enroll student: %w", err)
	}

	fmt.Printf("Enrolled %s (roll %s)\n", student.Name, student.RollNo)
	if len(student.Subjects) > 0 {
		fmt.Printf("  Subjects: %s\n", strings.Join(student.Subjects, ", "))
	}
	fmt.Printf("  Photo:    %s\n", student.ImagePath)
	return nil
}

// studentListItem is the JSON form of a listed student.
type studentListItem struct {
	RollNo   string   `json:"roll_no"`
	Name     string   `json:"name"`
	Semester string   `json:"semester,omitempty"`
	Year     string   `json:"year,omitempty"`
	Subjects []string `json:"subjects"`
}

func runStudentList(cmd *cobra.Command, args []string) error {
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
	students = filterBySubject(students, mustGetString(cmd, "subject"))

	if mustGetBool(cmd, "json") {
		items := make([]studentListItem, 0, len(students))
		for i := range students {
			s := &students[i]
			items = append(items, studentListItem{
				RollNo: s.RollNo, Name: s.Name, Semester: s.Semester, Year: s.Year, Subjects: s.Subjects,
			})
		}
		return outputJSON(items)
	}

	if len(students) == 0 {
		fmt.Println("No students found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ROLL\tNAME\tSEMESTER\tYEAR\tSUBJECTS")
	fmt.Fprintln(w, "----\t----\t--------\t----\t--------")
	for i := range students {
		s := &students[i]
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.RollNo, s.Name, s.Semester, s.Year, strings.Join(s.Subjects, ", "))
	}
	w.Flush()

	fmt.Printf("\nTotal: %d students\n", len(students))
	return nil
}

// filterBySubject keeps the students enrolled in subject, all when subject is empty.
func filterBySubject(students []database.Student, subject string) []database.Student {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return students
	}
	var out []database.Student
	for i := range students {
		if students[i].HasSubject(subject) {
			out = append(out, students[i])
		}
	}
	return out
}

func runStudentDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	student, err := a.registry.Remove(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to remove student: %w", err)
	}
	fmt.Printf("Removed %s (roll %s)\n", student.Name, student.RollNo)
	return nil
}
