package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kozaktomas/class-attendance/internal/session"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var attendCmd = &cobra.Command{
	Use:   "attend",
	Short: "Mark attendance from a directory of classroom frames",
	Long: `Run a recognition session over the images in a directory.

Every face in every frame is matched against the enrolled students. Students
enrolled in the subject are marked Present once per day; faces that match
nobody are reported as unknown. Press Ctrl+C to stop early, the frames
processed so far stay recorded.

Examples:
  # Mark today's Math attendance
  class-attendance attend --subject Math --frames ./captures

  # Backfill a past lecture and keep annotated frames
  class-attendance attend --subject Math --frames ./captures --date 2026-03-02 --annotated ./out`,
	RunE: runAttend,
}

func init() {
	rootCmd.AddCommand(attendCmd)

	attendCmd.Flags().String("subject", "", "Subject being attended (required)")
	attendCmd.Flags().String("frames", "", "Directory with frame images (required)")
	attendCmd.Flags().String("annotated", "", "Directory to write annotated frames to")
	attendCmd.Flags().Float64("tolerance", 0, "Match tolerance (overrides MATCH_TOLERANCE)")
	attendCmd.Flags().Int("skip-distance", -1, "Max frame hash distance treated as unchanged (overrides FRAME_SKIP_DISTANCE)")
	attendCmd.Flags().Bool("json", false, "Output summary as JSON instead of progress bar")
	addDateFlag(attendCmd.Flags(), "date", "Lecture date (YYYY-MM-DD), defaults to today")
	_ = attendCmd.MarkFlagRequired("subject")
	_ = attendCmd.MarkFlagRequired("frames")
}

// progressSource advances a progress bar for every frame handed out.
type progressSource struct {
	session.FrameSource
	bar *progressbar.ProgressBar
}

func (s *progressSource) Next(ctx context.Context) (session.Frame, error) {
	frame, err := s.FrameSource.Next(ctx)
	if err == nil {
		s.bar.Add(1)
	} else if errors.Is(err, io.EOF) {
		s.bar.Finish()
	}
	return frame, err
}

func runAttend(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	date := mustGetDate(cmd, "date")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	if tolerance := mustGetFloat64(cmd, "tolerance"); tolerance > 0 {
		a.cfg.Matching.Tolerance = tolerance
	}
	skipDistance := a.cfg.Session.FrameSkipDistance
	if d := mustGetInt(cmd, "skip-distance"); d >= 0 {
		skipDistance = d
	}

	dirSource, err := session.NewDirectorySource(mustGetString(cmd, "frames"), a.logger)
	if err != nil {
		return err
	}
	if dirSource.Len() == 0 {
		return errors.New("no images found in frames directory")
	}

	var source session.FrameSource = dirSource
	if !jsonOutput {
		source = &progressSource{
			FrameSource: dirSource,
			bar: progressbar.NewOptions(dirSource.Len(),
				progressbar.OptionSetDescription("Recognizing faces"),
				progressbar.OptionShowCount(),
				progressbar.OptionShowIts(),
				progressbar.OptionSetItsString("frames"),
				progressbar.OptionShowElapsedTimeOnFinish(),
				progressbar.OptionSetPredictTime(true),
				progressbar.OptionFullWidth(),
			),
		}
	}

	var renderer session.Renderer
	if dir := mustGetString(cmd, "annotated"); dir != "" {
		renderer = &session.JPEGRenderer{Dir: dir}
	}

	controller, err := session.NewController(session.Config{
		Subject:           mustGetString(cmd, "subject"),
		Date:              date,
		FrameSkipDistance: skipDistance,
		Logger:            a.logger,
	}, source, a.detector(), a.matcher(), a.registry, a.ledger, renderer)
	if err != nil {
		return err
	}

	startTime := time.Now()
	summary, err := controller.Run(ctx)
	if err != nil {
		return fmt.Errorf("session failed: %w", err)
	}
	if summary.Date == "" {
		summary.Date = a.ledger.Day(date)
	}

	if jsonOutput {
		return outputJSON(summary)
	}

	if ctx.Err() != nil {
		fmt.Println("\nSession stopped early.")
	} else {
		fmt.Println("\nSession complete!")
	}
	fmt.Printf("  Subject:        %s\n", summary.Subject)
	fmt.Printf("  Date:           %s\n", summary.Date)
	fmt.Printf("  Frames:         %d", summary.Frames)
	if summary.SkippedFrames > 0 {
		fmt.Printf(" (%d unchanged)", summary.SkippedFrames)
	}
	fmt.Println()
	fmt.Printf("  Faces:          %d\n", summary.Faces)
	fmt.Printf("  Marked present: %s\n", joinOrNone(summary.Marked))
	if len(summary.AlreadyMarked) > 0 {
		fmt.Printf("  Already marked: %s\n", joinOrNone(summary.AlreadyMarked))
	}
	if len(summary.NotEnrolled) > 0 {
		fmt.Printf("  Not enrolled:   %s\n", joinOrNone(summary.NotEnrolled))
	}
	if summary.Unknown > 0 {
		fmt.Printf("  Unknown faces:  %d\n", summary.Unknown)
	}
	fmt.Printf("  Duration:       %s\n", formatDuration(time.Since(startTime)))
	return nil
}

func joinOrNone(names []string) string {
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}

// formatDuration formats a duration as a human-readable string
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
