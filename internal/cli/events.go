package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"
	"github.com/tutu-network/learnquest/internal/daemon"
	"github.com/tutu-network/learnquest/internal/domain"
)

func init() {
	completeCmd.Flags().IntVar(&completeScore, "score", 100, "Score achieved (0-100)")
	completeCmd.Flags().IntVar(&completeTime, "time", 0, "Seconds spent on the activity")
	rootCmd.AddCommand(enrollCmd, completeCmd, finishCmd)
}

var (
	completeScore int
	completeTime  int
)

var enrollCmd = &cobra.Command{
	Use:   "enroll USER COURSE",
	Short: "Enroll a user in a course",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEvent(func(ctx context.Context, d *daemon.Daemon) (*domain.EventResult, error) {
			return d.Engine.OnCourseEnrolled(ctx, args[0], args[1])
		})
	},
}

var completeCmd = &cobra.Command{
	Use:     "complete USER ACTIVITY",
	Short:   "Record an activity completion",
	Example: `  learnquest complete ada intro-1 --score 92 --time 900`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEvent(func(ctx context.Context, d *daemon.Daemon) (*domain.EventResult, error) {
			return d.Engine.OnActivityCompleted(ctx, args[0], args[1], completeScore, completeTime)
		})
	},
}

var finishCmd = &cobra.Command{
	Use:   "finish USER COURSE",
	Short: "Mark a course completed",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEvent(func(ctx context.Context, d *daemon.Daemon) (*domain.EventResult, error) {
			return d.Engine.OnCourseCompleted(ctx, args[0], args[1])
		})
	},
}

func runEvent(fn func(context.Context, *daemon.Daemon) (*domain.EventResult, error)) error {
	d, err := daemon.NewFromFile(configPath)
	if err != nil {
		return err
	}
	defer d.Close()

	res, err := fn(context.Background(), d)
	if err != nil {
		return err
	}
	return output(res, func(w io.Writer) { printResult(w, res) })
}
