package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tutu-network/learnquest/internal/app/engagement"
	"github.com/tutu-network/learnquest/internal/daemon"
)

func init() {
	rootCmd.AddCommand(showCmd)
}

var showCmd = &cobra.Command{
	Use:   "show USER",
	Short: "Show a learner's points, level, streak, badges and courses",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	d, err := daemon.NewFromFile(configPath)
	if err != nil {
		return err
	}
	defer d.Close()

	s, err := d.Engine.UserSummary(context.Background(), args[0])
	if err != nil {
		return err
	}
	return output(s, func(w io.Writer) { printSummary(w, s) })
}

func printSummary(w io.Writer, s *engagement.Summary) {
	u := s.User
	fmt.Fprintf(w, "User:     %s (%s)\n", u.Name, u.ID)
	fmt.Fprintf(w, "Points:   %d\n", u.TotalPoints)
	fmt.Fprintf(w, "Rank:     #%d\n", s.Rank)
	fmt.Fprintf(w, "%s\n", levelLine(s.Level))
	fmt.Fprintf(w, "Streak:   %d day(s), longest %d\n", u.CurrentStreak, u.LongestStreak)
	if !u.LastActivityAt.IsZero() {
		fmt.Fprintf(w, "Active:   %s\n", u.LastActivityAt.Format("2006-01-02 15:04"))
	}

	if len(s.Badges) > 0 {
		fmt.Fprintln(w, "\nBadges:")
		for _, b := range s.Badges {
			fmt.Fprintf(w, "  %s %s: %s\n", b.Icon, b.Name, b.Description)
		}
	}

	if len(s.Enrollments) > 0 {
		fmt.Fprintln(w, "\nCourses:")
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, e := range s.Enrollments {
			state := "in progress"
			if e.IsCompleted() {
				state = "completed " + e.CompletedAt.Format("2006-01-02")
			}
			fmt.Fprintf(tw, "  %s\t%s %3.0f%%\t%s\n", e.CourseID, bar(e.ProgressPct), e.ProgressPct, state)
		}
		tw.Flush()
	}

	if len(s.RecentHistory) > 0 {
		fmt.Fprintln(w, "\nRecent points:")
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, e := range s.RecentHistory {
			fmt.Fprintf(tw, "  %s\t%+d\t%s\n", e.CreatedAt.Format("2006-01-02 15:04"), e.Signed(), e.Reason)
		}
		tw.Flush()
	}
}
