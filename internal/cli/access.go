package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/tutu-network/learnquest/internal/daemon"
	"github.com/tutu-network/learnquest/internal/domain"
)

func init() {
	rootCmd.AddCommand(accessCmd)
}

var accessCmd = &cobra.Command{
	Use:   "access USER ACTIVITY",
	Short: "Check whether an activity is unlocked for a user",
	Args:  cobra.ExactArgs(2),
	RunE:  runAccess,
}

func runAccess(cmd *cobra.Command, args []string) error {
	d, err := daemon.NewFromFile(configPath)
	if err != nil {
		return err
	}
	defer d.Close()

	decision, err := d.Engine.CheckAccess(context.Background(), args[0], args[1])
	if err != nil {
		return err
	}
	return output(decision, func(w io.Writer) { printAccess(w, decision) })
}

func printAccess(w io.Writer, a domain.AccessDecision) {
	verdict := "LOCKED"
	if a.Allowed {
		verdict = "UNLOCKED"
	}
	fmt.Fprintf(w, "%s: %s\n", verdict, a.Reason)
	if len(a.PreviousActivities) > 0 {
		fmt.Fprintf(w, "Previous activities %s %3.0f%%\n", bar(a.CurrentProgressPct), a.CurrentProgressPct)
		for _, p := range a.PreviousActivities {
			mark := " "
			if p.Passed {
				mark = "x"
			}
			fmt.Fprintf(w, "  [%s] %d. %s (score %d, %d attempt(s))\n", mark, p.Order+1, p.Title, p.Score, p.Attempts)
		}
	}
	if a.NextActivity != nil {
		fmt.Fprintf(w, "Next up: %s\n", a.NextActivity.Title)
	}
}
