package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tutu-network/learnquest/internal/domain"
)

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// output prints v as JSON when --json is set, otherwise calls text.
func output(v interface{}, text func(w io.Writer)) error {
	if jsonOutput {
		return printJSON(os.Stdout, v)
	}
	text(os.Stdout)
	return nil
}

// printResult renders an event result for the terminal.
func printResult(w io.Writer, res *domain.EventResult) {
	if res.Message != "" {
		fmt.Fprintln(w, res.Message)
	}
	switch {
	case res.AlreadyCompleted:
		fmt.Fprintf(w, "Already completed, no points awarded (total %d)\n", res.TotalPoints)
	case res.NeedsRetry:
		fmt.Fprintf(w, "Score %d is below the pass mark after %d attempt(s)\n", res.Score, res.Attempts)
	default:
		fmt.Fprintf(w, "+%d points (total %d)\n", res.PointsAwarded, res.TotalPoints)
	}

	if res.CourseProgress > 0 {
		fmt.Fprintf(w, "Course progress %s %3.0f%%\n", bar(res.CourseProgress), res.CourseProgress)
	}
	if res.LevelChange != nil {
		fmt.Fprintf(w, "Level up: %d -> %d\n", res.LevelChange.From, res.LevelChange.To)
	}
	if res.Streak != nil && res.Streak.Current > 0 {
		fmt.Fprintf(w, "Streak: %d day(s), longest %d\n", res.Streak.Current, res.Streak.Longest)
	}
	for _, b := range res.BadgesEarned {
		fmt.Fprintf(w, "Badge earned: %s %s\n", b.Icon, b.Name)
	}
	for _, n := range res.Notifications {
		fmt.Fprintf(w, "  [%s] %s\n", n.Type, strings.TrimSpace(n.Title+": "+n.Message))
	}
}
