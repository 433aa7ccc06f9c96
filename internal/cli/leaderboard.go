package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tutu-network/learnquest/internal/daemon"
	"github.com/tutu-network/learnquest/internal/domain"
)

func init() {
	leaderboardCmd.Flags().StringVar(&boardMetric, "metric", "points", "Rank by points, level or badges")
	leaderboardCmd.Flags().StringVar(&boardPeriod, "period", "all_time", "Window: daily, weekly, monthly or all_time")
	leaderboardCmd.Flags().IntVar(&boardLimit, "limit", 0, "Number of entries (default from config)")
	leaderboardCmd.Flags().StringVar(&boardUser, "user", "", "Also print this user's rank")
	rootCmd.AddCommand(leaderboardCmd)
}

var (
	boardMetric string
	boardPeriod string
	boardLimit  int
	boardUser   string
)

var leaderboardCmd = &cobra.Command{
	Use:     "leaderboard",
	Aliases: []string{"lb", "top"},
	Short:   "Show a leaderboard",
	RunE:    runLeaderboard,
}

func runLeaderboard(cmd *cobra.Command, args []string) error {
	metric, err := domain.ParseMetric(boardMetric)
	if err != nil {
		return err
	}
	period, err := domain.ParsePeriod(boardPeriod)
	if err != nil {
		return err
	}

	d, err := daemon.NewFromFile(configPath)
	if err != nil {
		return err
	}
	defer d.Close()

	limit := boardLimit
	if limit == 0 {
		limit = d.Config.Leaderboard.DefaultLimit
	}

	ctx := context.Background()
	entries, err := d.Engine.Leaderboard(ctx, metric, period, limit)
	if err != nil {
		return err
	}

	var rank int
	var value int64
	if boardUser != "" {
		if rank, value, err = d.Engine.RankOf(ctx, boardUser, metric, period); err != nil {
			return err
		}
	}

	result := map[string]interface{}{"metric": metric, "period": period, "entries": entries}
	if boardUser != "" {
		result["user"] = map[string]interface{}{"user_id": boardUser, "rank": rank, "value": value}
	}
	return output(result, func(w io.Writer) {
		if len(entries) == 0 {
			fmt.Fprintln(w, "No entries for this window yet.")
			return
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "RANK\tNAME\t%s\tLEVEL\n", metricHeader(metric))
		for _, e := range entries {
			fmt.Fprintf(tw, "%d\t%s\t%d\t%d\n", e.Rank, e.Name, e.Value, e.Level)
		}
		tw.Flush()
		if boardUser != "" {
			fmt.Fprintf(w, "\n%s is #%d with %d\n", boardUser, rank, value)
		}
	})
}

func metricHeader(m domain.Metric) string {
	switch m {
	case domain.MetricLevel:
		return "LEVEL"
	case domain.MetricBadges:
		return "BADGES"
	default:
		return "POINTS"
	}
}
