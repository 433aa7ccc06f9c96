package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/tutu-network/learnquest/internal/app/engagement"
	"github.com/tutu-network/learnquest/internal/daemon"
)

func init() {
	recalcCmd.Flags().BoolVar(&recalcAll, "all", false, "Rebuild every user")
	redeemCmd.Flags().StringVar(&redeemReward, "reward", "", "Reward identifier")
	redeemCmd.Flags().StringVar(&redeemReason, "reason", "", "Reason recorded in the ledger")
	rootCmd.AddCommand(recalcCmd, redeemCmd)
}

var (
	recalcAll    bool
	redeemReward string
	redeemReason string
)

var recalcCmd = &cobra.Command{
	Use:   "recalc [USER]",
	Short: "Rebuild a user's points, level and streaks from history",
	Example: `  learnquest recalc ada
  learnquest recalc --all`,
	Args: recalcArgs,
	RunE: runRecalc,
}

var redeemCmd = &cobra.Command{
	Use:   "redeem USER AMOUNT",
	Short: "Spend points on a reward",
	Args:  cobra.ExactArgs(2),
	RunE:  runRedeem,
}

func runRecalc(cmd *cobra.Command, args []string) error {
	d, err := daemon.NewFromFile(configPath)
	if err != nil {
		return err
	}
	defer d.Close()

	if recalcAll {
		reports, err := d.Engine.RecalculateAll(context.Background())
		if err != nil {
			return err
		}
		return output(reports, func(w io.Writer) {
			for _, r := range reports {
				printRecalc(w, r)
			}
		})
	}

	report, err := d.Engine.Recalculate(context.Background(), args[0])
	if err != nil {
		return err
	}
	return output(report, func(w io.Writer) { printRecalc(w, report) })
}

func recalcArgs(cmd *cobra.Command, args []string) error {
	if recalcAll {
		return cobra.NoArgs(cmd, args)
	}
	return cobra.ExactArgs(1)(cmd, args)
}

func printRecalc(w io.Writer, r *engagement.RecalcReport) {
	if !r.Changed {
		fmt.Fprintf(w, "%s is consistent (%d points, level %d)\n", r.UserID, r.After.TotalPoints, r.After.Level)
		return
	}
	fmt.Fprintf(w, "%s repaired\n", r.UserID)
	fmt.Fprintf(w, "  points  %d -> %d\n", r.Before.TotalPoints, r.After.TotalPoints)
	fmt.Fprintf(w, "  level   %d -> %d\n", r.Before.Level, r.After.Level)
	fmt.Fprintf(w, "  streak  %d -> %d (longest %d -> %d)\n",
		r.Before.CurrentStreak, r.After.CurrentStreak, r.Before.LongestStreak, r.After.LongestStreak)
}

func runRedeem(cmd *cobra.Command, args []string) error {
	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid amount %q", args[1])
	}

	d, err := daemon.NewFromFile(configPath)
	if err != nil {
		return err
	}
	defer d.Close()

	entry, err := d.Engine.Redeem(context.Background(), args[0], amount, redeemReward, redeemReason)
	if err != nil {
		return err
	}
	return output(entry, func(w io.Writer) {
		fmt.Fprintf(w, "Spent %d points (%s)\n", entry.Amount, entry.Reason)
	})
}
