package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/tutu-network/learnquest/internal/app"
	"github.com/tutu-network/learnquest/internal/daemon"
)

func init() {
	rootCmd.AddCommand(seedCmd)
}

var seedCmd = &cobra.Command{
	Use:   "seed FILE",
	Short: "Load users, courses, activities and badges from a TOML catalogue",
	Long: `Load a TOML catalogue into the store. Records are upserted, so a
catalogue can be applied repeatedly. Use "-" to read from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: runSeed,
}

func runSeed(cmd *cobra.Command, args []string) error {
	var r io.Reader = os.Stdin
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	catalog, err := app.ParseCatalog(r)
	if err != nil {
		return err
	}

	d, err := daemon.NewFromFile(configPath)
	if err != nil {
		return err
	}
	defer d.Close()

	report, err := app.Seed(context.Background(), d.Store, catalog)
	if err != nil {
		return err
	}
	return output(report, func(w io.Writer) {
		fmt.Fprintf(w, "Seeded users=%d courses=%d activities=%d badges=%d\n",
			report.Users, report.Courses, report.Activities, report.Badges)
	})
}
