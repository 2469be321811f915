package handlers

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one full pipeline run",
	Long: `Fetch, enrich, cluster, and synthesize one day of news.

Example:
  marketintel run
  marketintel run --date 2026-08-20`,
	Run: func(cmd *cobra.Command, args []string) {
		date, _ := cmd.Flags().GetString("date")

		app, err := buildApp(cmd.Context())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
		defer app.Close()

		result, err := app.Pipeline.Run(cmd.Context(), date)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Pipeline failed: %s\n", err)
			os.Exit(1)
		}

		fmt.Printf("Run complete for %s\n", result.Date)
		fmt.Printf("  Articles:  %d\n", result.Articles)
		fmt.Printf("  Clusters:  %d\n", result.Clusters)
		if result.Briefing != nil {
			fmt.Printf("  Briefing:  %s (GPR %d)\n", result.Briefing.Source, result.Briefing.GPRIndex)
		}
		if len(result.Errors) > 0 {
			fmt.Printf("  Degraded stages: %d\n", len(result.Errors))
			for _, e := range result.Errors {
				fmt.Printf("    - %s\n", e)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("date", "", "Run date as YYYY-MM-DD (default today, UTC)")
}

// runForScheduler adapts a pipeline run for cron dispatch.
func runForScheduler(app *App) func() error {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		_, err := app.Pipeline.Run(ctx, "")
		return err
	}
}
