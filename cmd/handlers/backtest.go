package handlers

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"marketintel/internal/validation"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Correlate sentiment history against market movement",
	Long: `Fetch recent candles for the configured symbol, align them with stored
daily sentiment, and report Pearson, Spearman, and direction accuracy.

Example:
  marketintel backtest
  marketintel backtest --days 60`,
	Run: func(cmd *cobra.Command, args []string) {
		days, _ := cmd.Flags().GetInt("days")

		app, err := buildApp(cmd.Context())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
		defer app.Close()

		result, err := buildBacktester(app).Run(cmd.Context(), days)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Backtest failed: %s\n", err)
			os.Exit(1)
		}

		fmt.Printf("Backtest vs %s over %d aligned days\n", result.Symbol, result.AlignedDays)
		fmt.Printf("  Pearson:            %+.3f\n", result.Pearson)
		fmt.Printf("  Spearman:           %+.3f\n", result.Spearman)
		fmt.Printf("  Direction accuracy: %.1f%%\n", result.DirectionAccuracy*100)
	},
}

var scorecardCmd = &cobra.Command{
	Use:   "scorecard",
	Short: "Grade the current week's predictions",
	Run: func(cmd *cobra.Command, args []string) {
		app, err := buildApp(cmd.Context())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
		defer app.Close()

		card, err := buildBacktester(app).WeeklyScorecard(cmd.Context(), time.Now().UTC())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Scorecard failed: %s\n", err)
			os.Exit(1)
		}

		fmt.Printf("Week of %s: grade %s\n", card.WeekStart, card.Grade)
		fmt.Printf("  Aligned days:       %d\n", card.AlignedDays)
		fmt.Printf("  Pearson:            %+.3f\n", card.Pearson)
		fmt.Printf("  Direction accuracy: %.1f%%\n", card.DirectionAccuracy*100)
	},
}

var optimizeWeightsCmd = &cobra.Command{
	Use:   "optimize-weights",
	Short: "Grid-search impact weights against market correlation",
	Long: `Search the impact-weight grid for the combination whose daily sentiment
correlates best with market movement, and persist the winner. Subsequent
enrichment runs pick the weights up automatically while they stay fresh.`,
	Run: func(cmd *cobra.Command, args []string) {
		days, _ := cmd.Flags().GetInt("days")

		app, err := buildApp(cmd.Context())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
		defer app.Close()

		best, err := validation.NewOptimizer(app.Store).Optimize(days)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Optimization failed: %s\n", err)
			os.Exit(1)
		}

		w := best.Weights
		fmt.Printf("Best weights over %d aligned days\n", best.AlignedDays)
		fmt.Printf("  sentiment=%.2f cluster=%.2f source=%.2f recency=%.2f\n",
			w.Sentiment, w.Cluster, w.Source, w.Recency)
		fmt.Printf("  |r| = %.3f (baseline %.3f)\n", best.Pearson, best.BaselineR)
	},
}

func init() {
	rootCmd.AddCommand(backtestCmd)
	rootCmd.AddCommand(scorecardCmd)
	rootCmd.AddCommand(optimizeWeightsCmd)
	backtestCmd.Flags().Int("days", 30, "History window in days")
	optimizeWeightsCmd.Flags().Int("days", 30, "History window in days")
}
