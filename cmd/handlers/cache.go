package handlers

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the local database and API-response cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database and cache statistics",
	Run: func(cmd *cobra.Command, args []string) {
		app, err := buildApp(cmd.Context())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
		defer app.Close()

		stats, err := app.Store.GetStats()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading stats: %s\n", err)
			os.Exit(1)
		}

		fmt.Println("Database Statistics:")
		fmt.Println("====================")
		fmt.Printf("Raw articles:      %d\n", stats.RawArticles)
		fmt.Printf("Enriched articles: %d\n", stats.EnrichedArticles)
		fmt.Printf("Clusters:          %d\n", stats.Clusters)
		fmt.Printf("Briefings:         %d\n", stats.Briefings)
		fmt.Printf("Narrative threads: %d\n", stats.Threads)
		fmt.Printf("Cache entries:     %d\n", stats.CacheEntries)
		fmt.Printf("Database size:     %.2f MB\n", float64(stats.FileSizeBytes)/(1024*1024))
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the API-response cache",
	Long: `Remove all cached API responses (sentiment, embeddings, clusters, and
briefing gate entries). Stored articles and analytics are not touched.`,
	Run: func(cmd *cobra.Command, args []string) {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			fmt.Println("This will delete all cached API responses. Use --confirm to proceed.")
			return
		}

		app, err := buildApp(cmd.Context())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
		defer app.Close()

		if err := app.Store.ClearCacheEntries(); err != nil {
			fmt.Fprintf(os.Stderr, "Error clearing cache: %s\n", err)
			os.Exit(1)
		}
		fmt.Println("Cache cleared")
	},
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete articles older than the retention window",
	Run: func(cmd *cobra.Command, args []string) {
		days, _ := cmd.Flags().GetInt("days")

		app, err := buildApp(cmd.Context())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
		defer app.Close()

		pruned, err := app.Store.PruneRawArticles(time.Duration(days) * 24 * time.Hour)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error pruning articles: %s\n", err)
			os.Exit(1)
		}
		fmt.Printf("Pruned %d rows older than %d days\n", pruned, days)
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cachePruneCmd)
	cacheClearCmd.Flags().Bool("confirm", false, "Confirm deletion")
	cachePruneCmd.Flags().Int("days", 90, "Retention window in days")
}
