package handlers

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"marketintel/internal/logger"
	"marketintel/internal/scheduler"
	"marketintel/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the read API and the background scheduler",
	Long: `Serve the news feed and market-terminal endpoints over HTTP. Unless
disabled, a background scheduler runs the pipeline once on startup and then
on the configured interval (default every 6 hours).`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app, err := buildApp(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
		defer app.Close()

		if app.Config.Scheduler.Enabled {
			sched := scheduler.New()
			job := scheduler.JobFunc{JobName: "pipeline", Fn: runForScheduler(app)}
			if err := sched.AddJob(app.Config.Scheduler.Schedule, job); err != nil {
				fmt.Fprintf(os.Stderr, "Error registering pipeline job: %s\n", err)
				os.Exit(1)
			}
			sched.Start()
			defer sched.Stop()

			// Seed today's data before the first tick.
			go func() {
				if err := sched.RunNow(job); err != nil {
					logger.Warn("startup pipeline run failed", "error", err.Error())
				}
			}()
		}

		srv := server.New(app.Store, app.Pipeline, app.Config.App.DataDir, app.Config.Server.Port)
		if err := srv.ListenAndServe(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Server error: %s\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
