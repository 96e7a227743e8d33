package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/profile-crawler/internal/browser/snapshot"
	"github.com/JakeFAU/profile-crawler/internal/crawler"
	"github.com/JakeFAU/profile-crawler/internal/runner"
)

// replayAdvanceTimeout is short because snapshot pages never load asynchronously.
const replayAdvanceTimeout = 100 * time.Millisecond

// newReplayCmd creates the 'replay' subcommand.
func newReplayCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "replay <fixture_dir> <start_date> <end_date> [output]",
		Short: "Runs the crawl against saved HTML pages",
		Long: `Loads every *.html file under fixture_dir (index.html is the profile page,
post pages are matched by URL path) and walks them with the same extraction
and stop rules as crawl, without a browser or login.`,
		Args: cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			window, err := crawler.ParseWindow(args[1], args[2])
			if err != nil {
				return err
			}
			output := defaultOutput
			if len(args) == 4 {
				output = args[3]
			}

			dir := args[0]
			if _, err := snapshot.Load(dir); err != nil {
				return err
			}
			sessions := runner.SessionFactoryFunc(func(context.Context) (crawler.PageAccessor, error) {
				return snapshot.Load(dir)
			})
			r, err := buildRunner(appInstance, sessions, pipelineOptions{
				advanceTimeout: replayAdvanceTimeout,
				elementWait:    &crawler.Wait{},
			})
			if err != nil {
				return err
			}
			return runJob(cmd.Context(), r, runner.Job{
				Profiles: []string{snapshot.BaseURL + "/"},
				Window:   window,
				Output:   output,
			}, cmd.OutOrStdout(), asJSON, appInstance.Logger())
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the run report as JSON")
	return cmd
}
