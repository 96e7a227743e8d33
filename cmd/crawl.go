package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/profile-crawler/internal/app"
	"github.com/JakeFAU/profile-crawler/internal/browser/headless"
	"github.com/JakeFAU/profile-crawler/internal/crawler"
	"github.com/JakeFAU/profile-crawler/internal/metrics"
	"github.com/JakeFAU/profile-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/profile-crawler/internal/runner"
)

// defaultOutput names the merged CSV when no output identifier is given.
const defaultOutput = "scraped_data.csv"

// credentialFromConfig marks a positional credential that should be read
// from crawl.username or crawl.password instead.
const credentialFromConfig = "-"

// newSessionFactory builds the browser factory. Tests replace it.
var newSessionFactory = func(a *app.App) runner.SessionFactory {
	cfg := a.Config()
	return headless.Factory{
		Config: headless.Config{
			ExecPath:          cfg.Browser.ExecPath,
			Headless:          cfg.Browser.Headless,
			NoSandbox:         cfg.Browser.NoSandbox,
			UserAgent:         cfg.Browser.UserAgent,
			UserDataDir:       cfg.Browser.UserDataDir,
			WindowWidth:       cfg.Browser.WindowWidth,
			WindowHeight:      cfg.Browser.WindowHeight,
			NavigationTimeout: cfg.NavTimeout(),
			ElementTimeout:    cfg.ElementTimeout(),
		},
		Logger: a.Logger(),
	}
}

type crawlFlags struct {
	metricsAddr string
	asJSON      bool
	runID       string
}

// newCrawlCmd creates and configures the 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	var flags crawlFlags
	cmd := &cobra.Command{
		Use:   "crawl <profile_url[,profile_url...]> <start_date> <end_date> <username> <password> [output]",
		Short: "Crawls one or more profiles inside a date window",
		Long: `Logs in, opens the most recent post of each profile, and walks post by
post until a post older than start_date is reached (the first posts are
exempt, since pinned posts can be older) or there is no next post.

Dates are inclusive and formatted YYYY-MM-DD. Several profiles may be given
separated by commas, semicolons, or spaces; their rows are merged into one
CSV and the per-profile files are removed. Pass "-" as username or password
to read it from the config or CRAWLER_CRAWL_USERNAME / CRAWLER_CRAWL_PASSWORD.`,
		Args: cobra.RangeArgs(5, 6),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawlCommand(cmd, args, flags)
		},
	}
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the crawl")
	cmd.Flags().BoolVar(&flags.asJSON, "json", false, "print the run report as JSON")
	cmd.Flags().StringVar(&flags.runID, "run-id", "", "run identifier (default: generated UUIDv7)")
	return cmd
}

func runCrawlCommand(cmd *cobra.Command, args []string, flags crawlFlags) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := appInstance.Config()
	logger := appInstance.Logger()

	profiles := runner.ParseProfiles(args[0])
	if len(profiles) == 0 {
		return errors.New("at least one profile URL is required")
	}
	window, err := crawler.ParseWindow(args[1], args[2])
	if err != nil {
		return err
	}
	username, password := args[3], args[4]
	if username == credentialFromConfig {
		username = cfg.Crawl.Username
	}
	if password == credentialFromConfig {
		password = cfg.Crawl.Password
	}
	output := defaultOutput
	if len(args) == 6 {
		output = args[5]
	}

	if flags.metricsAddr != "" {
		stop := serveMetrics(flags.metricsAddr, logger)
		defer stop()
	}

	pauser := ratelimit.New(ratelimit.Config{PerMinute: cfg.Crawl.ActionsPerMinute}, crawler.JitterPauser{})
	r, err := buildRunner(appInstance, newSessionFactory(appInstance), pipelineOptions{pauser: pauser})
	if err != nil {
		return err
	}
	return runJob(cmd.Context(), r, runner.Job{
		RunID:    flags.runID,
		Profiles: profiles,
		Window:   window,
		Username: username,
		Password: password,
		Output:   output,
	}, cmd.OutOrStdout(), flags.asJSON, logger)
}

// serveMetrics exposes the Prometheus handler until the returned func is called.
func serveMetrics(addr string, logger *zap.Logger) func() {
	metrics.Init()
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", addr))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("metrics server shutdown", zap.Error(err))
		}
	}
}
