package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/profile-crawler/internal/app"
	"github.com/JakeFAU/profile-crawler/internal/crawler"
	"github.com/JakeFAU/profile-crawler/internal/extract"
	"github.com/JakeFAU/profile-crawler/internal/id/uuid"
	"github.com/JakeFAU/profile-crawler/internal/runner"
)

// pipelineOptions adjust what buildRunner derives from the config.
type pipelineOptions struct {
	pauser crawler.Pauser
	// advanceTimeout overrides crawl.advance_timeout_seconds when positive.
	advanceTimeout time.Duration
	elementWait    *crawler.Wait
}

// likeSettle caps the like-counter lookup once the post body has loaded.
const likeSettle = time.Second

// buildRunner wires the extraction stack and the app's stores into a Runner.
func buildRunner(a *app.App, sessions runner.SessionFactory, po pipelineOptions) (*runner.Runner, error) {
	cfg := a.Config()
	logger := a.Logger()

	loc, err := cfg.ResolvedLocators()
	if err != nil {
		return nil, fmt.Errorf("resolve selectors: %w", err)
	}
	pauseMin, pauseMax := cfg.PauseBounds()
	wait := crawler.Wait{Timeout: cfg.ElementTimeout()}
	if po.elementWait != nil {
		wait = *po.elementWait
	}
	advance := cfg.AdvanceTimeout()
	if po.advanceTimeout > 0 {
		advance = po.advanceTimeout
	}

	paginator, err := extract.NewPaginator(extract.PaginatorConfig{
		Items:       loc.CommentItems,
		LoadMore:    loc.LoadMore,
		MaxRounds:   cfg.Crawl.MaxLoadMoreRounds,
		StallRounds: cfg.Crawl.StallRounds,
		PauseMin:    pauseMin,
		PauseMax:    pauseMax,
	}, po.pauser, logger)
	if err != nil {
		return nil, fmt.Errorf("init paginator: %w", err)
	}
	likeWait := wait
	likeWait.Timeout = min(wait.Timeout, likeSettle)
	extractor, err := extract.NewExtractor(loc, paginator, extract.Config{
		FieldWait:     wait,
		LikeWait:      likeWait,
		ContainerWait: wait,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init extractor: %w", err)
	}

	deps := runner.Deps{
		Sessions:  sessions,
		Extractor: extractor,
		Blobs:     a.Blobs(),
		Publisher: a.Publisher(),
		Pauser:    po.pauser,
		IDs:       uuid.New(),
	}
	if posts := a.Posts(); posts != nil {
		deps.Posts = posts
		deps.Runs = posts
	}

	return runner.New(runner.Config{
		OutputDir:   cfg.Output.Dir,
		EmptyPolicy: cfg.EmptyPolicy(),
		Session: crawler.SessionOptions{
			LoginURL:      cfg.Crawl.LoginURL,
			UsernameField: loc.UsernameField,
			PasswordField: loc.PasswordField,
			Submit:        loc.LoginSubmit,
			FirstPost:     loc.FirstPost,
			ElementWait:   wait,
			SettleMin:     pauseMin,
			SettleMax:     pauseMax,
		},
		Controller: crawler.Options{
			PinGrace:        cfg.Crawl.PinGrace,
			MaxPosts:        cfg.Crawl.MaxPosts,
			Next:            loc.Next,
			AdvanceTimeout:  advance,
			PostPauseMin:    pauseMin,
			PostPauseMax:    pauseMax,
			VisitedCapacity: cfg.Crawl.VisitedCapacity,
		},
		Topic: cfg.PubSub.TopicName,
	}, deps, logger)
}

// runJob executes job and prints the report. A failed or canceled run is
// returned as an error so the process exits non-zero.
func runJob(ctx context.Context, r *runner.Runner, job runner.Job, out io.Writer, asJSON bool, logger *zap.Logger) error {
	rep, err := r.Run(ctx, job)
	if err != nil {
		return err
	}
	if err := printReport(out, rep, asJSON); err != nil {
		logger.Warn("print report failed", zap.Error(err))
	}
	switch rep.Status {
	case runner.StatusFailed:
		return fmt.Errorf("run %s failed: %s", rep.RunID, rep.ErrorText)
	case runner.StatusCanceled:
		return fmt.Errorf("run %s canceled", rep.RunID)
	}
	return nil
}

func printReport(w io.Writer, rep runner.Report, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	if _, err := fmt.Fprintf(w, "run %s %s: %d posts, %d rows -> %s\n",
		rep.RunID, rep.Status, rep.Records, rep.Rows, rep.OutputPath); err != nil {
		return err
	}
	for _, p := range rep.Profiles {
		line := fmt.Sprintf("  %s: %s, visited %d, recorded %d", p.Profile, p.Reason, p.Visited, p.Recorded)
		if p.Error != "" {
			line += ", error: " + p.Error
		}
		if p.ScreenshotURI != "" {
			line += ", screenshot: " + p.ScreenshotURI
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	if rep.ArtifactURI != "" {
		if _, err := fmt.Fprintf(w, "artifact: %s\n", rep.ArtifactURI); err != nil {
			return err
		}
	}
	return nil
}
