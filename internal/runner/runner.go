// Package runner executes crawl jobs: one fresh browser session per
// profile, crawled in order, with the rows merged into a single artifact.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/profile-crawler/internal/clock/system"
	"github.com/JakeFAU/profile-crawler/internal/crawler"
	"github.com/JakeFAU/profile-crawler/internal/hash/sha256"
	"github.com/JakeFAU/profile-crawler/internal/logging"
	"github.com/JakeFAU/profile-crawler/internal/metrics"
	"github.com/JakeFAU/profile-crawler/internal/report"
)

const tracerName = "github.com/JakeFAU/profile-crawler/internal/runner"

// Status is the outcome of a whole job.
type Status string

// Job statuses.
const (
	StatusSucceeded Status = "succeeded"
	StatusPartial   Status = "partial"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// SessionFactory opens a fresh page accessor for one profile.
type SessionFactory interface {
	Open(ctx context.Context) (crawler.PageAccessor, error)
}

// SessionFactoryFunc adapts a function to SessionFactory.
type SessionFactoryFunc func(ctx context.Context) (crawler.PageAccessor, error)

// Open calls f.
func (f SessionFactoryFunc) Open(ctx context.Context) (crawler.PageAccessor, error) {
	return f(ctx)
}

// RunStore records run lifecycle rows.
type RunStore interface {
	StartRun(ctx context.Context, runID string, startedAt time.Time, profiles []string, window crawler.Window) error
	CompleteRun(ctx context.Context, runID string, finishedAt time.Time, status string, errText string) error
}

// Job is one crawl request.
type Job struct {
	// RunID is generated when empty.
	RunID    string
	Profiles []string
	Window   crawler.Window
	Username string
	Password string
	// Output names the merged CSV inside Config.OutputDir.
	Output string
}

// ProfileResult summarizes the crawl of one profile.
type ProfileResult struct {
	Profile       string             `json:"profile"`
	Reason        crawler.StopReason `json:"reason,omitempty"`
	Visited       int                `json:"visited"`
	Recorded      int                `json:"recorded"`
	Rows          int                `json:"rows"`
	Error         string             `json:"error,omitempty"`
	ScreenshotURI string             `json:"screenshot_uri,omitempty"`
}

func (p ProfileResult) failed() bool {
	return p.Error != "" && p.Recorded == 0
}

// Report is what a job produced.
type Report struct {
	RunID       string          `json:"run_id"`
	Status      Status          `json:"status"`
	OutputPath  string          `json:"output_path"`
	ArtifactURI string          `json:"artifact_uri,omitempty"`
	SHA256      string          `json:"sha256,omitempty"`
	Rows        int             `json:"rows"`
	Records     int             `json:"records"`
	Profiles    []ProfileResult `json:"profiles"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at"`
	ErrorText   string          `json:"error,omitempty"`
}

// Config controls Runner behavior.
type Config struct {
	OutputDir   string
	EmptyPolicy report.EmptyPolicy
	// Session carries the login and first-post settings. Credentials come from the Job.
	Session crawler.SessionOptions
	// Controller carries the walk settings. RunID, Profile, and Window come from the Job.
	Controller crawler.Options
	// Topic receives the completion message when a publisher is set.
	Topic string
}

// Deps are the collaborators of a Runner. Sessions and Extractor are required.
type Deps struct {
	Sessions  SessionFactory
	Extractor crawler.FieldExtractor
	Blobs     crawler.BlobStore
	// Posts, when set, receives every record. Its failures are logged and
	// never stop a walk.
	Posts     crawler.RecordSink
	Runs      RunStore
	Publisher crawler.Publisher
	Pauser    crawler.Pauser
	Clock     crawler.Clock
	IDs       crawler.IDGenerator
}

// Runner executes jobs sequentially.
type Runner struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
}

// New constructs a Runner.
func New(cfg Config, deps Deps, logger *zap.Logger) (*Runner, error) {
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session factory is required")
	}
	if deps.Extractor == nil {
		return nil, fmt.Errorf("field extractor is required")
	}
	if len(cfg.Controller.Next) == 0 {
		return nil, fmt.Errorf("next-post locators are required")
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "."
	}
	if cfg.EmptyPolicy == "" {
		cfg.EmptyPolicy = report.EmptyMetadata
	}
	if deps.Pauser == nil {
		deps.Pauser = crawler.NoPause{}
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{cfg: cfg, deps: deps, logger: logger.Named("runner")}, nil
}

// ParseProfiles splits a delimited list of profile URLs. Commas,
// semicolons, and whitespace all separate entries.
func ParseProfiles(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Run crawls every profile of job and merges the rows. The returned error
// is reserved for invalid jobs and for failures to produce the merged file;
// crawl failures are reflected in Report.Status.
func (r *Runner) Run(ctx context.Context, job Job) (Report, error) {
	if len(job.Profiles) == 0 {
		return Report{}, fmt.Errorf("at least one profile is required")
	}
	if strings.TrimSpace(job.Output) == "" {
		return Report{}, fmt.Errorf("output name is required")
	}
	if job.RunID == "" {
		if r.deps.IDs == nil {
			return Report{}, fmt.Errorf("run id is required when no id generator is configured")
		}
		id, err := r.deps.IDs.NewID()
		if err != nil {
			return Report{}, fmt.Errorf("generate run id: %w", err)
		}
		job.RunID = id
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "runner.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("run.id", job.RunID),
		attribute.Int("run.profiles", len(job.Profiles)),
	)

	rep := Report{
		RunID:      job.RunID,
		OutputPath: outputPath(r.cfg.OutputDir, job.Output),
		StartedAt:  r.deps.Clock.Now(),
	}
	logger := logging.ForRun(r.logger, job.RunID, "")
	logger.Info("run started",
		zap.Strings("profiles", job.Profiles),
		zap.String("window", job.Window.String()),
	)
	if r.deps.Runs != nil {
		if err := r.deps.Runs.StartRun(ctx, job.RunID, rep.StartedAt, job.Profiles, job.Window); err != nil {
			logger.Warn("record run start failed", zap.Error(err))
		}
	}

	var parts []string
	var errTexts []string
	for i, profile := range job.Profiles {
		if ctx.Err() != nil {
			rep.Profiles = append(rep.Profiles, ProfileResult{Profile: profile, Reason: crawler.StopCanceled, Error: ctx.Err().Error()})
			continue
		}
		part := filepath.Join(r.cfg.OutputDir, fmt.Sprintf(".%s-part-%02d.csv", job.RunID, i+1))
		res := r.crawlProfile(ctx, job, profile, part)
		if _, err := os.Stat(part); err == nil {
			parts = append(parts, part)
		}
		if res.Error != "" {
			errTexts = append(errTexts, fmt.Sprintf("%s: %s", profile, res.Error))
		}
		rep.Profiles = append(rep.Profiles, res)
		rep.Records += res.Recorded
	}

	rows, err := report.MergeFiles(rep.OutputPath, parts, true)
	if err != nil && !errors.Is(err, report.ErrSourcesNotRemoved) {
		rep.Status = StatusFailed
		rep.ErrorText = err.Error()
		r.finish(ctx, job, &rep, logger)
		return rep, fmt.Errorf("merge profile outputs: %w", err)
	}
	if err != nil {
		logger.Warn("cleanup of per-profile files failed", zap.Error(err))
	}
	rep.Rows = len(rows)
	if sum, err := sha256.File(rep.OutputPath); err != nil {
		logger.Warn("checksum output failed", zap.Error(err))
	} else {
		rep.SHA256 = sum
	}

	if uri, err := r.upload(ctx, job, rep.OutputPath); err != nil {
		logger.Error("artifact upload failed", zap.Error(err))
		errTexts = append(errTexts, err.Error())
	} else {
		rep.ArtifactURI = uri
	}

	rep.Status = deriveFinalStatus(ctx, rep.Profiles)
	rep.ErrorText = strings.Join(errTexts, "; ")
	r.finish(ctx, job, &rep, logger)
	span.SetAttributes(attribute.String("run.status", string(rep.Status)), attribute.Int("run.records", rep.Records))
	if rep.Status == StatusFailed {
		span.SetStatus(codes.Error, rep.ErrorText)
	}
	return rep, nil
}

func (r *Runner) finish(ctx context.Context, job Job, rep *Report, logger *zap.Logger) {
	rep.FinishedAt = r.deps.Clock.Now()
	// The completion bookkeeping must land even when the crawl was canceled.
	bg := context.WithoutCancel(ctx)
	if r.deps.Runs != nil {
		if err := r.deps.Runs.CompleteRun(bg, job.RunID, rep.FinishedAt, string(rep.Status), rep.ErrorText); err != nil {
			logger.Warn("record run completion failed", zap.Error(err))
		}
	}
	if err := r.publish(bg, job, *rep); err != nil {
		logger.Warn("completion publish failed", zap.Error(err))
	}
	metrics.ObserveRun(string(rep.Status))
	logger.Info("run finished",
		zap.String("status", string(rep.Status)),
		zap.Int("rows", rep.Rows),
		zap.Int("records", rep.Records),
		zap.String("output", rep.OutputPath),
		zap.String("artifact_uri", rep.ArtifactURI),
		zap.Duration("duration", rep.FinishedAt.Sub(rep.StartedAt)),
	)
}

func (r *Runner) crawlProfile(ctx context.Context, job Job, profile, part string) ProfileResult {
	res := ProfileResult{Profile: profile}
	logger := logging.ForRun(r.logger, job.RunID, profile)
	ctx, span := otel.Tracer(tracerName).Start(ctx, "runner.crawlProfile")
	span.SetAttributes(attribute.String("crawl.profile", profile))
	defer func() {
		span.SetAttributes(
			attribute.String("crawl.stop_reason", string(res.Reason)),
			attribute.Int("crawl.recorded", res.Recorded),
		)
		if res.Error != "" {
			span.SetStatus(codes.Error, res.Error)
		}
		span.End()
	}()

	page, err := r.deps.Sessions.Open(ctx)
	if err != nil {
		res.Error = fmt.Errorf("%w: open browser: %w", crawler.ErrSessionUnusable, err).Error()
		logger.Error("browser session unavailable", zap.Error(err))
		return res
	}
	defer func() {
		if err := page.Close(); err != nil {
			logger.Warn("close browser session", zap.Error(err))
		}
	}()

	sessOpts := r.cfg.Session
	sessOpts.Username = job.Username
	sessOpts.Password = job.Password
	session := crawler.NewSession(page, sessOpts, r.deps.Pauser, logger)
	if err := session.Open(ctx, profile); err != nil {
		res.Error = err.Error()
		res.ScreenshotURI = r.diagnose(ctx, page, job.RunID, profile, logger)
		logger.Error("session unusable", zap.Error(err))
		return res
	}

	out, err := report.CreateCSV(part)
	if err != nil {
		res.Error = err.Error()
		logger.Error("create profile output failed", zap.Error(err))
		return res
	}
	assembler := report.NewAssembler(r.cfg.EmptyPolicy, out)
	sink := crawler.MultiSink{assembler}
	if r.deps.Posts != nil {
		sink = append(sink, bestEffort{sink: r.deps.Posts, logger: logger})
	}

	opts := r.cfg.Controller
	opts.RunID = job.RunID
	opts.Profile = profile
	opts.Window = job.Window
	controller, err := crawler.NewController(page, r.deps.Extractor, sink, r.deps.Pauser, opts, logger)
	if err != nil {
		_ = out.Close()
		res.Error = err.Error()
		return res
	}
	result, runErr := controller.Run(ctx)
	if err := out.Close(); err != nil {
		logger.Error("close profile output failed", zap.Error(err))
		if runErr == nil {
			runErr = err
		}
	}
	res.Reason = result.Reason
	res.Visited = result.Visited
	res.Recorded = assembler.Records()
	res.Rows = len(assembler.Finalize())
	if runErr != nil {
		res.Error = runErr.Error()
	}
	if result.Reason == crawler.StopNavigation || result.Reason == crawler.StopStalled {
		res.ScreenshotURI = r.diagnose(ctx, page, job.RunID, profile, logger)
	}
	return res
}

// diagnose stores a screenshot of the current page. Failures are logged only.
func (r *Runner) diagnose(ctx context.Context, page crawler.PageAccessor, runID, profile string, logger *zap.Logger) string {
	if r.deps.Blobs == nil {
		return ""
	}
	bg := context.WithoutCancel(ctx)
	shot, err := page.Screenshot(bg)
	if err != nil {
		if !errors.Is(err, crawler.ErrUnsupported) {
			logger.Warn("diagnostic screenshot failed", zap.Error(err))
		}
		return ""
	}
	path := fmt.Sprintf("diagnostics/%s/%s.png", runID, crawler.SafeBasename(profile))
	uri, err := r.deps.Blobs.PutObject(bg, path, "image/png", bytes.NewReader(shot))
	if err != nil {
		logger.Warn("store diagnostic screenshot failed", zap.Error(err))
		return ""
	}
	logger.Info("diagnostic screenshot stored", zap.String("uri", uri))
	return uri
}

func (r *Runner) upload(ctx context.Context, job Job, path string) (string, error) {
	if r.deps.Blobs == nil {
		return "", nil
	}
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("open output: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only handle
	uri, err := r.deps.Blobs.PutObject(context.WithoutCancel(ctx), fmt.Sprintf("%s/%s", job.RunID, filepath.Base(path)), "text/csv; charset=utf-8", f)
	if err != nil {
		return "", fmt.Errorf("upload output: %w", err)
	}
	return uri, nil
}

func (r *Runner) publish(ctx context.Context, job Job, rep Report) error {
	if r.cfg.Topic == "" || r.deps.Publisher == nil {
		return nil
	}
	payload := map[string]any{
		"run_id":       job.RunID,
		"status":       rep.Status,
		"profiles":     job.Profiles,
		"window":       job.Window.String(),
		"rows":         rep.Rows,
		"records":      rep.Records,
		"artifact_uri": rep.ArtifactURI,
		"sha256":       rep.SHA256,
		"timestamp":    rep.FinishedAt.Format(time.RFC3339),
	}
	if _, err := r.deps.Publisher.Publish(ctx, r.cfg.Topic, payload); err != nil {
		return fmt.Errorf("publish payload: %w", err)
	}
	return nil
}

func deriveFinalStatus(ctx context.Context, profiles []ProfileResult) Status {
	failed := 0
	for _, p := range profiles {
		if p.failed() {
			failed++
		}
	}
	switch {
	case ctx.Err() != nil:
		return StatusCanceled
	case failed == len(profiles):
		return StatusFailed
	case failed > 0:
		return StatusPartial
	default:
		return StatusSucceeded
	}
}

func outputPath(dir, name string) string {
	name = strings.TrimSpace(name)
	if !strings.EqualFold(filepath.Ext(name), ".csv") {
		name += ".csv"
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}

type bestEffort struct {
	sink   crawler.RecordSink
	logger *zap.Logger
}

func (b bestEffort) Append(ctx context.Context, rec crawler.PostRecord) error {
	if err := b.sink.Append(ctx, rec); err != nil {
		b.logger.Warn("post store append failed", zap.Int("post_index", rec.Index), zap.Error(err))
	}
	return nil
}
