package runner_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/profile-crawler/internal/clock/system"
	"github.com/JakeFAU/profile-crawler/internal/crawler"
	"github.com/JakeFAU/profile-crawler/internal/crawler/crawlertest"
	"github.com/JakeFAU/profile-crawler/internal/hash/sha256"
	"github.com/JakeFAU/profile-crawler/internal/id/uuid"
	"github.com/JakeFAU/profile-crawler/internal/publisher/memory"
	"github.com/JakeFAU/profile-crawler/internal/report"
	"github.com/JakeFAU/profile-crawler/internal/runner"
	memstore "github.com/JakeFAU/profile-crawler/internal/storage/memory"
)

var firstPost = crawler.CSS("main a.post")

type fixture struct {
	browsers []*crawlertest.Browser
	ex       *crawlertest.Extractor
}

// addProfile registers a profile page whose first-post link opens posts[0].
func (f *fixture) addProfile(profile string, posts ...crawlertest.Post) *crawlertest.Browser {
	b, ex := crawlertest.Profile(posts...)
	page := crawlertest.NewPage()
	if len(posts) > 0 {
		page.Add(firstPost, crawlertest.Node{Text: "post", Href: posts[0].URL})
	}
	b.AddPage(profile, page)
	b.SetCurrent("")
	if f.ex == nil {
		f.ex = ex
	} else {
		for _, p := range posts {
			f.ex.Set(p.URL, p)
		}
	}
	f.browsers = append(f.browsers, b)
	return b
}

func (f *fixture) factory() runner.SessionFactory {
	var mu sync.Mutex
	next := 0
	return runner.SessionFactoryFunc(func(context.Context) (crawler.PageAccessor, error) {
		mu.Lock()
		defer mu.Unlock()
		if next >= len(f.browsers) {
			return nil, errors.New("no browser left")
		}
		b := f.browsers[next]
		next++
		return b, nil
	})
}

type runStore struct {
	mu       sync.Mutex
	started  []string
	statuses map[string]string
}

func (s *runStore) StartRun(_ context.Context, runID string, _ time.Time, _ []string, _ crawler.Window) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = append(s.started, runID)
	return nil
}

func (s *runStore) CompleteRun(_ context.Context, runID string, _ time.Time, status string, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statuses == nil {
		s.statuses = map[string]string{}
	}
	s.statuses[runID] = status
	return nil
}

func january(t *testing.T) crawler.Window {
	t.Helper()
	w, err := crawler.ParseWindow("2024-01-01", "2024-01-31")
	require.NoError(t, err)
	return w
}

func newRunner(t *testing.T, f *fixture, deps runner.Deps) (*runner.Runner, string) {
	t.Helper()
	dir := t.TempDir()
	deps.Sessions = f.factory()
	deps.Extractor = f.ex
	if deps.Clock == nil {
		deps.Clock = system.NewManual(time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC))
	}
	r, err := runner.New(runner.Config{
		OutputDir:  dir,
		Session:    crawler.SessionOptions{FirstPost: crawler.LocatorSet{firstPost}},
		Controller: crawler.Options{Next: crawler.LocatorSet{crawlertest.NextLocator}, AdvanceTimeout: 20 * time.Millisecond, AdvancePoll: time.Millisecond},
		Topic:      "runs",
	}, deps, nil)
	require.NoError(t, err)
	return r, dir
}

func TestRunMergesProfilesAndPublishes(t *testing.T) {
	t.Parallel()

	f := &fixture{}
	f.addProfile("https://www.instagram.com/acme/",
		crawlertest.Post{URL: "https://www.instagram.com/p/a1/", Date: "2024-01-20", Likes: crawler.KnownLikes(10), Texts: []string{"cap a1", "nice", "wow"}},
		crawlertest.Post{URL: "https://www.instagram.com/p/a2/", Date: "2023-12-01", Likes: crawler.KnownLikes(1)},
	)
	f.addProfile("https://www.instagram.com/beta/",
		crawlertest.Post{URL: "https://www.instagram.com/p/b1/", Date: "2024-01-05", Likes: crawler.HiddenLikes(), Texts: []string{"cap b1"}, NoNext: true},
	)

	blobs := memstore.NewBlobStore()
	posts := memstore.NewPostStore()
	pub := memory.New()
	runs := &runStore{}
	r, dir := newRunner(t, f, runner.Deps{Blobs: blobs, Posts: posts, Publisher: pub, Runs: runs, IDs: uuid.NewSequence("run-1")})

	rep, err := r.Run(context.Background(), runner.Job{
		Profiles: []string{"https://www.instagram.com/acme/", "https://www.instagram.com/beta/"},
		Window:   january(t),
		Output:   "combined",
	})
	require.NoError(t, err)

	assert.Equal(t, runner.StatusSucceeded, rep.Status)
	assert.Equal(t, "run-1", rep.RunID)
	assert.Equal(t, filepath.Join(dir, "combined.csv"), rep.OutputPath)
	// a2 predates the window but falls inside the pin grace, so it is kept.
	assert.Equal(t, 3, rep.Records)
	assert.Equal(t, 4, rep.Rows)
	require.Len(t, rep.Profiles, 2)
	assert.Equal(t, crawler.StopNoNext, rep.Profiles[0].Reason)
	assert.Equal(t, crawler.StopNoNext, rep.Profiles[1].Reason)
	assert.True(t, f.browsers[0].Closed())
	assert.True(t, f.browsers[1].Closed())

	rows, err := report.ReadCSVFile(rep.OutputPath)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "cap a1", rows[0].Caption)
	assert.Equal(t, "nice", rows[0].Comment)
	assert.True(t, rows[1].IsContinuation())
	assert.Equal(t, "wow", rows[1].Comment)
	assert.Equal(t, "https://www.instagram.com/p/a2/", rows[2].URL)
	assert.Equal(t, "https://www.instagram.com/p/b1/", rows[3].URL)
	assert.Equal(t, 1, rows[3].Post)
	assert.Equal(t, "Hidden", rows[3].Likes)

	leftovers, err := filepath.Glob(filepath.Join(dir, ".run-1-part-*.csv"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)

	assert.Equal(t, "memory://run-1/combined.csv", rep.ArtifactURI)
	data, ct, ok := blobs.Object("run-1/combined.csv")
	require.True(t, ok)
	assert.Equal(t, "text/csv; charset=utf-8", ct)
	onDisk, err := os.ReadFile(rep.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, onDisk, data)
	assert.Equal(t, sha256.Hash(onDisk), rep.SHA256)

	assert.Len(t, posts.Posts("run-1"), 3)
	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "runs", msgs[0].Topic)
	assert.Contains(t, string(msgs[0].Data), `"status":"succeeded"`)
	assert.Contains(t, string(msgs[0].Data), rep.SHA256)
	assert.Equal(t, []string{"run-1"}, runs.started)
	assert.Equal(t, "succeeded", runs.statuses["run-1"])
}

func TestRunPartialWhenOneSessionIsUnusable(t *testing.T) {
	t.Parallel()

	f := &fixture{}
	broken := f.addProfile("https://www.instagram.com/broken/")
	broken.ScreenshotData = []byte("png")
	f.addProfile("https://www.instagram.com/ok/",
		crawlertest.Post{URL: "https://www.instagram.com/p/o1/", Date: "2024-01-02", Likes: crawler.KnownLikes(3), Texts: []string{"hi"}, NoNext: true},
	)

	blobs := memstore.NewBlobStore()
	r, _ := newRunner(t, f, runner.Deps{Blobs: blobs})
	rep, err := r.Run(context.Background(), runner.Job{
		RunID:    "run-2",
		Profiles: []string{"https://www.instagram.com/broken/", "https://www.instagram.com/ok/"},
		Window:   january(t),
		Output:   "out.csv",
	})
	require.NoError(t, err)

	assert.Equal(t, runner.StatusPartial, rep.Status)
	assert.Contains(t, rep.Profiles[0].Error, crawler.ErrSessionUnusable.Error())
	assert.True(t, strings.HasPrefix(rep.Profiles[0].ScreenshotURI, "memory://diagnostics/run-2/www.instagram.com_broken_"))
	assert.True(t, strings.HasSuffix(rep.Profiles[0].ScreenshotURI, ".png"))
	assert.Contains(t, rep.ErrorText, "https://www.instagram.com/broken/")
	assert.Equal(t, 1, rep.Records)
	assert.True(t, broken.Closed())

	var shots int
	for _, p := range blobs.Paths() {
		if filepath.Ext(p) == ".png" {
			shots++
		}
	}
	assert.Equal(t, 1, shots)
}

func TestRunFailedStillWritesHeaderOnlyOutput(t *testing.T) {
	t.Parallel()

	f := &fixture{}
	f.addProfile("https://www.instagram.com/gone/")
	pub := memory.New()
	r, _ := newRunner(t, f, runner.Deps{Publisher: pub})

	rep, err := r.Run(context.Background(), runner.Job{
		RunID:    "run-3",
		Profiles: []string{"https://www.instagram.com/gone/", "https://www.instagram.com/never-opened/"},
		Window:   january(t),
		Output:   "out",
	})
	require.NoError(t, err)
	assert.Equal(t, runner.StatusFailed, rep.Status)
	assert.Contains(t, rep.Profiles[1].Error, "no browser left")

	rows, err := report.ReadCSVFile(rep.OutputPath)
	require.NoError(t, err)
	assert.Empty(t, rows)
	require.Len(t, pub.Messages(), 1)
}

func TestRunCanceled(t *testing.T) {
	t.Parallel()

	f := &fixture{}
	f.addProfile("https://www.instagram.com/acme/",
		crawlertest.Post{URL: "https://www.instagram.com/p/a1/", Date: "2024-01-20"},
	)
	runs := &runStore{}
	r, _ := newRunner(t, f, runner.Deps{Runs: runs})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep, err := r.Run(ctx, runner.Job{
		RunID:    "run-4",
		Profiles: []string{"https://www.instagram.com/acme/"},
		Window:   january(t),
		Output:   "out",
	})
	require.NoError(t, err)
	assert.Equal(t, runner.StatusCanceled, rep.Status)
	assert.Equal(t, crawler.StopCanceled, rep.Profiles[0].Reason)
	assert.Equal(t, "canceled", runs.statuses["run-4"])
}

type failingSink struct{}

func (failingSink) Append(context.Context, crawler.PostRecord) error {
	return errors.New("db down")
}

func TestRunPostStoreFailuresAreNotFatal(t *testing.T) {
	t.Parallel()

	f := &fixture{}
	f.addProfile("https://www.instagram.com/acme/",
		crawlertest.Post{URL: "https://www.instagram.com/p/a1/", Date: "2024-01-20", Texts: []string{"c"}},
		crawlertest.Post{URL: "https://www.instagram.com/p/a2/", Date: "2024-01-19", Texts: []string{"d"}, NoNext: true},
	)
	r, _ := newRunner(t, f, runner.Deps{Posts: failingSink{}})
	rep, err := r.Run(context.Background(), runner.Job{
		RunID:    "run-5",
		Profiles: []string{"https://www.instagram.com/acme/"},
		Window:   january(t),
		Output:   "out",
	})
	require.NoError(t, err)
	assert.Equal(t, runner.StatusSucceeded, rep.Status)
	assert.Equal(t, 2, rep.Records)
}

func TestRunValidation(t *testing.T) {
	t.Parallel()

	f := &fixture{}
	r, _ := newRunner(t, f, runner.Deps{})
	_, err := r.Run(context.Background(), runner.Job{Output: "x"})
	require.Error(t, err)
	_, err = r.Run(context.Background(), runner.Job{Profiles: []string{"p"}})
	require.Error(t, err)
	_, err = r.Run(context.Background(), runner.Job{Profiles: []string{"p"}, Output: "x"})
	require.ErrorContains(t, err, "id generator")

	_, err = runner.New(runner.Config{}, runner.Deps{}, nil)
	require.Error(t, err)
}

func TestParseProfiles(t *testing.T) {
	t.Parallel()

	got := runner.ParseProfiles(" https://a/ , https://b/;https://c/\nhttps://d/ ,, ")
	assert.Equal(t, []string{"https://a/", "https://b/", "https://c/", "https://d/"}, got)
	assert.Empty(t, runner.ParseProfiles(" , ; "))
}
