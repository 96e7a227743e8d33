package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/profile-crawler/internal/analytics"
	"github.com/JakeFAU/profile-crawler/internal/app"
	"github.com/JakeFAU/profile-crawler/internal/crawler"
	"github.com/JakeFAU/profile-crawler/internal/report"
	"github.com/JakeFAU/profile-crawler/internal/runner"
)

const fixtureDir = "../internal/browser/snapshot/testdata/profile"

// writeConfig writes a config that keeps every artifact under a temp dir.
func writeConfig(t *testing.T) (cfgPath, outDir string) {
	t.Helper()
	dir := t.TempDir()
	outDir = filepath.Join(dir, "out")
	cfgPath = filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf(`
logging:
  level: error
crawl:
  pause_min_ms: 0
  pause_max_ms: 0
  advance_timeout_seconds: 1
browser:
  element_timeout_seconds: 1
output:
  dir: %q
storage:
  backend: memory
`, outDir)
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o600))
	return cfgPath, outDir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCrawlRequiresPositionalArgs(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	out, err := execute(t, "--config", cfgPath, "crawl", "https://www.instagram.com/acme/", "2024-01-01", "2024-01-31", "user")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts between 5 and 6 arg(s)")
	assert.Contains(t, out, "Usage:")
}

func TestCrawlRejectsReversedWindow(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	_, err := execute(t, "--config", cfgPath, "crawl", "https://www.instagram.com/acme/", "2024-02-01", "2024-01-01", "-", "-")
	require.Error(t, err)
}

func TestCrawlSessionFailureExitsNonZero(t *testing.T) {
	cfgPath, outDir := writeConfig(t)

	orig := newSessionFactory
	t.Cleanup(func() { newSessionFactory = orig })
	opened := 0
	newSessionFactory = func(*app.App) runner.SessionFactory {
		return runner.SessionFactoryFunc(func(context.Context) (crawler.PageAccessor, error) {
			opened++
			return nil, errors.New("chrome not found")
		})
	}

	out, err := execute(t, "--config", cfgPath, "crawl",
		"https://www.instagram.com/a/; https://www.instagram.com/b/",
		"2024-01-01", "2024-01-31", "-", "-", "combined", "--run-id", "run-fail")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run run-fail failed")
	assert.Equal(t, 2, opened)
	assert.Contains(t, out, "chrome not found")
	assert.NotContains(t, out, "Usage:")

	rows, readErr := report.ReadCSVFile(filepath.Join(outDir, "combined.csv"))
	require.NoError(t, readErr)
	assert.Empty(t, rows)
}

func TestReplayWritesCSV(t *testing.T) {
	cfgPath, outDir := writeConfig(t)

	out, err := execute(t, "--config", cfgPath, "replay", fixtureDir, "2024-01-01", "2024-01-31", "replay.csv", "--json")
	require.NoError(t, err)

	var rep runner.Report
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, runner.StatusSucceeded, rep.Status)
	assert.Equal(t, 3, rep.Records)
	assert.Equal(t, 5, rep.Rows)
	require.Len(t, rep.Profiles, 1)
	assert.Equal(t, crawler.StopDateBoundary, rep.Profiles[0].Reason)
	assert.Contains(t, rep.ArtifactURI, "replay.csv")

	rows, err := report.ReadCSVFile(filepath.Join(outDir, "replay.csv"))
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, 1, rows[0].Post)
	assert.Equal(t, "Hidden", rows[4].Likes)

	parts, err := filepath.Glob(filepath.Join(outDir, ".*-part-*.csv"))
	require.NoError(t, err)
	assert.Empty(t, parts)
}

func TestReplayMissingFixture(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	_, err := execute(t, "--config", cfgPath, "replay", filepath.Join(t.TempDir(), "none"), "2024-01-01", "2024-01-31")
	require.Error(t, err)
}

func writeSampleCSV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.csv")
	f, err := report.CreateCSV(path)
	require.NoError(t, err)
	require.NoError(t, f.WriteRows([]report.OutputRow{
		{Post: 1, URL: "https://x/p/1/", Date: "2024-01-20", Time: "10:00:00", Likes: "1234567", Caption: "Sunset #beach", Comment: "love it"},
		{Comment: "awful light"},
		{Post: 2, URL: "https://x/p/2/", Date: "2024-01-10", Time: "09:00:00", Likes: "Hidden", Caption: "#beach"},
	}))
	require.NoError(t, f.Close())
	return path
}

func TestAnalyzeText(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	out, err := execute(t, "--config", cfgPath, "analyze", writeSampleCSV(t))
	require.NoError(t, err)
	assert.Contains(t, out, "Total posts:    2")
	assert.Contains(t, out, "Total likes:    12,34,567")
	assert.Contains(t, out, "Total comments: 2")
	assert.Contains(t, out, "#beach")
	assert.Contains(t, out, "Sentiment:")
}

func TestAnalyzeJSONWithoutSentiment(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	out, err := execute(t, "--config", cfgPath, "analyze", writeSampleCSV(t), "--json", "--no-sentiment", "--top", "1")
	require.NoError(t, err)

	var sum analytics.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	assert.Equal(t, int64(1234567), sum.TotalLikes)
	require.Len(t, sum.Hashtags, 1)
	assert.Equal(t, analytics.TagCount{Tag: "#beach", Count: 2}, sum.Hashtags[0])
	assert.Nil(t, sum.Sentiment)
}

func TestAnalyzeErrors(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	_, err := execute(t, "--config", cfgPath, "analyze", filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)

	_, err = execute(t, "--config", cfgPath, "analyze", writeSampleCSV(t), "--top", "-1")
	require.Error(t, err)
}

func TestRootFailsOnBadConfig(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "analyze", "x.csv")
	require.ErrorContains(t, err, "load config")
}

func TestServeUntilDoneShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serveUntilDone(ctx, &http.Server{Handler: mux, ReadHeaderTimeout: time.Second}, ln, zap.NewNop())
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
