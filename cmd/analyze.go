package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/profile-crawler/internal/analytics"
	"github.com/JakeFAU/profile-crawler/internal/report"
	"github.com/JakeFAU/profile-crawler/internal/sentiment"
)

// newAnalyzeCmd creates the 'analyze' subcommand.
func newAnalyzeCmd() *cobra.Command {
	var (
		asJSON      bool
		top         int
		noSentiment bool
	)
	cmd := &cobra.Command{
		Use:   "analyze <csv>",
		Short: "Summarizes a crawl CSV",
		Long: `Reads a CSV written by crawl or replay and reports total posts, likes,
comments, the most frequent hashtags, and the sentiment of the comments.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if top < 0 {
				return fmt.Errorf("--top must not be negative")
			}
			rows, err := report.ReadCSVFile(args[0])
			if err != nil {
				return err
			}
			var scorer sentiment.Scorer
			if !noSentiment {
				scorer = appInstance.Scorer()
			}
			sum, err := analytics.Summarize(cmd.Context(), rows, analytics.Options{Scorer: scorer, TopTags: top})
			if err != nil {
				return fmt.Errorf("summarize: %w", err)
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(sum)
			}
			return printSummary(cmd.OutOrStdout(), sum)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the summary as JSON")
	cmd.Flags().IntVar(&top, "top", 10, "number of hashtags to list (0 lists all)")
	cmd.Flags().BoolVar(&noSentiment, "no-sentiment", false, "skip comment sentiment scoring")
	return cmd
}

func printSummary(w io.Writer, sum analytics.Summary) error {
	lines := []string{
		"Total posts:    " + analytics.FormatIndian(int64(sum.TotalPosts)),
		"Total likes:    " + analytics.FormatIndian(sum.TotalLikes),
		"Total comments: " + analytics.FormatIndian(int64(sum.TotalComments)),
	}
	if len(sum.Hashtags) > 0 {
		lines = append(lines, "Hashtags:")
		for _, tag := range sum.Hashtags {
			lines = append(lines, fmt.Sprintf("  %-20s %s", tag.Tag, analytics.FormatIndian(int64(tag.Count))))
		}
	}
	if len(sum.Sentiment) > 0 {
		lines = append(lines, "Sentiment:")
		labels := make([]string, 0, len(sum.Sentiment))
		for label := range sum.Sentiment {
			labels = append(labels, string(label))
		}
		sort.Strings(labels)
		for _, label := range labels {
			n := sum.Sentiment[sentiment.Label(label)]
			lines = append(lines, fmt.Sprintf("  %-20s %s", label, analytics.FormatIndian(int64(n))))
		}
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
