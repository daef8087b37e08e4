package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/pario-ai/chatline/pkg/config"
	"github.com/pario-ai/chatline/pkg/models"
	"github.com/pario-ai/chatline/pkg/usage"
)

const dateLayout = "2006-01-02"

func newStatsCmd(configPath *string) *cobra.Command {
	var since string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show token usage recorded by the usage ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			from, err := parseSince(since)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if _, err := os.Stat(cfg.Usage.DBPath); errors.Is(err, fs.ErrNotExist) {
				fmt.Fprintln(out, "No usage data found.")
				return nil
			} else if err != nil {
				return fmt.Errorf("stat usage db: %w", err)
			}

			ledger, err := usage.Open(cfg.Usage.DBPath)
			if err != nil {
				return err
			}
			defer ledger.Close()

			summaries, err := ledger.Summary(cmd.Context(), from)
			if err != nil {
				return err
			}

			if len(summaries) == 0 {
				fmt.Fprintln(out, "No usage data found.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL\tREQUESTS\tQUERIES\tPROMPT\tCOMPLETION\tTOTAL\tAVG LATENCY")
			var total models.UsageSummary
			for _, s := range summaries {
				writeSummaryRow(w, s)
				total.RequestCount += s.RequestCount
				total.DistinctQueries += s.DistinctQueries
				total.TotalPrompt += s.TotalPrompt
				total.TotalCompletion += s.TotalCompletion
				total.TotalTokens += s.TotalTokens
				total.AvgLatencyMs += s.AvgLatencyMs * float64(s.RequestCount)
			}
			if len(summaries) > 1 {
				total.Model = "all"
				total.AvgLatencyMs /= float64(total.RequestCount)
				writeSummaryRow(w, total)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&since, "since", "", "only count usage on or after this date (YYYY-MM-DD)")
	return cmd
}

func writeSummaryRow(w *tabwriter.Writer, s models.UsageSummary) {
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
		s.Model,
		humanize.Comma(int64(s.RequestCount)),
		humanize.Comma(int64(s.DistinctQueries)),
		humanize.Comma(int64(s.TotalPrompt)),
		humanize.Comma(int64(s.TotalCompletion)),
		humanize.Comma(int64(s.TotalTokens)),
		formatLatency(s.AvgLatencyMs),
	)
}

func formatLatency(ms float64) string {
	return time.Duration(ms * float64(time.Millisecond)).Round(time.Millisecond).String()
}

// parseSince turns a YYYY-MM-DD date into local midnight. Empty means no bound.
func parseSince(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(dateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since %q: want YYYY-MM-DD", s)
	}
	return t, nil
}
