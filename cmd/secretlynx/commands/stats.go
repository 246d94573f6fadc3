package commands

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"github.com/spf13/cobra"
	"github.com/bl4ck0w1/secretlynx/internal/validation/content_analysis"
)

func NewStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show storage and scanner statistics",
		Long:  `Show what is stored on disk, the scan outcomes recorded so far and the active scanner settings.`,
		RunE:  runStats,
	}
}

func runStats(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(false)
	if err != nil {
		return err
	}
	defer rt.Close()

	repoStats, err := rt.repo.GetStats(context.Background())
	if err != nil {
		return fmt.Errorf("failed to collect storage stats: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Runtime Statistics:")
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════════")
	fmt.Fprintf(w, "Data Directory:\t%s\n", rt.cfg.Storage.DataDir)
	fmt.Fprintf(w, "Stored Scans:\t%v\n", repoStats["total_scans"])
	fmt.Fprintf(w, "Total Findings:\t%v\n", repoStats["total_findings"])

	if byStatus, ok := repoStats["results_by_status"].(map[string]int); ok && len(byStatus) > 0 {
		statuses := make([]string, 0, len(byStatus))
		for s := range byStatus {
			statuses = append(statuses, s)
		}
		sort.Strings(statuses)
		for _, s := range statuses {
			fmt.Fprintf(w, "  %s:\t%d\n", s, byStatus[s])
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Scanner Settings:")
	fmt.Fprintf(w, "Credential Patterns:\t%d\n", len(content_analysis.DefaultPatterns()))
	fmt.Fprintf(w, "Max Concurrent Scans:\t%d\n", rt.cfg.Scanner.MaxConcurrentScans)
	fmt.Fprintf(w, "Resource Concurrency:\t%d\n", rt.cfg.Scanner.ResourceConcurrency)
	fmt.Fprintf(w, "Scan Timeout:\t%s\n", rt.cfg.Scanner.ScanTimeout)
	fmt.Fprintf(w, "Active Probes:\t%t\n", rt.cfg.Scanner.ActiveProbes)
	fmt.Fprintf(w, "Rate Limit:\t%.1f requests/second per host\n", rt.cfg.HTTP.RateLimit)
	fmt.Fprintf(w, "Recommendation Model:\t%s\n", rt.cfg.AI.Model)
	return w.Flush()
}
