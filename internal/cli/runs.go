package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/pmsync/internal/model"
	"github.com/nhle/pmsync/internal/store"
	"github.com/nhle/pmsync/internal/theme"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show the sync run history",
	Long: `List recorded sync runs, newest first.

Examples:
  pmsync runs
  pmsync runs --since "last week" --status failed
  pmsync runs --since 24h -o yaml`,
	Args: cobra.NoArgs,
	RunE: runRuns,
}

var (
	runsSince  string
	runsStatus string
	runsLimit  int
	runsOutput string
)

func init() {
	runsCmd.Flags().StringVar(&runsSince, "since", "", `Only runs started after this time ("2026-03-01", "24h", "last monday")`)
	runsCmd.Flags().StringVar(&runsStatus, "status", "", "Only runs with this status (running, completed, partial, failed)")
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Maximum number of runs")
	runsCmd.Flags().StringVarP(&runsOutput, "output", "o", outputText, "Output format (text, json, yaml)")
}

func runRuns(cmd *cobra.Command, args []string) error {
	filter := store.SyncRunFilter{Limit: runsLimit}
	if runsSince != "" {
		since, err := parseSince(runsSince, time.Now())
		if err != nil {
			return err
		}
		filter.Since = &since
	}
	if runsStatus != "" {
		status := model.SyncStatus(strings.ToLower(runsStatus))
		filter.Status = &status
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	runs, err := s.ListSyncRuns(context.Background(), filter)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	return render(cmd.OutOrStdout(), runsOutput, runs, func(w io.Writer) error {
		return printRuns(w, runs)
	})
}

func printRuns(w io.Writer, runs []model.SyncRun) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No sync runs found.")
		return err
	}

	fmt.Fprintf(w, "  %-16s  %-11s  %-9s  %-9s  %-15s  %s\n", "Started", "Type", "Trigger", "Status", "+/~/-/!", "Duration")
	fmt.Fprintln(w, strings.Repeat("─", 80))
	for _, r := range runs {
		duration := "-"
		if r.FinishedAt != nil {
			duration = r.Duration().Round(time.Millisecond).String()
		}
		status := theme.RunStatusStyle(string(r.Status)).Render(fmt.Sprintf("%-9s", r.Status))
		fmt.Fprintf(w, "  %-16s  %-11s  %-9s  %s  %-15s  %s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04"), r.Type, r.Trigger, status,
			fmt.Sprintf("%d/%d/%d/%d", r.Created, r.Updated, r.Deleted, r.Failed), duration)
		if r.ErrorMessage != "" {
			fmt.Fprintf(w, "      %s\n", r.ErrorMessage)
		}
	}
	return nil
}
