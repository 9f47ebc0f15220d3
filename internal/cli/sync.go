package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/pmsync/internal/model"
	appsync "github.com/nhle/pmsync/internal/sync"
	"github.com/nhle/pmsync/internal/theme"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one synchronization now",
	Long: `Run the users, projects, boards/sprints, and tasks stages once and
record the run.

Incremental runs only fetch tasks updated since the last completed run and
never prune; they fall back to a full run when no such run exists.

Examples:
  pmsync sync
  pmsync sync --full
  pmsync sync --project PROJ -o json`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

var (
	syncFull    bool
	syncProject string
	syncOutput  string
)

func init() {
	syncCmd.Flags().BoolVar(&syncFull, "full", false, "Fetch complete listings and prune orphaned tasks")
	syncCmd.Flags().StringVarP(&syncProject, "project", "p", "", "Only sync this project key")
	syncCmd.Flags().StringVarP(&syncOutput, "output", "o", outputText, "Output format (text, json, yaml)")
}

func runSync(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	remote, err := newRemote()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	opts := appsync.RunOptions{
		Trigger:    model.TriggerManual,
		Type:       model.SyncIncremental,
		ProjectKey: syncProject,
	}
	if syncFull {
		opts.Type = model.SyncFull
	}

	res, runErr := newOrchestrator(s, remote).RunSync(ctx, opts)
	if res.RunID == "" {
		return runErr
	}
	if err := render(cmd.OutOrStdout(), syncOutput, res, func(w io.Writer) error {
		return printRunResult(w, res)
	}); err != nil {
		return err
	}
	if runErr != nil {
		return fmt.Errorf("sync failed: %w", runErr)
	}
	return nil
}

func printRunResult(w io.Writer, res model.SyncRunResult) error {
	status := theme.RunStatusStyle(string(res.Status)).Render(string(res.Status))
	_, err := fmt.Fprintf(w, "%s %s sync %s in %s\n  created %d  updated %d  deleted %d  failed %d\n",
		status, res.Type, res.RunID, res.Duration.Round(time.Millisecond),
		res.Created, res.Updated, res.Deleted, res.Failed)
	if err == nil && res.Error != "" {
		_, err = fmt.Fprintf(w, "  %s\n", res.Error)
	}
	return err
}
