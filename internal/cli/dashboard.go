package cli

import (
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/nhle/pmsync/internal/credential"
	"github.com/nhle/pmsync/internal/logger"
	appsync "github.com/nhle/pmsync/internal/sync"
	"github.com/nhle/pmsync/internal/ui/dashboard"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Open the terminal dashboard",
	Long: `Show project health and the sync run history in a terminal UI.
Press s for an incremental sync and S for a full sync. Sync keys are
disabled when no Jira connection is configured.`,
	Args: cobra.NoArgs,
	RunE: runDashboard,
}

func runDashboard(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	var trigger dashboard.TriggerFunc
	remote, err := newRemote()
	switch {
	case err == nil:
		sched := appsync.NewScheduler(newOrchestrator(s, remote), s, appsync.NewBroadcaster(), appsync.SchedulerOptions{
			Interval:   cfg.Sync.Interval(),
			FullEvery:  cfg.Sync.FullEvery(),
			RunTimeout: cfg.Sync.RunTimeout(),
		})
		trigger = sched.Trigger
	case errors.Is(err, credential.ErrNoToken) || cfg.Jira.BaseURL == "":
		logger.Info("dashboard opened read-only", logger.F("reason", err))
	default:
		return err
	}

	p := tea.NewProgram(dashboard.New(s, trigger), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}
