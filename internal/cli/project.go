package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nhle/pmsync/internal/model"
	"github.com/nhle/pmsync/internal/store"
	"github.com/nhle/pmsync/internal/theme"
)

const dateLayout = "2006-01-02"

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage the PM-owned side of a project",
	Long: `Edit the plan, milestones, and risks of a synced project. Sync never
overwrites anything set here.`,
}

var projectShowCmd = &cobra.Command{
	Use:   "show [project-key]",
	Short: "Show a project with its plan, milestones, and risks",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectShow,
}

var projectPlanCmd = &cobra.Command{
	Use:   "plan [project-key]",
	Short: "Edit the project plan",
	Long: `Edit the plan of a project. Without flags an interactive form is shown.

Examples:
  pmsync project plan PROJ
  pmsync project plan PROJ --status active --owner "Ana" --target 2026-06-30`,
	Args: cobra.ExactArgs(1),
	RunE: runProjectPlan,
}

var projectArchiveCmd = &cobra.Command{
	Use:   "archive [project-key]",
	Short: "Archive a project (hide it from default listings)",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setArchived(cmd, args[0], true) },
}

var projectUnarchiveCmd = &cobra.Command{
	Use:   "unarchive [project-key]",
	Short: "Restore an archived project",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setArchived(cmd, args[0], false) },
}

var milestoneCmd = &cobra.Command{
	Use:   "milestone",
	Short: "Manage project milestones",
}

var milestoneAddCmd = &cobra.Command{
	Use:   "add [project-key] [title]",
	Short: "Add a milestone",
	Args:  cobra.ExactArgs(2),
	RunE:  runMilestoneAdd,
}

var milestoneDoneCmd = &cobra.Command{
	Use:   "done [milestone-id]",
	Short: "Mark a milestone as done",
	Args:  cobra.ExactArgs(1),
	RunE:  runMilestoneDone,
}

var riskCmd = &cobra.Command{
	Use:   "risk",
	Short: "Manage project risks",
}

var riskAddCmd = &cobra.Command{
	Use:   "add [project-key] [title]",
	Short: "Record a risk",
	Args:  cobra.ExactArgs(2),
	RunE:  runRiskAdd,
}

var riskCloseCmd = &cobra.Command{
	Use:   "close [risk-id]",
	Short: "Close a risk",
	Args:  cobra.ExactArgs(1),
	RunE:  runRiskClose,
}

var (
	planStatus  string
	planSummary string
	planOwner   string
	planStart   string
	planTarget  string

	milestoneDue string

	riskSeverity   string
	riskMitigation string
)

func init() {
	projectPlanCmd.Flags().StringVar(&planStatus, "status", "", "Overall status (planned, active, on_hold, done, canceled)")
	projectPlanCmd.Flags().StringVar(&planSummary, "summary", "", "Executive summary")
	projectPlanCmd.Flags().StringVar(&planOwner, "owner", "", "Accountable owner")
	projectPlanCmd.Flags().StringVar(&planStart, "start", "", "Start date (YYYY-MM-DD)")
	projectPlanCmd.Flags().StringVar(&planTarget, "target", "", "Target date (YYYY-MM-DD)")

	milestoneAddCmd.Flags().StringVar(&milestoneDue, "due", "", "Due date (YYYY-MM-DD)")

	riskAddCmd.Flags().StringVar(&riskSeverity, "severity", model.RiskMedium, "Severity (low, medium, high)")
	riskAddCmd.Flags().StringVar(&riskMitigation, "mitigation", "", "Mitigation plan")

	milestoneCmd.AddCommand(milestoneAddCmd, milestoneDoneCmd)
	riskCmd.AddCommand(riskAddCmd, riskCloseCmd)
	projectCmd.AddCommand(projectShowCmd, projectPlanCmd, projectArchiveCmd, projectUnarchiveCmd, milestoneCmd, riskCmd)
}

func findProject(ctx context.Context, s store.Store, key string) (*model.Project, error) {
	p, err := s.GetProjectByKey(ctx, strings.ToUpper(key))
	if store.IsNotFound(err) {
		return nil, fmt.Errorf("project %s has not been synced", key)
	}
	return p, err
}

func runProjectShow(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()
	ctx := context.Background()

	p, err := findProject(ctx, s, args[0])
	if err != nil {
		return err
	}
	milestones, err := s.ListMilestones(ctx, p.ID)
	if err != nil {
		return err
	}
	risks, err := s.ListRisks(ctx, p.ID)
	if err != nil {
		return err
	}
	printProject(cmd.OutOrStdout(), *p, milestones, risks)
	return nil
}

func printProject(w io.Writer, p model.Project, milestones []model.Milestone, risks []model.Risk) {
	fmt.Fprintf(w, "%s  %s\n", theme.HeaderStyle.Render(p.RemoteKey), p.Name)
	if p.Archived {
		fmt.Fprintln(w, "  (archived)")
	}
	fmt.Fprintf(w, "  Health:   %s  %.2f  %s\n",
		theme.HealthStyle(string(p.Health.Level)).Render(string(p.Health.Level)), p.Health.Score, p.Health.Reason)
	fmt.Fprintf(w, "  Progress: %d/%d tasks, %.1f/%.1f points, %d blockers\n",
		p.Progress.CompletedTasks, p.Progress.TotalTasks,
		p.Progress.CompletedStoryPoints, p.Progress.TotalStoryPoints, p.Progress.ActiveBlockers)

	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Status:   %s\n", orDash(p.Plan.OverallStatus))
	fmt.Fprintf(w, "  Owner:    %s\n", orDash(p.Plan.Owner))
	fmt.Fprintf(w, "  Dates:    %s → %s\n", formatDate(p.Plan.StartDate), formatDate(p.Plan.TargetDate))
	if p.Plan.ExecutiveSummary != "" {
		fmt.Fprintf(w, "  Summary:  %s\n", p.Plan.ExecutiveSummary)
	}

	if len(milestones) > 0 {
		fmt.Fprintln(w, "\n  Milestones")
		for _, m := range milestones {
			mark := "[ ]"
			if m.Done {
				mark = "[x]"
			}
			fmt.Fprintf(w, "    %s %s  %s  (%s)\n", mark, m.Title, formatDate(m.DueDate), m.ID)
		}
	}
	if len(risks) > 0 {
		fmt.Fprintln(w, "\n  Risks")
		for _, r := range risks {
			state := "open"
			if !r.Open {
				state = "closed"
			}
			fmt.Fprintf(w, "    %s %s [%s]  (%s)\n",
				theme.SeverityStyle(r.Severity).Render(fmt.Sprintf("%-6s", r.Severity)), r.Title, state, r.ID)
		}
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(dateLayout)
}

// parseDate parses an optional YYYY-MM-DD date.
func parseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return &t, nil
}

func validatePlanStatus(s string) error {
	switch s {
	case model.PlanStatusNotSet, model.PlanStatusPlanned, model.PlanStatusActive,
		model.PlanStatusOnHold, model.PlanStatusDone, model.PlanStatusCanceled:
		return nil
	}
	return fmt.Errorf("unknown plan status %q", s)
}

func runProjectPlan(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()
	ctx := context.Background()

	p, err := findProject(ctx, s, args[0])
	if err != nil {
		return err
	}

	form := planForm{
		Status:  p.Plan.OverallStatus,
		Summary: p.Plan.ExecutiveSummary,
		Owner:   p.Plan.Owner,
		Start:   formatOptionalDate(p.Plan.StartDate),
		Target:  formatOptionalDate(p.Plan.TargetDate),
	}

	flags := cmd.Flags()
	if flags.NFlag() == 0 {
		if err := requireTerminal("project plan without flags"); err != nil {
			return err
		}
		if err := form.run(p.RemoteKey); err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				return nil
			}
			return err
		}
	} else {
		if flags.Changed("status") {
			form.Status = planStatus
		}
		if flags.Changed("summary") {
			form.Summary = planSummary
		}
		if flags.Changed("owner") {
			form.Owner = planOwner
		}
		if flags.Changed("start") {
			form.Start = planStart
		}
		if flags.Changed("target") {
			form.Target = planTarget
		}
	}

	plan, err := form.plan()
	if err != nil {
		return err
	}
	if err := s.UpdateProjectPlan(ctx, p.ID, plan); err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Updated plan of %s\n", p.RemoteKey)
	return nil
}

func formatOptionalDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dateLayout)
}

// planForm holds the editable plan fields as text.
type planForm struct {
	Status  string
	Summary string
	Owner   string
	Start   string
	Target  string
}

func (f *planForm) run(key string) error {
	validDate := func(s string) error {
		_, err := parseDate(s)
		return err
	}
	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Overall status of "+key).
				Options(
					huh.NewOption("Not set", model.PlanStatusNotSet),
					huh.NewOption("Planned", model.PlanStatusPlanned),
					huh.NewOption("Active", model.PlanStatusActive),
					huh.NewOption("On hold", model.PlanStatusOnHold),
					huh.NewOption("Done", model.PlanStatusDone),
					huh.NewOption("Canceled", model.PlanStatusCanceled),
				).
				Value(&f.Status),
			huh.NewInput().
				Title("Owner").
				Value(&f.Owner),
			huh.NewText().
				Title("Executive summary").
				Value(&f.Summary),
			huh.NewInput().
				Title("Start date").
				Placeholder(dateLayout).
				Value(&f.Start).
				Validate(validDate),
			huh.NewInput().
				Title("Target date").
				Placeholder(dateLayout).
				Value(&f.Target).
				Validate(validDate),
		),
	).Run()
}

func (f planForm) plan() (model.Plan, error) {
	if err := validatePlanStatus(f.Status); err != nil {
		return model.Plan{}, err
	}
	start, err := parseDate(f.Start)
	if err != nil {
		return model.Plan{}, err
	}
	target, err := parseDate(f.Target)
	if err != nil {
		return model.Plan{}, err
	}
	if start != nil && target != nil && target.Before(*start) {
		return model.Plan{}, fmt.Errorf("target date %s is before start date %s", f.Target, f.Start)
	}
	return model.Plan{
		OverallStatus:    f.Status,
		ExecutiveSummary: strings.TrimSpace(f.Summary),
		Owner:            strings.TrimSpace(f.Owner),
		StartDate:        start,
		TargetDate:       target,
	}, nil
}

func setArchived(cmd *cobra.Command, key string, archived bool) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()
	ctx := context.Background()

	p, err := findProject(ctx, s, key)
	if err != nil {
		return err
	}
	if err := s.SetProjectArchived(ctx, p.ID, archived); err != nil {
		return err
	}
	verb := "Archived"
	if !archived {
		verb = "Restored"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ %s %s\n", verb, p.RemoteKey)
	return nil
}

func runMilestoneAdd(cmd *cobra.Command, args []string) error {
	due, err := parseDate(milestoneDue)
	if err != nil {
		return err
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()
	ctx := context.Background()

	p, err := findProject(ctx, s, args[0])
	if err != nil {
		return err
	}
	m := model.Milestone{
		ID:        uuid.New().String(),
		ProjectID: p.ID,
		Title:     args[1],
		DueDate:   due,
	}
	if err := s.AddMilestone(ctx, m); err != nil {
		return fmt.Errorf("failed to add milestone: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Added milestone %q to %s (id: %s)\n", m.Title, p.RemoteKey, m.ID)
	return nil
}

func runMilestoneDone(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.SetMilestoneDone(context.Background(), args[0], true); err != nil {
		if store.IsNotFound(err) {
			return fmt.Errorf("milestone %s not found", args[0])
		}
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "✓ Milestone done")
	return nil
}

func runRiskAdd(cmd *cobra.Command, args []string) error {
	switch riskSeverity {
	case model.RiskLow, model.RiskMedium, model.RiskHigh:
	default:
		return fmt.Errorf("unknown severity %q (want low, medium, or high)", riskSeverity)
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()
	ctx := context.Background()

	p, err := findProject(ctx, s, args[0])
	if err != nil {
		return err
	}
	r := model.Risk{
		ID:         uuid.New().String(),
		ProjectID:  p.ID,
		Title:      args[1],
		Severity:   riskSeverity,
		Mitigation: riskMitigation,
		Open:       true,
	}
	if err := s.AddRisk(ctx, r); err != nil {
		return fmt.Errorf("failed to add risk: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Recorded risk %q on %s (id: %s)\n", r.Title, p.RemoteKey, r.ID)
	return nil
}

func runRiskClose(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.CloseRisk(context.Background(), args[0]); err != nil {
		if store.IsNotFound(err) {
			return fmt.Errorf("risk %s not found", args[0])
		}
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "✓ Risk closed")
	return nil
}
