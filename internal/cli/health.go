package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nhle/pmsync/internal/model"
	"github.com/nhle/pmsync/internal/store"
	"github.com/nhle/pmsync/internal/theme"
	"github.com/nhle/pmsync/internal/ui/dashboard"
)

var healthCmd = &cobra.Command{
	Use:   "health [project-key...]",
	Short: "Show the health of synced projects",
	Long: `Print the health verdict computed at the last sync for every project, or
for the given project keys.`,
	RunE: runHealth,
}

var (
	healthArchived bool
	healthOutput   string
)

func init() {
	healthCmd.Flags().BoolVar(&healthArchived, "archived", false, "Include archived projects")
	healthCmd.Flags().StringVarP(&healthOutput, "output", "o", outputText, "Output format (text, json, yaml)")
}

func runHealth(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	projects, err := selectProjects(context.Background(), s, args, healthArchived)
	if err != nil {
		return err
	}

	return render(cmd.OutOrStdout(), healthOutput, projects, func(w io.Writer) error {
		return printHealth(w, projects)
	})
}

// selectProjects returns the named projects, or all of them when keys is
// empty.
func selectProjects(ctx context.Context, s store.Store, keys []string, includeArchived bool) ([]model.Project, error) {
	if len(keys) == 0 {
		projects, err := s.ListProjects(ctx, includeArchived)
		if err != nil {
			return nil, fmt.Errorf("failed to list projects: %w", err)
		}
		return projects, nil
	}

	projects := make([]model.Project, 0, len(keys))
	for _, key := range keys {
		p, err := s.GetProjectByKey(ctx, strings.ToUpper(key))
		if err != nil {
			if store.IsNotFound(err) {
				return nil, fmt.Errorf("project %s has not been synced", key)
			}
			return nil, err
		}
		projects = append(projects, *p)
	}
	return projects, nil
}

func printHealth(w io.Writer, projects []model.Project) error {
	if len(projects) == 0 {
		_, err := fmt.Fprintln(w, "No projects found. Run `pmsync sync` first.")
		return err
	}

	fmt.Fprintf(w, "  %-10s  %-24s  %-16s  %-5s  %-6s  %s\n", "Key", "Name", "Health", "Score", "Conf", "Reason")
	fmt.Fprintln(w, strings.Repeat("─", 90))
	for _, p := range projects {
		label := dashboard.HealthLabel(p.Health.Level)
		level := theme.HealthStyle(string(p.Health.Level)).Render(fmt.Sprintf("%-16s", label))
		fmt.Fprintf(w, "  %-10s  %-24s  %s  %5.2f  %-6s  %s\n",
			p.RemoteKey, truncate(p.Name, 24), level, p.Health.Score, p.Health.Confidence, p.Health.Reason)
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
